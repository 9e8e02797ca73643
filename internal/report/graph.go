package report

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// statsPoints implements XYer and YErrorer so one implementation can be
// drawn as a line with error bars. x is the shifted category index.
type statsPoints struct {
	x     []float64
	stats []Stats
}

func (s statsPoints) Len() int                { return len(s.stats) }
func (s statsPoints) XY(i int) (x, y float64) { return s.x[i], s.stats[i].Median }
func (s statsPoints) YError(i int) (low, high float64) {
	return s.stats[i].Median - s.stats[i].Min, s.stats[i].Max - s.stats[i].Median
}

// categoryTicks labels the categorical X axis 0,1,2,... with concurrency values.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

// nsTicks spreads about one labelled tick per 30px of a 9 inch tall plot,
// evenly spaced in log10.
func nsTicks(min, max float64) []plot.Tick {
	nTicks := math.Floor(648.0 / 30.0)
	if min <= 0 {
		min = 1e-9
	}
	if max <= min {
		return []plot.Tick{{Value: min, Label: FormatNs(min)}}
	}
	start, end := math.Log10(min), math.Log10(max)
	step := (end - start) / nTicks
	ticks := make([]plot.Tick, 0, int(nTicks)+1)
	for i := 0.0; i <= nTicks; i++ {
		y := math.Pow(10, start+i*step)
		ticks = append(ticks, plot.Tick{Value: y, Label: FormatNs(y)})
	}
	return ticks
}

// NewGraph builds the ns/msg vs concurrency plot for one CPU count.
func NewGraph(cpus int, impls map[string]map[float64][]float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Benchmark (5%%-avg-min / Median / 5%%-avg-max) vs. Concurrency for %d CPU(s)", cpus)
	p.X.Label.Text = "NumProducers + NumConsumers"
	p.Y.Label.Text = "Time per Msg (ns)"

	// Dark theme.
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white
	p.Y.Tick.Marker = plot.TickerFunc(nsTicks)
	p.Add(plotter.NewGrid())

	concurrencySet := make(map[float64]struct{})
	for _, byConc := range impls {
		for conc := range byConc {
			concurrencySet[conc] = struct{}{}
		}
	}
	concValues := make([]float64, 0, len(concurrencySet))
	for v := range concurrencySet {
		concValues = append(concValues, v)
	}
	sort.Float64s(concValues)

	category := make(map[float64]float64, len(concValues))
	var ticks categoryTicks
	for i, v := range concValues {
		category[v] = float64(i)
		ticks.positions = append(ticks.positions, float64(i))
		ticks.labels = append(ticks.labels, strconv.FormatFloat(v, 'f', -1, 64))
	}
	p.X.Tick.Marker = ticks

	names := make([]string, 0, len(impls))
	for name := range impls {
		names = append(names, name)
	}
	sort.Strings(names)

	colors := plotutil.SoftColors
	shapes := []draw.GlyphDrawer{
		draw.CircleGlyph{},
		draw.SquareGlyph{},
		draw.TriangleGlyph{},
		draw.CrossGlyph{},
		draw.PlusGlyph{},
	}

	// Shift each implementation slightly so overlapping points stay readable.
	const offsetRange = 0.4
	offsetStep := offsetRange / float64(max(len(names), 1))
	startOffset := -offsetRange/2 + offsetStep/2

	for i, name := range names {
		stats := BuildStats(impls[name])
		if len(stats) == 0 {
			continue
		}
		sp := statsPoints{stats: stats, x: make([]float64, len(stats))}
		for j, s := range stats {
			sp.x[j] = category[s.Concurrency] + startOffset + float64(i)*offsetStep
		}

		line, err := plotter.NewLine(sp)
		if err != nil {
			return nil, fmt.Errorf("line for %s: %w", name, err)
		}
		line.Color = colors[i%len(colors)]

		points, err := plotter.NewScatter(sp)
		if err != nil {
			return nil, fmt.Errorf("scatter for %s: %w", name, err)
		}
		points.GlyphStyle.Radius = vg.Points(5)
		points.Color = colors[i%len(colors)]
		points.Shape = shapes[i%len(shapes)]

		yErrBars, err := plotter.NewYErrorBars(sp)
		if err != nil {
			return nil, fmt.Errorf("error bars for %s: %w", name, err)
		}
		yErrBars.Color = colors[i%len(colors)]

		p.Add(line, points, yErrBars)
		p.Legend.Add(name, line, points)
	}
	return p, nil
}

// SaveGraphs writes one PNG per CPU count, named <prefix>_<cpus>.png, and
// returns the file names in ascending CPU order.
func SaveGraphs(samples Samples, prefix string) ([]string, error) {
	cpuCounts := make([]int, 0, len(samples))
	for cpus := range samples {
		cpuCounts = append(cpuCounts, cpus)
	}
	sort.Ints(cpuCounts)

	var files []string
	for _, cpus := range cpuCounts {
		p, err := NewGraph(cpus, samples[cpus])
		if err != nil {
			return files, err
		}
		filename := fmt.Sprintf("%s_%d.png", prefix, cpus)
		if err := p.Save(12*vg.Inch, 9*vg.Inch, filename); err != nil {
			return files, fmt.Errorf("saving plot for %d CPU(s): %w", cpus, err)
		}
		files = append(files, filename)
	}
	return files, nil
}
