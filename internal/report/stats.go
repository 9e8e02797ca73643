package report

import (
	"fmt"
	"sort"
	"time"
)

// Stats summarises the ns/msg samples of one implementation at one
// concurrency level.
type Stats struct {
	Concurrency float64 // producers + consumers
	Min         float64 // average of the bottom 5%
	Median      float64
	Max         float64 // average of the top 5%
}

// Samples maps CPU count -> implementation -> concurrency -> ns/msg values.
type Samples map[int]map[string]map[float64][]float64

// CollectSamples groups every benchmark in sessions by CPU count,
// implementation and producers+consumers. Runs that consumed nothing or whose
// elapsed time cannot be parsed are skipped, and a CPU count appears only if at
// least one of its runs was usable.
func CollectSamples(sessions []FullReport) Samples {
	out := make(Samples)
	for _, session := range sessions {
		cpus := session.SystemInfo.CPUs()
		for _, b := range session.Benchmarks {
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesConsumed == 0 {
				continue
			}
			x := float64(b.NumProducers + b.NumConsumers)
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed)

			impls, ok := out[cpus]
			if !ok {
				impls = make(map[string]map[float64][]float64)
				out[cpus] = impls
			}
			if _, ok := impls[b.Implementation]; !ok {
				impls[b.Implementation] = make(map[float64][]float64)
			}
			impls[b.Implementation][x] = append(impls[b.Implementation][x], nsPerMsg)
		}
	}
	return out
}

// BuildStats computes the 5%-avg-min, median and 5%-avg-max per concurrency
// level, sorted by concurrency.
func BuildStats(byConcurrency map[float64][]float64) []Stats {
	out := make([]Stats, 0, len(byConcurrency))
	for x, vals := range byConcurrency {
		if len(vals) == 0 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out = append(out, Stats{
			Concurrency: x,
			Min:         averageOfRange(sorted, 0.0, 0.05),
			Median:      median(sorted),
			Max:         averageOfRange(sorted, 0.95, 1.0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Concurrency < out[j].Concurrency })
	return out
}

// averageOfRange returns the average of sortedVals in [startFrac, endFrac) of
// its length, falling back to the median when that window is empty.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := max(int(float64(n)*startFrac), 0)
	endIndex := min(int(float64(n)*endFrac), n)
	if startIndex >= endIndex {
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// FormatNs formats a nanosecond value in ns, µs, ms, or s.
func FormatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
