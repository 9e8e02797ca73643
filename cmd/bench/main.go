package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hu4nghe/lockfree-queue/internal/queue"
	"github.com/hu4nghe/lockfree-queue/internal/report"
	"github.com/hu4nghe/lockfree-queue/internal/testbench"
	"github.com/hu4nghe/lockfree-queue/pkg/buffered"
	"github.com/hu4nghe/lockfree-queue/pkg/config"
	"github.com/hu4nghe/lockfree-queue/pkg/lockedring"
	"github.com/hu4nghe/lockfree-queue/pkg/lockfree"
)

// Implementation represents a queue implementation under test.
type Implementation struct {
	name        string
	description string
	pkgName     string
	authors     []string
	features    []string
	newQueue    func(capacity uint64) queue.Validation[*int]
	newTagQueue func(capacity uint64) queue.Validation[uint64]
}

func (impl Implementation) meta() report.ImplementationMeta {
	return report.ImplementationMeta{
		Name:        impl.name,
		PkgName:     impl.pkgName,
		Description: impl.description,
		Authors:     impl.authors,
		Features:    impl.features,
	}
}

// getImplementations enumerates the queue implementations we compare.
func getImplementations() []Implementation {
	return []Implementation{
		{
			name:        "LockFreeQueue",
			pkgName:     "lockfree",
			description: "Bounded MPMC ring with per-slot sequence numbers; enqueue/dequeue never block or take a lock.",
			authors:     []string{"HUANG He <hu4nghe@outlook.com>"},
			features:    []string{"MPMC", "FIFO", "Lock-Free", "Cache-Optimized"},
			newQueue: func(capacity uint64) queue.Validation[*int] {
				return lockfree.New[*int](capacity)
			},
			newTagQueue: func(capacity uint64) queue.Validation[uint64] {
				return lockfree.New[uint64](capacity)
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "buffered",
			description: "A standard Go channel used through non-blocking selects.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO"},
			newQueue: func(capacity uint64) queue.Validation[*int] {
				return buffered.New[*int](capacity)
			},
			newTagQueue: func(capacity uint64) queue.Validation[uint64] {
				return buffered.New[uint64](capacity)
			},
		},
		{
			name:        "LockedRing",
			pkgName:     "lockedring",
			description: "A mutex around github.com/eapache/queue, the lock-based reference point.",
			authors:     []string{"HUANG He <hu4nghe@outlook.com>"},
			features:    []string{"MPMC", "FIFO"},
			newQueue: func(capacity uint64) queue.Validation[*int] {
				return lockedring.New[*int](capacity)
			},
			newTagQueue: func(capacity uint64) queue.Validation[uint64] {
				return lockedring.New[uint64](capacity)
			},
		},
	}
}

func metas(impls []Implementation) []report.ImplementationMeta {
	out := make([]report.ImplementationMeta, 0, len(impls))
	for _, impl := range impls {
		out = append(out, impl.meta())
	}
	return out
}

// cpuSettings returns the GOMAXPROCS values to test. A positive cpuMax pins a
// single value (capped at the real CPU count); otherwise every common
// CPU/vCPU count up to trueCPUs is used.
func cpuSettings(cpuMax, trueCPUs int) []int {
	if cpuMax > 0 {
		return []int{min(cpuMax, trueCPUs)}
	}
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}
	var out []int
	for _, v := range commonCPUs {
		if v <= trueCPUs {
			out = append(out, v)
		}
	}
	return out
}

// concurrencyConfigs returns the producer/consumer mixes to run.
func concurrencyConfigs(high bool) []config.Config {
	cfgs := []config.Config{
		{NumProducers: 2, NumConsumers: 2},
		{NumProducers: 10, NumConsumers: 10},
		{NumProducers: 50, NumConsumers: 50},
	}
	if high {
		cfgs = append(cfgs,
			config.Config{NumProducers: 100, NumConsumers: 100},
			config.Config{NumProducers: 250, NumConsumers: 250},
			config.Config{NumProducers: 500, NumConsumers: 500},
		)
	}
	return cfgs
}

func main() {
	testIterations := flag.Int("iter", 5, "Number of test iterations per concurrency setting")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	capacity := flag.Uint64("capacity", 1024, "Requested queue capacity")
	testDuration := flag.Duration("duration", 5*time.Second, "Duration of each timed run")
	jsonExport := flag.Bool("json", false, "Append results as JSON to -jsonfile")
	highConcurrency := flag.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from -jsonfile and exit")
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to the JSON results file")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	integrity := flag.Bool("integrity", false, "Run the no-loss/no-duplication check on every implementation and exit")
	integrityItems := flag.Int("integrity-items", 10000, "Items per producer for -integrity")
	flag.Parse()

	impls := getImplementations()

	if *markdownTable {
		sessions, err := report.LoadSessions(*jsonFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading sessions: %v\n", err)
			os.Exit(1)
		}
		if err := report.WriteMarkdownTable(os.Stdout, sessions, metas(impls)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing markdown table: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *integrity {
		if !runIntegrity(impls, *integrityItems) {
			os.Exit(1)
		}
		return
	}

	trueCPUCount := runtime.NumCPU()
	cpus := cpuSettings(*cpuMaxFlag, trueCPUCount)
	cfgs := concurrencyConfigs(*highConcurrency)

	totalTests := len(cpus) * len(cfgs) * (*testIterations) * len(impls)
	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Progress"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	var allSessions []report.FullReport
	for _, n := range cpus {
		runtime.GOMAXPROCS(n)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = n
		sysInfo.TrueCPU = trueCPUCount
		sysInfo.SimulatedCPUCount = n

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", n)
		fmt.Printf("=============================\n")

		var results []report.BenchmarkResult
		for _, cfg := range cfgs {
			fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cfg.NumProducers, cfg.NumConsumers)
			for iteration := 1; iteration <= *testIterations; iteration++ {
				fmt.Printf("    iteration %d/%d\n", iteration, *testIterations)
				for _, impl := range impls {
					result := runOne(impl, cfg, *capacity, *testDuration)
					fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, result.NumMessages, result.NumMessagesConsumed, result.Throughput, result.ActualElapsed)
					results = append(results, result)
					if bar != nil {
						_ = bar.Add(1)
					}
				}
			}
		}

		allSessions = append(allSessions, report.FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if *jsonExport {
		if err := report.AppendSessions(*jsonFile, allSessions); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", *jsonFile)
	}
}

// runOne does a single timed run of impl.
func runOne(impl Implementation, cfg config.Config, capacity uint64, d time.Duration) report.BenchmarkResult {
	runtime.GC()
	q := impl.newQueue(capacity)
	time.Sleep(250 * time.Millisecond)

	produced, consumed, actualTime := testbench.RunTimedTest(q, cfg, d, func(i int) *int {
		v := i
		return &v
	})
	return report.BenchmarkResult{
		Implementation:      impl.name,
		NumProducers:        cfg.NumProducers,
		NumConsumers:        cfg.NumConsumers,
		Capacity:            q.Cap(),
		NumMessages:         produced,
		NumMessagesConsumed: consumed,
		TestDuration:        d.String(),
		ActualElapsed:       actualTime.String(),
		Throughput:          float64(consumed) / actualTime.Seconds(),
		Timestamp:           time.Now().Unix(),
		GoVersion:           runtime.Version(),
	}
}

// runIntegrity pushes tagged items through every implementation at capacity 2
// with 10 producers and 10 consumers and reports loss or duplication.
func runIntegrity(impls []Implementation, itemsPerProducer int) bool {
	cfg := config.Config{NumProducers: 10, NumConsumers: 10}
	allOK := true
	for _, impl := range impls {
		res := testbench.RunCountedTest(impl.newTagQueue(2), cfg, itemsPerProducer, 5*time.Minute)
		status := "OK"
		if !res.OK() {
			status = "FAIL"
			allOK = false
		}
		fmt.Printf("%-24s %s produced=%d consumed=%d missing=%d duplicates=%d timed_out=%v took=%v\n",
			impl.name, status, res.Produced, res.Consumed, len(res.Missing), len(res.Duplicates), res.TimedOut, res.Elapsed)
	}
	return allOK
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() report.SystemInfo {
	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return report.SystemInfo{
		NumCPU:      runtime.NumCPU(),
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      runtime.GOARCH,
		TotalMemory: totalMemory,
	}
}
