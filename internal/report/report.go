// Package report holds the benchmark result schema shared by cmd/bench and
// cmd/buildGraph, together with the JSON session file, the markdown summary
// and the graph rendering.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// BenchmarkResult holds results for one test run.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	Capacity            uint64  `json:"capacity"`
	NumMessages         int64   `json:"num_messages"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed"` // consumed count
	TestDuration        string  `json:"test_duration"`         // e.g. "5s"
	ActualElapsed       string  `json:"actual_elapsed"`        // measured time
	Throughput          float64 `json:"throughput_msgs_sec"`   // based on consumed count
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// CPUs returns the GOMAXPROCS value the session ran with.
func (s SystemInfo) CPUs() int {
	if s.SimulatedCPUCount != 0 {
		return s.SimulatedCPUCount
	}
	return s.NumCPU
}

// FullReport represents a complete test session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// ImplementationMeta describes a queue implementation in the summary table.
type ImplementationMeta struct {
	Name        string
	PkgName     string
	Description string
	Authors     []string
	Features    []string
}

// LoadSessions reads every session stored in path.
func LoadSessions(path string) ([]FullReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshalling %q: %w", path, err)
	}
	return sessions, nil
}

// AppendSessions adds sessions to the file at path, creating it if needed.
// An existing file that cannot be parsed is an error rather than being
// silently overwritten.
func AppendSessions(path string, sessions []FullReport) error {
	previous, err := LoadSessions(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if info, statErr := os.Stat(path); statErr != nil || info.Size() > 0 {
			return err
		}
	}
	updated := append(previous, sessions...)
	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling sessions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// WriteMarkdownTable writes the summary of the last session, sorted by
// throughput, to w.
func WriteMarkdownTable(w io.Writer, sessions []FullReport, metas []ImplementationMeta) error {
	if len(sessions) == 0 {
		return errors.New("no sessions found")
	}
	metaByName := make(map[string]ImplementationMeta, len(metas))
	for _, m := range metas {
		metaByName[m.Name] = m
	}

	type tableRow struct {
		implementation string
		pkgName        string
		features       string
		author         string
		producers      int
		consumers      int
		throughput     float64
	}
	last := sessions[len(sessions)-1]
	rows := make([]tableRow, 0, len(last.Benchmarks))
	for _, bench := range last.Benchmarks {
		meta := metaByName[bench.Implementation]
		rows = append(rows, tableRow{
			implementation: bench.Implementation,
			pkgName:        meta.PkgName,
			features:       strings.Join(meta.Features, ", "),
			author:         strings.Join(meta.Authors, ", "),
			producers:      bench.NumProducers,
			consumers:      bench.NumConsumers,
			throughput:     bench.Throughput,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})

	fmt.Fprintln(w, "## Last Session Benchmark Summary")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Implementation           | Package         | Features                    | Author                      | P x C     | Throughput (msgs/sec) |")
	fmt.Fprintln(w, "|--------------------------|-----------------|-----------------------------|-----------------------------|-----------|-----------------------|")
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "| %-24s | %-15s | %-27s | %-27s | %-9s | %21.0f |\n",
			r.implementation, r.pkgName, r.features, r.author,
			fmt.Sprintf("%dx%d", r.producers, r.consumers), r.throughput)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Implementations")
	fmt.Fprintln(w)
	for _, m := range metas {
		if m.Description == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "- **%s** (`%s`): %s\n", m.Name, m.PkgName, m.Description); err != nil {
			return err
		}
	}
	return nil
}
