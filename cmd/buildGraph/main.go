package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hu4nghe/lockfree-queue/internal/report"
)

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing test sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	sessions, err := report.LoadSessions(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading sessions: %v\n", err)
		os.Exit(1)
	}

	samples := report.CollectSamples(sessions)
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "No usable benchmark results found.")
		os.Exit(1)
	}

	files, err := report.SaveGraphs(samples, *outputPrefix)
	for _, f := range files {
		fmt.Printf("Saved graph to %s\n", f)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building graphs: %v\n", err)
		os.Exit(1)
	}
}
