// Command simulate plays a scenario file through the event engine and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/sim"
)

func main() {
	scenarioPath := flag.String("scenario", "", "Scenario JSON file (- for stdin)")
	logLevel := flag.String("loglevel", "warn", "Log level (debug, info, warn, error)")
	asJSON := flag.Bool("json", false, "Print the report as JSON instead of a table")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  simulate -scenario file.json [-json] [-loglevel info]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *scenarioPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*scenarioPath, *logLevel, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}

func run(path, level string, asJSON bool) error {
	var (
		sc  *sim.Scenario
		err error
	)
	if path == "-" {
		sc, err = sim.LoadScenario(os.Stdin)
	} else {
		sc, err = sim.LoadScenarioFile(path)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.NewWithWriter(os.Stderr, logger.ParseLevel(level))
	report, err := sim.Run(ctx, sc, log)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	sim.RenderResults(os.Stdout, report)
	return nil
}
