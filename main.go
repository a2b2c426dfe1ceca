package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/config"
	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/integration"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/abelzeko/nuclear-bot/internal/state"
	"github.com/abelzeko/nuclear-bot/internal/usecases"
)

// One-shot harness: refresh once against the live sources and print what was published.

func main() {
	plantsFile := flag.String("plants", "", "plant registry YAML (defaults to the built-in table)")
	timeout := flag.Duration("timeout", integration.DefaultTimeout, "per-plant request timeout")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger, err := config.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	reg, err := registry.Load(*plantsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load plant registry: %v\n", err)
		os.Exit(2)
	}

	published := state.New(reg)
	scraper := integration.NewNuclearScraper(logger, integration.WithTimeout(*timeout))
	useCase := usecases.NewGridUseCase(reg, scraper, published, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+10*time.Second)
	defer cancel()

	err = useCase.RefreshGridData(ctx)
	printReport(os.Stdout, reg, published)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
		if errors.Is(err, entities.ErrRefreshFailed) {
			os.Exit(1)
		}
	}
}

func printReport(w io.Writer, reg *registry.Registry, published *state.PublishedState) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLANT\tREACTOR\tOUTPUT (MW)\tCAPACITY %\tVALUE DATE")
	for _, plant := range reg.Plants() {
		if _, ok := published.PlantLastUpdate(plant.Key); !ok {
			fmt.Fprintf(tw, "%s\t-\tunknown\t-\t-\n", plant.Key)
			continue
		}
		for _, reactor := range plant.Reactors {
			r, ok := published.Reactor(plant.Key, reactor)
			if !ok {
				fmt.Fprintf(tw, "%s\t%s\tunknown\t-\t-\n", plant.Key, reactor)
				continue
			}
			percent := "-"
			if r.Percent != nil {
				percent = fmt.Sprintf("%.1f", *r.Percent)
			}
			valueDate := r.ValueDate
			if valueDate == "" {
				valueDate = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n", plant.Key, reactor, r.Output, percent, valueDate)
		}
	}
	tw.Flush()

	fmt.Fprintln(w)
	total, ok := published.Total()
	if !ok {
		fmt.Fprintln(w, "Total: unavailable")
		return
	}
	fmt.Fprintf(w, "Total: %.2f %s, %d of %d reactors active, computed %s\n",
		total.Output, total.Unit, total.ActiveReactors, total.TotalReactors, total.LastUpdated.Format(time.RFC3339))
}
