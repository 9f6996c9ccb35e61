package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/talgya/macro-sim/internal/engine"
	"github.com/talgya/macro-sim/internal/persistence"
)

func report(ctx *cli.Context) error {
	setupLogging(levelFromFlag(ctx))

	db, err := persistence.Open(ctx.String(dbFlag.Name))
	if err != nil {
		return err
	}
	defer db.Close()

	var run *persistence.Run
	if id := ctx.String(runFlag.Name); id != "" {
		run, err = db.GetRun(id)
	} else {
		run, err = db.LatestRun()
	}
	if err != nil {
		return err
	}

	tick, readings, err := db.FinalReadings(run.ID)
	if err != nil {
		return fmt.Errorf("final readings: %w", err)
	}

	out := os.Stdout
	fmt.Fprintf(out, "Run %s (seed %d), started %s\n", run.ID, run.Seed, run.StartedAt)
	fmt.Fprintf(out, "%s\n\n", outcome(run))

	fmt.Fprintf(out, "Readings at tick %d:\n", tick)
	renderReadings(out, readings)

	defaults, err := db.Events(run.ID, "default", 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s loan default(s)\n", humanize.Comma(int64(len(defaults))))

	events, err := db.Events(run.ID, "", ctx.Int(eventsFlag.Name))
	if err != nil {
		return err
	}
	if len(events) > 0 {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Tick", "Category", "Description"})
		for _, e := range events {
			table.Append([]string{fmt.Sprint(e.Tick), e.Category, e.Description})
		}
		table.Render()
	}
	return nil
}

// outcome describes how a recorded run ended. A fatal violation happened on the
// tick after the last one recorded.
func outcome(run *persistence.Run) string {
	switch {
	case run.Fatal.Valid:
		return fmt.Sprintf("Stopped at tick %d: %s", run.LastTick+1, run.Fatal.String)
	case run.FinishedAt.Valid:
		return fmt.Sprintf("Completed %d ticks (%s) at %s", run.LastTick, engine.SimTime(run.LastTick), run.FinishedAt.String)
	default:
		return fmt.Sprintf("Still running or interrupted, last tick %d", run.LastTick)
	}
}

// printSummary writes the final readings of an in-process run.
func printSummary(w io.Writer, sim *engine.Simulation) {
	snap := sim.Latest()
	fmt.Fprintf(w, "\nFinal readings after %d ticks (%s):\n", snap.Tick, snap.Time)
	renderReadings(w, snap.Readings)
}

func renderReadings(w io.Writer, r engine.Readings) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Reading", "Value"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, k := range r.Keys() {
		table.Append([]string{k, formatReading(k, r[k])})
	}
	table.Render()
}

func formatReading(key string, v float64) string {
	switch {
	case key == engine.ConservationDrift:
		return fmt.Sprintf("%.3e", v)
	case key == engine.InflationMultiplier:
		return fmt.Sprintf("%.4f", v)
	case key == engine.LoanCount, key == engine.Defaults, key == engine.EmployedHouseholds,
		strings.HasPrefix(key, "households_"):
		return humanize.Comma(int64(v))
	default:
		return humanize.FormatFloat("#,###.##", v)
	}
}

func levelFromFlag(ctx *cli.Context) slog.Level {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return slog.LevelInfo
	}
	return cfg.SlogLevel()
}
