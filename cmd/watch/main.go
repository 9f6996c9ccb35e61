// Command watch follows a running macrosim over its HTTP API and prints the
// headline readings as they stream in.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/talgya/macro-sim/internal/observer"
)

// columns are the readings printed for every tick.
var columns = []string{
	"money_supply",
	"bank_money",
	"total_household_deposits",
	"avg_household_money",
	"inflation_multiplier",
	"loan_count",
	"defaults",
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("MACROSIM_API_URL", "http://localhost:8080")
	batch := envIntOrDefault("WATCH_BATCH", 4)
	readyTimeout := time.Duration(envIntOrDefault("WATCH_READY_TIMEOUT", 300)) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := observer.NewObserver(apiURL)

	// Wait for the simulation API before subscribing.
	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	err := obs.WaitReady(readyCtx)
	cancel()
	if err != nil {
		slog.Error("simulation API never became ready", "url", apiURL, "error", err)
		os.Exit(1)
	}

	st, err := obs.Status(ctx)
	if err != nil {
		slog.Error("status failed", "error", err)
		os.Exit(1)
	}
	slog.Info("watching run",
		"run_id", st.RunID,
		"tick", st.Tick,
		"households", st.Households,
		"firms", st.Firms,
		"speed", st.Speed,
	)

	var rows []observer.Tick
	err = obs.Stream(ctx, func(t observer.Tick) error {
		for _, e := range t.Events {
			if e.Category == "default" || e.Category == "housing" {
				slog.Info("event", "tick", e.Tick, "category", e.Category, "description", e.Description)
			}
		}
		rows = append(rows, t)
		if len(rows) >= batch {
			render(rows)
			rows = rows[:0]
		}
		return nil
	})
	if len(rows) > 0 {
		render(rows)
	}
	if err != nil {
		slog.Error("stream ended", "error", err)
		os.Exit(1)
	}
	fmt.Println("Watch stopped.")
}

func render(rows []observer.Tick) {
	table := tablewriter.NewWriter(os.Stdout)
	header := []string{"Tick", "Time"}
	for _, c := range columns {
		header = append(header, strings.ReplaceAll(c, "_", " "))
	}
	table.SetHeader(header)
	for _, t := range rows {
		line := []string{strconv.FormatUint(t.Tick, 10), t.Time}
		for _, c := range columns {
			line = append(line, humanize.FormatFloat("#,###.##", t.Readings[c]))
		}
		table.Append(line)
	}
	table.Render()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}
