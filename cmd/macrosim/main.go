// Command macrosim runs the closed-economy simulation and reports on recorded runs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/talgya/macro-sim/internal/config"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML parameter bundle (keys left out use the built-in defaults)",
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "random seed; 0 picks a fresh one (overrides run.seed)",
	}
	ticksFlag = cli.IntFlag{
		Name:  "ticks",
		Usage: "number of weeks to simulate (overrides run.total_steps)",
	}
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "SQLite file recording readings and events (empty disables)",
		Value: "data/macrosim.db",
	}
	archiveFlag = cli.StringFlag{
		Name:  "archive",
		Usage: "directory for the zstd-compressed JSONL tick archive (empty disables)",
	}
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "HTTP API port (0 disables the API)",
	}
	speedFlag = cli.Float64Flag{
		Name:  "speed",
		Usage: "ticks per second; 0 runs as fast as possible",
	}
	holdFlag = cli.BoolFlag{
		Name:  "hold",
		Usage: "keep serving the API after the last tick until interrupted",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error (overrides run.log_level)",
	}
	runFlag = cli.StringFlag{
		Name:  "run",
		Usage: "run id to report on (default: the latest run)",
	}
	eventsFlag = cli.IntFlag{
		Name:  "events",
		Usage: "number of journal entries to list",
		Value: 20,
	}

	runCommand = cli.Command{
		Action:    runSimulation,
		Name:      "run",
		Usage:     "Run a simulation",
		ArgsUsage: "",
		Flags: []cli.Flag{
			configFlag, seedFlag, ticksFlag, dbFlag, archiveFlag,
			portFlag, speedFlag, holdFlag, logLevelFlag,
		},
		Description: `The run command steps the economy for the configured number of weeks,
recording every tick's readings. It exits non-zero if an economic invariant breaks.`,
	}

	reportCommand = cli.Command{
		Action:    report,
		Name:      "report",
		Usage:     "Summarize a recorded run",
		ArgsUsage: "",
		Flags:     []cli.Flag{dbFlag, runFlag, eventsFlag, logLevelFlag},
		Description: `The report command prints a recorded run's final readings, its loan defaults
and the violation that stopped it, if any.`,
	}

	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       []cli.Flag{configFlag},
		Description: `The dumpconfig command prints the effective parameter bundle as YAML.`,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "macrosim"
	app.Usage = "closed-economy agent simulation"
	app.Commands = []cli.Command{runCommand, reportCommand, dumpConfigCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// loadConfig reads --config over the defaults and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if file := ctx.String(configFlag.Name); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(seedFlag.Name) {
		cfg.Run.Seed = ctx.Int64(seedFlag.Name)
	}
	if ctx.IsSet(ticksFlag.Name) {
		cfg.Run.TotalSteps = ctx.Int(ticksFlag.Name)
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.Run.LogLevel = ctx.String(logLevelFlag.Name)
	}
	return cfg, nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(strings.TrimRight(out, "\n") + "\n")
	return err
}
