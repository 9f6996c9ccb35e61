package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/talgya/macro-sim/internal/api"
	"github.com/talgya/macro-sim/internal/economy"
	"github.com/talgya/macro-sim/internal/engine"
	"github.com/talgya/macro-sim/internal/entropy"
	"github.com/talgya/macro-sim/internal/persistence"
)

func runSimulation(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	setupLogging(cfg.SlogLevel())

	seed := cfg.Run.Seed
	if seed == 0 {
		seed = entropy.CryptoSeed()
		cfg.Run.Seed = seed
	}
	slog.Info("macro-sim starting", "seed", seed, "ticks", cfg.Run.TotalSteps)

	// ── Economy ───────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg, entropy.NewSeeded(seed))
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	// ── Database ──────────────────────────────────────────────────────
	var (
		runID string
		db    *persistence.DB
		rec   *persistence.Recorder
	)
	if dbPath := ctx.String(dbFlag.Name); dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if db, err = persistence.Open(dbPath); err != nil {
			return err
		}
		defer db.Close()

		yml, err := cfg.Marshal()
		if err != nil {
			return err
		}
		if rec, err = db.StartRun(seed, yml, sim.StartMoney()); err != nil {
			return err
		}
		if err := rec.SaveEvents(sim.Events); err != nil {
			return fmt.Errorf("save setup events: %w", err)
		}
		runID = rec.RunID
		sim.Collectors = append(sim.Collectors, rec)
		slog.Info("database opened", "path", dbPath, "run_id", runID)
	}

	// ── Archive ───────────────────────────────────────────────────────
	if dir := ctx.String(archiveFlag.Name); dir != "" {
		if runID == "" {
			runID = uuid.NewString()
		}
		archive, err := persistence.CreateArchive(dir, runID)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		defer func() {
			if err := archive.Close(); err != nil {
				slog.Error("archive close failed", "error", err)
			}
		}()
		sim.Collectors = append(sim.Collectors, archive)
		slog.Info("archiving ticks", "path", archive.Path())
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.MaxTicks = uint64(cfg.Run.TotalSteps)
	eng.SetSpeed(ctx.Float64(speedFlag.Name))
	eng.OnTick = sim.TickWeek
	eng.OnPeriod = sim.TickMonth

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	// serveCtx outlives the engine only with --hold.
	serveCtx, cancelServe := context.WithCancel(gctx)
	defer cancelServe()

	// ── HTTP API ──────────────────────────────────────────────────────
	if port := ctx.Int(portFlag.Name); port > 0 {
		hub := api.NewHub()
		sim.Collectors = append(sim.Collectors, hub)
		srv := &api.Server{
			Sim:      sim,
			Eng:      eng,
			Hub:      hub,
			RunID:    runID,
			Port:     port,
			DB:       db,
			AdminKey: os.Getenv("MACROSIM_ADMIN_KEY"),
		}
		g.Go(func() error { hub.Run(serveCtx); return nil })
		g.Go(func() error { return srv.Start(serveCtx) })
	}

	hold := ctx.Bool(holdFlag.Name)
	var fatal error
	g.Go(func() error {
		fatal = eng.Run(gctx)
		if hold && fatal == nil {
			slog.Info("run complete, holding API open until interrupted")
			<-gctx.Done()
		}
		cancelServe()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if rec != nil {
		if err := rec.Finish(fatal); err != nil {
			slog.Error("failed to record run outcome", "error", err)
		}
	}

	printSummary(os.Stdout, sim)

	if fatal != nil {
		if v, ok := economy.AsViolation(fatal); ok {
			slog.Error("run stopped by violation", "kind", v.Kind.String(), "agent", v.Agent, "tick", sim.LastTick+1, "detail", v.Detail)
		}
		return cli.NewExitError(fatal.Error(), 1)
	}
	if errors.Is(sigCtx.Err(), context.Canceled) {
		slog.Info("interrupted", "tick", sim.LastTick)
	}
	return nil
}
