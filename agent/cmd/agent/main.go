package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/delivery"
	"github.com/docship/docship/agent/internal/metrics"
	"github.com/docship/docship/agent/internal/netgate"
	"github.com/docship/docship/agent/internal/pipeline"
	"github.com/docship/docship/agent/internal/reporter"
	"github.com/docship/docship/agent/internal/retry"
	"github.com/docship/docship/agent/internal/scanner"
	"github.com/docship/docship/pkg/types"
)

const exitConfigError = 1

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	root := flag.String("root", "", "directory to scan, overrides agent.scan.root")
	once := flag.Bool("once", false, "run a single time even when schedule.interval is set")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("docship-agent starting", "config", *configPath)

	if err := config.LoadEnv(); err != nil {
		slog.Error("failed to load .env", "err", err)
		return exitConfigError
	}

	cfg, err := config.Load(*configPath, config.WithRoot(*root))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return exitConfigError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Agent.SlogLevel()})))
	slog.Info("config loaded",
		"agent", cfg.Agent.ID,
		"root", cfg.Agent.Scan.Root,
		"channel", cfg.Agent.Delivery.Channel,
		"mode", cfg.Agent.Delivery.Mode,
		"interval", cfg.Agent.Schedule.Interval,
	)

	// Credentials are resolved here so a missing secret fails before any
	// network activity.
	p, err := build(cfg.Agent)
	if err != nil {
		slog.Error("failed to initialise pipeline", "err", err)
		return exitConfigError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once || cfg.Agent.Schedule.Interval == 0 {
		rep := runOnce(ctx, p, cfg.Agent)
		return rep.Disposition.ExitCode()
	}

	schedule(ctx, *configPath, *root, cfg, p)
	slog.Info("docship-agent shutting down")
	return 0
}

// build resolves credentials and wires one pipeline for cfg.
func build(cfg config.AgentConfig) (*pipeline.Pipeline, error) {
	creds, err := config.ResolveCredentials(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	sc, err := scanner.New(cfg.Scan.Root, cfg.Scan.MaxSizeBytes, cfg.Scan.Extensions)
	if err != nil {
		return nil, err
	}
	ch, err := delivery.New(cfg.Delivery, creds)
	if err != nil {
		return nil, err
	}

	var hooks []pipeline.Hook
	if cfg.Report.MetricsFile != "" {
		hooks = append(hooks, metrics.NewTextfile(cfg.Report.MetricsFile))
	}
	if cfg.Report.Endpoint != "" {
		r, err := reporter.New(cfg.Report, cfg.Retry.Report)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, r)
	}

	var gateOpts []netgate.Option
	if cfg.Connectivity.TLS {
		gateOpts = append(gateOpts, netgate.WithTLS(nil))
	}
	return pipeline.New(cfg, sc, netgate.New(cfg.Connectivity.Address, gateOpts...), ch, hooks...), nil
}

// runOnce executes one run bounded by schedule.timeout.
func runOnce(ctx context.Context, p *pipeline.Pipeline, cfg config.AgentConfig) *types.RunReport {
	if cfg.Schedule.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Schedule.Timeout)
		defer cancel()
	}
	rep := p.Run(ctx)
	slog.Info("run complete",
		"run_id", rep.RunID,
		"disposition", rep.Disposition,
		"summary", fmt.Sprintf("%d files, %d/%d units delivered", rep.FilesFound, rep.UnitsDelivered(), len(rep.Units)))
	return rep
}

// schedule repeats runs every interval until ctx is cancelled. Runs never
// overlap; a config reload applies from the next run on.
func schedule(ctx context.Context, path, root string, cfg *config.Config, p *pipeline.Pipeline) {
	type current struct {
		cfg config.AgentConfig
		p   *pipeline.Pipeline
	}
	var cur atomic.Pointer[current]
	cur.Store(&current{cfg: cfg.Agent, p: p})

	go func() {
		err := config.Watch(ctx, path, func(updated *config.Config) {
			np, err := build(updated.Agent)
			if err != nil {
				slog.Error("config reload rejected, keeping previous pipeline", "err", err)
				return
			}
			cur.Store(&current{cfg: updated.Agent, p: np})
			slog.Info("config hot-reloaded", "root", updated.Agent.Scan.Root, "interval", updated.Agent.Schedule.Interval)
		}, config.WithRoot(root))
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	for {
		c := cur.Load()
		runOnce(ctx, c.p, c.cfg)

		interval := cur.Load().cfg.Schedule.Interval
		if interval <= 0 {
			interval = cfg.Agent.Schedule.Interval
		}
		slog.Debug("next run scheduled", "in", interval)
		if err := retry.SleepContext(ctx, interval); err != nil {
			return
		}
	}
}
