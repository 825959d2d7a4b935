package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/config"
	"github.com/freeeve/parley/internal/engine/remote"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/history/postgres"
	"github.com/freeeve/parley/internal/live"
	"github.com/freeeve/parley/internal/logger"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/internal/orch"
)

func main() {
	matchPath := flag.String("match", "match.yaml", "path to the match file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Init()
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	match, err := config.LoadMatch(*matchPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *matchPath).Msg("Failed to load match file")
	}

	runID := logger.NewRunID()
	ctx := logger.WithRunID(context.Background(), runID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	agents, closers, err := buildAgents(match)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build agents")
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("Agent shutdown error")
			}
		}
	}()

	eng, err := remote.NewClient("parley-"+runID, cfg.EngineURL, match.Game)
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.EngineURL).Msg("Failed to connect to engine")
	}
	defer eng.Close()

	sink, sinkClosers, err := buildSinks(cfg, runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up history sinks")
	}
	defer func() {
		for _, c := range sinkClosers {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("Sink shutdown error")
			}
		}
	}()

	var opts []orch.Option
	if cfg.RedisURL != "" {
		mirror, err := live.NewClient(cfg.RedisURL, runID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer mirror.Close()
		// The live mirror is a transient view; the history sinks are the
		// durable record.
		defer func() {
			if err := mirror.DeleteRunData(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to clear live run data")
			}
		}()
		opts = append(opts, orch.WithLiveMirror(mirror))
	}

	orchCfg := orch.Config{
		RunID:             runID,
		MaxPhases:         cfg.MaxPhases,
		MaxYear:           cfg.MaxYear,
		NegotiationRounds: match.NegotiationRounds,
		DecideTimeout:     cfg.DecideTimeout,
		NegotiateTimeout:  cfg.NegotiateTimeout,
		UpdateTimeout:     cfg.UpdateTimeout,
	}

	reason, err := orch.RunGameLoop(ctx, eng, agents, sink, orchCfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Game loop failed")
	}
	runLog := logger.ForRun(ctx)
	runLog.Info().Str("reason", string(reason)).Msg("Game finished")
}

type closer interface{ Close() error }

// buildAgents instantiates one agent per bloc group in the match file and
// maps every controlled power to its agent.
func buildAgents(match *config.Match) (map[model.Power]agent.Agent, []closer, error) {
	agents := make(map[model.Power]agent.Agent)
	var closers []closer

	for name, group := range match.Blocs() {
		spec := group[0]
		powers := make([]model.Power, len(group))
		for i, a := range group {
			powers[i] = model.Power(a.Power)
		}

		switch spec.Agent {
		case "hold":
			if len(powers) > 1 {
				return nil, closers, fmt.Errorf("bloc %s: hold agent cannot drive multiple powers", name)
			}
			agents[powers[0]] = agent.NewHoldAgent(powers[0])
		case "random":
			if len(powers) > 1 {
				return nil, closers, fmt.Errorf("bloc %s: random agent cannot drive multiple powers", name)
			}
			agents[powers[0]] = agent.NewRandomAgent(powers[0])
		case "external":
			if spec.Command == "" {
				return nil, closers, fmt.Errorf("bloc %s: external agent needs a command", name)
			}
			ext, err := agent.NewExternalAgent(spec.Command, powers)
			if err != nil {
				return nil, closers, fmt.Errorf("bloc %s: %w", name, err)
			}
			closers = append(closers, ext)
			for _, p := range powers {
				agents[p] = ext
			}
		default:
			return nil, closers, fmt.Errorf("bloc %s: unknown agent kind %q", name, spec.Agent)
		}
	}
	return agents, closers, nil
}

// buildSinks assembles the configured history sinks into one.
func buildSinks(cfg *config.Config, runID string) (history.Sink, []closer, error) {
	var sinks []history.Sink
	var closers []closer

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, db)
		sinks = append(sinks, postgres.NewSink(db, runID))
	}
	if cfg.ArchiveDir != "" {
		arch, err := history.NewArchiveSink(cfg.ArchiveDir, runID)
		if err != nil {
			return nil, closers, fmt.Errorf("archive: %w", err)
		}
		closers = append(closers, arch)
		sinks = append(sinks, arch)
	}

	switch len(sinks) {
	case 0:
		return history.NoopSink{}, closers, nil
	case 1:
		return sinks[0], closers, nil
	default:
		return history.MultiSink(sinks), closers, nil
	}
}
