// Command aviron-demo wires the clamd client, filesystem watcher,
// bounded queue, real-time scanner, and quarantine into a running
// pipeline, the way pipeline-go/main.go wires its worker pool — but
// driven by filesystem events instead of a polling ticker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jlangch/aviron"
	"github.com/jlangch/aviron/internal/config"
	"github.com/jlangch/aviron/internal/osutil"
	"github.com/jlangch/aviron/quarantine"
	"github.com/jlangch/aviron/scanner"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	configPath := os.Getenv("AVIRON_CONFIG")
	if configPath == "" {
		configPath = "./config/aviron.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	ep, err := cfg.BuildEndpoint()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid endpoint configuration")
	}

	if cfg.Watcher.MainDir == "" {
		logger.Fatal().Msg("watcher.main_dir is required")
	}
	if err := os.MkdirAll(cfg.Watcher.MainDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Watcher.MainDir).Msg("failed to create main directory")
	}
	if cfg.Quarantine.Dir != "" {
		if err := os.MkdirAll(cfg.Quarantine.Dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.Quarantine.Dir).Msg("failed to create quarantine directory")
		}
	}

	client := aviron.NewClient(ep, logger)

	quarantineAction := ep.QuarantineActionKind()
	q, err := quarantine.New(cfg.Quarantine.Dir, quarantineAction, logger, func(ev quarantine.QuarantineEvent) {
		if ev.Err != nil {
			logger.Error().Err(ev.Err).Str("path", ev.File.OriginalPath).Msg("quarantine action failed")
			return
		}
		logger.Info().
			Str("path", ev.File.OriginalPath).
			Str("quarantined_as", ev.File.QuarantinePath).
			Strs("viruses", ev.File.Viruses).
			Str("event_id", ev.EventID.String()).
			Msg("file quarantined")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize quarantine")
	}

	scanOpts := []scanner.Option{
		scanner.WithSecondaryDirs(cfg.Watcher.SecondaryDirs...),
		scanner.WithIdleSleep(cfg.Scanner.IdleSleep()),
		scanner.WithScanListener(func(ev scanner.RealtimeScanEvent) {
			if ev.Err != nil {
				logger.Warn().Err(ev.Err).Str("path", ev.Path).Msg("scan failed")
				return
			}
			if ev.Result.HasVirus() {
				logger.Warn().Str("path", ev.Path).Str("event_id", ev.EventID.String()).Msg("infection detected")
				q.Process(ev.Result)
				return
			}
			logger.Debug().Str("path", ev.Path).Msg("scan clean")
		}),
	}
	if cfg.Watcher.Backend == "subprocess" {
		fswatchPath := cfg.Watcher.FswatchPath
		if fswatchPath == "" {
			fswatchPath = osutil.DefaultFswatchPath()
		}
		scanOpts = append(scanOpts, scanner.WithSubprocessWatcher(fswatchPath, cfg.Watcher.Monitor))
	}
	s := scanner.New(client, cfg.Watcher.MainDir, logger, scanOpts...)

	logger.Info().
		Str("clamd", ep.Host()).
		Int("port", ep.Port()).
		Str("main_dir", cfg.Watcher.MainDir).
		Msg("aviron-demo starting")

	if !client.Reachable(3 * time.Second) {
		logger.Warn().Msg("clamd daemon not reachable at startup; real-time scans will fail until it is")
	}

	if err := s.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start real-time scanner")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	s.Stop()
}
