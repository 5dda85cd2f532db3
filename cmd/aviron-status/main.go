// Command aviron-status exposes a small operational HTTP surface over
// the clamd daemon and a live real-time scanner: health, stats, and
// recent quarantine activity. It follows the Gin route-handler shape of
// clamav-updater/yara-scanner's main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jlangch/aviron"
	"github.com/jlangch/aviron/internal/config"
	"github.com/jlangch/aviron/internal/osutil"
	"github.com/jlangch/aviron/quarantine"
	"github.com/jlangch/aviron/scanner"
)

type healthResponse struct {
	Status         string `json:"status"`
	ClamdReachable bool   `json:"clamd_reachable"`
}

type statsResponse struct {
	Stats         string `json:"stats"`
	QueueDepth    int    `json:"queue_depth"`
	OverflowCount int    `json:"overflow_count"`
}

// reloadResponse mirrors clamav-updater's UpdateResponse shape, repurposed
// from triggering an external freshclam process to triggering clamd's own
// RELOAD command.
type reloadResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type quarantineEventResponse struct {
	EventID        string   `json:"event_id"`
	OriginalPath   string   `json:"original_path"`
	Viruses        []string `json:"viruses"`
	Action         string   `json:"action"`
	QuarantinePath string   `json:"quarantine_path,omitempty"`
	Error          string   `json:"error,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// quarantineRing keeps the most recent quarantine events in memory for
// the /quarantine endpoint, bounded the same way the bounded scan queue
// bounds pending paths.
type quarantineRing struct {
	mu     sync.Mutex
	events []quarantineEventResponse
	cap    int
}

func newQuarantineRing(capacity int) *quarantineRing {
	return &quarantineRing{cap: capacity}
}

func (r *quarantineRing) add(ev quarantineEventResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

func (r *quarantineRing) snapshot() []quarantineEventResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]quarantineEventResponse, len(r.events))
	copy(out, r.events)
	return out
}

func actionString(a aviron.QuarantineAction) string {
	switch a {
	case aviron.QuarantineCopy:
		return "copy"
	case aviron.QuarantineMove:
		return "move"
	case aviron.QuarantineRemove:
		return "remove"
	default:
		return "none"
	}
}

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	configPath := os.Getenv("AVIRON_CONFIG")
	if configPath == "" {
		configPath = "./config/aviron.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ep, err := cfg.BuildEndpoint()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid endpoint configuration")
	}
	client := aviron.NewClient(ep, logger)

	ring := newQuarantineRing(100)

	var s *scanner.RealtimeScanner
	if cfg.Watcher.MainDir != "" {
		q, err := quarantine.New(cfg.Quarantine.Dir, ep.QuarantineActionKind(), logger, func(ev quarantine.QuarantineEvent) {
			resp := quarantineEventResponse{
				EventID:        ev.EventID.String(),
				OriginalPath:   ev.File.OriginalPath,
				Viruses:        ev.File.Viruses,
				Action:         actionString(ev.File.Action),
				QuarantinePath: ev.File.QuarantinePath,
				Timestamp:      ev.File.Timestamp.Format(time.RFC3339),
			}
			if ev.Err != nil {
				resp.Error = ev.Err.Error()
			}
			ring.add(resp)
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize quarantine")
		}

		scanOpts := []scanner.Option{
			scanner.WithSecondaryDirs(cfg.Watcher.SecondaryDirs...),
			scanner.WithIdleSleep(cfg.Scanner.IdleSleep()),
			scanner.WithScanListener(func(ev scanner.RealtimeScanEvent) {
				if ev.Err == nil && ev.Result.HasVirus() {
					q.Process(ev.Result)
				}
			}),
		}
		if cfg.Watcher.Backend == "subprocess" {
			fswatchPath := cfg.Watcher.FswatchPath
			if fswatchPath == "" {
				fswatchPath = osutil.DefaultFswatchPath()
			}
			scanOpts = append(scanOpts, scanner.WithSubprocessWatcher(fswatchPath, cfg.Watcher.Monitor))
		}
		s = scanner.New(client, cfg.Watcher.MainDir, logger, scanOpts...)
		if err := s.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start real-time scanner")
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		reachable := client.Reachable(2 * time.Second)
		status := http.StatusOK
		if !reachable {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, healthResponse{Status: "ok", ClamdReachable: reachable})
	})

	r.GET("/stats", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		raw, err := client.Stats(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		resp := statsResponse{Stats: raw}
		if s != nil {
			resp.QueueDepth = s.Queued()
			resp.OverflowCount = s.OverflowCount()
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/quarantine", func(c *gin.Context) {
		c.JSON(http.StatusOK, ring.snapshot())
	})

	r.POST("/reload", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := client.Reload(ctx); err != nil {
			c.JSON(http.StatusBadGateway, reloadResponse{
				Success:   false,
				Message:   err.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		c.JSON(http.StatusOK, reloadResponse{
			Success:   true,
			Message:   "signature database reload triggered",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}
	logger.Info().Str("port", port).Msg("aviron-status starting")
	if err := r.Run(":" + port); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
