// Package app ties the ledger services together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/minedeck/minedeck-server/internal/app/httpapi"
	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/metrics"
	"github.com/minedeck/minedeck-server/internal/app/services/boosts"
	"github.com/minedeck/minedeck-server/internal/app/services/keepalive"
	"github.com/minedeck/minedeck-server/internal/app/services/retention"
	"github.com/minedeck/minedeck-server/internal/app/services/sessions"
	"github.com/minedeck/minedeck-server/internal/app/services/withdrawals"
	"github.com/minedeck/minedeck-server/internal/app/storage"
	"github.com/minedeck/minedeck-server/internal/app/storage/memory"
	"github.com/minedeck/minedeck-server/internal/app/system"
	"github.com/minedeck/minedeck-server/internal/config"
	"github.com/minedeck/minedeck-server/internal/middleware"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Application wires the ledger, services, and HTTP server.
type Application struct {
	cfg     config.Config
	log     *logger.Logger
	manager *system.Manager
	ledger  *ledger.Ledger

	Sessions    *sessions.Service
	Boosts      *boosts.Service
	Withdrawals *withdrawals.Service

	httpServer *http.Server
}

// New builds a fully initialised application. A nil store defaults to the
// in-memory implementation.
func New(cfg config.Config, store storage.SnapshotStore, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Output:    cfg.Logging.Output,
			Component: "app",
		})
	}
	if store == nil {
		store = memory.New()
	}

	led := ledger.New(store, log.WithField("component", "ledger"))

	sessionSvc := sessions.New(led, log.WithField("component", "sessions"))
	boostSvc := boosts.New(led, log.WithField("component", "boosts"))
	withdrawalSvc := withdrawals.New(led, log.WithField("component", "withdrawals"))

	manager := system.NewManager()
	sweeper := retention.NewSweeper(led, cfg.Retention.Schedule, log.WithField("component", "retention"))
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register sweeper: %w", err)
	}
	pinger := keepalive.New(cfg.Keepalive.URL, cfg.Keepalive.Interval, log.WithField("component", "keepalive"))
	if err := manager.Register(pinger); err != nil {
		return nil, fmt.Errorf("register keepalive: %w", err)
	}

	api := httpapi.NewHandler(sessionSvc, boostSvc, withdrawalSvc, led, log.WithField("component", "httpapi"))

	cors := middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.WithField("component", "ratelimit"))
	chained := cors.Handler(limiter.Handler(metrics.InstrumentHandler(api)))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           chained,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:         cfg,
		log:         log,
		manager:     manager,
		ledger:      led,
		Sessions:    sessionSvc,
		Boosts:      boostSvc,
		Withdrawals: withdrawalSvc,
		httpServer:  srv,
	}, nil
}

// Run opens the ledger, starts background services and the HTTP server, and
// blocks until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.ledger.Open(ctx); err != nil {
		return err
	}
	if err := a.manager.StartAll(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server and background services, then closes the
// ledger with a final save.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.manager.StopAll(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.ledger.Close(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr == nil {
		a.log.Info("shutdown complete")
	}
	return firstErr
}
