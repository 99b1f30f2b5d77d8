// Package keepalive pings the service's own public URL so free-tier hosts do
// not idle the process out.
package keepalive

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/minedeck/minedeck-server/internal/app/system"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Pinger issues a GET against the configured URL on a fixed interval.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Pinger)(nil)

// New constructs a pinger. An empty URL disables it; Start becomes a no-op.
func New(url string, interval time.Duration, log *logger.Logger) *Pinger {
	if log == nil {
		log = logger.NewDefault("keepalive")
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

func (p *Pinger) Name() string { return "keepalive" }

func (p *Pinger) Start(ctx context.Context) error {
	if p.url == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.ping(runCtx)
			}
		}
	}()

	p.log.WithField("url", p.url).WithField("interval", p.interval.String()).Info("keepalive pinger started")
	return nil
}

func (p *Pinger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pinger) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.WithError(err).Warn("keepalive request build failed")
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithError(err).Warn("keepalive ping failed")
		return
	}
	resp.Body.Close()
}
