package service

import (
	"time"

	"github.com/sifan077/LinkShield/internal/app/shield/session"
	infraPrometheus "github.com/sifan077/LinkShield/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSessionTTL    = 10 * time.Minute
)

// SessionSweeper periodically drops finished visit sessions and abandons the
// ones the visitor walked away from without a pagehide beacon.
type SessionSweeper struct {
	logger   *zap.Logger
	registry *session.Registry
	metrics  *infraPrometheus.ShieldMetrics
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	done     chan struct{}
}

// NewSessionSweeper creates a new sweeper for registry.
func NewSessionSweeper(logger *zap.Logger, registry *session.Registry, metrics *infraPrometheus.ShieldMetrics, ttl, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionSweeper{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *SessionSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep and waits for it to exit.
func (s *SessionSweeper) Stop() {
	close(s.stopChan)
	<-s.done
}

func (s *SessionSweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("session sweeper stopped")
			return
		}
	}
}

func (s *SessionSweeper) sweep() int {
	removed := s.registry.Sweep(s.now(), s.ttl)
	s.metrics.SetActiveSessions(s.registry.Len())

	if removed > 0 {
		s.logger.Debug("swept visit sessions",
			zap.Int("removed", removed),
			zap.Int("active", s.registry.Len()),
		)
	}
	return removed
}
