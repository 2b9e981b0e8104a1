package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/shield/session"
	infraPrometheus "github.com/sifan077/LinkShield/internal/infra/prometheus"
	"go.uber.org/zap"
)

const defaultRecordTimeout = 5 * time.Second

// EventPublisher delivers one action event downstream.
type EventPublisher interface {
	Publish(ctx context.Context, event model.ActionEvent) error
}

// ActionRecorder reports completed visits. Record returns immediately; delivery
// runs in its own goroutine bounded by a timeout, and failures are only logged
// and counted. Without a publisher records are logged and dropped.
type ActionRecorder struct {
	publisher EventPublisher
	logger    *zap.Logger
	metrics   *infraPrometheus.ShieldMetrics
	timeout   time.Duration

	wg sync.WaitGroup
}

var _ session.Recorder = (*ActionRecorder)(nil)

// NewActionRecorder builds a recorder; publisher and metrics may be nil.
func NewActionRecorder(publisher EventPublisher, logger *zap.Logger, metrics *infraPrometheus.ShieldMetrics, timeout time.Duration) *ActionRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultRecordTimeout
	}
	return &ActionRecorder{publisher: publisher, logger: logger, metrics: metrics, timeout: timeout}
}

func (r *ActionRecorder) Record(ctx context.Context, rec session.ActionRecord) {
	event := model.ActionEvent{
		ID:            uuid.NewString(),
		SessionID:     rec.SessionID,
		LinkID:        rec.LinkID,
		Action:        rec.Action,
		VerdictWasBot: rec.VerdictWasBot,
		Timestamp:     rec.Timestamp,
	}

	if r.publisher == nil {
		r.logger.Info("action recorded without analytics stream",
			zap.String("session_id", event.SessionID),
			zap.String("link_id", event.LinkID),
			zap.Bool("verdict_was_bot", event.VerdictWasBot),
		)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		if err := r.publisher.Publish(pubCtx, event); err != nil {
			r.metrics.RecordFailure()
			r.logger.Warn("failed to publish action event",
				zap.String("session_id", event.SessionID),
				zap.String("link_id", event.LinkID),
				zap.Error(err),
			)
			return
		}
		r.metrics.RecordPublished()
	}()
}

// Wait blocks until every in-flight publish has finished.
func (r *ActionRecorder) Wait() {
	r.wg.Wait()
}
