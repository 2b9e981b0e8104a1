package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/LinkShield/internal/app/model"
	apprepository "github.com/sifan077/LinkShield/internal/app/repository"
	"go.uber.org/zap"
)

const (
	consumerBatchSize    = 10
	consumerMaxWait      = 5 * time.Second
	consumerFetchBackoff = time.Second

	// The filter only has to remember what JetStream may still redeliver, so
	// it is rotated on the stream's duplicate window.
	seenWindow    = 2 * time.Minute
	seenCapacity  = 100_000
	seenFalseRate = 0.001
)

// fetcher is the pull side of a JetStream subscription.
type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// ActionConsumer consumes action events from NATS JetStream, stores them and
// bumps the link click counter once per session.
type ActionConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	events   apprepository.ActionEventRepository
	counters apprepository.CounterRepository

	mu        sync.Mutex
	seen      *bloom.BloomFilter
	prevSeen  *bloom.BloomFilter
	rotatedAt time.Time
	now       func() time.Time

	fetchBackoff time.Duration
	cancel       context.CancelFunc
	done   chan struct{}
}

// NewActionConsumer creates a new action event consumer.
func NewActionConsumer(js nats.JetStreamContext, logger *zap.Logger, events apprepository.ActionEventRepository, counters apprepository.CounterRepository) *ActionConsumer {
	return &ActionConsumer{
		js:       js,
		logger:   logger,
		events:   events,
		counters: counters,

		seen:         newSeenFilter(),
		prevSeen:     newSeenFilter(),
		rotatedAt:    time.Now(),
		now:          time.Now,
		fetchBackoff: consumerFetchBackoff,
	}
}

func newSeenFilter() *bloom.BloomFilter {
	return bloom.NewWithEstimates(seenCapacity, seenFalseRate)
}

// Start ensures the stream and durable consumer exist and begins consuming.
func (c *ActionConsumer) Start(ctx context.Context) error {
	if _, err := c.js.StreamInfo(model.ActionStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:       model.ActionStreamName,
			Subjects:   []string{model.ActionStreamSubject},
			MaxBytes:   model.ActionStreamMaxBytes,
			Duplicates: seenWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.ActionStreamName, model.ActionConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ActionStreamName, &nats.ConsumerConfig{
			Durable:   model.ActionConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ActionStreamSubject, model.ActionConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.consume(ctx, sub)
	return nil
}

// Stop ends the fetch loop and waits for the in-flight batch.
func (c *ActionConsumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *ActionConsumer) consume(ctx context.Context, sub fetcher) {
	defer close(c.done)
	for ctx.Err() == nil {
		msgs, err := sub.Fetch(consumerBatchSize, nats.MaxWait(consumerMaxWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.fetchBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.handle(ctx, msg.Data); err != nil {
				msg.Nak()
				continue
			}
			msg.Ack()
		}
	}
}

// handle persists one event. A nil error means the message can be acked.
func (c *ActionConsumer) handle(ctx context.Context, data []byte) error {
	var event model.ActionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Redelivering a malformed message cannot help.
		c.logger.Error("dropping malformed action event", zap.Error(err))
		return nil
	}

	// A filter hit is only a hint; the insert is idempotent on session_id and
	// decides whether the click counts.
	redelivered := c.maybeSeen(event.SessionID)

	created, err := c.events.Create(ctx, &event)
	if err != nil {
		c.logger.Error("failed to store action event",
			zap.String("id", event.ID),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
		return err
	}

	if !created {
		c.logger.Debug("duplicate action event ignored",
			zap.String("session_id", event.SessionID),
			zap.Bool("redelivered", redelivered))
	} else {
		if err := c.counters.IncrementClicks(ctx, event.LinkID); err != nil {
			// The event is stored; a lost increment is not worth a redelivery.
			c.logger.Warn("failed to increment link clicks",
				zap.String("link_id", event.LinkID),
				zap.Error(err))
		}
	}
	c.markSeen(event.SessionID)

	c.logger.Debug("action event stored",
		zap.String("id", event.ID),
		zap.String("session_id", event.SessionID),
		zap.String("link_id", event.LinkID),
		zap.Bool("verdict_was_bot", event.VerdictWasBot),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

// maybeSeen may report false positives and is never used to drop an event.
func (c *ActionConsumer) maybeSeen(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotateLocked()
	return c.seen.TestString(sessionID) || c.prevSeen.TestString(sessionID)
}

func (c *ActionConsumer) markSeen(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotateLocked()
	c.seen.AddString(sessionID)
}

// rotateLocked keeps two windows of session ids so the false positive rate
// stays near seenFalseRate however long the consumer runs.
func (c *ActionConsumer) rotateLocked() {
	now := c.now()
	if now.Sub(c.rotatedAt) < seenWindow {
		return
	}
	c.prevSeen, c.seen = c.seen, newSeenFilter()
	if now.Sub(c.rotatedAt) >= 2*seenWindow {
		c.prevSeen = newSeenFilter()
	}
	c.rotatedAt = now
}
