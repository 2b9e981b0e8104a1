package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/LinkShield/internal/app/model"
)

// ActionPublisher publishes action events to NATS JetStream.
type ActionPublisher struct {
	js nats.JetStreamContext
}

// NewActionPublisher creates a new action event publisher.
func NewActionPublisher(js nats.JetStreamContext) *ActionPublisher {
	return &ActionPublisher{js: js}
}

// Publish sends event to the action stream. The session id doubles as the
// JetStream message id so the server drops duplicate publishes too.
func (p *ActionPublisher) Publish(ctx context.Context, event model.ActionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ActionStreamSubject, data, nats.Context(ctx), nats.MsgId(event.SessionID))
	return err
}
