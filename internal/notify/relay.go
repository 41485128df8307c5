// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package notify

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/engine"
	"github.com/jdbarnes/lifelogd/internal/logging"
)

// Notifier delivers one sync event somewhere. WebhookNotifier is the
// only implementation today.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, event *engine.Event) error
}

// Relay subscribes to completed-sync events and fans them out to
// notifiers. It decouples the engine from delivery: a slow or failing
// webhook never blocks a sync run.
type Relay struct {
	sub       message.Subscriber
	notifiers []Notifier
}

// NewRelay creates a relay reading from the given subscriber.
func NewRelay(sub message.Subscriber, notifiers ...Notifier) *Relay {
	return &Relay{sub: sub, notifiers: notifiers}
}

// Run consumes events until the context is cancelled or the
// subscription closes. Malformed or undeliverable events are logged
// and acked; redelivery would not make them deliverable.
func (r *Relay) Run(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, engine.TopicSyncCompleted)
	if err != nil {
		return err
	}

	for msg := range messages {
		r.handle(ctx, msg)
		msg.Ack()
	}
	return nil
}

func (r *Relay) handle(ctx context.Context, msg *message.Message) {
	var event engine.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed sync event")
		return
	}

	for _, n := range r.notifiers {
		if !n.Enabled() {
			continue
		}
		if err := n.Send(ctx, &event); err != nil {
			logging.Error().Err(err).Str("notifier", n.Name()).Msg("Notification delivery failed")
		}
	}
}
