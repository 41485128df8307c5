// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package services

import (
	"context"
	"errors"
)

// Runner matches the notification relay's lifecycle: Run blocks until
// the context is canceled or the subscription closes.
type Runner interface {
	Run(ctx context.Context) error
}

// RelayService wraps the notification relay as a supervised service.
type RelayService struct {
	relay Runner
}

// NewRelayService creates the wrapper.
func NewRelayService(relay Runner) *RelayService {
	return &RelayService{relay: relay}
}

// Serve implements suture.Service.
func (r *RelayService) Serve(ctx context.Context) error {
	err := r.relay.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (r *RelayService) String() string {
	return "notify-relay"
}
