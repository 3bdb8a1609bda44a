// Package supervisor keeps a room connected by replacing each finished
// session with a new one.
//
// A client.Client is single use, so the supervisor asks a Factory for a
// fresh client on every attempt. Attempts are spaced with exponential
// backoff; the backoff starts over after a session that reached the live
// state, so a long healthy session followed by a drop reconnects quickly.
//
//	sup := supervisor.New(func() *client.Client {
//	    return client.New(roomID, client.WithResolver(r), client.WithHandler(h))
//	})
//	err := sup.Run(ctx)
//
// Run returns when ctx is cancelled, when a session is stopped on request,
// or when the server rejects the auth packet.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/metrics"
)

// Factory builds the client for the next attempt.
type Factory func() *client.Client

// Supervisor runs sessions for one room, one at a time.
type Supervisor struct {
	factory    Factory
	logger     *slog.Logger
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	current *client.Client
	starts  int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithMetrics counts reconnects.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithBackOff replaces the default policy. f is called once per Run.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Supervisor) {
		s.newBackOff = f
	}
}

// DefaultBackOff waits 1s after the first failure, doubling up to 2m.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 2 * time.Minute
	return b
}

// New creates a supervisor.
func New(factory Factory, opts ...Option) *Supervisor {
	s := &Supervisor{
		factory:    factory,
		logger:     slog.Default(),
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is shorthand for New(factory, opts...).Run(ctx).
func Run(ctx context.Context, factory Factory, opts ...Option) error {
	return New(factory, opts...).Run(ctx)
}

// Run starts sessions until ctx is cancelled, a session ends without an
// error, or a session fails in a way retrying cannot fix. A cancelled ctx
// is a clean exit and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	b := s.newBackOff()
	b.Reset()

	for {
		c := s.factory()
		s.mu.Lock()
		s.current = c
		s.starts++
		s.mu.Unlock()

		err := s.session(ctx, c)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			s.logger.Info("session stopped, not reconnecting", "room_id", c.RoomID())
			return nil
		}
		if !retryable(err) {
			s.logger.Error("session failed permanently", "room_id", c.RoomID(), "error", err)
			return err
		}

		if c.Established() {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		s.metrics.Reconnect()
		s.logger.Warn("session ended, reconnecting", "room_id", c.RoomID(), "error", err, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

// session runs c to completion. A start failure is returned directly.
func (s *Supervisor) session(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	select {
	case <-c.Done():
		return c.Err()
	case <-ctx.Done():
		c.Stop()
		return ctx.Err()
	}
}

func retryable(err error) bool {
	var rejected *client.AuthRejectedError
	return !errors.As(err, &rejected)
}

// Current returns the client of the latest attempt, nil before Run.
func (s *Supervisor) Current() *client.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the state of the latest attempt, StateIdle before Run.
func (s *Supervisor) State() client.State {
	if c := s.Current(); c != nil {
		return c.State()
	}
	return client.StateIdle
}

// Attempts returns how many sessions have been started.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}
