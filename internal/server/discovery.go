// Package server finds the local backend and loads the accounts it serves.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/api"
	"github.com/vdavid/vmail/desktop/internal/state"
)

var (
	// ErrInvalidURL is returned for server URLs too short to be real.
	ErrInvalidURL = errors.New("invalid server URL")
	// ErrUnreachable is returned when every connection attempt failed.
	ErrUnreachable = errors.New("server unreachable")
)

// Discovery connects to the backend with a bounded, fixed-delay retry policy.
type Discovery struct {
	state    *state.State
	logger   *logrus.Logger
	attempts int
	delay    time.Duration
}

// NewDiscovery creates a Discovery making at most attempts connection attempts
// spaced delay apart.
func NewDiscovery(st *state.State, logger *logrus.Logger, attempts int, delay time.Duration) *Discovery {
	if attempts <= 0 {
		attempts = 1
	}
	return &Discovery{state: st, logger: logger, attempts: attempts, delay: delay}
}

// Connect pings targetURL until it answers or the attempts run out. On success
// it stores the URL in the shared state, loads the accounts, and returns a
// client for the backend.
func (d *Discovery) Connect(ctx context.Context, targetURL string) (*api.Client, error) {
	if len(targetURL) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, targetURL)
	}

	client := api.NewClient(targetURL)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.delay), uint64(d.attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(
		func() error { return client.Hello(ctx) },
		policy,
		func(err error, next time.Duration) {
			d.logger.WithError(err).WithField("retry_in", next).Debug("ServerDiscovery: backend not ready")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, d.attempts, err)
	}

	d.state.SetServer(client.BaseURL())
	d.logger.WithField("server", client.BaseURL()).Info("ServerDiscovery: connected to backend")

	accounts, err := client.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	d.state.SetAccounts(accounts.Connected, accounts.Failed)

	if len(accounts.Failed) > 0 {
		d.logger.WithField("failed", len(accounts.Failed)).Warn("ServerDiscovery: some accounts could not connect")
	}

	return client, nil
}
