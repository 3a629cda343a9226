// Package poller drives the periodic cloud fetch cycle: each sensor
// polls one vendor endpoint on its own interval, re-reading tokens
// from disk and refreshing them once when the cloud answers 401.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
)

// CloudAPI is the vendor cloud surface the sensors poll.
type CloudAPI interface {
	CameraDetails(ctx context.Context, deviceID, accessToken string) (*api.CameraDetails, error)
	CameraState(ctx context.Context, deviceID, accessToken string) (*api.CameraState, error)
	Subscription(ctx context.Context, accessToken string) (*api.Subscription, error)
	AlertsSince(ctx context.Context, accessToken string, since int64) ([]api.Alert, error)
	DownloadImage(ctx context.Context, url, accessToken, destDir, filename string) (string, error)
}

// TokenSource yields the current credentials. Reading happens per call
// so tokens written by another process are picked up without restart.
type TokenSource interface {
	LoadPair() auth.Credentials
}

// Refresher exchanges a refresh token for a fresh pair.
type Refresher interface {
	Refresh(ctx context.Context, fallback string) (auth.Credentials, error)
}

// Caller runs a cloud call with the stored access token. On a 401 it
// refreshes exactly once and retries the call exactly once; any other
// error passes through untouched.
type Caller struct {
	tokens    TokenSource
	refresher Refresher
	log       *slog.Logger
}

// NewCaller creates a caller over the token store and refresher.
func NewCaller(tokens TokenSource, refresher Refresher, log *slog.Logger) *Caller {
	return &Caller{tokens: tokens, refresher: refresher, log: log}
}

// Authenticated reports whether a vendor access token is stored.
func (c *Caller) Authenticated() bool {
	return c.tokens.LoadPair().AccessToken != ""
}

// Call invokes fn with a usable access token.
func (c *Caller) Call(ctx context.Context, fn func(accessToken string) error) error {
	creds := c.tokens.LoadPair()
	if creds.AccessToken == "" {
		return fmt.Errorf("poller: no access token available, login required")
	}

	err := fn(creds.AccessToken)
	if err == nil || !api.IsUnauthorized(err) {
		return err
	}

	c.log.Info("access token rejected, refreshing")
	fresh, refreshErr := c.refresher.Refresh(ctx, creds.RefreshToken)
	if refreshErr != nil {
		return fmt.Errorf("poller: refresh after rejected token: %w", refreshErr)
	}
	return fn(fresh.AccessToken)
}

// Sensor is one polled cloud endpoint. Update fetches and stores the
// latest value; the sensor owns its own error presentation in state.
type Sensor interface {
	Name() string
	Update(ctx context.Context) error
}

// Scheduler runs each sensor on its own ticker goroutine.
type Scheduler struct {
	sensors  []Sensor
	interval time.Duration
	log      *slog.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	running atomic.Bool
}

// NewScheduler creates a scheduler polling every sensor at interval.
func NewScheduler(sensors []Sensor, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{sensors: sensors, interval: interval, log: log}
}

// Start begins polling. Every sensor gets an immediate first cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("poller: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.running.Store(true)

	go s.runLoop(ctx)
	return nil
}

// Stop halts all sensor loops and waits for them to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	if !s.running.Load() {
		return nil
	}
	s.cancel()
	<-s.stopped
	s.running.Store(false)
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.stopped)

	done := make(chan struct{})
	for _, sensor := range s.sensors {
		go func(sn Sensor) {
			defer func() { done <- struct{}{} }()
			s.sensorLoop(ctx, sn)
		}(sensor)
	}
	for range s.sensors {
		<-done
	}
}

func (s *Scheduler) sensorLoop(ctx context.Context, sn Sensor) {
	s.update(ctx, sn)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.update(ctx, sn)
		}
	}
}

func (s *Scheduler) update(ctx context.Context, sn Sensor) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sensor update panicked", "sensor", sn.Name(), "panic", r)
		}
	}()

	start := time.Now()
	if err := sn.Update(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("sensor update failed", "sensor", sn.Name(), "error", err)
		return
	}
	s.log.Debug("sensor updated", "sensor", sn.Name(), "took", time.Since(start))
}
