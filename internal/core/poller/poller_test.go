package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
	"github.com/niruse/cuboai/internal/core/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTokens struct {
	creds auth.Credentials
}

func (f *fakeTokens) LoadPair() auth.Credentials { return f.creds }

type fakeRefresher struct {
	calls int
	creds auth.Credentials
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (auth.Credentials, error) {
	f.calls++
	if f.err != nil {
		return auth.Credentials{}, f.err
	}
	return f.creds, nil
}

func TestCallerPassesStoredToken(t *testing.T) {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "acc-1"}}
	refresher := &fakeRefresher{}
	caller := NewCaller(tokens, refresher, testLogger())

	var seen []string
	err := caller.Call(context.Background(), func(token string) error {
		seen = append(seen, token)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-1"}, seen)
	assert.Zero(t, refresher.calls)
}

func TestCallerRefreshesOnceOn401(t *testing.T) {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "stale", RefreshToken: "ref"}}
	refresher := &fakeRefresher{creds: auth.Credentials{AccessToken: "fresh"}}
	caller := NewCaller(tokens, refresher, testLogger())

	var seen []string
	err := caller.Call(context.Background(), func(token string) error {
		seen = append(seen, token)
		if token == "stale" {
			return &api.StatusError{StatusCode: 401}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stale", "fresh"}, seen)
	assert.Equal(t, 1, refresher.calls)
}

func TestCallerRetriesExactlyOnce(t *testing.T) {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "stale"}}
	refresher := &fakeRefresher{creds: auth.Credentials{AccessToken: "also-stale"}}
	caller := NewCaller(tokens, refresher, testLogger())

	calls := 0
	err := caller.Call(context.Background(), func(string) error {
		calls++
		return &api.StatusError{StatusCode: 401}
	})

	// The second 401 surfaces; no refresh loop.
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refresher.calls)
}

func TestCallerNonAuthErrorsPassThrough(t *testing.T) {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "acc"}}
	refresher := &fakeRefresher{}
	caller := NewCaller(tokens, refresher, testLogger())

	boom := errors.New("upstream exploded")
	err := caller.Call(context.Background(), func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, refresher.calls)
}

func TestCallerRefreshFailure(t *testing.T) {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "stale"}}
	refresher := &fakeRefresher{err: errors.New("refresh rejected")}
	caller := NewCaller(tokens, refresher, testLogger())

	calls := 0
	err := caller.Call(context.Background(), func(string) error {
		calls++
		return &api.StatusError{StatusCode: 401}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallerNoToken(t *testing.T) {
	caller := NewCaller(&fakeTokens{}, &fakeRefresher{}, testLogger())

	err := caller.Call(context.Background(), func(string) error {
		t.Fatal("callback must not run without a token")
		return nil
	})
	assert.Error(t, err)
}

// fakeCloud implements CloudAPI for the sensor tests.
type fakeCloud struct {
	details    *api.CameraDetails
	detailsErr error

	camState    *api.CameraState
	camStateErr error

	sub    *api.Subscription
	subErr error

	alerts    []api.Alert
	alertsErr error

	downloads []string
}

func (f *fakeCloud) CameraDetails(_ context.Context, _, _ string) (*api.CameraDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakeCloud) CameraState(_ context.Context, _, _ string) (*api.CameraState, error) {
	return f.camState, f.camStateErr
}

func (f *fakeCloud) Subscription(_ context.Context, _ string) (*api.Subscription, error) {
	return f.sub, f.subErr
}

func (f *fakeCloud) AlertsSince(_ context.Context, _ string, _ int64) ([]api.Alert, error) {
	return f.alerts, f.alertsErr
}

func (f *fakeCloud) DownloadImage(_ context.Context, url, _, destDir, filename string) (string, error) {
	f.downloads = append(f.downloads, url)
	path := filepath.Join(destDir, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("img"), 0o644)
}

func newTestStore() *state.StateStore {
	bus := state.NewEventBus(testLogger())
	return state.NewStateStore(bus, testLogger())
}

func newTestCaller() *Caller {
	tokens := &fakeTokens{creds: auth.Credentials{AccessToken: "acc"}}
	return NewCaller(tokens, &fakeRefresher{}, testLogger())
}

func TestBabyInfoSensor(t *testing.T) {
	store := newTestStore()
	cloud := &fakeCloud{details: &api.CameraDetails{DeviceID: "dev-1", BabyName: "Emma"}}
	sensor := NewBabyInfoSensor(cloud, newTestCaller(), store, "dev-1", testLogger())

	require.NoError(t, sensor.Update(context.Background()))
	snap := store.Snapshot()
	require.NotNil(t, snap.BabyInfo)
	assert.Equal(t, "Emma", snap.BabyInfo.BabyName)

	// A failed fetch keeps the last known profile.
	cloud.detailsErr = errors.New("boom")
	assert.Error(t, sensor.Update(context.Background()))
	assert.NotNil(t, store.Snapshot().BabyInfo)
}

func TestAlertSensorStates(t *testing.T) {
	store := newTestStore()
	cloud := &fakeCloud{alerts: []api.Alert{
		{ID: "a2", DeviceID: "dev-1", Type: "cry", Timestamp: 200},
		{ID: "a1", DeviceID: "dev-1", Type: "motion", Timestamp: 100},
	}}
	sensor := NewAlertSensor(cloud, newTestCaller(), store, "dev-1",
		alertOptions(), false, "", testLogger())

	require.NoError(t, sensor.Update(context.Background()))
	snap := store.Snapshot().Alerts
	assert.Equal(t, "cry", snap.State)
	require.Len(t, snap.Alerts, 2)
	assert.Equal(t, "a2", snap.Alerts[0].ID)

	// Empty window.
	cloud.alerts = nil
	require.NoError(t, sensor.Update(context.Background()))
	assert.Equal(t, state.StateNoAlerts, store.Snapshot().Alerts.State)

	// Failure flips the sensor to the error state.
	cloud.alertsErr = errors.New("boom")
	assert.Error(t, sensor.Update(context.Background()))
	assert.Equal(t, state.StateError, store.Snapshot().Alerts.State)
}

func TestAlertSensorDownloadsAndPrunesImages(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore()

	// Eight retained files already on disk with staggered mtimes.
	for i := 0; i < 8; i++ {
		p := filepath.Join(dir, fmt.Sprintf("dev-1_old%d.jpg", i))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		mt := time.Now().Add(time.Duration(i-20) * time.Minute)
		require.NoError(t, os.Chtimes(p, mt, mt))
	}
	// Another device's snapshot must never be touched.
	other := filepath.Join(dir, "dev-2_keep.jpg")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	cloud := &fakeCloud{alerts: []api.Alert{
		{ID: "a1", DeviceID: "dev-1", Type: "cry", Timestamp: 100, Image: "https://cdn/a1.jpg"},
		{ID: "a2", DeviceID: "dev-1", Type: "cry", Timestamp: 200},
	}}
	sensor := NewAlertSensor(cloud, newTestCaller(), store, "dev-1",
		alertOptions(), true, dir, testLogger())

	require.NoError(t, sensor.Update(context.Background()))

	// Only the alert with an image URL is fetched.
	assert.Equal(t, []string{"https://cdn/a1.jpg"}, cloud.downloads)

	// The stored alert points at the local copy.
	snap := store.Snapshot().Alerts
	require.Len(t, snap.Alerts, 2)
	assert.Equal(t, filepath.Join(dir, "dev-1_a1.jpg"), snap.Alerts[1].Image)

	// Retention keeps the newest five files for this device.
	matches, err := filepath.Glob(filepath.Join(dir, "dev-1_*.jpg"))
	require.NoError(t, err)
	assert.Len(t, matches, imageRetention)
	assert.Contains(t, matches, filepath.Join(dir, "dev-1_a1.jpg"))

	_, err = os.Stat(other)
	assert.NoError(t, err)

	// A second cycle does not re-download an existing image.
	cloud.downloads = nil
	require.NoError(t, sensor.Update(context.Background()))
	assert.Empty(t, cloud.downloads)
}

func TestSubscriptionSensor(t *testing.T) {
	store := newTestStore()
	cloud := &fakeCloud{sub: &api.Subscription{Status: "active"}}
	sensor := NewSubscriptionSensor(cloud, newTestCaller(), store, testLogger())

	require.NoError(t, sensor.Update(context.Background()))
	snap := store.Snapshot().Subscription
	assert.Equal(t, "active", snap.State)
	require.NotNil(t, snap.Subscription)

	cloud.sub = nil
	require.NoError(t, sensor.Update(context.Background()))
	assert.Equal(t, state.StateNoSubscription, store.Snapshot().Subscription.State)

	cloud.subErr = errors.New("boom")
	assert.Error(t, sensor.Update(context.Background()))
	assert.Equal(t, state.StateError, store.Snapshot().Subscription.State)
}

func TestCameraStateSensor(t *testing.T) {
	store := newTestStore()
	cloud := &fakeCloud{camState: &api.CameraState{
		State:      "online",
		Attributes: map[string]any{"state": "online", "fw": "1.2"},
	}}
	sensor := NewCameraStateSensor(cloud, newTestCaller(), store, "dev-1", testLogger())

	require.NoError(t, sensor.Update(context.Background()))
	snap := store.Snapshot().Camera
	assert.Equal(t, "online", snap.State)
	assert.Equal(t, "1.2", snap.Attributes["fw"])

	cloud.camStateErr = errors.New("boom")
	assert.Error(t, sensor.Update(context.Background()))
	assert.Equal(t, state.StateError, store.Snapshot().Camera.State)
}

// alertOptions pins the clock so the lookback window covers the fake
// alerts' tiny timestamps.
func alertOptions() alerts.Options {
	return alerts.Options{Count: 5, HoursBack: 12, Now: func() time.Time { return time.Unix(3600, 0) }}
}
