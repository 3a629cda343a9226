package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
	"github.com/niruse/cuboai/internal/core/poller"
	"github.com/niruse/cuboai/internal/core/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticTokens struct {
	creds auth.Credentials
}

func (s staticTokens) LoadPair() auth.Credentials { return s.creds }

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (auth.Credentials, error) {
	return auth.Credentials{}, errors.New("refresh not expected")
}

func newTestServer(t *testing.T, apiClient *api.Client, tokens poller.TokenSource) (*Server, *state.StateStore) {
	t.Helper()
	log := testLogger()
	store := state.NewStateStore(state.NewEventBus(log), log)
	mgr := auth.NewManager(nil, nil, nil, log)
	caller := poller.NewCaller(tokens, noRefresh{}, log)
	return NewServer(store, mgr, apiClient, caller, true, log), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestGetStatus(t *testing.T) {
	srv, store := newTestServer(t, nil, staticTokens{})
	store.SetCameraState(state.CameraSnapshot{State: "online"})
	srv.SetDevice("dev-1", "Emma")

	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got statusResponse
	decodeBody(t, rec, &got)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, "Emma", got.BabyName)
	assert.Equal(t, "online", got.CameraState)
	assert.False(t, got.MFAPending)
	assert.False(t, got.Authenticated)
}

func TestGetStatusAuthenticated(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{creds: auth.Credentials{AccessToken: "tok"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	decodeBody(t, rec, &got)
	assert.True(t, got.Authenticated)
}

func TestGetStatusBeforeDeviceResolved(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	decodeBody(t, rec, &got)
	assert.Empty(t, got.DeviceID)
	assert.Equal(t, state.StateUnknown, got.CameraState)
}

func TestGetSensors(t *testing.T) {
	srv, store := newTestServer(t, nil, staticTokens{})
	store.SetAlerts(state.AlertsSnapshot{
		State:  "cry",
		Alerts: []alerts.Alert{{ID: "a1", DeviceID: "dev-1", Type: "cry", Timestamp: 1700000000}},
	})
	store.SetSubscription(state.SubscriptionSnapshot{State: "premium"})

	rec := doRequest(t, srv, http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got state.Snapshot
	decodeBody(t, rec, &got)
	assert.Equal(t, "cry", got.Alerts.State)
	require.Len(t, got.Alerts.Alerts, 1)
	assert.Equal(t, "a1", got.Alerts.Alerts[0].ID)
	assert.Equal(t, "premium", got.Subscription.State)
	assert.Equal(t, state.StateUnknown, got.Camera.State)
}

func TestGetAlerts(t *testing.T) {
	srv, store := newTestServer(t, nil, staticTokens{})
	store.SetAlerts(state.AlertsSnapshot{
		State:  "motion detected",
		Alerts: []alerts.Alert{{ID: "a2", Type: "motion detected"}},
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got state.AlertsSnapshot
	decodeBody(t, rec, &got)
	assert.Equal(t, "motion detected", got.State)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "a2", got.Alerts[0].ID)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodOptions, "/api/status", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, srv, http.MethodGet, "/api/status", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubmitMFARejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/mfa", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/auth/mfa", `{"code":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMFAWithoutPendingChallenge(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/mfa", `{"code":"123456"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMFAStatusCode(t *testing.T) {
	tests := []struct {
		kind auth.Kind
		want int
	}{
		{auth.KindMfaInvalidCode, http.StatusBadRequest},
		{auth.KindMfaExpired, http.StatusBadRequest},
		{auth.KindTooManyRequests, http.StatusTooManyRequests},
		{auth.KindSmsQuotaExceeded, http.StatusTooManyRequests},
		{auth.KindUpstreamUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		err := &auth.Error{Kind: tt.kind, Err: errors.New("boom")}
		assert.Equal(t, tt.want, mfaStatusCode(err), "kind %v", tt.kind)
	}
	assert.Equal(t, http.StatusInternalServerError, mfaStatusCode(errors.New("plain")))
}

const camerasBody = `{
	"profiles": [
		{"device_id": "dev-1", "profile": "{\"baby\":\"Emma\",\"gender\":1}"},
		{"device_id": "dev-2", "profile": "not-json"}
	],
	"data": [],
	"report_settings": []
}`

func TestGetCameras(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/cameras" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, camerasBody)
	}))
	defer upstream.Close()

	client := api.NewClient(api.Config{
		MobileBaseURL: upstream.URL,
		APIBaseURL:    upstream.URL,
		UserAgent:     "test-agent/1.0",
	}, testLogger())
	srv, _ := newTestServer(t, client, staticTokens{creds: auth.Credentials{AccessToken: "tok"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/cameras", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Cameras map[string]string `json:"cameras"`
	}
	decodeBody(t, rec, &got)
	assert.Equal(t, map[string]string{"Emma": "dev-1"}, got.Cameras)
}

func TestGetCamerasUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client := api.NewClient(api.Config{
		MobileBaseURL: upstream.URL,
		APIBaseURL:    upstream.URL,
	}, testLogger())
	srv, _ := newTestServer(t, client, staticTokens{creds: auth.Credentials{AccessToken: "tok"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/cameras", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetCamerasWithoutLogin(t *testing.T) {
	srv, _ := newTestServer(t, nil, staticTokens{})

	rec := doRequest(t, srv, http.MethodGet, "/api/cameras", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
