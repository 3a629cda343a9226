// Package httpapi exposes the daemon state over a small JSON API:
// sensor snapshots for dashboards, plus the MFA code submit endpoint
// used to finish an interactive login.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
	"github.com/niruse/cuboai/internal/core/poller"
	"github.com/niruse/cuboai/internal/core/state"
)

// Server is the HTTP API server. The device identity is set once the
// camera has been resolved after login, which may happen after startup
// when an MFA code is still outstanding.
type Server struct {
	store   state.StateReader
	authMgr *auth.Manager
	api     *api.Client
	caller  *poller.Caller
	corsAll bool
	log     *slog.Logger
	mux     *http.ServeMux

	mu       sync.RWMutex
	deviceID string
	babyName string
}

// NewServer creates a new HTTP API server.
func NewServer(
	store state.StateReader,
	authMgr *auth.Manager,
	apiClient *api.Client,
	caller *poller.Caller,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		store:   store,
		authMgr: authMgr,
		api:     apiClient,
		caller:  caller,
		corsAll: corsAll,
		log:     log,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// SetDevice records the resolved camera identity.
func (s *Server) SetDevice(deviceID, babyName string) {
	s.mu.Lock()
	s.deviceID = deviceID
	s.babyName = babyName
	s.mu.Unlock()
}

func (s *Server) device() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID, s.babyName
}

// Handler returns the HTTP handler with request-id and CORS applied.
func (s *Server) Handler() http.Handler {
	return s.requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		s.mux.ServeHTTP(w, r)
	}))
}

// requestID tags every request with an id for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/sensors", s.handleGetSensors)
	s.mux.HandleFunc("GET /api/alerts", s.handleGetAlerts)
	s.mux.HandleFunc("GET /api/cameras", s.handleGetCameras)
	s.mux.HandleFunc("POST /api/auth/mfa", s.handleSubmitMFA)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Handlers ---

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	DeviceID      string `json:"device_id"`
	BabyName      string `json:"baby_name,omitempty"`
	CameraState   string `json:"camera_state"`
	MFAPending    bool   `json:"mfa_pending"`
	MFAKind       string `json:"mfa_kind,omitempty"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	pending, kind := s.authMgr.MFAPending()
	deviceID, babyName := s.device()
	s.writeJSON(w, statusResponse{
		Authenticated: s.caller.Authenticated(),
		DeviceID:      deviceID,
		BabyName:      babyName,
		CameraState:   snap.Camera.State,
		MFAPending:    pending,
		MFAKind:       kind,
	})
}

func (s *Server) handleGetSensors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.Snapshot().Alerts)
}

// handleGetCameras returns the baby-name -> device-id map, for picking
// which camera to poll.
func (s *Server) handleGetCameras(w http.ResponseWriter, r *http.Request) {
	var cams map[string]string
	err := s.caller.Call(r.Context(), func(token string) error {
		got, err := s.api.CameraProfiles(r.Context(), token)
		if err != nil {
			return err
		}
		cams = got
		return nil
	})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "failed to fetch cameras: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]interface{}{"cameras": cams})
}

type mfaBody struct {
	Code string `json:"code"`
}

func (s *Server) handleSubmitMFA(w http.ResponseWriter, r *http.Request) {
	var body mfaBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Code == "" {
		s.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	if pending, _ := s.authMgr.MFAPending(); !pending {
		s.writeError(w, http.StatusConflict, "no MFA challenge pending")
		return
	}

	if err := s.authMgr.SubmitMFACode(r.Context(), body.Code); err != nil {
		s.writeError(w, mfaStatusCode(err), err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func mfaStatusCode(err error) int {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case auth.KindMfaInvalidCode, auth.KindMfaExpired:
		return http.StatusBadRequest
	case auth.KindTooManyRequests, auth.KindSmsQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("http api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
