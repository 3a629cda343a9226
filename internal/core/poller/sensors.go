package poller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/state"
)

// imageRetention is how many alert snapshots per camera survive cleanup.
const imageRetention = 5

// BabyInfoSensor polls the camera profile and baby details.
type BabyInfoSensor struct {
	api      CloudAPI
	caller   *Caller
	store    *state.StateStore
	deviceID string
	log      *slog.Logger
}

// NewBabyInfoSensor creates the baby info sensor for one camera.
func NewBabyInfoSensor(cloud CloudAPI, caller *Caller, store *state.StateStore, deviceID string, log *slog.Logger) *BabyInfoSensor {
	return &BabyInfoSensor{api: cloud, caller: caller, store: store, deviceID: deviceID, log: log}
}

func (s *BabyInfoSensor) Name() string { return "baby_info" }

// Update fetches the merged camera details. A failed fetch keeps the
// last known profile in place.
func (s *BabyInfoSensor) Update(ctx context.Context) error {
	return s.caller.Call(ctx, func(token string) error {
		details, err := s.api.CameraDetails(ctx, s.deviceID, token)
		if err != nil {
			return err
		}
		s.store.SetBabyInfo(details)
		return nil
	})
}

// AlertSensor polls the alert timeline, optionally downloading alert
// snapshots to disk and pruning old ones.
type AlertSensor struct {
	api      CloudAPI
	caller   *Caller
	store    *state.StateStore
	deviceID string
	opts     alerts.Options

	downloadImages bool
	imageDir       string
	log            *slog.Logger
}

// NewAlertSensor creates the alert sensor for one camera. imageDir may
// be empty when downloadImages is false.
func NewAlertSensor(
	cloud CloudAPI,
	caller *Caller,
	store *state.StateStore,
	deviceID string,
	opts alerts.Options,
	downloadImages bool,
	imageDir string,
	log *slog.Logger,
) *AlertSensor {
	return &AlertSensor{
		api:            cloud,
		caller:         caller,
		store:          store,
		deviceID:       deviceID,
		opts:           opts,
		downloadImages: downloadImages,
		imageDir:       imageDir,
		log:            log,
	}
}

func (s *AlertSensor) Name() string { return "alerts" }

// Update fetches the latest alerts. The sensor state is the newest
// alert's type, "No alerts" when the window is empty, and "Error" when
// the fetch fails. With downloads enabled, alert image URLs are
// rewritten to their local paths.
func (s *AlertSensor) Update(ctx context.Context) error {
	var fetched []alerts.Alert
	err := s.caller.Call(ctx, func(token string) error {
		got, err := alerts.FetchLatest(ctx, s.api, token, s.deviceID, s.opts)
		if err != nil {
			return err
		}
		fetched = got
		if s.downloadImages {
			local := s.downloadAlertImages(ctx, token, got)
			for i := range got {
				if p, ok := local[got[i].ID]; ok {
					got[i].Image = p
				}
			}
		}
		return nil
	})
	if err != nil {
		s.store.SetAlerts(state.AlertsSnapshot{State: state.StateError})
		return err
	}

	snap := state.AlertsSnapshot{State: state.StateNoAlerts, Alerts: fetched}
	if len(fetched) > 0 {
		snap.State = fetched[0].Type
	}
	s.store.SetAlerts(snap)
	return nil
}

// downloadAlertImages fetches missing alert snapshots and returns the
// local path per alert id, covering both fresh downloads and images
// already on disk.
func (s *AlertSensor) downloadAlertImages(ctx context.Context, token string, list []alerts.Alert) map[string]string {
	local := make(map[string]string, len(list))
	for _, a := range list {
		if a.Image == "" {
			continue
		}
		filename := fmt.Sprintf("%s_%s.jpg", s.deviceID, a.ID)
		path := filepath.Join(s.imageDir, filename)
		if _, err := os.Stat(path); err == nil {
			local[a.ID] = path
			continue
		}
		saved, err := s.api.DownloadImage(ctx, a.Image, token, s.imageDir, filename)
		if err != nil {
			s.log.Warn("alert image download failed", "alert_id", a.ID, "error", err)
			continue
		}
		local[a.ID] = saved
	}
	if err := s.cleanupImages(); err != nil {
		s.log.Warn("alert image cleanup failed", "error", err)
	}
	return local
}

// cleanupImages keeps the imageRetention newest snapshots for this
// camera, by file modification time, and removes the rest.
func (s *AlertSensor) cleanupImages() error {
	pattern := filepath.Join(s.imageDir, s.deviceID+"_*.jpg")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) <= imageRetention {
		return nil
	}

	type entry struct {
		path  string
		mtime int64
	}
	files := make([]entry, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		files = append(files, entry{path: p, mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime > files[j].mtime })

	for _, f := range files[min(imageRetention, len(files)):] {
		if err := os.Remove(f.path); err != nil {
			s.log.Warn("failed to remove old alert image", "path", f.path, "error", err)
		} else {
			s.log.Debug("removed old alert image", "path", f.path)
		}
	}
	return nil
}

// SubscriptionSensor polls the account subscription status.
type SubscriptionSensor struct {
	api    CloudAPI
	caller *Caller
	store  *state.StateStore
	log    *slog.Logger
}

// NewSubscriptionSensor creates the subscription sensor.
func NewSubscriptionSensor(cloud CloudAPI, caller *Caller, store *state.StateStore, log *slog.Logger) *SubscriptionSensor {
	return &SubscriptionSensor{api: cloud, caller: caller, store: store, log: log}
}

func (s *SubscriptionSensor) Name() string { return "subscription" }

func (s *SubscriptionSensor) Update(ctx context.Context) error {
	err := s.caller.Call(ctx, func(token string) error {
		sub, err := s.api.Subscription(ctx, token)
		if err != nil {
			return err
		}
		snap := state.SubscriptionSnapshot{State: state.StateNoSubscription}
		if sub != nil {
			snap = state.SubscriptionSnapshot{State: sub.Status, Subscription: sub}
		}
		s.store.SetSubscription(snap)
		return nil
	})
	if err != nil {
		s.store.SetSubscription(state.SubscriptionSnapshot{State: state.StateError})
		return err
	}
	return nil
}

// CameraStateSensor polls the camera online/offline state.
type CameraStateSensor struct {
	api      CloudAPI
	caller   *Caller
	store    *state.StateStore
	deviceID string
	log      *slog.Logger
}

// NewCameraStateSensor creates the camera state sensor for one camera.
func NewCameraStateSensor(cloud CloudAPI, caller *Caller, store *state.StateStore, deviceID string, log *slog.Logger) *CameraStateSensor {
	return &CameraStateSensor{api: cloud, caller: caller, store: store, deviceID: deviceID, log: log}
}

func (s *CameraStateSensor) Name() string { return "camera_state" }

func (s *CameraStateSensor) Update(ctx context.Context) error {
	err := s.caller.Call(ctx, func(token string) error {
		cs, err := s.api.CameraState(ctx, s.deviceID, token)
		if err != nil {
			return err
		}
		snap := state.CameraSnapshot{State: state.StateUnknown}
		if cs != nil {
			snap = state.CameraSnapshot{State: cs.State, Attributes: cs.Attributes}
		}
		s.store.SetCameraState(snap)
		return nil
	})
	if err != nil {
		s.store.SetCameraState(state.CameraSnapshot{State: state.StateError})
		return err
	}
	return nil
}
