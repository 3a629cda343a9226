// Command cubod is the CuboAi cloud poller daemon. It logs in to the
// Cubo account (completing MFA over the HTTP API when required),
// polls the cloud for baby info, alerts, subscription and camera
// state, and exposes everything over HTTP and optionally MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/niruse/cuboai/internal/config"
	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
	"github.com/niruse/cuboai/internal/core/poller"
	"github.com/niruse/cuboai/internal/core/state"
	"github.com/niruse/cuboai/internal/httpapi"
	"github.com/niruse/cuboai/internal/mqtt"
)

const resolveRetryInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cubod:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Core wiring.
	userAgent := cfg.Cubo.UserAgent
	if userAgent == "" {
		userAgent = api.RandomUserAgent()
	}
	apiClient := api.NewClient(api.Config{
		MobileBaseURL: cfg.Cubo.MobileAPIBase,
		APIBaseURL:    cfg.Cubo.APIBase,
		UserAgent:     userAgent,
	}, log)

	store := auth.NewStore(cfg.Storage.TokenDir, log)
	cognito := auth.NewCognito(auth.CognitoConfig{
		Region:       cfg.Auth.Region,
		PoolID:       cfg.Auth.PoolID,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Endpoint:     cfg.Auth.CognitoEndpoint,
	}, log)
	authMgr := auth.NewManager(cognito, apiClient, store, log)
	refresher := auth.NewRefresher(apiClient, store, log)
	caller := poller.NewCaller(store, refresher, log)

	bus := state.NewEventBus(log)
	stateStore := state.NewStateStore(bus, log)

	// Log in when no usable session is on disk.
	if creds := store.LoadPair(); creds.AccessToken == "" {
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return fmt.Errorf("no stored session and no credentials configured")
		}
		res, err := authMgr.Login(ctx, cfg.Auth.Username, cfg.Auth.Password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if res.MFARequired {
			log.Warn("MFA code required, submit via POST /api/auth/mfa", "kind", res.MFAKind)
		}
	} else {
		log.Info("using stored session", "token_dir", cfg.Storage.TokenDir)
	}

	// HTTP API starts before device resolution so the MFA endpoint is
	// reachable while the login is still pending.
	server := httpapi.NewServer(stateStore, authMgr, apiClient, caller, cfg.HTTP.CORSAll, log)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- server.Serve(ctx, cfg.HTTP.Addr)
	}()

	// Resolve the camera and start polling once the session is live.
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- resolveAndPoll(ctx, cfg, apiClient, caller, authMgr, server, stateStore, bus, log)
	}()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-pollErr:
		if err != nil {
			return fmt.Errorf("poller: %w", err)
		}
	}

	log.Info("shutting down")
	return nil
}

// resolveAndPoll waits for a usable session, figures out which camera
// to watch, then runs the sensor scheduler and MQTT publisher until
// ctx is cancelled.
func resolveAndPoll(
	ctx context.Context,
	cfg config.Config,
	apiClient *api.Client,
	caller *poller.Caller,
	authMgr *auth.Manager,
	server *httpapi.Server,
	stateStore *state.StateStore,
	bus *state.EventBus,
	log *slog.Logger,
) error {
	deviceID, babyName, err := resolveDevice(ctx, cfg, apiClient, caller, authMgr, log)
	if err != nil {
		return err
	}
	server.SetDevice(deviceID, babyName)
	log.Info("camera resolved", "device_id", deviceID, "baby_name", babyName)

	sensors := []poller.Sensor{
		poller.NewBabyInfoSensor(apiClient, caller, stateStore, deviceID, log),
		poller.NewAlertSensor(apiClient, caller, stateStore, deviceID, alerts.Options{
			Count:     cfg.Poll.AlertsCount,
			HoursBack: cfg.Poll.HoursBack,
		}, cfg.Poll.DownloadImages, cfg.Storage.ImageDir, log),
		poller.NewSubscriptionSensor(apiClient, caller, stateStore, log),
		poller.NewCameraStateSensor(apiClient, caller, stateStore, deviceID, log),
	}

	sched := poller.NewScheduler(sensors, time.Duration(cfg.Poll.IntervalSeconds)*time.Second, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop(context.Background())

	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		pub = mqtt.NewHAPublisher(mqtt.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceID:    deviceID,
			BabyName:    babyName,
		}, stateStore, bus, log)
	} else {
		pub = mqtt.NewStubPublisher(log)
	}
	if err := pub.Start(ctx); err != nil {
		return err
	}
	defer pub.Stop(context.Background())

	<-ctx.Done()
	return nil
}

// resolveDevice picks the camera to poll: the configured device id
// wins, otherwise the camera list is matched by baby name, falling
// back to the first camera by name. Retries until the session
// is usable, which covers the pending-MFA window.
func resolveDevice(
	ctx context.Context,
	cfg config.Config,
	apiClient *api.Client,
	caller *poller.Caller,
	authMgr *auth.Manager,
	log *slog.Logger,
) (deviceID, babyName string, err error) {
	if cfg.Cubo.DeviceID != "" {
		return cfg.Cubo.DeviceID, cfg.Cubo.BabyName, nil
	}

	ticker := time.NewTicker(resolveRetryInterval)
	defer ticker.Stop()

	for {
		if pending, _ := authMgr.MFAPending(); !pending {
			var profiles map[string]string
			err := caller.Call(ctx, func(token string) error {
				got, err := apiClient.CameraProfiles(ctx, token)
				if err != nil {
					return err
				}
				profiles = got
				return nil
			})
			switch {
			case err != nil:
				log.Warn("camera list fetch failed, retrying", "error", err)
			case len(profiles) == 0:
				log.Warn("no cameras on account, retrying")
			default:
				id, name := pickCamera(profiles, cfg.Cubo.BabyName)
				if cfg.Cubo.BabyName != "" && !strings.EqualFold(name, cfg.Cubo.BabyName) {
					log.Warn("configured baby name not found, using first camera",
						"baby_name", cfg.Cubo.BabyName, "camera", name, "device_id", id)
				}
				log.Info("camera resolved", "camera", name, "device_id", id)
				return id, name, nil
			}
		} else {
			log.Info("waiting for MFA code before resolving camera")
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// pickCamera matches babyName against the profile names
// case-insensitively. With no match (or no configured name) it falls
// back to the first camera in name order, so restarts pick the same
// device.
func pickCamera(profiles map[string]string, babyName string) (deviceID, name string) {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)

	if babyName != "" {
		for _, n := range names {
			if strings.EqualFold(n, babyName) {
				return profiles[n], n
			}
		}
	}
	return profiles[names[0]], names[0]
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
