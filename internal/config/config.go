package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Cubo    CuboConfig    `yaml:"cubo"`
	Auth    AuthConfig    `yaml:"auth"`
	Poll    PollConfig    `yaml:"poll"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// CuboConfig holds Cubo cloud API configuration.
type CuboConfig struct {
	MobileAPIBase string `yaml:"mobile_api_base"`
	APIBase       string `yaml:"api_base"`
	UserAgent     string `yaml:"user_agent"`
	BabyName      string `yaml:"baby_name"`
	DeviceID      string `yaml:"device_id"`
}

// AuthConfig holds account credentials and Cognito pool settings.
type AuthConfig struct {
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Region          string `yaml:"region"`
	PoolID          string `yaml:"pool_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	CognitoEndpoint string `yaml:"cognito_endpoint"`
}

// PollConfig holds polling cadence and alert fetch options.
type PollConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	AlertsCount     int  `yaml:"alerts_count"`
	HoursBack       int  `yaml:"hours_back"`
	DownloadImages  bool `yaml:"download_images"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// StorageConfig holds token and image storage paths.
type StorageConfig struct {
	TokenDir string `yaml:"token_dir"`
	ImageDir string `yaml:"image_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults. The Cognito pool
// values are the ones the official mobile app uses.
func Defaults() Config {
	return Config{
		Cubo: CuboConfig{
			MobileAPIBase: "https://mobile-api.getcubo.com",
			APIBase:       "https://api.getcubo.com/prod",
		},
		Auth: AuthConfig{
			Region:       "us-east-1",
			PoolID:       "us-east-1_Wr7vffd5Y",
			ClientID:     "1gvbkmngl920rtp6hlbp6057ue",
			ClientSecret: "1ot7h8m3t83g0g4b7ais7ilcf12o44cvr9cbgad0t90kcpno56jr",
		},
		Poll: PollConfig{
			IntervalSeconds: 60,
			AlertsCount:     5,
			HoursBack:       12,
			DownloadImages:  true,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "cuboai",
		},
		Storage: StorageConfig{
			TokenDir: "/data",
			ImageDir: "/data/images",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CUBO_MOBILE_API_BASE"); v != "" {
		cfg.Cubo.MobileAPIBase = v
	}
	if v := os.Getenv("CUBO_API_BASE"); v != "" {
		cfg.Cubo.APIBase = v
	}
	if v := os.Getenv("CUBO_USER_AGENT"); v != "" {
		cfg.Cubo.UserAgent = v
	}
	if v := os.Getenv("CUBO_BABY_NAME"); v != "" {
		cfg.Cubo.BabyName = v
	}
	if v := os.Getenv("CUBO_DEVICE_ID"); v != "" {
		cfg.Cubo.DeviceID = v
	}
	if v := os.Getenv("CUBO_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("CUBO_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("CUBO_COGNITO_REGION"); v != "" {
		cfg.Auth.Region = v
	}
	if v := os.Getenv("CUBO_COGNITO_POOL_ID"); v != "" {
		cfg.Auth.PoolID = v
	}
	if v := os.Getenv("CUBO_COGNITO_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("CUBO_COGNITO_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("CUBO_COGNITO_ENDPOINT"); v != "" {
		cfg.Auth.CognitoEndpoint = v
	}
	if v := os.Getenv("CUBO_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.IntervalSeconds = n
		}
	}
	if v := os.Getenv("CUBO_ALERTS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.AlertsCount = n
		}
	}
	if v := os.Getenv("CUBO_HOURS_BACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.HoursBack = n
		}
	}
	if v := os.Getenv("CUBO_DOWNLOAD_IMAGES"); v != "" {
		cfg.Poll.DownloadImages = parseBool(v)
	}
	if v := os.Getenv("CUBO_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CUBO_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("CUBO_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("CUBO_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("CUBO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("CUBO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("CUBO_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("CUBO_TOKEN_DIR"); v != "" {
		cfg.Storage.TokenDir = v
	}
	if v := os.Getenv("CUBO_IMAGE_DIR"); v != "" {
		cfg.Storage.ImageDir = v
	}
	if v := os.Getenv("CUBO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CUBO_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}
