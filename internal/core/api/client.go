// Package api is the request/response mapper for the Cubo cloud. It
// covers the mobile API (login, token refresh) and the camera API
// (cameras, alert timeline, subscription, camera state, image
// download). All calls are stateless: the caller supplies the bearer
// token for each request.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default production endpoints.
const (
	DefaultMobileBaseURL = "https://mobile-api.getcubo.com"
	DefaultAPIBaseURL    = "https://api.getcubo.com/prod"
)

// Config holds client endpoints and the session User-Agent.
type Config struct {
	MobileBaseURL string
	APIBaseURL    string
	UserAgent     string
}

// Client talks to the Cubo mobile and camera APIs.
type Client struct {
	mobile    *resty.Client
	cloud     *resty.Client
	userAgent string
	log       *slog.Logger
}

// NewClient creates a client. Empty config fields fall back to the
// production endpoints and the default User-Agent.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.MobileBaseURL == "" {
		cfg.MobileBaseURL = DefaultMobileBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	newRestClient := func(base string) *resty.Client {
		r := resty.New()
		r.SetBaseURL(base)
		r.SetTimeout(30 * time.Second)
		r.SetHeader("User-Agent", cfg.UserAgent)
		r.SetHeader("Content-Type", "application/json")
		r.SetHeader("Accept-Encoding", "gzip")
		return r
	}

	return &Client{
		mobile:    newRestClient(cfg.MobileBaseURL),
		cloud:     newRestClient(cfg.APIBaseURL),
		userAgent: cfg.UserAgent,
		log:       log,
	}
}

// UserAgent returns the agent string used for this session.
func (c *Client) UserAgent() string { return c.userAgent }

// StatusError is a non-2xx response from the vendor.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cuboapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

// ClientError reports whether the status is a 4xx.
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsUnauthorized reports whether err is an authorization failure: an
// HTTP 401 or a provider message mentioning "unauthorized". Pollers use
// this to decide on a refresh-and-retry.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unauthorized")
}

// IsClientError reports whether err carries a 4xx vendor status.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ClientError()
}

func checkStatus(resp *resty.Response) error {
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

// cloudRequest builds a camera-API request with the bearer token header.
func (c *Client) cloudRequest(ctx context.Context, accessToken string) *resty.Request {
	return c.cloud.R().
		SetContext(ctx).
		SetHeader("x-cspp-authorization", "Bearer "+accessToken)
}
