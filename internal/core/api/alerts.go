package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Alert is one record of the /timeline/alerts feed. Params arrives
// either as a JSON-encoded string or as structured JSON; it is kept
// raw here and interpreted by the normalizer.
type Alert struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"ts"`
	Created   string          `json:"created"`
	Image     string          `json:"image"`
	Params    json.RawMessage `json:"params"`
	Profile   string          `json:"profile"`
	Region    string          `json:"region"`
}

// AlertsSince fetches one timeline batch. The feed covers every device
// on the account and takes only an inclusive lower-bound cursor; there
// is no page-size or continuation signal, so paging is the caller's
// problem (see the alerts package).
func (c *Client) AlertsSince(ctx context.Context, accessToken string, since int64) ([]Alert, error) {
	var out struct {
		Data []Alert `json:"data"`
	}
	resp, err := c.cloudRequest(ctx, accessToken).
		SetQueryParam("since", strconv.FormatInt(since, 10)).
		SetResult(&out).
		Get("/timeline/alerts")
	if err != nil {
		return nil, fmt.Errorf("cuboapi: alerts: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("cuboapi: alerts: %w", err)
	}
	return out.Data, nil
}

// DownloadImage fetches an alert photo into destDir, creating the
// directory if needed. An empty filename defaults to the URL's final
// path segment. Returns the saved path.
func (c *Client) DownloadImage(ctx context.Context, url, accessToken, destDir, filename string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("cuboapi: image dir %s: %w", destDir, err)
	}
	if filename == "" {
		filename = url[strings.LastIndex(url, "/")+1:]
	}
	savePath := filepath.Join(destDir, filename)

	resp, err := c.cloud.R().
		SetContext(ctx).
		SetHeader("x-cspp-authorization", "Bearer "+accessToken).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("cuboapi: download image: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("cuboapi: download image: %w", err)
	}

	if err := os.WriteFile(savePath, resp.Body(), 0o644); err != nil {
		return "", fmt.Errorf("cuboapi: save image %s: %w", savePath, err)
	}
	return savePath, nil
}
