// Package alerts turns the vendor's cursor-less, account-wide alert
// timeline into a stable "latest N alerts for one device" view. The
// feed takes only an inclusive since lower bound, returns unordered
// batches covering every camera on the account, and gives no page-size
// or has-more signal, so batches may overlap or repeat records.
package alerts

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/niruse/cuboai/internal/core/api"
)

// maxPages bounds the cursor walk so a misbehaving server can never
// spin the poller forever.
const maxPages = 100

// Defaults for the sensor-facing options.
const (
	DefaultCount     = 5
	DefaultHoursBack = 12
)

// Pager is the single timeline call the paginator needs.
type Pager interface {
	AlertsSince(ctx context.Context, accessToken string, since int64) ([]api.Alert, error)
}

// Alert is the normalized output record. Params holds structured data
// when the vendor sent parseable JSON (directly or string-encoded) and
// the original value otherwise.
type Alert struct {
	ID        string `json:"id"`
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`
	Created   string `json:"created"`
	Image     string `json:"image"`
	Params    any    `json:"params"`
	Profile   string `json:"profile"`
	Region    string `json:"region"`
}

// Options tunes one fetch.
type Options struct {
	// Count is the number of alerts to return (default 5).
	Count int
	// HoursBack is the lookback window (default 12).
	HoursBack int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Count <= 0 {
		o.Count = DefaultCount
	}
	if o.HoursBack <= 0 {
		o.HoursBack = DefaultHoursBack
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// FetchLatest walks the timeline forward from now-HoursBack and returns
// the newest Count alerts for deviceID, deduplicated by alert id and
// sorted by timestamp descending (id descending breaks ties, so the
// result order is deterministic).
//
// The cursor advances to max(ts in batch)+1 after each page. The walk
// stops on an empty batch, when the cursor fails to move forward, when
// enough alerts for the device have been collected, or at the page cap.
// The final sort+truncate enforces the bound regardless, so the early
// stop is an optimization only.
func FetchLatest(ctx context.Context, pager Pager, accessToken, deviceID string, opts Options) ([]Alert, error) {
	opts = opts.withDefaults()
	since := opts.Now().Unix() - int64(opts.HoursBack)*3600

	collected := make(map[string]api.Alert)

	for page := 0; page < maxPages; page++ {
		batch, err := pager.AlertsSince(ctx, accessToken, since)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		var maxTS int64
		for _, a := range batch {
			if a.Timestamp > maxTS {
				maxTS = a.Timestamp
			}
			if a.DeviceID == deviceID {
				collected[a.ID] = a
			}
		}

		next := maxTS + 1
		if next <= since {
			// Every timestamp in the batch is behind the cursor; a
			// replaying server would loop forever.
			break
		}
		since = next

		if len(collected) >= opts.Count {
			break
		}
	}

	result := make([]Alert, 0, len(collected))
	for _, a := range collected {
		result = append(result, Normalize(a))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].ID > result[j].ID
	})
	if len(result) > opts.Count {
		result = result[:opts.Count]
	}
	return result, nil
}

// Normalize fixes the output shape of one record. The params field may
// arrive as a JSON-encoded string or as structured data: a string that
// parses as JSON is decoded, anything else passes through untouched.
// Malformed params never fail the record.
func Normalize(a api.Alert) Alert {
	return Alert{
		ID:        a.ID,
		DeviceID:  a.DeviceID,
		Type:      a.Type,
		Timestamp: a.Timestamp,
		Created:   a.Created,
		Image:     a.Image,
		Params:    normalizeParams(a.Params),
		Profile:   a.Profile,
		Region:    a.Region,
	}
}

func normalizeParams(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not valid JSON at all; preserve the raw bytes as a string.
		return string(raw)
	}

	s, isString := v.(string)
	if !isString {
		return v
	}

	var inner any
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		return s
	}
	return inner
}
