package api

import (
	"context"
	"fmt"
)

// Subscription is the projection of one /services/v1/subscribed entry.
type Subscription struct {
	Status              string `json:"status"`
	Kind                string `json:"kind"`
	ServiceID           string `json:"service_id"`
	DeviceID            string `json:"device_id"`
	Platform            string `json:"platform"`
	ServiceStartDate    string `json:"service_start_date"`
	ServiceEndDate      string `json:"service_end_date"`
	GracePeriodStopDate string `json:"grace_period_stop_date"`
	AutoRenewal         bool   `json:"auto_renewal"`
	Note                string `json:"note"`
	Created             string `json:"created"`
	OrderID             string `json:"order_id"`
}

// Subscription fetches the account subscription. Returns nil when the
// vendor reports no subscriptions.
func (c *Client) Subscription(ctx context.Context, accessToken string) (*Subscription, error) {
	var out struct {
		Result []Subscription `json:"result"`
	}
	resp, err := c.cloudRequest(ctx, accessToken).
		SetResult(&out).
		Get("/services/v1/subscribed")
	if err != nil {
		return nil, fmt.Errorf("cuboapi: subscription: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("cuboapi: subscription: %w", err)
	}
	if len(out.Result) == 0 {
		return nil, nil
	}
	sub := out.Result[0]
	return &sub, nil
}
