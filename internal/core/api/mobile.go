package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// loginPayload is the body the vendor mobile app sends on login. Most
// fields identify the "device" the session belongs to; the values mimic
// an Android emulator the way the official client reports one.
type loginPayload struct {
	Version     string `json:"version"`
	Lang        string `json:"lang"`
	MobileUUID  string `json:"mobile_uuid"`
	Provider    string `json:"provider"`
	PushToken   string `json:"push_token"`
	Timezone    int    `json:"timezone"`
	TP          string `json:"tp"`
	UIDP        string `json:"uid_p"`
	UnameP      string `json:"uname_p"`
	DeviceModel string `json:"device_model"`
	ZoneName    string `json:"zone_name"`
}

// tokenData is the token pair as the mobile API returns it.
type tokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginEnvelope struct {
	Data tokenData `json:"data"`
}

// Login exchanges a Cognito access token for a vendor session via
// POST /v2/user/login. The returned pair is what gets persisted and
// used for all subsequent polling.
func (c *Client) Login(ctx context.Context, mobileUUID, username, identityToken string) (access, refresh string, err error) {
	payload := loginPayload{
		Version:     "2396",
		Lang:        "en",
		MobileUUID:  mobileUUID,
		Provider:    "Yun",
		PushToken:   "dummy-token",
		Timezone:    0,
		TP:          "Android",
		UIDP:        mobileUUID,
		UnameP:      username,
		DeviceModel: "sdk_gphone64_x86_64",
		ZoneName:    "GMT",
	}

	var out loginEnvelope
	resp, err := c.mobile.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetHeader("x-cb-authorization", "Bearer "+identityToken).
		SetHeader("x-cspp-authorization", "").
		SetHeader("x-refresh-authorization", "").
		SetBody(payload).
		SetResult(&out).
		Post("/v2/user/login")
	if err != nil {
		return "", "", fmt.Errorf("cuboapi: mobile login: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", "", fmt.Errorf("cuboapi: mobile login: %w", err)
	}
	if out.Data.AccessToken == "" || out.Data.RefreshToken == "" {
		return "", "", fmt.Errorf("cuboapi: mobile login: response missing token pair")
	}
	return out.Data.AccessToken, out.Data.RefreshToken, nil
}

// RefreshToken exchanges a refresh token for a new pair via
// POST /v1/oauth/token. The vendor returns the fields either wrapped in
// a "data" object or at the top level; both shapes are accepted. When
// the response omits a new refresh token the old one stays valid and is
// returned unchanged.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	resp, err := c.mobile.R().
		SetContext(ctx).
		SetHeader("x-cb-authorization", "").
		SetHeader("x-cspp-authorization", "").
		SetHeader("x-refresh-authorization", "Bearer "+refreshToken).
		Post("/v1/oauth/token")
	if err != nil {
		return "", "", fmt.Errorf("cuboapi: token refresh: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", "", fmt.Errorf("cuboapi: token refresh: %w", err)
	}

	var envelope struct {
		Data *tokenData `json:"data"`
		tokenData
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return "", "", fmt.Errorf("cuboapi: token refresh: decode: %w", err)
	}

	pair := envelope.tokenData
	if envelope.Data != nil {
		pair = *envelope.Data
	}
	if pair.AccessToken == "" {
		return "", "", fmt.Errorf("cuboapi: token refresh: response missing access token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair.AccessToken, pair.RefreshToken, nil
}
