package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// CameraProfile is one entry of the /user/cameras "profiles" list. The
// Profile field is a JSON document encoded as a string (JSON-in-JSON).
type CameraProfile struct {
	DeviceID string `json:"device_id"`
	Profile  string `json:"profile"`
}

// cameraRecord is one entry of the /user/cameras "data" list.
type cameraRecord struct {
	DeviceID  string `json:"device_id"`
	LicenseID string `json:"license_id"`
	Created   string `json:"created"`
	Role      string `json:"role"`
	Settings  string `json:"settings"`
}

// reportSettings is one entry of the /user/cameras "report_settings" list.
type reportSettings struct {
	DeviceID   string `json:"device_id"`
	TimeZone   string `json:"time_zone"`
	SleepTime  string `json:"sleep_time"`
	WakeupTime string `json:"wakeup_time"`
	ReportTime string `json:"report_time"`
	GMTOffset  int    `json:"gmt_offset"`
}

type camerasEnvelope struct {
	Profiles       []CameraProfile  `json:"profiles"`
	Data           []cameraRecord   `json:"data"`
	ReportSettings []reportSettings `json:"report_settings"`
}

// profileDoc is the decoded JSON-in-JSON profile document.
type profileDoc struct {
	Baby   string `json:"baby"`
	Birth  string `json:"birth"`
	Gender *int   `json:"gender"`
	Avatar string `json:"avatar"`
}

// CameraDetails merges the registration, profile and report-settings
// records of one camera.
type CameraDetails struct {
	DeviceID  string `json:"device_id"`
	LicenseID string `json:"license_id"`
	Created   string `json:"created"`
	Role      string `json:"role"`

	BabyName  string `json:"baby_name"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	AvatarURL string `json:"avatar_url"`

	AlexaEnabled bool `json:"alexa_enabled"`

	TimeZone   string `json:"timezone"`
	SleepTime  string `json:"sleep_time"`
	WakeupTime string `json:"wakeup_time"`
	ReportTime string `json:"report_time"`
	GMTOffset  int    `json:"gmt_offset"`
}

func (c *Client) fetchCameras(ctx context.Context, accessToken string) (*camerasEnvelope, error) {
	var out camerasEnvelope
	resp, err := c.cloudRequest(ctx, accessToken).
		SetResult(&out).
		Get("/user/cameras")
	if err != nil {
		return nil, fmt.Errorf("cuboapi: cameras: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("cuboapi: cameras: %w", err)
	}
	return &out, nil
}

// CameraProfiles returns the baby-name -> device-id map derived from
// the camera list. Entries whose embedded profile document does not
// parse are skipped, never fatal.
func (c *Client) CameraProfiles(ctx context.Context, accessToken string) (map[string]string, error) {
	env, err := c.fetchCameras(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	deviceMap := make(map[string]string, len(env.Profiles))
	for _, p := range env.Profiles {
		var doc profileDoc
		if err := json.Unmarshal([]byte(p.Profile), &doc); err != nil {
			c.log.Debug("skipping unparsable camera profile", "device_id", p.DeviceID, "error", err)
			continue
		}
		name := doc.Baby
		if name == "" {
			name = "Unknown"
		}
		deviceMap[name] = p.DeviceID
	}
	return deviceMap, nil
}

// CameraProfilesRaw returns the unflattened profile entries for
// attribute-rich consumers.
func (c *Client) CameraProfilesRaw(ctx context.Context, accessToken string) ([]CameraProfile, error) {
	env, err := c.fetchCameras(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return env.Profiles, nil
}

// CameraDetails merges the /user/cameras registration, profile and
// report-settings records for one device. Returns nil when the device
// is not on the account.
func (c *Client) CameraDetails(ctx context.Context, deviceID, accessToken string) (*CameraDetails, error) {
	env, err := c.fetchCameras(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var cam *cameraRecord
	for i := range env.Data {
		if env.Data[i].DeviceID == deviceID {
			cam = &env.Data[i]
			break
		}
	}
	if cam == nil {
		return nil, nil
	}

	details := &CameraDetails{
		DeviceID:  deviceID,
		LicenseID: cam.LicenseID,
		Created:   cam.Created,
		Role:      cam.Role,
	}

	for _, p := range env.Profiles {
		if p.DeviceID != deviceID {
			continue
		}
		var doc profileDoc
		if err := json.Unmarshal([]byte(p.Profile), &doc); err == nil {
			details.BabyName = doc.Baby
			details.BirthDate = doc.Birth
			details.AvatarURL = doc.Avatar
			details.Gender = genderText(doc.Gender)
		}
		break
	}

	for _, rs := range env.ReportSettings {
		if rs.DeviceID != deviceID {
			continue
		}
		details.TimeZone = rs.TimeZone
		details.SleepTime = rs.SleepTime
		details.WakeupTime = rs.WakeupTime
		details.ReportTime = rs.ReportTime
		details.GMTOffset = rs.GMTOffset
		break
	}

	var settings struct {
		AlexaEnable bool `json:"alexa_enable"`
	}
	if err := json.Unmarshal([]byte(cam.Settings), &settings); err == nil {
		details.AlexaEnabled = settings.AlexaEnable
	}

	return details, nil
}

// genderText maps the vendor's numeric gender code: 0=male, 1=female.
func genderText(code *int) string {
	switch {
	case code == nil:
		return ""
	case *code == 0:
		return "male"
	case *code == 1:
		return "female"
	default:
		return "unknown"
	}
}

// CameraState is the online/offline snapshot of one camera. The vendor
// response shape varies, so everything beyond the state field is kept
// as raw attributes.
type CameraState struct {
	State      string
	Attributes map[string]any
}

// CameraState fetches the live state of one camera.
func (c *Client) CameraState(ctx context.Context, deviceID, accessToken string) (*CameraState, error) {
	resp, err := c.cloudRequest(ctx, accessToken).
		SetQueryParam("device_id", deviceID).
		Get("/camera/state")
	if err != nil {
		return nil, fmt.Errorf("cuboapi: camera state: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("cuboapi: camera state: %w", err)
	}

	attrs := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &attrs); err != nil {
		return nil, fmt.Errorf("cuboapi: camera state: decode: %w", err)
	}
	st, _ := attrs["state"].(string)
	return &CameraState{State: st, Attributes: attrs}, nil
}
