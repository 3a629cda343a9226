// Package cubo provides a public facade re-exporting core types
// for external consumers of this module.
package cubo

import (
	"github.com/niruse/cuboai/internal/core/alerts"
	"github.com/niruse/cuboai/internal/core/api"
	"github.com/niruse/cuboai/internal/core/auth"
	"github.com/niruse/cuboai/internal/core/state"
)

// Re-export core types for external use.
type (
	// Credentials holds the vendor access/refresh token pair.
	Credentials = auth.Credentials
	// MFAChallenge is a pending multi-factor challenge.
	MFAChallenge = auth.MFAChallenge
	// Alert is one normalized timeline alert.
	Alert = alerts.Alert
	// AlertOptions tunes an alert fetch.
	AlertOptions = alerts.Options
	// CameraDetails is the merged camera and baby profile.
	CameraDetails = api.CameraDetails
	// Subscription is the account subscription record.
	Subscription = api.Subscription
	// Snapshot is a copy of all sensor state.
	Snapshot = state.Snapshot
	// Event represents a state change event.
	Event = state.Event
	// EventType identifies event categories.
	EventType = state.EventType
)

// Event type constants.
const (
	EventBabyInfoUpdate     = state.EventBabyInfoUpdate
	EventAlertsUpdate       = state.EventAlertsUpdate
	EventSubscriptionUpdate = state.EventSubscriptionUpdate
	EventCameraStateUpdate  = state.EventCameraStateUpdate
)

// MFA challenge kinds.
const (
	MFAKindSMS           = auth.MFAKindSMS
	MFAKindSoftwareToken = auth.MFAKindSoftwareToken
)
