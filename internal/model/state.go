package model

import (
	"encoding/json"
	"time"
)

// PollingCategory names the UI surface a polling token belongs to. The
// string values double as the state field names.
type PollingCategory string

const (
	PollingPopup        PollingCategory = "popupGasPollTokens"
	PollingNotification PollingCategory = "notificationGasPollTokens"
	PollingFullScreen   PollingCategory = "fullScreenGasPollTokens"

	// PollingBackground is what the background environment maps to. Tokens
	// in it are never tracked.
	PollingBackground PollingCategory = "none"
)

// PollingCategories lists the tracked categories in display order.
var PollingCategories = []PollingCategory{PollingPopup, PollingNotification, PollingFullScreen}

// IsValid reports whether tokens of this category are tracked.
func (c PollingCategory) IsValid() bool {
	switch c {
	case PollingPopup, PollingNotification, PollingFullScreen:
		return true
	}
	return false
}

func (c PollingCategory) String() string { return string(c) }

// Environment types a UI surface can report.
const (
	EnvironmentPopup        = "popup"
	EnvironmentNotification = "notification"
	EnvironmentFullScreen   = "fullscreen"
	EnvironmentBackground   = "background"
)

// CategoryForEnvironment maps an environment type to its polling category.
// Unknown environments map to the empty category, which is rejected.
func CategoryForEnvironment(env string) PollingCategory {
	switch env {
	case EnvironmentPopup:
		return PollingPopup
	case EnvironmentNotification:
		return PollingNotification
	case EnvironmentFullScreen:
		return PollingFullScreen
	case EnvironmentBackground:
		return PollingBackground
	}
	return ""
}

// PollingTokens is a snapshot of every tracked category.
type PollingTokens map[PollingCategory][]string

// AppState is the externally visible state of the app-state controller.
type AppState struct {
	TimeoutMinutes            Minutes           `json:"timeoutMinutes"`
	BrowserEnvironment        map[string]string `json:"browserEnvironment"`
	PopupGasPollTokens        []string          `json:"popupGasPollTokens"`
	NotificationGasPollTokens []string          `json:"notificationGasPollTokens"`
	FullScreenGasPollTokens   []string          `json:"fullScreenGasPollTokens"`
	QRHardware                json.RawMessage   `json:"qrHardware,omitempty"`
	CurrentPopupID            int               `json:"currentPopupId,omitempty"`
	LastActiveAt              *time.Time        `json:"lastActiveAt,omitempty"`

	// Runtime-only fields, never persisted.
	Unlocked         bool   `json:"isUnlocked"`
	WaitingForUnlock int    `json:"waitingForUnlock"`
	ApprovalID       string `json:"approvalRequestId,omitempty"`
	TimerArmed       bool   `json:"timerArmed"`
}

// StateRecord is a persisted key/value pair. Keys use the format
// "{namespace}:{name}" (e.g. "appstate:timeoutMinutes").
type StateRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
