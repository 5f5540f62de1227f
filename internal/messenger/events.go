package messenger

import (
	"encoding/json"
	"strings"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// Event names, in "{Controller}:{event}" form.
const (
	EventAppStateChange          = "AppStateController:stateChange"
	EventApprovalStateChange     = "ApprovalController:stateChange"
	EventBridgeStatusStateChange = "BridgeStatusController:stateChange"
	EventPreferencesStateChange  = "PreferencesController:stateChange"
	EventQRKeyringStateChange    = "KeyringController:qrKeyringStateChange"
	EventKeyringLock             = "KeyringController:lock"
	EventKeyringUnlock           = "KeyringController:unlock"
	EventTransactionConfirmed    = "TransactionController:transactionConfirmed"
)

// Action names.
const (
	ActionAppStateGetState              = "AppStateController:getState"
	ActionPreferencesGetState           = "PreferencesController:getState"
	ActionApprovalAddRequest            = "ApprovalController:addRequest"
	ActionApprovalAcceptRequest         = "ApprovalController:acceptRequest"
	ActionStartPollingForBridgeTxStatus = "BridgeStatusController:startPollingForBridgeTxStatus"
)

// Preferences is the part of the preferences controller state walletd
// reads.
type Preferences struct {
	AutoLockTimeLimit *model.Minutes `json:"autoLockTimeLimit,omitempty"`
}

// PreferencesState is the payload of EventPreferencesStateChange and the
// result of ActionPreferencesGetState.
type PreferencesState struct {
	Preferences Preferences `json:"preferences"`
}

// QRKeyringState is the payload of EventQRKeyringStateChange.
type QRKeyringState = json.RawMessage

// TransactionConfirmed is the payload of EventTransactionConfirmed.
type TransactionConfirmed = model.TransactionMeta

// subjectPrefix namespaces walletd events on NATS.
const subjectPrefix = "wallet."

// Subject maps an event name to its NATS subject:
// "TransactionController:transactionConfirmed" becomes
// "wallet.TransactionController.transactionConfirmed".
func Subject(event string) string {
	return subjectPrefix + strings.ReplaceAll(event, ":", ".")
}

// EventName is the inverse of Subject. It returns "" for subjects outside
// the walletd namespace.
func EventName(subject string) string {
	rest, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok || rest == "" {
		return ""
	}
	controller, event, ok := strings.Cut(rest, ".")
	if !ok || controller == "" || event == "" {
		return ""
	}
	return controller + ":" + event
}
