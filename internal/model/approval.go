package model

import (
	"encoding/json"
	"time"
)

// ApprovalType categorizes a user approval request.
type ApprovalType string

const ApprovalTypeUnlock ApprovalType = "unlock"

// OriginWallet is the origin used for requests raised by the wallet itself.
const OriginWallet = "metamask"

// ApprovalRequest is a pending request for user confirmation.
type ApprovalRequest struct {
	ID          string          `json:"id"`
	Origin      string          `json:"origin"`
	Type        ApprovalType    `json:"type"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
