package model

import (
	"encoding/json"
	"errors"
)

// StatusRequest identifies a cross-chain bridge transfer by its source
// transaction.
type StatusRequest struct {
	BridgeID    string `json:"bridgeId"`
	SrcTxHash   string `json:"srcTxHash"`
	Bridge      string `json:"bridge"`
	SrcChainID  int64  `json:"srcChainId"`
	DestChainID int64  `json:"destChainId"`
	QuoteID     string `json:"requestId,omitempty"`
	Refuel      bool   `json:"refuel,omitempty"`
}

// Validate checks the fields the status API requires.
func (r StatusRequest) Validate() error {
	switch {
	case r.SrcTxHash == "":
		return errors.New("srcTxHash is required")
	case r.BridgeID == "":
		return errors.New("bridgeId is required")
	case r.SrcChainID == 0:
		return errors.New("srcChainId is required")
	case r.DestChainID == 0:
		return errors.New("destChainId is required")
	}
	return nil
}

// BridgeStatus is the lifecycle state reported by the bridge API.
type BridgeStatus string

const (
	BridgeStatusPending  BridgeStatus = "PENDING"
	BridgeStatusComplete BridgeStatus = "COMPLETE"
	BridgeStatusFailed   BridgeStatus = "FAILED"
	BridgeStatusUnknown  BridgeStatus = "UNKNOWN"
)

// IsValid reports whether s is a known status.
func (s BridgeStatus) IsValid() bool {
	switch s {
	case BridgeStatusPending, BridgeStatusComplete, BridgeStatusFailed, BridgeStatusUnknown:
		return true
	}
	return false
}

// ChainStatus describes one leg of a bridge transfer.
type ChainStatus struct {
	ChainID int64           `json:"chainId"`
	TxHash  string          `json:"txHash,omitempty"`
	Amount  string          `json:"amount,omitempty"`
	Token   json.RawMessage `json:"token,omitempty"`
}

// StatusResponse is the last-known status of a bridge transfer.
type StatusResponse struct {
	Status                      BridgeStatus    `json:"status"`
	SrcChain                    ChainStatus     `json:"srcChain"`
	DestChain                   *ChainStatus    `json:"destChain,omitempty"`
	Bridge                      string          `json:"bridge,omitempty"`
	IsExpectedToken             *bool           `json:"isExpectedToken,omitempty"`
	IsUnrecognizedRouterAddress *bool           `json:"isUnrecognizedRouterAddress,omitempty"`
	Refuel                      json.RawMessage `json:"refuel,omitempty"`
}

// TransactionMeta is the subset of a transaction record carried by
// transaction lifecycle events.
type TransactionMeta struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	ChainID string `json:"chainId,omitempty"`
	Status  string `json:"status,omitempty"`
}
