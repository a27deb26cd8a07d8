package router

import (
	"encoding/json"
	"errors"
)

// Message types sent by the ChirpSyncer backend.
const (
	TypeSyncProgress    = "sync.progress"
	TypeSyncComplete    = "sync.complete"
	TypeCleanupProgress = "cleanup.progress"
	TypeCleanupComplete = "cleanup.complete"
)

// ErrMalformedFrame is returned by Decode for frames without a usable type/payload shape.
var ErrMalformedFrame = errors.New("malformed frame")

// Event is a decoded realtime message. The concrete type identifies the variant.
type Event interface {
	Type() string
}

// SyncProgress reports progress of a running sync operation.
type SyncProgress struct {
	OperationID string `json:"operation_id"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Message     string `json:"message"`
}

func (SyncProgress) Type() string { return TypeSyncProgress }

// Percent returns completion in the range 0-100. Zero total reports 0.
func (p SyncProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Current * 100 / p.Total
}

// SyncComplete marks the end of a sync operation.
type SyncComplete struct {
	OperationID string `json:"operation_id"`
	Synced      int    `json:"synced"`
}

func (SyncComplete) Type() string { return TypeSyncComplete }

// CleanupProgress reports progress of a cleanup rule execution.
type CleanupProgress struct {
	RuleID       int64  `json:"rule_id"`
	Deleted      int    `json:"deleted"`
	Total        int    `json:"total"`
	CurrentTweet string `json:"current_tweet"`
}

func (CleanupProgress) Type() string { return TypeCleanupProgress }

// Percent returns completion in the range 0-100. Zero total reports 0.
func (p CleanupProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Deleted * 100 / p.Total
}

// CleanupComplete marks the end of a cleanup rule execution.
type CleanupComplete struct {
	RuleID  int64 `json:"rule_id"`
	Deleted int   `json:"deleted"`
}

func (CleanupComplete) Type() string { return TypeCleanupComplete }

// Unknown carries a well-formed frame whose type this build does not know.
type Unknown struct {
	MsgType string
	Payload json.RawMessage
}

func (u Unknown) Type() string { return u.MsgType }

// Wire types for JSON parsing

// envelope is the outer shape of every frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// operationWire detects presence of operation_id.
type operationWire struct {
	OperationID *string `json:"operation_id"`
}

// ruleWire detects presence of rule_id.
type ruleWire struct {
	RuleID *int64 `json:"rule_id"`
}
