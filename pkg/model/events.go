package model

import (
	"time"

	"github.com/google/uuid"
)

// Login event types.
const (
	EventLoginSucceeded = "vault.login.succeeded"
	EventLoginFailed    = "vault.login.failed"
)

// LoginEvent describes one login attempt. It never carries the token secret.
type LoginEvent struct {
	ID           uuid.UUID `json:"id"`
	EventType    string    `json:"event_type"`
	Service      string    `json:"service"`
	Method       string    `json:"method"`
	TokenKind    string    `json:"token_kind,omitempty"`
	LeaseSeconds int64     `json:"lease_seconds,omitempty"`
	Error        string    `json:"error,omitempty"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
