package queue

import (
	"encoding/json"
	"time"

	"github.com/jrsteele09/granjas-console/farm"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// PendingWrite is a write attempted while offline, waiting to be replayed.
// Its ID doubles as the idempotency key sent with every replay attempt.
type PendingWrite struct {
	ID           string          `json:"id"`
	ResourceType farm.Kind       `json:"resource_type"`
	Op           Op              `json:"op"`
	TargetID     int             `json:"target_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Attempts     int             `json:"attempts,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// Write describes a write to enqueue. Payload is marshalled to JSON.
type Write struct {
	ResourceType farm.Kind
	Op           Op
	TargetID     int
	Payload      any
}

// ReplayReport summarises one replay pass. Failed is empty when nothing failed.
type ReplayReport struct {
	Succeeded []string `json:"succeeded"`
	Failed    string   `json:"failed,omitempty"`
	Remaining int      `json:"remaining"`
	Err       error    `json:"-"`
}
