package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversion is one audit-log row. It holds metadata only; event content
// and input text are never stored.
type Conversion struct {
	ID            uuid.UUID  `json:"id"`
	RequestID     string     `json:"request_id"`
	Source        string     `json:"source"` // "text" or a document kind
	InputBytes    int        `json:"input_bytes"`
	Backend       *string    `json:"backend,omitempty"`
	Model         *string    `json:"model,omitempty"`
	PromptVersion string     `json:"prompt_version"`
	FellBack      bool       `json:"fell_back"`
	Status        string     `json:"status"`
	ErrorCode     *string    `json:"error_code,omitempty"`
	EventType     *string    `json:"event_type,omitempty"`
	UID           *string    `json:"uid,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	DurationMs    int64      `json:"duration_ms"`
}
