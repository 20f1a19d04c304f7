package llm

import (
	"context"
	"time"
)

// PromptVersion identifies the instruction template. Bump it whenever the
// wording, field list or examples change.
const PromptVersion = "event-extract/v1"

// Prompt is the rendered instruction pair sent to a backend.
type Prompt struct {
	Version string
	System  string
	User    string
}

// ExtractionRequest is built fresh for every exchange and passed by value;
// nothing holds on to it after Complete returns.
type ExtractionRequest struct {
	Backend  string
	Endpoint string // full chat/completions URL
	Model    string
	Prompt   Prompt
	Timeout  time.Duration
	Stream   bool
}

// Completer is one extraction backend: a single request/response exchange
// returning the backend's raw textual reply.
type Completer interface {
	Name() string
	NewRequest(p Prompt) ExtractionRequest
	Complete(ctx context.Context, req ExtractionRequest) (string, error)
}
