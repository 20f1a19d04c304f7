package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*Config)) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := Config{
		Name:    "local",
		APIKey:  "secret",
		BaseURL: srv.URL + "/v1/",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, nil), &calls
}

func TestNewRequest(t *testing.T) {
	c := NewClient(Config{Name: "remote", BaseURL: "http://example.test/v1/", Model: "m", Timeout: 5 * time.Second, Stream: true}, nil)
	req := c.NewRequest(llm.BuildPrompt("Dinner at 7pm"))

	assert.Equal(t, "remote", req.Backend)
	assert.Equal(t, "http://example.test/v1/chat/completions", req.Endpoint)
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 5*time.Second, req.Timeout)
	assert.True(t, req.Stream)
	assert.Equal(t, llm.PromptVersion, req.Prompt.Version)
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	var got map[string]any
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"Team meeting\"}"}}]}`)
	}, func(cfg *Config) { cfg.ResponseFormat = "json_object" })

	out, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("Team meeting tomorrow")))
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"Team meeting"}`, out)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Contains(t, msgs[1].(map[string]any)["content"], "Team meeting tomorrow")
}

func TestCompleteDrainsStream(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{`{\"summary\":`, `\"Hotel: The Standard\"`, `}`} {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", part)
		}
		_, _ = fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}, func(cfg *Config) { cfg.Stream = true })

	out, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("hotel")))
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"Hotel: The Standard"}`, out)
}

func TestCompleteNon2xxIsLLMError(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}, nil)

	_, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLLM))
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestCompleteTimeoutMakesOneAttempt(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	_, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLLM))
	assert.Contains(t, err.Error(), "did not respond")
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestCompleteCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, c.NewRequest(llm.BuildPrompt("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLLM))
	assert.Contains(t, err.Error(), "canceled")
}

func TestCompleteMalformedEnvelope(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `<html>oops</html>`,
		"no choices": `{"choices":[]}`,
		"api error":  `{"error":{"message":"context length exceeded"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, body)
			}, nil)

			_, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("x")))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrLLM))
		})
	}
}

func TestCompleteUnreachable(t *testing.T) {
	c := NewClient(Config{Name: "gone", BaseURL: "http://127.0.0.1:1/v1", Model: "m", Timeout: time.Second}, nil)

	_, err := c.Complete(context.Background(), c.NewRequest(llm.BuildPrompt("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLLM))
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, `{"data":[]}`)
	}, nil)
	assert.NoError(t, c.Ping(context.Background()))

	down, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)
	assert.Error(t, down.Ping(context.Background()))
}

func TestClientsFromConfig(t *testing.T) {
	clients := ClientsFromConfig(common.LLMConfig{
		Backends: []common.BackendConfig{
			{Name: "local", APIBase: "http://localhost:1234/v1/", Model: "ibm/granite-4-h-tiny"},
			{Name: "remote", APIBase: "https://api.example.test/v1", Model: "gpt-4o-mini", APIKey: "k"},
		},
		Timeout: 10 * time.Second,
	}, nil)
	require.Len(t, clients, 2)
	assert.Equal(t, "local", clients[0].Name())
	assert.Equal(t, "http://localhost:1234/v1", clients[0].BaseURL())
	assert.Equal(t, "remote", clients[1].Name())
	assert.Equal(t, "gpt-4o-mini", clients[1].Model())
}
