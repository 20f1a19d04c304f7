package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// NewRequest builds the immutable request for one exchange with this backend.
func (c *Client) NewRequest(p llm.Prompt) llm.ExtractionRequest {
	return llm.ExtractionRequest{
		Backend:  c.cfg.Name,
		Endpoint: c.cfg.BaseURL + "/chat/completions",
		Model:    c.cfg.Model,
		Prompt:   p,
		Timeout:  c.cfg.Timeout,
		Stream:   c.cfg.Stream,
	}
}

// Complete performs exactly one chat/completions exchange and returns the
// generated text. Every failure is an LLM_ERROR; nothing is retried here.
func (c *Client) Complete(ctx context.Context, req llm.ExtractionRequest) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	// Requests built by hand may leave Backend empty; the pipeline tags ctx.
	backend := req.Backend
	if backend == "" {
		backend = common.BackendFromContext(ctx)
	}
	if backend == "" {
		backend = c.cfg.Name
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"route", backend,
		"model", req.Model,
		"prompt_version", req.Prompt.Version,
		"text_len", len(req.Prompt.User),
		"stream", req.Stream,
		"timeout_ms", timeout.Milliseconds(),
	)

	body := map[string]any{
		"model":       req.Model,
		"temperature": c.cfg.Temperature,
		"stream":      req.Stream,
		"messages": []map[string]any{
			{"role": "system", "content": req.Prompt.System},
			{"role": "user", "content": req.Prompt.User},
		},
	}
	if c.cfg.ResponseFormat != "" {
		body["response_format"] = map[string]any{"type": c.cfg.ResponseFormat}
	}

	content, outcome, err := c.exchange(ctx, req, body)
	elapsed := time.Since(start)
	c.metrics.recordRequest(ctx, backend, req.Model, outcome, elapsed)
	if err != nil {
		c.logger.Error("llm.complete.failed",
			"req_id", rid,
			"outcome", outcome,
			"error", err,
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return "", err
	}

	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"reply_len", len(content),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return content, nil
}

func (c *Client) exchange(ctx context.Context, req llm.ExtractionRequest, body map[string]any) (string, string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", outcomeMalformed, common.NewLLMError("encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", outcomeMalformed, common.NewLLMError("build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", c.classify(ctx, err), c.transportError(ctx, req, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("llm.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", outcomeStatus, common.NewLLMError(
			fmt.Sprintf("backend %s returned status %d", req.Backend, resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		)
	}

	var content string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		content, err = readStream(resp.Body)
	} else {
		content, err = readEnvelope(resp.Body)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", c.classify(ctx, err), c.transportError(ctx, req, err)
		}
		return "", outcomeMalformed, common.NewLLMError(
			fmt.Sprintf("backend %s sent an unreadable response", req.Backend), err)
	}
	return content, outcomeOK, nil
}

func (c *Client) classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), isTimeout(err):
		return outcomeTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return outcomeCanceled
	}
	return outcomeUnreachable
}

func (c *Client) transportError(ctx context.Context, req llm.ExtractionRequest, err error) error {
	switch c.classify(ctx, err) {
	case outcomeTimeout:
		return common.NewLLMError(
			fmt.Sprintf("backend %s did not respond within %s", req.Backend, req.Timeout), err)
	case outcomeCanceled:
		return common.NewLLMError("request canceled", err)
	}
	return common.NewLLMError(fmt.Sprintf("backend %s is unreachable", req.Backend), err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func readEnvelope(r io.Reader) (string, error) {
	var cc chatCompletion
	if err := json.NewDecoder(r).Decode(&cc); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if cc.Error != nil {
		return "", fmt.Errorf("backend error: %s", cc.Error.Message)
	}
	if len(cc.Choices) == 0 || cc.Choices[0].Message.Content == nil {
		return "", errors.New("no choices in chat completion")
	}
	return *cc.Choices[0].Message.Content, nil
}

// readStream drains a server-sent-event body to the end and concatenates the
// delta contents of the first choice.
func readStream(r io.Reader) (string, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	done := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if done || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			done = true
			continue
		}
		var chunk chatCompletion
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("backend error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) > 0 {
			b.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return b.String(), nil
}

// Ping checks reachability with GET {base}/models. Callers bound ctx.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.recordProbe(ctx, c.cfg.Name, false)
		return fmt.Errorf("probe %s: %w", c.cfg.Name, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.recordProbe(ctx, c.cfg.Name, false)
		return fmt.Errorf("probe %s: status %d", c.cfg.Name, resp.StatusCode)
	}
	c.metrics.recordProbe(ctx, c.cfg.Name, true)
	return nil
}
