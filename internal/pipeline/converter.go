// Package pipeline runs one conversion end to end: normalize, prompt,
// extract, parse, serialize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/async"
	"github.com/joseph-ayodele/calendar-converter/internal/backend"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/document"
	"github.com/joseph-ayodele/calendar-converter/internal/entity"
	"github.com/joseph-ayodele/calendar-converter/internal/event"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

// Normalizer turns a document into plain text.
type Normalizer interface {
	Normalize(ctx context.Context, content []byte, kind string) (string, error)
}

// Config holds the limits and policy consumed by the Converter.
type Config struct {
	MaxTextLength    int   // runes; <= 0 disables the check
	MaxDocumentBytes int64 // <= 0 disables the check
	FallbackEnabled  bool
}

type Converter struct {
	cfg        Config
	avail      *backend.Availability
	docs       Normalizer
	serializer *ics.Serializer
	audit      async.Recorder
	logger     *slog.Logger
}

func NewConverter(
	cfg Config,
	avail *backend.Availability,
	docs Normalizer,
	serializer *ics.Serializer,
	audit async.Recorder,
	logger *slog.Logger,
) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if serializer == nil {
		serializer = ics.NewSerializer()
	}
	if audit == nil {
		audit = async.NopRecorder{}
	}
	return &Converter{
		cfg:        cfg,
		avail:      avail,
		docs:       docs,
		serializer: serializer,
		audit:      audit,
		logger:     logger,
	}
}

// ConvertText converts pasted text. The text is used as-is.
func (c *Converter) ConvertText(ctx context.Context, text string) (ics.CalendarArtifact, error) {
	ctx, run := c.begin(ctx, constants.SourceText, len(text))

	if strings.TrimSpace(text) == "" {
		return run.fail(common.NewParsingError("text is empty; provide text containing event information", nil))
	}
	if n := utf8.RuneCountInString(text); c.cfg.MaxTextLength > 0 && n > c.cfg.MaxTextLength {
		return run.fail(common.NewParsingError(
			fmt.Sprintf("text length %d exceeds maximum of %d characters", n, c.cfg.MaxTextLength),
			common.ErrInputTooLarge))
	}

	return c.convert(ctx, run, llm.BuildPrompt(document.NormalizeText(text)))
}

// ConvertDocument extracts text from content according to kind, then converts it.
func (c *Converter) ConvertDocument(ctx context.Context, content []byte, kind string) (ics.CalendarArtifact, error) {
	source := kind
	if k, ok := constants.ParseDocumentKind(kind); ok {
		source = string(k)
	}
	ctx, run := c.begin(ctx, source, len(content))

	if c.cfg.MaxDocumentBytes > 0 && int64(len(content)) > c.cfg.MaxDocumentBytes {
		return run.fail(common.NewParsingError(
			fmt.Sprintf("document size %d bytes exceeds maximum of %d bytes", len(content), c.cfg.MaxDocumentBytes),
			common.ErrInputTooLarge))
	}
	if c.docs == nil {
		return run.fail(common.NewParsingError("document input is not configured", nil))
	}

	text, err := c.docs.Normalize(ctx, content, kind)
	if err != nil {
		return run.fail(asKind(err, common.CodeParsing, "failed to read document"))
	}
	return c.convert(ctx, run, llm.BuildPrompt(text))
}

func (c *Converter) convert(ctx context.Context, run *conversion, prompt llm.Prompt) (ics.CalendarArtifact, error) {
	raw, err := c.extract(ctx, run, prompt)
	if err != nil {
		return run.fail(err)
	}

	rec, err := event.ParseReply(raw)
	if err != nil {
		if ae, ok := common.AsAppError(err); ok && ae.Code == common.CodeExtraction {
			c.logger.Warn("pipeline.reply.unusable",
				"req_id", run.row.RequestID,
				"missing", ae.Missing,
				"reply_len", len(ae.Raw),
			)
		}
		return run.fail(err)
	}

	art, err := c.serializer.Serialize(rec)
	if err != nil {
		return run.fail(asKind(err, common.CodeValidation, "failed to serialize event"))
	}
	return run.succeed(art)
}

// extract commits to the selection read at the start of the request. A
// failed exchange with the preferred backend is followed by at most one
// exchange with the alternate.
func (c *Converter) extract(ctx context.Context, run *conversion, prompt llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.NewLLMError("request canceled", err)
	}
	if c.avail == nil {
		return "", common.NewLLMError("no extraction backend configured", nil)
	}
	sel := c.avail.Select()
	if sel.Preferred == nil {
		return "", common.NewLLMError("no extraction backend configured", nil)
	}

	raw, err := c.exchange(ctx, run, sel.Preferred, prompt)
	if err == nil || !errors.Is(err, common.ErrLLM) {
		return raw, err
	}
	if !c.cfg.FallbackEnabled || sel.Alternate == nil || ctx.Err() != nil {
		return "", err
	}

	c.logger.Warn("pipeline.backend.fallback",
		"req_id", run.row.RequestID,
		"from", sel.Preferred.Name(),
		"to", sel.Alternate.Name(),
		"error", err,
	)
	run.row.FellBack = true
	return c.exchange(ctx, run, sel.Alternate, prompt)
}

func (c *Converter) exchange(ctx context.Context, run *conversion, b backend.Backend, prompt llm.Prompt) (string, error) {
	req := b.NewRequest(prompt)
	name, model := req.Backend, req.Model
	run.row.Backend = &name
	run.row.Model = &model

	raw, err := b.Complete(common.WithBackend(ctx, name), req)
	if err != nil {
		return "", asKind(err, common.CodeLLM, "extraction backend failed")
	}
	return raw, nil
}

// asKind keeps taxonomy errors as they are and wraps anything else in code.
func asKind(err error, code, msg string) error {
	if common.IsConversionError(err) {
		return err
	}
	return common.NewAppError(code, msg, err)
}

// conversion tracks one run for logging and the audit log.
type conversion struct {
	c     *Converter
	ctx   context.Context
	start time.Time
	row   entity.Conversion
}

func (c *Converter) begin(ctx context.Context, source string, size int) (context.Context, *conversion) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.NewString()
		ctx = common.WithRequestID(ctx, rid)
	}
	now := time.Now()
	run := &conversion{
		c:     c,
		ctx:   ctx,
		start: now,
		row: entity.Conversion{
			ID:            uuid.New(),
			RequestID:     rid,
			Source:        source,
			InputBytes:    size,
			PromptVersion: llm.PromptVersion,
			Status:        string(constants.ConversionRunning),
			StartedAt:     now.UTC(),
		},
	}
	c.logger.Info("pipeline.convert.start", "req_id", rid, "source", source, "bytes", size)
	return ctx, run
}

func (r *conversion) finish(status constants.ConversionStatus) {
	now := time.Now()
	r.row.Status = string(status)
	r.row.FinishedAt = &now
	r.row.DurationMs = now.Sub(r.start).Milliseconds()
	r.c.audit.Record(r.ctx, r.row)
}

func (r *conversion) fail(err error) (ics.CalendarArtifact, error) {
	code := common.CodeLLM
	if ae, ok := common.AsAppError(err); ok {
		code = ae.Code
	}
	r.row.ErrorCode = &code
	r.finish(constants.ConversionFailed)
	r.c.logger.Error("pipeline.convert.failed",
		"req_id", r.row.RequestID,
		"source", r.row.Source,
		"code", code,
		"error", err,
		"elapsed_ms", r.row.DurationMs,
	)
	return ics.CalendarArtifact{}, err
}

func (r *conversion) succeed(art ics.CalendarArtifact) (ics.CalendarArtifact, error) {
	et, uid := string(art.Event.Type), art.UID
	r.row.EventType = &et
	r.row.UID = &uid
	r.finish(constants.ConversionSucceeded)
	r.c.logger.Info("pipeline.convert.ok",
		"req_id", r.row.RequestID,
		"source", r.row.Source,
		"event_type", et,
		"uid", uid,
		"fell_back", r.row.FellBack,
		"elapsed_ms", r.row.DurationMs,
	)
	return art, nil
}
