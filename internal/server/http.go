package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/backend"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/event"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
)

// Converter is the pipeline as seen by the transports.
type Converter interface {
	ConvertText(ctx context.Context, text string) (ics.CalendarArtifact, error)
	ConvertDocument(ctx context.Context, content []byte, kind string) (ics.CalendarArtifact, error)
}

// Prober exposes backend reachability.
type Prober interface {
	ProbeNow(ctx context.Context) backend.Snapshot
}

const requestIDHeader = "X-Request-ID"

// multipart framing allowance on top of the file limit
const formOverhead = 64 << 10

type HTTPServer struct {
	conv         Converter
	avail        *backend.Availability
	prober       Prober
	history      *HistoryHandler
	maxFileBytes int64
	logger       *slog.Logger
}

func NewHTTPServer(conv Converter, avail *backend.Availability, prober Prober, history *HistoryHandler, maxFileBytes int64, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		conv:         conv,
		avail:        avail,
		prober:       prober,
		history:      history,
		maxFileBytes: maxFileBytes,
		logger:       logger,
	}
}

// Handler returns the routed handler wrapped in the request-id middleware.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/convert/text", s.convertText(false))
	mux.HandleFunc("POST /api/v1/convert/document", s.convertDocument(false))
	mux.HandleFunc("POST /convert/text", s.convertText(true))
	mux.HandleFunc("POST /convert/document", s.convertDocument(true))
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /api/v1/backends/probe", s.probe)
	if s.history != nil {
		mux.HandleFunc("GET /api/v1/conversions", s.history.List)
		mux.HandleFunc("GET /api/v1/conversions/export.xlsx", s.history.Export)
	}
	return s.withRequestID(mux)
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), rid)))
		s.logger.Debug("http.request",
			"req_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type textRequest struct {
	Text *string `json:"text"`
}

type conversionResponse struct {
	ICSContent string            `json:"ics_content"`
	Filename   string            `json:"filename"`
	UID        string            `json:"uid"`
	Event      event.EventRecord `json:"event"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (s *HTTPServer) convertText(download bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil || req.Text == nil {
			writeError(w, http.StatusBadRequest, "Invalid request", `body must be a JSON object with a "text" string`)
			return
		}
		art, err := s.conv.ConvertText(r.Context(), *req.Text)
		if err != nil {
			s.writeConversionError(w, r, err)
			return
		}
		s.writeArtifact(w, art, download)
	}
}

func (s *HTTPServer) convertDocument(download bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.maxFileBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxFileBytes+formOverhead)
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large",
					fmt.Sprintf("file exceeds maximum allowed size of %d bytes", s.maxFileBytes))
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid request", `multipart form must include a "file" field`)
			return
		}
		defer func() { _ = file.Close() }()

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "could not read uploaded file")
			return
		}

		kind := documentKind(hdr.Filename, hdr.Header.Get("Content-Type"))
		art, err := s.conv.ConvertDocument(r.Context(), content, kind)
		if err != nil {
			s.writeConversionError(w, r, err)
			return
		}
		s.writeArtifact(w, art, download)
	}
}

// documentKind prefers a supported file extension, then the part's
// Content-Type. Unrecognized values pass through so the normalizer can
// reject them.
func documentKind(filename, contentType string) string {
	ext := filepath.Ext(filename)
	if ext != "" {
		if k, ok := constants.ParseDocumentKind(ext); ok {
			return string(k)
		}
	}
	if k, ok := constants.ParseDocumentKind(contentType); ok {
		return string(k)
	}
	if ext != "" {
		return constants.NormalizeExt(ext)
	}
	if contentType == "" {
		return string(constants.TXT)
	}
	return contentType
}

func (s *HTTPServer) writeArtifact(w http.ResponseWriter, art ics.CalendarArtifact, download bool) {
	if download {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, art.Content)
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{
		ICSContent: art.Content,
		Filename:   art.Filename,
		UID:        art.UID,
		Event:      art.Event,
	})
}

// writeConversionError maps the taxonomy onto a status and a short message.
// Full detail is already logged by the pipeline.
func (s *HTTPServer) writeConversionError(w http.ResponseWriter, r *http.Request, err error) {
	code, title, details := httpError(err)
	s.logger.Warn("http.convert.failed",
		"req_id", common.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", code,
	)
	writeError(w, code, title, details)
}

func httpError(err error) (int, string, string) {
	ae, ok := common.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError, "Internal server error", "An unexpected error occurred during conversion"
	}
	switch {
	case errors.Is(err, common.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge, "Input too large", ae.Message
	case ae.Code == common.CodeParsing:
		return http.StatusBadRequest, "Failed to parse input", ae.Message
	case ae.Code == common.CodeLLM:
		return http.StatusBadGateway, "Failed to communicate with LLM server", "Please check your connection and try again"
	case ae.Code == common.CodeExtraction:
		return http.StatusBadRequest, "Could not extract event information", "Please ensure your text includes event name and date"
	case ae.Code == common.CodeValidation:
		details := ae.Message
		if ae.Field != "" {
			details = fmt.Sprintf("%s: %s", ae.Field, ae.Message)
		}
		return http.StatusBadRequest, "Validation failed", details
	}
	return http.StatusInternalServerError, "Internal server error", "An unexpected error occurred during conversion"
}

type healthResponse struct {
	Status   string           `json:"status"`
	Backends backend.Snapshot `json:"backends"`
}

func (s *HTTPServer) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.avail != nil {
		resp.Backends = s.avail.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) probe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "Probing disabled", "no backend prober configured")
		return
	}
	writeJSON(w, http.StatusOK, s.prober.ProbeNow(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, title, details string) {
	writeJSON(w, code, errorResponse{Error: title, Details: details})
}
