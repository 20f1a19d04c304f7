package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/backend"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/entity"
	"github.com/joseph-ayodele/calendar-converter/internal/event"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
)

type fakeConverter struct {
	err     error
	text    string
	content []byte
	kind    string
	reqID   string
}

func (f *fakeConverter) artifact() ics.CalendarArtifact {
	return ics.CalendarArtifact{
		Content:  "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		UID:      "abc@calendar-converter",
		Filename: "event_20250115_100000.ics",
		Event: event.EventRecord{
			Type:    constants.Meeting,
			Summary: "Team meeting",
			Start:   event.Floating(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)),
		},
	}
}

func (f *fakeConverter) ConvertText(ctx context.Context, text string) (ics.CalendarArtifact, error) {
	f.text = text
	f.reqID = common.RequestIDFromContext(ctx)
	if f.err != nil {
		return ics.CalendarArtifact{}, f.err
	}
	return f.artifact(), nil
}

func (f *fakeConverter) ConvertDocument(ctx context.Context, content []byte, kind string) (ics.CalendarArtifact, error) {
	f.content, f.kind = content, kind
	f.reqID = common.RequestIDFromContext(ctx)
	if f.err != nil {
		return ics.CalendarArtifact{}, f.err
	}
	return f.artifact(), nil
}

type stubProber struct{ snap backend.Snapshot }

func (p stubProber) ProbeNow(context.Context) backend.Snapshot { return p.snap }

func newHTTP(conv Converter, history *HistoryHandler) http.Handler {
	return NewHTTPServer(conv, backend.NewAvailability(), stubProber{snap: backend.Snapshot{Preferred: "local"}}, history, 1024, nil).Handler()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestConvertTextJSON(t *testing.T) {
	conv := &fakeConverter{}
	h := newHTTP(conv, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/text", strings.NewReader(`{"text": "Team meeting tomorrow at 2pm"}`))
	req.Header.Set(requestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-7", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "req-7", conv.reqID)
	assert.Equal(t, "Team meeting tomorrow at 2pm", conv.text)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "event_20250115_100000.ics", body["filename"])
	assert.Equal(t, "abc@calendar-converter", body["uid"])
	assert.Contains(t, body["ics_content"], "BEGIN:VCALENDAR")
	ev := body["event"].(map[string]any)
	assert.Equal(t, "meeting", ev["eventType"])
	assert.Equal(t, "Team meeting", ev["summary"])
}

func TestConvertTextGeneratesRequestID(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()
	newHTTP(conv, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/convert/text", strings.NewReader(`{"text": "x"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, rec.Header().Get(requestIDHeader), conv.reqID)
}

func TestConvertTextBadBody(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"text": 5}`} {
		rec := httptest.NewRecorder()
		newHTTP(&fakeConverter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/convert/text", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid request", decodeError(t, rec).Error)
	}
}

func TestConvertTextErrorMapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		code  int
		title string
	}{
		{"parsing", common.NewParsingError("text is empty", nil), http.StatusBadRequest, "Failed to parse input"},
		{"too large", common.NewParsingError("text length 11 exceeds maximum of 10 characters", common.ErrInputTooLarge), http.StatusRequestEntityTooLarge, "Input too large"},
		{"llm", common.NewLLMError("backend local did not respond within 30s", nil), http.StatusBadGateway, "Failed to communicate with LLM server"},
		{"extraction", common.NewExtractionError("reply is missing required fields", "{}", []string{"summary"}, nil), http.StatusBadRequest, "Could not extract event information"},
		{"validation", common.NewValidationError("endDateTime", "2025-01-14T09:00:00", "end is before start"), http.StatusBadRequest, "Validation failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHTTP(&fakeConverter{err: tc.err}, nil).ServeHTTP(rec,
				httptest.NewRequest(http.MethodPost, "/api/v1/convert/text", strings.NewReader(`{"text": "x"}`)))
			assert.Equal(t, tc.code, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.title, body.Error)
			assert.NotContains(t, body.Details, "{}", "raw replies never leave the server")
		})
	}
}

func TestConvertTextDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTP(&fakeConverter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/convert/text", strings.NewReader(`{"text": "x"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="event_20250115_100000.ics"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", rec.Body.String())
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestConvertDocumentUpload(t *testing.T) {
	conv := &fakeConverter{}
	body, ct := multipartBody(t, "invite.PDF", "application/octet-stream", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/document", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHTTP(conv, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pdf", conv.kind)
	assert.Equal(t, []byte("%PDF-1.4"), conv.content)
}

func TestConvertDocumentKindFromContentType(t *testing.T) {
	conv := &fakeConverter{}
	body, ct := multipartBody(t, "notes", "text/plain", []byte("Lunch at noon"))
	req := httptest.NewRequest(http.MethodPost, "/convert/document", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHTTP(conv, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "txt", conv.kind)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestConvertDocumentTooLarge(t *testing.T) {
	body, ct := multipartBody(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 1024+formOverhead+1))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/document", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHTTP(&fakeConverter{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large", decodeError(t, rec).Error)
}

func TestConvertDocumentMissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/document", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	newHTTP(&fakeConverter{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentKind(t *testing.T) {
	assert.Equal(t, "docx", documentKind("agenda.DOCX", ""))
	assert.Equal(t, "png", documentKind("photo.png", "image/png"))
	assert.Equal(t, "pdf", documentKind("upload", "application/pdf"))
	assert.Equal(t, "txt", documentKind("", ""))
	assert.Equal(t, "image/png", documentKind("upload", "image/png"))
	assert.Equal(t, "txt", documentKind("notes.md", "text/plain; charset=utf-8"))
	assert.Equal(t, "md", documentKind("notes.md", "application/octet-stream"))
}

func TestHealthAndProbe(t *testing.T) {
	h := newHTTP(&fakeConverter{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backends/probe", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap backend.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "local", snap.Preferred)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/convert/text", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type historyRepo struct {
	rows []*entity.Conversion
	err  error
}

func (r *historyRepo) Insert(context.Context, *entity.Conversion) error { return nil }

func (r *historyRepo) ListRecent(_ context.Context, limit int) ([]*entity.Conversion, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.rows) > limit {
		return r.rows[:limit], nil
	}
	return r.rows, nil
}

type stubExporter struct {
	limit    int
	from, to *time.Time
}

func (e *stubExporter) ExportConversionsXLSX(_ context.Context, limit int, from, to *time.Time) ([]byte, error) {
	e.limit, e.from, e.to = limit, from, to
	return []byte("PK-xlsx"), nil
}

func TestHistoryList(t *testing.T) {
	repo := &historyRepo{rows: []*entity.Conversion{{RequestID: "a"}, {RequestID: "b"}}}
	h := newHTTP(&fakeConverter{}, NewHistoryHandler(repo, nil, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body conversionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Conversions, 1)
	assert.Equal(t, "a", body.Conversions[0].RequestID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions?limit=-3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions/export.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryListRepoError(t *testing.T) {
	h := newHTTP(&fakeConverter{}, NewHistoryHandler(&historyRepo{err: common.ErrDatabase}, nil, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryExport(t *testing.T) {
	exp := &stubExporter{}
	h := newHTTP(&fakeConverter{}, NewHistoryHandler(&historyRepo{}, exp, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions/export.xlsx?from=2025-01-01&limit=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	b, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "PK-xlsx", string(b))
	assert.Equal(t, maxHistoryLimit, exp.limit)
	require.NotNil(t, exp.from)
	assert.Equal(t, 2025, exp.from.Year())
	assert.Nil(t, exp.to)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions/export.xlsx?to=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRoutesAbsentWhenDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTP(&fakeConverter{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
