package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/calendar-converter/internal/entity"
	"github.com/joseph-ayodele/calendar-converter/internal/repository"
)

// Exporter renders conversion history as a workbook.
type Exporter interface {
	ExportConversionsXLSX(ctx context.Context, limit int, from, to *time.Time) ([]byte, error)
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// HistoryHandler serves the conversion audit log.
type HistoryHandler struct {
	repo     repository.ConversionRepository
	exporter Exporter
	logger   *slog.Logger
}

func NewHistoryHandler(repo repository.ConversionRepository, exporter Exporter, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{repo: repo, exporter: exporter, logger: logger}
}

type conversionsResponse struct {
	Conversions []*entity.Conversion `json:"conversions"`
}

// List handles GET /api/v1/conversions?limit=N.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	rows, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("history.list.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "could not read conversion history")
		return
	}
	if rows == nil {
		rows = []*entity.Conversion{}
	}
	writeJSON(w, http.StatusOK, conversionsResponse{Conversions: rows})
}

// Export handles GET /api/v1/conversions/export.xlsx?limit=N&from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotFound, "Not found", "export is not configured")
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	xlsx, err := h.exporter.ExportConversionsXLSX(r.Context(), limit, from, to)
	if err != nil {
		h.logger.Error("export.xlsx.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "could not export conversion history")
		return
	}
	name := fmt.Sprintf("conversions_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

func parseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxHistoryLimit), nil
}

func parseDate(name, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}
