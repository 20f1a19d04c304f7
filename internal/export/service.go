package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/calendar-converter/internal/entity"
	"github.com/joseph-ayodele/calendar-converter/internal/repository"
)

const sheet = "Conversions"

// Service produces XLSX workbooks from the conversion history.
type Service struct {
	repo   repository.ConversionRepository
	logger *slog.Logger
}

func NewService(repo repository.ConversionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportConversionsXLSX returns a workbook of at most limit recent conversions,
// newest first. from and to are inclusive calendar days in UTC; either may be nil.
func (s *Service) ExportConversionsXLSX(ctx context.Context, limit int, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	rows, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	rows = within(rows, from, to)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Started (UTC)",
		"Request ID",
		"Source",
		"Input Bytes",
		"Backend",
		"Model",
		"Fell Back",
		"Status",
		"Error Code",
		"Event Type",
		"UID",
		"Duration (ms)",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, c := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, c.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, c.RequestID)
		write(3, c.Source)
		write(4, c.InputBytes)
		write(5, str(c.Backend))
		write(6, str(c.Model))
		write(7, c.FellBack)
		write(8, c.Status)
		write(9, str(c.ErrorCode))
		write(10, str(c.EventType))
		write(11, str(c.UID))
		write(12, c.DurationMs)
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // started
	_ = f.SetColWidth(sheet, "B", "B", 38) // request id
	_ = f.SetColWidth(sheet, "C", "D", 12)
	_ = f.SetColWidth(sheet, "E", "F", 24)
	_ = f.SetColWidth(sheet, "G", "J", 14)
	_ = f.SetColWidth(sheet, "K", "K", 56) // uid
	_ = f.SetColWidth(sheet, "L", "L", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func within(rows []*entity.Conversion, from, to *time.Time) []*entity.Conversion {
	if from == nil && to == nil {
		return rows
	}
	var lo, hi time.Time
	if from != nil {
		lo = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	}
	if to != nil {
		hi = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	out := rows[:0:0]
	for _, c := range rows {
		t := c.StartedAt.UTC()
		if from != nil && t.Before(lo) {
			continue
		}
		if to != nil && !t.Before(hi) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
