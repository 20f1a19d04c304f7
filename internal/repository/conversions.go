package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/entity"
)

// Fixed-width so text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000Z"

type ConversionRepository interface {
	Insert(ctx context.Context, c *entity.Conversion) error
	ListRecent(ctx context.Context, limit int) ([]*entity.Conversion, error)
}

type conversionRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewConversionRepository(db *DB, logger *slog.Logger) ConversionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &conversionRepo{db: db, logger: logger}
}

const insertConversion = `
	INSERT INTO conversions (
		id, request_id, source, input_bytes, backend, model, prompt_version,
		fell_back, status, error_code, event_type, uid, started_at, finished_at, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *conversionRepo) Insert(ctx context.Context, c *entity.Conversion) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	var finished *string
	if c.FinishedAt != nil {
		s := c.FinishedAt.UTC().Format(tsLayout)
		finished = &s
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(insertConversion),
		c.ID.String(),
		c.RequestID,
		c.Source,
		c.InputBytes,
		c.Backend,
		c.Model,
		c.PromptVersion,
		c.FellBack,
		c.Status,
		c.ErrorCode,
		c.EventType,
		c.UID,
		c.StartedAt.UTC().Format(tsLayout),
		finished,
		c.DurationMs,
	)
	if err != nil {
		r.logger.Error("conversion insert failed", "conversion_id", c.ID, "error", err)
		return fmt.Errorf("%w: insert conversion: %v", common.ErrDatabase, err)
	}
	r.logger.Debug("conversion recorded", "conversion_id", c.ID, "status", c.Status)
	return nil
}

const listConversions = `
	SELECT id, request_id, source, input_bytes, backend, model, prompt_version,
		fell_back, status, error_code, event_type, uid, started_at, finished_at, duration_ms
	FROM conversions
	ORDER BY started_at DESC
	LIMIT ?`

// ListRecent returns at most limit rows, newest first.
func (r *conversionRepo) ListRecent(ctx context.Context, limit int) ([]*entity.Conversion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(listConversions), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversions: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list conversions: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func scanConversion(rows *sql.Rows) (*entity.Conversion, error) {
	var (
		c        entity.Conversion
		id       string
		started  string
		finished sql.NullString
		backend  sql.NullString
		model    sql.NullString
		errCode  sql.NullString
		evType   sql.NullString
		uid      sql.NullString
	)
	if err := rows.Scan(&id, &c.RequestID, &c.Source, &c.InputBytes, &backend, &model, &c.PromptVersion,
		&c.FellBack, &c.Status, &errCode, &evType, &uid, &started, &finished, &c.DurationMs); err != nil {
		return nil, fmt.Errorf("%w: scan conversion: %v", common.ErrDatabase, err)
	}

	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad conversion id %q", common.ErrDatabase, id)
	}
	if c.StartedAt, err = time.Parse(tsLayout, started); err != nil {
		return nil, fmt.Errorf("%w: bad started_at %q", common.ErrDatabase, started)
	}
	if finished.Valid {
		t, err := time.Parse(tsLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("%w: bad finished_at %q", common.ErrDatabase, finished.String)
		}
		c.FinishedAt = &t
	}
	c.Backend = nullable(backend)
	c.Model = nullable(model)
	c.ErrorCode = nullable(errCode)
	c.EventType = nullable(evType)
	c.UID = nullable(uid)
	return &c, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
