// Package app wires configuration into a ready-to-use converter.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/calendar-converter/internal/async"
	"github.com/joseph-ayodele/calendar-converter/internal/backend"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/document"
	"github.com/joseph-ayodele/calendar-converter/internal/export"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
	"github.com/joseph-ayodele/calendar-converter/internal/llm/openai"
	"github.com/joseph-ayodele/calendar-converter/internal/pipeline"
	repo "github.com/joseph-ayodele/calendar-converter/internal/repository"
)

type App struct {
	Converter *pipeline.Converter
	Avail     *backend.Availability
	Prober    *backend.Prober

	// Set only when history is enabled.
	DB      *repo.DB
	History repo.ConversionRepository
	Export  *export.Service

	audit  async.Recorder
	logger *slog.Logger
}

// New builds the pipeline from cfg. It opens the history database when
// cfg.History.DSN is set; the prober is built but not started.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{audit: async.NopRecorder{}, logger: logger}

	clients := openai.ClientsFromConfig(cfg.LLM, logger)
	backends := make([]backend.Backend, len(clients))
	for i, c := range clients {
		backends[i] = c
	}
	a.Avail = backend.NewAvailability(backends...)
	a.Prober = backend.NewProber(a.Avail, cfg.LLM.ProbeInterval, cfg.LLM.ProbeTimeout, logger)

	if cfg.History.DSN != "" {
		db, err := repo.Open(ctx, repo.Config{
			DSN:             cfg.History.DSN,
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.History = repo.NewConversionRepository(db, logger)
		a.Export = export.NewService(a.History, logger)
		a.audit = async.NewAuditQueue(a.History, logger,
			async.WithWorkers(cfg.History.Workers),
			async.WithQueueSize(cfg.History.QueueSize),
		)
	}

	docs := document.NewExtractor(document.Config{
		Pdftotext:     cfg.Document.Pdftotext,
		TempDir:       cfg.Document.TempDir,
		OCR:           cfg.Document.OCR,
		Pdftoppm:      cfg.Document.Pdftoppm,
		Tesseract:     cfg.Document.Tesseract,
		TesseractLang: cfg.Document.TesseractLang,
		DPI:           cfg.Document.OCRDPI,
		MaxPages:      cfg.Document.OCRMaxPages,
	}, logger)
	a.Converter = pipeline.NewConverter(pipeline.Config{
		MaxTextLength:    cfg.Limits.MaxTextLength,
		MaxDocumentBytes: cfg.Limits.MaxFileSizeBytes(),
		FallbackEnabled:  cfg.LLM.Fallback,
	}, a.Avail, docs, ics.NewSerializer(), a.audit, logger)
	return a, nil
}

// Close drains pending audit writes, then closes the database.
func (a *App) Close(ctx context.Context) {
	a.Prober.Stop()
	a.audit.Shutdown(ctx)
	if a.DB != nil {
		a.DB.Close(a.logger)
	}
}
