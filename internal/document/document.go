// Package document turns uploaded documents and pasted text into the plain
// text handed to the prompt builder.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	TempDir   string // scratch space for pdftotext input; empty -> os.TempDir()

	// OCR fallback for scanned PDFs whose text layer is empty.
	OCR           bool
	Pdftoppm      string // if empty -> "pdftoppm"
	Tesseract     string // if empty -> "tesseract"
	TesseractLang string // default "eng"
	DPI           int    // default 300
	MaxPages      int    // 0 = no limit
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; used by tests.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	cp := *e
	cp.runner = r
	return &cp
}

// NormalizeText is the identity transform: pasted text reaches the prompt
// exactly as the user typed it.
func NormalizeText(text string) string {
	return text
}

// Normalize extracts text from content according to kind, which may be an
// extension or a MIME type. Every failure is a PARSING_ERROR.
func (e *Extractor) Normalize(ctx context.Context, content []byte, kind string) (string, error) {
	start := time.Now()
	k, ok := constants.ParseDocumentKind(kind)
	if !ok {
		e.logger.Warn("document.extract.unsupported_kind", "kind", kind)
		return "", common.NewParsingError(
			fmt.Sprintf("unsupported document kind %q (supported: %s)", kind,
				strings.Join(constants.DocumentKindsAsStrings(), ", ")), nil)
	}

	var (
		text string
		err  error
	)
	switch k {
	case constants.PDF:
		text, err = e.extractPDF(ctx, content)
	case constants.DOCX:
		text, err = extractDOCX(content)
	case constants.XLSX:
		text, err = extractXLSX(content)
	case constants.TXT:
		text, err = extractTXT(content)
	}
	if err != nil {
		e.logger.Error("document.extract.failed", "kind", k, "bytes", len(content), "error", err)
		return "", common.NewParsingError(fmt.Sprintf("failed to read %s document", k), err)
	}

	text = Clean(text)
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("document.extract.empty", "kind", k, "bytes", len(content))
		return "", common.NewParsingError(fmt.Sprintf("%s document contains no text", k), nil)
	}

	e.logger.Info("document.extract.ok",
		"kind", k,
		"bytes", len(content),
		"chars", len([]rune(text)),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
