package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

func (e *Extractor) extractPDF(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty pdf")
	}
	f, err := os.CreateTemp(e.cfg.TempDir, "cc-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("document.pdf.cleanup_failed", "path", path, "error", err)
		}
	}()
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", commandError("pdftotext", errb, err)
	}
	text := string(out)
	if !e.cfg.OCR || strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) != "" {
		return text, nil
	}

	e.logger.Info("document.pdf.ocr_fallback", "bytes", len(content))
	return e.pdfToOCR(ctx, path)
}

// pdfToOCR rasterizes each page and runs tesseract over it. Pages that fail
// OCR are skipped; the call fails only when no page produced text.
func (e *Extractor) pdfToOCR(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.TempDir, "cc-pp-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("document.pdf.cleanup_failed", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix); err != nil {
		return "", commandError("pdftoppm", errb, err)
	}

	// prefix-1.png, prefix-2.png, ...
	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if e.cfg.MaxPages > 0 && len(pages) > e.cfg.MaxPages {
		pages = pages[:e.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm rendered no pages")
	}

	var (
		b       strings.Builder
		lastErr error
	)
	for _, img := range pages {
		// tesseract <img> stdout -l eng
		out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, img, "stdout", "-l", e.cfg.TesseractLang)
		if err != nil {
			lastErr = commandError("tesseract", errb, err)
			e.logger.Warn("document.pdf.ocr_page_failed", "page", filepath.Base(img), "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.Write(out)
	}
	if b.Len() == 0 && lastErr != nil {
		return "", lastErr
	}
	return b.String(), nil
}

func commandError(name string, stderr []byte, err error) error {
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return fmt.Errorf("%s: %s: %w", name, msg, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}
