package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/calendar-converter/constants"
)

// ConvertDirectory walks root and converts each supported document into an
// .ics file named after the source. A failed file is recorded and the walk
// continues; only a canceled ctx or an unreadable root stops it.
func (d *DirectoryConverter) ConvertDirectory(ctx context.Context, root string) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if _, err := os.Stat(root); err != nil {
		return nil, DirStats{}, fmt.Errorf("stat root: %w", err)
	}
	if d.opts.OutDir != "" {
		if err := os.MkdirAll(d.opts.OutDir, 0o755); err != nil {
			return nil, DirStats{}, fmt.Errorf("create out dir: %w", err)
		}
	}

	start := time.Now()
	var (
		results []FileResult
		stats   DirStats
		claimed = map[string]bool{}
	)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if d.opts.SkipHidden && path != root && IsHidden(path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !Supported(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res := d.convertFile(ctx, path, claimed)
		switch {
		case res.Err != "":
			stats.Failed++
		case res.Skipped:
			stats.Skipped++
		default:
			stats.Succeeded++
		}
		results = append(results, res)
		return nil
	})

	d.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func (d *DirectoryConverter) convertFile(ctx context.Context, path string, claimed map[string]bool) FileResult {
	res := FileResult{SourcePath: path, OutputPath: d.outputPath(path, claimed)}

	if !d.opts.Overwrite {
		if _, err := os.Stat(res.OutputPath); err == nil {
			res.Skipped = true
			return res
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	sum := sha256.Sum256(content)
	res.HashHex = hex.EncodeToString(sum[:])

	art, err := d.conv.ConvertDocument(ctx, content, filepath.Ext(path))
	if err != nil {
		d.logger.Warn("ingest.file.failed", "path", path, "error", err)
		res.Err = err.Error()
		return res
	}
	if err := os.WriteFile(res.OutputPath, []byte(art.Content), 0o644); err != nil {
		res.Err = err.Error()
		return res
	}
	res.UID = art.UID
	d.logger.Debug("ingest.file.ok", "path", path, "out", res.OutputPath, "uid", art.UID)
	return res
}

// outputPath names the .ics after the source. When a sibling document shares
// the stem ("a.pdf", "a.txt") the source kind is added ("a_pdf.ics"); a name
// already claimed in this run gets a numeric suffix.
func (d *DirectoryConverter) outputPath(src string, claimed map[string]bool) string {
	dir := filepath.Dir(src)
	if d.opts.OutDir != "" {
		dir = d.opts.OutDir
	}
	ext := filepath.Ext(src)
	name := strings.TrimSuffix(filepath.Base(src), ext)
	if hasSibling(src) {
		name += "_" + constants.NormalizeExt(ext)
	}

	out := filepath.Join(dir, name+".ics")
	for i := 2; claimed[out]; i++ {
		out = filepath.Join(dir, fmt.Sprintf("%s_%d.ics", name, i))
	}
	claimed[out] = true
	return out
}

// hasSibling reports whether another supported document in src's directory
// has the same stem.
func hasSibling(src string) bool {
	entries, err := os.ReadDir(filepath.Dir(src))
	if err != nil {
		return false
	}
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || n == base {
			continue
		}
		ext := filepath.Ext(n)
		if strings.TrimSuffix(n, ext) == stem && Supported(ext) {
			return true
		}
	}
	return false
}
