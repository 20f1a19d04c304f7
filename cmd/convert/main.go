package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joseph-ayodele/calendar-converter/internal/app"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
	"github.com/joseph-ayodele/calendar-converter/internal/ingest"
)

type options struct {
	configPath string
	text       string
	kind       string
	out        string
	dir        string
	overwrite  bool
	probe      bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", getenv("CONFIG_PATH", "config.yaml"), "path to YAML config")
	flag.StringVar(&o.text, "text", "", "event text to convert instead of a file")
	flag.StringVar(&o.kind, "kind", "", "document kind (pdf, docx, xlsx, txt); defaults to the file extension")
	flag.StringVar(&o.out, "out", "", `output path; "-" writes to stdout; with -dir, the output directory`)
	flag.StringVar(&o.dir, "dir", "", "convert every supported document under this directory")
	flag.BoolVar(&o.overwrite, "overwrite", false, "with -dir, re-convert files whose .ics already exists")
	flag.BoolVar(&o.probe, "probe", true, "probe backends before converting")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: convert [flags] <file>\n       convert [flags] -text \"Lunch with Ana Friday at noon\"\n       convert [flags] -dir ./inbox\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	modes := 0
	if o.text != "" {
		modes++
	}
	if o.dir != "" {
		modes++
	}
	if flag.NArg() > 0 {
		modes++
	}
	if modes != 1 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(o))
}

func run(o options) int {
	cfg, err := common.LoadConfig(o.configPath)
	if err != nil {
		slog.Error("failed to load config", "path", o.configPath, "error", err)
		return 2
	}
	logger := common.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if o.dir != "" {
		ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	} else {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.LLM.Timeout*3)
	}
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close(context.Background())

	if o.probe {
		a.Prober.ProbeNow(ctx)
	}

	if o.dir != "" {
		d := ingest.NewDirectoryConverter(a.Converter, ingest.Options{
			OutDir:     o.out,
			SkipHidden: true,
			Overwrite:  o.overwrite,
		}, logger)
		results, stats, err := d.ConvertDirectory(ctx, o.dir)
		if err != nil {
			logger.Error("directory conversion failed", "error", err)
			return 1
		}
		for _, r := range results {
			if r.Err != "" {
				fmt.Fprintf(os.Stderr, "FAIL %s: %s\n", r.SourcePath, r.Err)
			}
		}
		if stats.Failed > 0 {
			return 1
		}
		return 0
	}

	var art ics.CalendarArtifact
	if o.text != "" {
		art, err = a.Converter.ConvertText(ctx, o.text)
	} else {
		path := flag.Arg(0)
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			logger.Error("failed to read input", "path", path, "error", rerr)
			return 1
		}
		kind := o.kind
		if kind == "" {
			kind = filepath.Ext(path)
		}
		art, err = a.Converter.ConvertDocument(ctx, content, kind)
	}
	if err != nil {
		code := "UNKNOWN"
		if ae, ok := common.AsAppError(err); ok {
			code = ae.Code
		}
		logger.Error("conversion failed", "code", code, "error", err)
		return 1
	}

	if err := write(o.out, art); err != nil {
		logger.Error("failed to write output", "error", err)
		return 1
	}
	return 0
}

func write(out string, art ics.CalendarArtifact) error {
	if out == "-" {
		_, err := os.Stdout.WriteString(art.Content)
		return err
	}
	if out == "" {
		out = art.Filename
	}
	start := time.Now()
	if err := os.WriteFile(out, []byte(art.Content), 0o644); err != nil {
		return err
	}
	slog.Info("convert.written",
		"path", out,
		"uid", art.UID,
		"summary", art.Event.Summary,
		"start", art.Event.Start.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
