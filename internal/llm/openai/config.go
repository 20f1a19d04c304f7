package openai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
)

// Config for one OpenAI-compatible backend (OpenAI, LM Studio, vLLM, ...).
type Config struct {
	Name           string        // backend name used in logs, metrics and health
	APIKey         string        // sent as Bearer token; local servers ignore it
	BaseURL        string        // e.g. http://localhost:1234/v1
	Model          string        // e.g. "ibm/granite-4-h-tiny"
	Temperature    float32       // 0..2
	Timeout        time.Duration // hard bound per exchange
	Stream         bool          // ask for SSE and drain it
	ResponseFormat string        // "", "text" or "json_object"

	MeterProvider metric.MeterProvider // nil -> otel global provider
}

type Client struct {
	cfg     Config
	http    *http.Client
	metrics *clientMetrics
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Name)
	m, err := newClientMetrics(cfg.MeterProvider)
	if err != nil {
		logger.Warn("llm.metrics.init_failed", "error", err)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		logger:  logger,
	}
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// ClientsFromConfig builds one client per configured backend, in priority order.
func ClientsFromConfig(cfg common.LLMConfig, logger *slog.Logger) []*Client {
	out := make([]*Client, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		out = append(out, NewClient(Config{
			Name:           b.Name,
			APIKey:         b.APIKey,
			BaseURL:        b.APIBase,
			Model:          b.Model,
			Temperature:    cfg.Temperature,
			Timeout:        cfg.Timeout,
			Stream:         cfg.Stream,
			ResponseFormat: cfg.ResponseFormat,
		}, logger))
	}
	return out
}
