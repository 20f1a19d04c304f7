package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/calendar-converter/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Limits   LimitsConfig   `yaml:"limits"`
	Document DocumentConfig `yaml:"document"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig describes one OpenAI-compatible extraction backend.
// Order in LLMConfig.Backends is priority order.
type BackendConfig struct {
	Name    string `yaml:"name"`
	APIBase string `yaml:"api_base"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Backends       []BackendConfig `yaml:"backends"`
	Temperature    float32         `yaml:"temperature"`
	Timeout        time.Duration   `yaml:"timeout"`
	Stream         bool            `yaml:"stream"`
	ResponseFormat string          `yaml:"response_format"`
	Fallback       bool            `yaml:"fallback"`
	ProbeInterval  time.Duration   `yaml:"probe_interval"`
	ProbeTimeout   time.Duration   `yaml:"probe_timeout"`
}

// LimitsConfig bounds the size of accepted input.
type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	MaxTextLength int `yaml:"max_text_length"`
}

func (l LimitsConfig) MaxFileSizeBytes() int64 {
	return int64(l.MaxFileSizeMB) * constants.MB
}

// DocumentConfig holds text-extraction tool settings.
type DocumentConfig struct {
	Pdftotext string `yaml:"pdftotext"`
	TempDir   string `yaml:"temp_dir"`

	// OCR is tried when a PDF has no text layer.
	OCR           bool   `yaml:"ocr"`
	Pdftoppm      string `yaml:"pdftoppm"`
	Tesseract     string `yaml:"tesseract"`
	TesseractLang string `yaml:"tesseract_lang"`
	OCRDPI        int    `yaml:"ocr_dpi"`
	OCRMaxPages   int    `yaml:"ocr_max_pages"`
}

// HistoryConfig configures the conversion audit log. Empty DSN disables it.
type HistoryConfig struct {
	DSN       string `yaml:"dsn"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the OpenTelemetry meter provider. An empty
// endpoint keeps metrics in-process only.
type MetricsConfig struct {
	ServiceName    string        `yaml:"service_name"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			GRPCAddr:     ":9090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		LLM: LLMConfig{
			Backends: []BackendConfig{{
				Name:    "local",
				APIBase: "http://host.docker.internal:1234/v1",
				Model:   "ibm/granite-4-h-tiny",
				APIKey:  "not-needed",
			}},
			Temperature:   0,
			Timeout:       30 * time.Second,
			Fallback:      true,
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Limits: LimitsConfig{
			MaxFileSizeMB: 10,
			MaxTextLength: 50000,
		},
		Document: DocumentConfig{
			Pdftotext:     "pdftotext",
			Pdftoppm:      "pdftoppm",
			Tesseract:     "tesseract",
			TesseractLang: "eng",
			OCRDPI:        300,
		},
		History: HistoryConfig{
			Workers:   2,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			ServiceName:    "calendar-converter",
			ExportInterval: 30 * time.Second,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides and validates. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, NewAppError(CodeConfig, "parse config "+path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the file without editing it.
// LLM_* targets the primary backend, LLM_FALLBACK_* the secondary one.
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	if len(c.LLM.Backends) == 0 {
		c.LLM.Backends = append(c.LLM.Backends, BackendConfig{Name: "local"})
	}
	primary := &c.LLM.Backends[0]
	primary.APIBase = getEnv("LLM_API_BASE", primary.APIBase)
	primary.Model = getEnv("LLM_MODEL", primary.Model)
	primary.APIKey = getEnv("LLM_API_KEY", primary.APIKey)

	if base := os.Getenv("LLM_FALLBACK_API_BASE"); base != "" {
		if len(c.LLM.Backends) < 2 {
			c.LLM.Backends = append(c.LLM.Backends, BackendConfig{Name: "remote", Model: primary.Model})
		}
		fb := &c.LLM.Backends[1]
		fb.APIBase = base
		fb.Model = getEnv("LLM_FALLBACK_MODEL", fb.Model)
		fb.APIKey = getEnv("LLM_FALLBACK_API_KEY", fb.APIKey)
	}

	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.Fallback = getEnvAsBool("LLM_FALLBACK", c.LLM.Fallback)
	c.LLM.ProbeInterval = getEnvAsDuration("LLM_PROBE_INTERVAL", c.LLM.ProbeInterval)

	c.Limits.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", c.Limits.MaxFileSizeMB)
	c.Limits.MaxTextLength = getEnvAsInt("MAX_TEXT_LENGTH", c.Limits.MaxTextLength)
	c.Document.Pdftotext = getEnv("PDFTOTEXT", c.Document.Pdftotext)
	c.Document.OCR = getEnvAsBool("DOCUMENT_OCR", c.Document.OCR)
	c.History.DSN = getEnv("HISTORY_DSN", c.History.DSN)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Metrics.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Metrics.OTLPEndpoint)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("server.host", c.Server.Host, Required).
		Field("server.port", c.Server.Port, Positive).
		Field("llm.timeout", c.LLM.Timeout, Positive).
		Field("llm.probe_interval", c.LLM.ProbeInterval, Positive).
		Field("llm.probe_timeout", c.LLM.ProbeTimeout, Positive).
		Field("limits.max_file_size_mb", c.Limits.MaxFileSizeMB, Positive).
		Field("limits.max_text_length", c.Limits.MaxTextLength, Positive).
		Field("logging.level", c.Logging.Level, OneOf("debug", "info", "warn", "error")).
		Field("logging.format", c.Logging.Format, OneOf("text", "json"))

	if len(c.LLM.Backends) == 0 {
		v.Field("llm.backends", nil, Required)
	}
	seen := map[string]bool{}
	for i, b := range c.LLM.Backends {
		prefix := fmt.Sprintf("llm.backends[%d].", i)
		v.Field(prefix+"name", b.Name, Required).
			Field(prefix+"api_base", b.APIBase, HTTPURL).
			Field(prefix+"model", b.Model, Required)
		if seen[b.Name] {
			v.Field(prefix+"name", b.Name, func(f string, val interface{}) *FieldError {
				return &FieldError{Field: f, Value: val, Message: "must be unique"}
			})
		}
		seen[b.Name] = true
	}
	if rf := strings.TrimSpace(c.LLM.ResponseFormat); rf != "" {
		v.Field("llm.response_format", rf, OneOf("json_object", "text"))
	}
	return v.Error()
}
