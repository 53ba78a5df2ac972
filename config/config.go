// CLAUDE:SUMMARY Defines extrait config structs and parses YAML configuration files with env overrides and defaults.
// Package config loads extrait service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/extrait/extract"
)

// Config holds the full service configuration.
type Config struct {
	Addr        string        `yaml:"addr"`
	JournalDB   string        `yaml:"journal_db"`
	Timeout     time.Duration `yaml:"timeout"` // envelope deadline per extraction
	Tesseract   string        `yaml:"tesseract"`
	Pandoc      string        `yaml:"pandoc"`
	MaxUploadMB int           `yaml:"max_upload_mb"`
	LogLevel    string        `yaml:"log_level"`
	Extraction  Extraction    `yaml:"extraction"`
}

// Extraction sets the default per-request options. Query parameters and
// tool arguments override these per request.
type Extraction struct {
	ForceOCR     bool   `yaml:"force_ocr"`
	Language     string `yaml:"language"`
	PSM          string `yaml:"psm"`
	MaxProcesses int    `yaml:"max_processes"`
}

// Load reads the YAML file at path, overlays environment variables, and
// applies defaults. An empty path starts from defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv overlays EXTRAIT_* environment variables onto c. Set variables
// override file values; unset variables leave c untouched.
func (c *Config) FromEnv() error {
	if v := os.Getenv("EXTRAIT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("EXTRAIT_JOURNAL_DB"); v != "" {
		c.JournalDB = v
	}
	if v := os.Getenv("EXTRAIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EXTRAIT_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("EXTRAIT_TESSERACT"); v != "" {
		c.Tesseract = v
	}
	if v := os.Getenv("EXTRAIT_PANDOC"); v != "" {
		c.Pandoc = v
	}
	if v := os.Getenv("EXTRAIT_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXTRAIT_MAX_UPLOAD_MB: %w", err)
		}
		c.MaxUploadMB = n
	}
	if v := os.Getenv("EXTRAIT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EXTRAIT_FORCE_OCR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXTRAIT_FORCE_OCR: %w", err)
		}
		c.Extraction.ForceOCR = b
	}
	if v := os.Getenv("EXTRAIT_LANGUAGE"); v != "" {
		c.Extraction.Language = v
	}
	if v := os.Getenv("EXTRAIT_PSM"); v != "" {
		c.Extraction.PSM = v
	}
	if v := os.Getenv("EXTRAIT_MAX_PROCESSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXTRAIT_MAX_PROCESSES: %w", err)
		}
		c.Extraction.MaxProcesses = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.JournalDB == "" {
		c.JournalDB = "extrait.db"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pandoc == "" {
		c.Pandoc = "pandoc"
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 128
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Extraction.Language == "" {
		c.Extraction.Language = "eng"
	}
	if c.Extraction.PSM == "" {
		c.Extraction.PSM = "auto"
	}
	if c.Extraction.MaxProcesses <= 0 {
		c.Extraction.MaxProcesses = 1
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// ExtractConfig converts the extraction defaults into an extract.Config.
func (c *Config) ExtractConfig() (extract.Config, error) {
	psm, err := extract.ParsePageSegMode(c.Extraction.PSM)
	if err != nil {
		return extract.Config{}, fmt.Errorf("config: psm: %w", err)
	}
	return extract.Config{
		ForceOCR:     c.Extraction.ForceOCR,
		Language:     c.Extraction.Language,
		MaxProcesses: c.Extraction.MaxProcesses,
		PSM:          psm,
	}, nil
}
