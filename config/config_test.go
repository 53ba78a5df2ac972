package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/extrait/extract"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extrait.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":8090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.JournalDB != "extrait.db" {
		t.Errorf("JournalDB = %q", cfg.JournalDB)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Tesseract != "tesseract" || cfg.Pandoc != "pandoc" {
		t.Errorf("binaries = %q / %q", cfg.Tesseract, cfg.Pandoc)
	}
	if cfg.MaxUploadMB != 128 {
		t.Errorf("MaxUploadMB = %d", cfg.MaxUploadMB)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Extraction.Language != "eng" || cfg.Extraction.PSM != "auto" || cfg.Extraction.MaxProcesses != 1 {
		t.Errorf("Extraction = %+v", cfg.Extraction)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
timeout: 5s
max_upload_mb: 64
extraction:
  language: fra
  psm: single_block
  max_processes: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.MaxUploadMB != 64 {
		t.Errorf("MaxUploadMB = %d", cfg.MaxUploadMB)
	}
	if cfg.Extraction.Language != "fra" || cfg.Extraction.MaxProcesses != 4 {
		t.Errorf("Extraction = %+v", cfg.Extraction)
	}
	// Fields the file omits still get defaults.
	if cfg.JournalDB != "extrait.db" {
		t.Errorf("JournalDB = %q", cfg.JournalDB)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
timeout: 5s
`)
	t.Setenv("EXTRAIT_ADDR", ":7777")
	t.Setenv("EXTRAIT_TIMEOUT", "90s")
	t.Setenv("EXTRAIT_LANGUAGE", "deu")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":7777" {
		t.Errorf("Addr = %q, want env value", cfg.Addr)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want env value", cfg.Timeout)
	}
	if cfg.Extraction.Language != "deu" {
		t.Errorf("Language = %q, want env value", cfg.Extraction.Language)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/extrait.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "addr: [not: closed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for bad YAML")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("EXTRAIT_TIMEOUT", "soon")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for bad EXTRAIT_TIMEOUT")
	}
}

func TestExtractConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Extraction.PSM = "single_block"
	cfg.Extraction.ForceOCR = true

	ec, err := cfg.ExtractConfig()
	if err != nil {
		t.Fatal(err)
	}
	if ec.PSM != extract.PSMSingleBlock {
		t.Errorf("PSM = %d", ec.PSM)
	}
	if !ec.ForceOCR || ec.Language != "eng" || ec.MaxProcesses != 1 {
		t.Errorf("config = %+v", ec)
	}
}

func TestExtractConfig_BadPSM(t *testing.T) {
	cfg, _ := Load("")
	cfg.Extraction.PSM = "sideways"
	if _, err := cfg.ExtractConfig(); err == nil {
		t.Fatal("expected error for unknown psm")
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := &Config{MaxUploadMB: 2}
	if got := cfg.MaxUploadBytes(); got != 2*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", got)
	}
}
