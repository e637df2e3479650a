package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseByteSize("bad"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("API_TOKEN", "")
	t.Setenv("TESSERACT_CMD", "")
	t.Setenv("OUT_DIR", filepath.Join(dir, "out"))

	yaml := `
run:
  mode: "OCR"
  logLevel: "debug"
  maxInputSize: 1Mi

analyzer:
  provider: "mock"
  token: "from-file"
  timeout: 5s
  retries: 2
  mock:
    delay: 0s
    prefix: "prefix"

ocr:
  languages: ["eng", "deu"]
  maxDimension: 1500

output:
  dir: "${OUT_DIR}"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Run.Mode != "ocr" {
		t.Fatalf("mode should be lower-cased, got %q", cfg.Run.Mode)
	}
	if uint64(cfg.Run.MaxInputSize) != 1024*1024 {
		t.Fatalf("maxInputSize not parsed: %d", cfg.Run.MaxInputSize)
	}
	if cfg.Analyzer.Provider != "mock" || cfg.Analyzer.Mock.Prefix != "prefix" {
		t.Fatalf("analyzer config mismatch: %+v", cfg.Analyzer)
	}
	if cfg.Analyzer.Token != "from-file" {
		t.Fatalf("token = %q", cfg.Analyzer.Token)
	}
	if cfg.Analyzer.Timeout != 5*time.Second || cfg.Analyzer.Retries != 2 {
		t.Fatalf("timeout/retries not parsed")
	}
	// Defaults
	if cfg.Analyzer.Endpoint == "" || cfg.Analyzer.Model != "gpt-4o-mini" {
		t.Fatalf("analyzer defaults missing: %+v", cfg.Analyzer)
	}
	if cfg.OCR.Command != "tesseract" || cfg.OCR.PageSegMode != 3 {
		t.Fatalf("ocr defaults missing: %+v", cfg.OCR)
	}
	if len(cfg.OCR.Languages) != 2 || cfg.OCR.MaxDimension != 1500 {
		t.Fatalf("ocr settings mismatch: %+v", cfg.OCR)
	}
	if cfg.Output.Dir != filepath.Join(dir, "out") {
		t.Fatalf("env expansion for output dir failed: %q", cfg.Output.Dir)
	}
	if cfg.Output.ResultFile != "result.json" || cfg.Output.CombinedFile != "combined_results.json" {
		t.Fatalf("output file defaults mismatch: %+v", cfg.Output)
	}
}

func TestLoad_EnvOverridesTokenAndCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("analyzer:\n  token: file\n"), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	t.Setenv("API_TOKEN", "env-token")
	t.Setenv("TESSERACT_CMD", "/opt/tesseract/bin/tesseract")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analyzer.Token != "env-token" {
		t.Fatalf("API_TOKEN should override token, got %q", cfg.Analyzer.Token)
	}
	if cfg.OCR.Command != "/opt/tesseract/bin/tesseract" {
		t.Fatalf("TESSERACT_CMD should override command, got %q", cfg.OCR.Command)
	}
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SAGEXTRACT_CONFIG", "")
	t.Setenv("API_TOKEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Run.Mode != "vision" || cfg.Analyzer.Provider != "sage" {
		t.Fatalf("unexpected defaults: %+v", cfg.Run)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("run:\n  mode: telepathy\n"), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "run.mode") {
		t.Fatalf("expected run.mode validation error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SAGEXTRACT_TEST_A=fromfile\nSAGEXTRACT_TEST_B=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SAGEXTRACT_TEST_B", "preset")
	// Registers cleanup so the variable loaded from the file does not leak.
	t.Setenv("SAGEXTRACT_TEST_A", "")
	if err := os.Unsetenv("SAGEXTRACT_TEST_A"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SAGEXTRACT_TEST_A"); got != "fromfile" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("SAGEXTRACT_TEST_B"); got != "preset" {
		t.Fatalf("existing variable overridden: %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
