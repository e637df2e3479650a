package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/sagextract/internal/common"
)

// Config is the root configuration loaded from YAML and the environment.
type Config struct {
	Run      RunConfig      `yaml:"run"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	OCR      OCRConfig      `yaml:"ocr"`
	Output   OutputConfig   `yaml:"output"`
}

// RunConfig holds settings that apply to a whole pipeline run.
type RunConfig struct {
	Mode         string   `yaml:"mode"`         // vision|ocr
	LogLevel     string   `yaml:"logLevel"`     // debug|info|warn|error
	LedgerPath   string   `yaml:"ledgerPath"`   // optional sqlite run history
	MaxInputSize ByteSize `yaml:"maxInputSize"` // optional upper bound for the input file
}

// AnalyzerConfig selects the remote analyzer and its options.
type AnalyzerConfig struct {
	Provider     string        `yaml:"provider"` // "sage" or "mock"
	Endpoint     string        `yaml:"endpoint"` // full chat completions URL
	Token        string        `yaml:"token"`    // bearer token; API_TOKEN overrides
	Model        string        `yaml:"model"`
	Prompt       string        `yaml:"prompt"` // extraction prompt for image requests
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`      // extra attempts after the first
	RetryBackoff time.Duration `yaml:"retryBackoff"` // base backoff, multiplied by attempt
	MinInterval  time.Duration `yaml:"minInterval"`  // optional pacing between requests
	Temperature  float32       `yaml:"temperature"`  // optional
	MaxTokens    int           `yaml:"maxTokens"`    // optional
	Mock         MockSettings  `yaml:"mock"`
}

// MockSettings config for the offline analyzer.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// OCRConfig configures the local OCR engine.
type OCRConfig struct {
	Engine       string        `yaml:"engine"`  // "tesseract" or "gosseract"
	Command      string        `yaml:"command"` // tesseract executable; TESSERACT_CMD overrides
	Languages    []string      `yaml:"languages"`
	PageSegMode  int           `yaml:"pageSegMode"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxDimension int           `yaml:"maxDimension"` // 0 keeps the original size
	Grayscale    bool          `yaml:"grayscale"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	ResultFile   string `yaml:"resultFile"`   // single image mode
	CombinedFile string `yaml:"combinedFile"` // pdf mode aggregate
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = common.DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads YAML config from path, expands environment variables, applies env overrides and validates it.
// If path is empty, it will attempt to read from env var SAGEXTRACT_CONFIG, then default to "config.yaml".
// Only an explicitly named file has to exist; otherwise defaults are used.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv(common.EnvConfigPath); env != "" {
			path = env
			explicit = true
		} else {
			path = common.DefaultConfigFile
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file or env input.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(common.EnvAPIToken)); v != "" {
		cfg.Analyzer.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(common.EnvTesseractCmd)); v != "" {
		cfg.OCR.Command = v
	}
}

func applyDefaults(cfg *Config) {
	// Run defaults
	if strings.TrimSpace(cfg.Run.Mode) == "" {
		cfg.Run.Mode = common.ModeVision
	}
	cfg.Run.Mode = strings.ToLower(strings.TrimSpace(cfg.Run.Mode))
	if strings.TrimSpace(cfg.Run.LogLevel) == "" {
		cfg.Run.LogLevel = "info"
	}

	// Analyzer defaults
	if cfg.Analyzer.Provider == "" {
		cfg.Analyzer.Provider = "sage"
	}
	if strings.TrimSpace(cfg.Analyzer.Endpoint) == "" {
		cfg.Analyzer.Endpoint = common.DefaultEndpoint
	}
	if strings.TrimSpace(cfg.Analyzer.Model) == "" {
		cfg.Analyzer.Model = common.DefaultModel
	}
	if strings.TrimSpace(cfg.Analyzer.Prompt) == "" {
		cfg.Analyzer.Prompt = common.DefaultPrompt
	}
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = 60 * time.Second
	}
	if cfg.Analyzer.RetryBackoff == 0 {
		cfg.Analyzer.RetryBackoff = 2 * time.Second
	}
	if cfg.Analyzer.Mock.Prefix == "" {
		cfg.Analyzer.Mock.Prefix = "Analyzed by Mock"
	}

	// OCR defaults
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "tesseract"
	}
	if strings.TrimSpace(cfg.OCR.Command) == "" {
		cfg.OCR.Command = "tesseract"
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = []string{"eng"}
	}
	if cfg.OCR.PageSegMode == 0 {
		cfg.OCR.PageSegMode = 3
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 2 * time.Minute
	}

	// Output defaults
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		cfg.Output.Dir = common.DefaultOutputDir
	}
	if strings.TrimSpace(cfg.Output.ResultFile) == "" {
		cfg.Output.ResultFile = common.DefaultResultFile
	}
	if strings.TrimSpace(cfg.Output.CombinedFile) == "" {
		cfg.Output.CombinedFile = common.DefaultCombinedFile
	}
}

func validate(cfg *Config) error {
	switch cfg.Run.Mode {
	case common.ModeVision, common.ModeOCR:
	default:
		return fmt.Errorf("run.mode must be %q or %q, got %q", common.ModeVision, common.ModeOCR, cfg.Run.Mode)
	}
	switch strings.ToLower(cfg.Run.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("run.logLevel %q is not supported", cfg.Run.LogLevel)
	}
	if cfg.Analyzer.Retries < 0 {
		return errors.New("analyzer.retries must not be negative")
	}
	if cfg.Analyzer.Timeout < 0 || cfg.Analyzer.MinInterval < 0 {
		return errors.New("analyzer durations must not be negative")
	}
	if cfg.OCR.MaxDimension < 0 {
		return errors.New("ocr.maxDimension must not be negative")
	}
	if filepath.Base(cfg.Output.ResultFile) != cfg.Output.ResultFile {
		return fmt.Errorf("output.resultFile must be a file name, got %q", cfg.Output.ResultFile)
	}
	if filepath.Base(cfg.Output.CombinedFile) != cfg.Output.CombinedFile {
		return fmt.Errorf("output.combinedFile must be a file name, got %q", cfg.Output.CombinedFile)
	}
	return nil
}
