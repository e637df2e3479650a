package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jo-hoe/sagextract/internal/analyzer"
	"github.com/jo-hoe/sagextract/internal/analyzer/mock"
	"github.com/jo-hoe/sagextract/internal/analyzer/sage"
	"github.com/jo-hoe/sagextract/internal/common"
	appcfg "github.com/jo-hoe/sagextract/internal/config"
	"github.com/jo-hoe/sagextract/internal/ocr"
	"github.com/jo-hoe/sagextract/internal/pipeline"
	"github.com/jo-hoe/sagextract/internal/runs"
	"github.com/jo-hoe/sagextract/internal/source"
	"github.com/jo-hoe/sagextract/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sagextract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "usage: sagextract [flags] <image.jpg|image.png|document.pdf>\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file (default $"+common.EnvConfigPath+" or "+common.DefaultConfigFile+")")
	envFile := fs.String("env", common.DefaultEnvFile, "dotenv file loaded before the config")
	mode := fs.String("mode", "", "analysis mode: vision or ocr (overrides run.mode)")
	outDir := fs.String("out", "", "output directory (overrides output.dir)")
	provider := fs.String("provider", "", "analyzer provider: sage or mock (overrides analyzer.provider)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return common.ExitOK
		}
		return common.ExitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return common.ExitUsage
	}
	input := fs.Arg(0)
	if *mode != "" {
		*mode = strings.ToLower(strings.TrimSpace(*mode))
		if *mode != common.ModeVision && *mode != common.ModeOCR {
			_, _ = fmt.Fprintf(stderr, "invalid -mode %q: want %s or %s\n", *mode, common.ModeVision, common.ModeOCR)
			return common.ExitUsage
		}
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Load config
	if err := appcfg.LoadDotEnv(*envFile); err != nil {
		logger.Error("load env file", "err", err)
		return common.ExitFatal
	}
	cfg, err := appcfg.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		return common.ExitFatal
	}
	if *mode != "" {
		cfg.Run.Mode = *mode
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *provider != "" {
		cfg.Analyzer.Provider = strings.ToLower(strings.TrimSpace(*provider))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Run.LogLevel)); err == nil {
		logger = slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))
	}

	// Analyzer
	var client analyzer.Client
	switch cfg.Analyzer.Provider {
	case "sage":
		c, err := sage.New(cfg.Analyzer)
		if err != nil {
			logger.Error("init analyzer", "provider", cfg.Analyzer.Provider, "err", err)
			return common.ExitFatal
		}
		client = c
	case "mock":
		client = mock.New(cfg.Analyzer.Mock)
	default:
		logger.Error("unsupported analyzer provider", "provider", cfg.Analyzer.Provider)
		return common.ExitFatal
	}

	// OCR engine, only needed in ocr mode
	var extractor pipeline.Extractor
	if cfg.Run.Mode == common.ModeOCR {
		engine, err := ocr.NewEngine(cfg.OCR)
		if err != nil {
			logger.Error("init ocr engine", "engine", cfg.OCR.Engine, "err", err)
			return common.ExitFatal
		}
		extractor = ocr.NewAdapter(engine, cfg.OCR)
		logger.Debug("ocr engine ready", "engine", engine.Name(), "languages", cfg.OCR.Languages)
	}

	// Run ledger (SQLite), optional
	var store runs.Store = runs.NopStore{}
	if cfg.Run.LedgerPath != "" {
		s, err := runs.NewSQLiteStore(cfg.Run.LedgerPath)
		if err != nil {
			logger.Error("sqlite open", "path", cfg.Run.LedgerPath, "err", err)
			return common.ExitFatal
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	runner := pipeline.New(
		logger,
		cfg,
		source.NewReader(uint64(cfg.Run.MaxInputSize)),
		client,
		extractor,
		storage.NewWriter(cfg.Output.Dir),
		store,
	)

	start := time.Now()
	sum, err := runner.Run(ctx, input)
	logger.Info("total execution time", "duration", time.Since(start).Round(time.Millisecond))
	switch {
	case err == nil:
		logger.Info("results saved", "dir", cfg.Output.Dir, "files", len(sum.Files), "failed_items", len(sum.Failures))
		return common.ExitOK
	case errors.Is(err, source.ErrEmptyDocument):
		logger.Info("no images to analyze", "input", input)
		return common.ExitOK
	case errors.Is(err, analyzer.ErrAuthentication):
		logger.Error("remote analyzer rejected the token", "env", common.EnvAPIToken, "err", err)
		return common.ExitFatal
	default:
		logger.Error("run failed", "input", input, "err", err)
		return common.ExitFatal
	}
}
