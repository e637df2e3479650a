package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/jo-hoe/sagextract/internal/config"
)

// ErrEngineUnavailable is returned when the configured engine was not compiled in.
var ErrEngineUnavailable = errors.New("ocr engine not available in this build")

// Word is one recognition unit as reported by an engine, before filtering.
type Word struct {
	Text       string
	Left       int
	Top        int
	Width      int
	Height     int
	Confidence float64 // engine scale, 0..100; negative for non-word rows
}

// Engine runs text recognition over a decoded image.
// Words are returned in the engine's reading order.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]Word, error)
}

// NewEngine builds the engine selected in cfg.
func NewEngine(cfg config.OCRConfig) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", "tesseract":
		return NewTesseractEngine(cfg), nil
	case "gosseract":
		return NewGosseractEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported ocr engine %q", cfg.Engine)
	}
}
