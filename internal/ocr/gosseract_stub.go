//go:build !gosseract

package ocr

import (
	"fmt"

	"github.com/jo-hoe/sagextract/internal/config"
)

// NewGosseractEngine reports ErrEngineUnavailable; rebuild with -tags gosseract
// (requires libtesseract) to enable the in-process engine.
func NewGosseractEngine(cfg config.OCRConfig) (Engine, error) {
	return nil, fmt.Errorf("gosseract: %w (rebuild with -tags gosseract)", ErrEngineUnavailable)
}
