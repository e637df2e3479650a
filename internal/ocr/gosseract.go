//go:build gosseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/jo-hoe/sagextract/internal/config"
)

var _ Engine = (*GosseractEngine)(nil)

// GosseractEngine runs libtesseract in-process through gosseract.
type GosseractEngine struct {
	clientFactory func() *gosseract.Client
	languages     []string
	psm           int
}

// NewGosseractEngine constructs a libtesseract-backed engine.
func NewGosseractEngine(cfg config.OCRConfig) (Engine, error) {
	return &GosseractEngine{
		clientFactory: gosseract.NewClient,
		languages:     cfg.Languages,
		psm:           cfg.PageSegMode,
	}, nil
}

func (e *GosseractEngine) Name() string { return "gosseract" }

// Recognize returns word-level boxes. A fresh client is used per image.
func (e *GosseractEngine) Recognize(ctx context.Context, img image.Image) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.psm)); err != nil {
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
			Confidence: b.Confidence,
		})
	}
	return words, nil
}
