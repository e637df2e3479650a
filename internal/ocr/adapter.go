package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/sagextract/internal/config"
)

// Record is a recognised word with its box in source image pixels.
// Box is (x1, y1, x2, y2) with x2 >= x1 and y2 >= y1.
type Record struct {
	Text string `json:"text"`
	Box  [4]int `json:"bounding_box"`
}

// Adapter decodes images, runs an Engine and filters its output into Records.
type Adapter struct {
	engine       Engine
	maxDimension int
	grayscale    bool
}

// NewAdapter wraps engine with the preprocessing options from cfg.
func NewAdapter(engine Engine, cfg config.OCRConfig) *Adapter {
	return &Adapter{
		engine:       engine,
		maxDimension: cfg.MaxDimension,
		grayscale:    cfg.Grayscale,
	}
}

// EngineName reports which engine the adapter drives.
func (a *Adapter) EngineName() string { return a.engine.Name() }

// Extract runs recognition on img and returns the filtered records in engine order.
func (a *Adapter) Extract(ctx context.Context, img image.Image) ([]Record, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	words, err := a.engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s recognize: %w", a.engine.Name(), err)
	}
	return Filter(words), nil
}

// ExtractBytes decodes data, applies preprocessing and extracts records.
// Boxes are mapped back to the coordinates of the decoded, unscaled image.
func (a *Adapter) ExtractBytes(ctx context.Context, data []byte) ([]Record, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	prepared, scale := a.preprocess(img)
	records, err := a.Extract(ctx, prepared)
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		for i := range records {
			for j := range records[i].Box {
				records[i].Box[j] = int(math.Round(float64(records[i].Box[j]) * scale))
			}
		}
	}
	return records, nil
}

// Decode decodes JPEG, PNG, GIF, TIFF or BMP data honouring EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// preprocess returns the image handed to the engine and the factor that maps
// its coordinates back to the original image.
func (a *Adapter) preprocess(img image.Image) (image.Image, float64) {
	scale := 1.0
	if a.maxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > a.maxDimension || b.Dy() > a.maxDimension {
			resized := imaging.Fit(img, a.maxDimension, a.maxDimension, imaging.Lanczos)
			if w := resized.Bounds().Dx(); w > 0 {
				scale = float64(b.Dx()) / float64(w)
			}
			img = resized
		}
	}
	if a.grayscale {
		img = imaging.Grayscale(img)
	}
	return img, scale
}

// Filter keeps words whose trimmed text is non-empty and whose confidence is
// positive, converting them to Records without reordering.
func Filter(words []Word) []Record {
	out := make([]Record, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" || w.Confidence <= 0 {
			continue
		}
		width, height := max(w.Width, 0), max(w.Height, 0)
		out = append(out, Record{
			Text: text,
			Box:  [4]int{w.Left, w.Top, w.Left + width, w.Top + height},
		})
	}
	return out
}

// JoinText concatenates record texts separated by single spaces.
func JoinText(records []Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, " ")
}
