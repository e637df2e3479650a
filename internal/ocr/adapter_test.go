package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jo-hoe/sagextract/internal/config"
)

type fakeEngine struct {
	words []Word
	err   error
	seen  image.Rectangle
	gray  bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) ([]Word, error) {
	f.seen = img.Bounds()
	f.gray = isGray(img)
	if f.err != nil {
		return nil, f.err
	}
	return f.words, nil
}

func isGray(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return false
			}
		}
	}
	return true
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{B: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestFilter_DropsEmptyAndNonPositiveConfidence(t *testing.T) {
	words := []Word{
		{Text: "", Left: 0, Top: 0, Width: 100, Height: 100, Confidence: -1},
		{Text: "Hello", Left: 10, Top: 20, Width: 30, Height: 40, Confidence: 91.5},
		{Text: "   ", Left: 1, Top: 1, Width: 1, Height: 1, Confidence: 80},
		{Text: "zero", Left: 1, Top: 1, Width: 1, Height: 1, Confidence: 0},
		{Text: " World ", Left: 50, Top: 20, Width: 25, Height: 40, Confidence: 12},
	}
	got := Filter(words)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(got), got)
	}
	if got[0].Text != "Hello" || got[0].Box != [4]int{10, 20, 40, 60} {
		t.Fatalf("first record mismatch: %+v", got[0])
	}
	if got[1].Text != "World" || got[1].Box != [4]int{50, 20, 75, 60} {
		t.Fatalf("second record mismatch: %+v", got[1])
	}
}

func TestFilter_BoxInvariantHolds(t *testing.T) {
	words := []Word{
		{Text: "a", Left: 5, Top: 5, Width: -3, Height: -1, Confidence: 50},
		{Text: "b", Left: 0, Top: 0, Width: 0, Height: 0, Confidence: 50},
		{Text: "c", Left: 7, Top: 9, Width: 2, Height: 3, Confidence: 50},
	}
	for _, r := range Filter(words) {
		if r.Box[2] < r.Box[0] || r.Box[3] < r.Box[1] {
			t.Fatalf("invalid box for %q: %v", r.Text, r.Box)
		}
		if r.Text == "" {
			t.Fatalf("empty text retained")
		}
	}
}

func TestJoinText(t *testing.T) {
	got := JoinText([]Record{{Text: "Hello"}, {Text: "World"}})
	if got != "Hello World" {
		t.Fatalf("JoinText = %q", got)
	}
	if JoinText(nil) != "" {
		t.Fatalf("JoinText(nil) should be empty")
	}
}

func TestAdapter_ExtractBytes(t *testing.T) {
	eng := &fakeEngine{words: []Word{{Text: "Hi", Left: 1, Top: 2, Width: 3, Height: 4, Confidence: 90}}}
	a := NewAdapter(eng, config.OCRConfig{})

	recs, err := a.ExtractBytes(context.Background(), pngImage(t, 20, 10))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if eng.seen.Dx() != 20 || eng.seen.Dy() != 10 {
		t.Fatalf("engine saw %v", eng.seen)
	}
	if len(recs) != 1 || recs[0].Box != [4]int{1, 2, 4, 6} {
		t.Fatalf("records mismatch: %+v", recs)
	}
}

func TestAdapter_ExtractBytes_ScalesBoxesBack(t *testing.T) {
	eng := &fakeEngine{words: []Word{{Text: "Hi", Left: 10, Top: 5, Width: 20, Height: 10, Confidence: 90}}}
	a := NewAdapter(eng, config.OCRConfig{MaxDimension: 100, Grayscale: true})

	recs, err := a.ExtractBytes(context.Background(), pngImage(t, 200, 100))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if eng.seen.Dx() != 100 || eng.seen.Dy() != 50 {
		t.Fatalf("image not resized for engine: %v", eng.seen)
	}
	if !eng.gray {
		t.Fatalf("expected grayscale image")
	}
	if recs[0].Box != [4]int{20, 10, 60, 30} {
		t.Fatalf("box not mapped back to source pixels: %v", recs[0].Box)
	}
}

func TestAdapter_Errors(t *testing.T) {
	a := NewAdapter(&fakeEngine{err: errors.New("boom")}, config.OCRConfig{})
	if _, err := a.ExtractBytes(context.Background(), []byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := a.ExtractBytes(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, err := a.ExtractBytes(context.Background(), pngImage(t, 4, 4)); err == nil {
		t.Fatalf("expected engine error to propagate")
	}
	if _, err := a.Extract(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil image")
	}
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(config.OCRConfig{Engine: "Tesseract", Command: "/usr/bin/tesseract"})
	if err != nil || e.Name() != "tesseract" {
		t.Fatalf("tesseract engine: %v %v", e, err)
	}
	if _, err := NewEngine(config.OCRConfig{Engine: "magic"}); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}
