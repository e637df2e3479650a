package encode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestBase64_Deterministic(t *testing.T) {
	data := pngBytes(t)
	a := Base64(data)
	b := Base64(data)
	if a != b {
		t.Fatalf("encoding is not deterministic")
	}
	if Base64([]byte("hi")) != "aGk=" {
		t.Fatalf("unexpected encoding: %q", Base64([]byte("hi")))
	}
}

func TestBase64File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "img.png")
	data := pngBytes(t)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Base64File(p)
	if err != nil {
		t.Fatalf("Base64File: %v", err)
	}
	if got != Base64(data) {
		t.Fatalf("file encoding differs from byte encoding")
	}
	if _, err := Base64File(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDetectMIME(t *testing.T) {
	if got := DetectMIME(pngBytes(t)); got != "image/png" {
		t.Fatalf("png detected as %q", got)
	}
	if got := DetectMIME([]byte("plain text")); got != "image/jpeg" {
		t.Fatalf("fallback mime = %q", got)
	}
}

func TestDataURL(t *testing.T) {
	u := DataURL("image/jpeg", []byte("hi"))
	if u != "data:image/jpeg;base64,aGk=" {
		t.Fatalf("data url = %q", u)
	}
	sniffed := DataURL("", pngBytes(t))
	if !strings.HasPrefix(sniffed, "data:image/png;base64,") {
		t.Fatalf("sniffed data url prefix = %q", sniffed[:30])
	}
}
