// Package source classifies an input file and enumerates the images it contains.
package source

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/sagextract/internal/common"
)

var (
	// ErrUnsupportedFormat is returned for inputs that are neither a supported image nor a PDF.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyDocument reports a PDF without embedded images.
	ErrEmptyDocument = errors.New("document contains no images")
)

// Kind classifies an input file.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

var imageMimes = map[string]string{
	".jpg":  common.MimeImageJPEG,
	".jpeg": common.MimeImageJPEG,
	".png":  common.MimeImagePNG,
}

// Item is one extractable image. Page and Index are 1-based for PDF items and
// zero for a standalone image file.
type Item struct {
	Page  int
	Index int
	Path  string
	Data  []byte
	MIME  string
}

// ID identifies the item in logs and output: page<N>_img<M> for PDF items,
// the file path for standalone images.
func (it Item) ID() string {
	if it.Page == 0 {
		return it.Path
	}
	if it.Index == 0 {
		return fmt.Sprintf("page%d", it.Page)
	}
	return fmt.Sprintf("page%d_img%d", it.Page, it.Index)
}

// Document is an opened input. Items yields each image once, in document order;
// the sequence cannot be restarted.
type Document interface {
	Kind() Kind
	Path() string
	Items() iter.Seq2[Item, error]
	Close() error
}

// Reader opens input files.
type Reader struct {
	maxSize uint64
}

// NewReader creates a Reader. maxSize of zero disables the size check.
func NewReader(maxSize uint64) *Reader {
	return &Reader{maxSize: maxSize}
}

// Classify maps path to a Kind by its extension.
func Classify(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return KindPDF, nil
	}
	if _, ok := imageMimes[ext]; ok {
		return KindImage, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return "", fmt.Errorf("%w: extension %s", ErrUnsupportedFormat, ext)
}

// Open classifies path and prepares its items. Unsupported inputs are rejected
// before the file is touched.
func (r *Reader) Open(path string) (Document, error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	if r.maxSize > 0 && uint64(info.Size()) > r.maxSize {
		return nil, fmt.Errorf("input %s is %d bytes, limit is %d", path, info.Size(), r.maxSize)
	}
	switch kind {
	case KindPDF:
		return openPDF(path)
	default:
		return openImage(path), nil
	}
}
