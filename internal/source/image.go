package source

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

type imageDocument struct {
	path     string
	consumed bool
}

func openImage(path string) *imageDocument {
	return &imageDocument{path: path}
}

func (d *imageDocument) Kind() Kind   { return KindImage }
func (d *imageDocument) Path() string { return d.path }
func (d *imageDocument) Close() error { return nil }

func (d *imageDocument) Items() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if d.consumed {
			return
		}
		d.consumed = true
		data, err := os.ReadFile(d.path) // #nosec G304 - caller supplies the input path
		if err != nil {
			yield(Item{Path: d.path}, fmt.Errorf("read image: %w", err))
			return
		}
		yield(Item{
			Path: d.path,
			Data: data,
			MIME: imageMimes[strings.ToLower(filepath.Ext(d.path))],
		}, nil)
	}
}
