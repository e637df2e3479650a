package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const indent = "    "

// Writer stores JSON result files under a base directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer rooted at baseDir. The directory is created on the first write.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Dir returns the directory results are written to.
func (w *Writer) Dir() string {
	return w.baseDir
}

// WriteJSON encodes v with four-space indentation and stores it as name.
// The file is written to a temp file first and renamed into place, so readers
// never observe a partial result. It returns the final path.
func (w *Writer) WriteJSON(name string, v any) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid result file name %q", name)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}

	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure output dir: %w", err)
	}
	dst := filepath.Join(w.baseDir, name)

	tmp, err := os.CreateTemp(w.baseDir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create tmp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dst, nil
}
