package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/sagextract/internal/config"
)

var _ Engine = (*TesseractEngine)(nil)

// TesseractEngine shells out to the tesseract executable and parses its TSV output.
type TesseractEngine struct {
	command   string
	languages []string
	psm       int
	timeout   time.Duration
}

// NewTesseractEngine constructs an engine that runs cfg.Command.
func NewTesseractEngine(cfg config.OCRConfig) *TesseractEngine {
	cmd := strings.TrimSpace(cfg.Command)
	if cmd == "" {
		cmd = "tesseract"
	}
	return &TesseractEngine{
		command:   cmd,
		languages: cfg.Languages,
		psm:       cfg.PageSegMode,
		timeout:   cfg.Timeout,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize pipes img as PNG into tesseract and returns its word rows.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]Word, error) {
	var in bytes.Buffer
	if err := imaging.Encode(&in, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// #nosec G204 - the executable path is operator configuration
	cmd := exec.CommandContext(ctx, e.command, e.args()...)
	cmd.Stdin = &in
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", e.command, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", e.command, err)
	}
	return parseTSV(&stdout)
}

func (e *TesseractEngine) args() []string {
	args := []string{"stdin", "stdout"}
	if len(e.languages) > 0 {
		args = append(args, "-l", strings.Join(e.languages, "+"))
	}
	if e.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(e.psm))
	}
	return append(args, "tsv")
}

var tsvColumns = []string{"left", "top", "width", "height", "conf", "text"}

// parseTSV reads tesseract's tsv output. Rows keep their original order.
func parseTSV(r io.Reader) ([]Word, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read tsv: %w", err)
		}
		return nil, nil
	}
	idx := make(map[string]int)
	for i, name := range strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t") {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range tsvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("tsv header missing column %q", col)
		}
	}

	var words []Word
	line := 1
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		if raw == "" {
			continue
		}
		fields := strings.Split(raw, "\t")
		w, err := wordFromFields(fields, idx)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: %w", line, err)
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return words, nil
}

func wordFromFields(fields []string, idx map[string]int) (Word, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(fields) {
			return ""
		}
		return fields[i]
	}
	var w Word
	var err error
	ints := []struct {
		col string
		dst *int
	}{
		{"left", &w.Left},
		{"top", &w.Top},
		{"width", &w.Width},
		{"height", &w.Height},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(strings.TrimSpace(get(f.col))); err != nil {
			return Word{}, fmt.Errorf("parse %s: %w", f.col, err)
		}
	}
	conf := strings.TrimSpace(get("conf"))
	if conf == "" {
		return Word{}, errors.New("missing conf")
	}
	if w.Confidence, err = strconv.ParseFloat(conf, 64); err != nil {
		return Word{}, fmt.Errorf("parse conf: %w", err)
	}
	w.Text = get("text")
	return w, nil
}
