package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jo-hoe/sagextract/internal/common"
	"github.com/jo-hoe/sagextract/internal/ocr"
	"github.com/jo-hoe/sagextract/internal/runs"
	"github.com/jo-hoe/sagextract/internal/source"
)

// Result is the analysis of one item. Text is the remote response stored verbatim.
type Result struct {
	ItemID  string
	Page    int
	Index   int
	Mode    string
	Text    string
	Records []ocr.Record // ocr mode only
}

type visionEntry struct {
	Page       *int   `json:"page,omitempty"`
	ImageIndex *int   `json:"image_index,omitempty"`
	Result     string `json:"sage_gpt_result"`
}

type ocrEntry struct {
	Page       *int         `json:"page,omitempty"`
	ImageIndex *int         `json:"image_index,omitempty"`
	OCRResults []ocr.Record `json:"ocr_results"`
	Analysis   string       `json:"sage_gpt_analysis"`
}

// MarshalJSON writes the result file layout for the result's mode. Page and
// image index are included for document items only.
func (r Result) MarshalJSON() ([]byte, error) {
	var page, index *int
	if r.Page > 0 {
		p, i := r.Page, r.Index
		page, index = &p, &i
	}
	switch r.Mode {
	case common.ModeVision:
		return json.Marshal(visionEntry{Page: page, ImageIndex: index, Result: r.Text})
	case common.ModeOCR:
		records := r.Records
		if records == nil {
			records = []ocr.Record{}
		}
		return json.Marshal(ocrEntry{Page: page, ImageIndex: index, OCRResults: records, Analysis: r.Text})
	default:
		return nil, fmt.Errorf("unknown mode %q", r.Mode)
	}
}

// Outcome is the per-item success/failure variant: exactly one of Result and Err is set.
type Outcome struct {
	Item     source.Item
	Result   *Result
	Err      error
	Duration time.Duration
}

// OK reports whether the item succeeded.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// ItemProcessingError reports a failed item in a document run. The run continues past it.
type ItemProcessingError struct {
	ItemID string
	Err    error
}

func (e *ItemProcessingError) Error() string {
	return fmt.Sprintf("process item %s: %v", e.ItemID, e.Err)
}

func (e *ItemProcessingError) Unwrap() error { return e.Err }

// Summary describes a finished or aborted run.
type Summary struct {
	RunID    string
	Input    string
	Kind     source.Kind
	Mode     string
	Stage    runs.Stage
	Results  []Result               // successful items in processing order
	Failures []*ItemProcessingError // failed items in processing order
	Files    []string               // result files written, in write order
	Duration time.Duration
}
