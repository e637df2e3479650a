// Package pipeline drives a run: open the input, analyse each image in order
// and persist the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/sagextract/internal/analyzer"
	"github.com/jo-hoe/sagextract/internal/common"
	"github.com/jo-hoe/sagextract/internal/config"
	"github.com/jo-hoe/sagextract/internal/encode"
	"github.com/jo-hoe/sagextract/internal/ocr"
	"github.com/jo-hoe/sagextract/internal/runs"
	"github.com/jo-hoe/sagextract/internal/source"
	"github.com/jo-hoe/sagextract/internal/util"
)

// ErrNoText is returned for an ocr mode item where the engine found no usable words.
var ErrNoText = errors.New("ocr found no text")

// Opener opens an input file. *source.Reader implements it.
type Opener interface {
	Open(path string) (source.Document, error)
}

// Extractor turns encoded image bytes into OCR records. *ocr.Adapter implements it.
type Extractor interface {
	ExtractBytes(ctx context.Context, data []byte) ([]ocr.Record, error)
}

// ResultWriter persists one JSON document. *storage.Writer implements it.
type ResultWriter interface {
	WriteJSON(name string, v any) (string, error)
}

// Runner processes one input file per Run call.
type Runner struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Source   Opener
	Analyzer analyzer.Client
	OCR      Extractor // required in ocr mode
	Writer   ResultWriter
	Store    runs.Store
}

func New(log *slog.Logger, cfg *config.Config, src Opener, client analyzer.Client, extractor Extractor, w ResultWriter, store runs.Store) *Runner {
	if store == nil {
		store = runs.NopStore{}
	}
	return &Runner{
		Log:      log,
		Cfg:      cfg,
		Source:   src,
		Analyzer: client,
		OCR:      extractor,
		Writer:   w,
		Store:    store,
	}
}

type run struct {
	*Runner
	ctx  context.Context
	log  *slog.Logger
	mode string
	sum  *Summary
	seq  int
}

// Run processes input and returns a summary of what was done. The summary is
// returned on error as well. Errors that abort the run: the input cannot be
// opened or is unsupported, authentication fails, ctx is cancelled, a result
// cannot be written, or the single image of an image input fails.
// source.ErrEmptyDocument is returned for a document without images; nothing
// is written in that case.
func (r *Runner) Run(ctx context.Context, input string) (*Summary, error) {
	start := time.Now()
	mode := r.Cfg.Run.Mode
	sum := &Summary{
		RunID: util.NewID(),
		Input: input,
		Mode:  mode,
		Stage: runs.StageIdle,
	}
	rn := &run{
		Runner: r,
		ctx:    ctx,
		log:    r.Log.With("run_id", sum.RunID),
		mode:   mode,
		sum:    sum,
	}
	defer func() { sum.Duration = time.Since(start) }()

	rn.ledger("create run", r.Store.CreateRun(&runs.Run{
		ID:        sum.RunID,
		Input:     input,
		Mode:      mode,
		Stage:     runs.StageIdle,
		CreatedAt: start.UTC(),
	}))

	switch mode {
	case common.ModeVision:
	case common.ModeOCR:
		if r.OCR == nil {
			return sum, rn.abort(errors.New("ocr mode requires an ocr engine"))
		}
	default:
		return sum, rn.abort(fmt.Errorf("unknown mode %q", mode))
	}

	rn.setStage(runs.StageReading)
	doc, err := r.Source.Open(input)
	if err != nil {
		return sum, rn.abort(fmt.Errorf("open input: %w", err))
	}
	defer func() { _ = doc.Close() }()
	sum.Kind = doc.Kind()
	rn.ledger("set kind", r.Store.SetKind(sum.RunID, string(sum.Kind)))
	rn.log.Info("input opened", "input", input, "kind", sum.Kind, "mode", mode)

	rn.setStage(runs.StageProcessing)
	if sum.Kind == source.KindPDF {
		return sum, rn.document(doc)
	}
	return sum, rn.single(doc)
}

// single handles an image input: any failure is fatal.
func (rn *run) single(doc source.Document) error {
	var outcome *Outcome
	for item, itemErr := range doc.Items() {
		o := rn.processItem(item, itemErr)
		outcome = &o
		break
	}
	if outcome == nil {
		return rn.abort(errors.New("image input yielded no item"))
	}
	if !outcome.OK() {
		rn.recordItem(*outcome, nil)
		return rn.abort(fmt.Errorf("process %s: %w", outcome.Item.ID(), outcome.Err))
	}

	rn.setStage(runs.StageAggregating)
	path, err := rn.Writer.WriteJSON(rn.Cfg.Output.ResultFile, outcome.Result)
	if err != nil {
		rn.recordItem(*outcome, nil)
		return rn.abort(fmt.Errorf("write result: %w", err))
	}
	rn.sum.Results = append(rn.sum.Results, *outcome.Result)
	rn.sum.Files = append(rn.sum.Files, path)
	rn.recordItem(*outcome, &path)
	rn.log.Info("result saved", "file", path)
	return rn.finish()
}

// document handles a PDF: item failures are isolated, each success is written
// immediately and the combined file is written after the last item.
func (rn *run) document(doc source.Document) error {
	for item, itemErr := range doc.Items() {
		if err := rn.ctx.Err(); err != nil {
			return rn.abort(err)
		}
		outcome := rn.processItem(item, itemErr)
		id := item.ID()
		if !outcome.OK() {
			rn.recordItem(outcome, nil)
			if rn.fatal(outcome.Err) {
				return rn.abort(fmt.Errorf("process %s: %w", id, outcome.Err))
			}
			rn.log.Error("item failed", "item", id, "err", outcome.Err)
			rn.sum.Failures = append(rn.sum.Failures, &ItemProcessingError{ItemID: id, Err: outcome.Err})
			continue
		}

		name := fmt.Sprintf(common.ItemFilePattern, item.Page, item.Index)
		path, err := rn.Writer.WriteJSON(name, outcome.Result)
		if err != nil {
			rn.recordItem(outcome, nil)
			return rn.abort(fmt.Errorf("write %s: %w", name, err))
		}
		rn.sum.Results = append(rn.sum.Results, *outcome.Result)
		rn.sum.Files = append(rn.sum.Files, path)
		rn.recordItem(outcome, &path)
		rn.log.Info("item saved", "item", id, "file", path, "duration", outcome.Duration)
	}

	if rn.seq == 0 {
		rn.log.Info("no images found in document", "input", rn.sum.Input)
		rn.ledger("finish run", rn.Store.FinishRun(rn.sum.RunID, 0, 0, time.Now().UTC()))
		rn.sum.Stage = runs.StagePersisted
		return source.ErrEmptyDocument
	}

	rn.setStage(runs.StageAggregating)
	combined := make([]Result, 0, len(rn.sum.Results))
	combined = append(combined, rn.sum.Results...)
	path, err := rn.Writer.WriteJSON(rn.Cfg.Output.CombinedFile, combined)
	if err != nil {
		return rn.abort(fmt.Errorf("write combined results: %w", err))
	}
	rn.sum.Files = append(rn.sum.Files, path)
	rn.log.Info("combined results saved", "file", path, "entries", len(combined))
	return rn.finish()
}

// processItem analyses one item and reports the outcome without aborting anything.
func (rn *run) processItem(item source.Item, itemErr error) (out Outcome) {
	rn.seq++
	start := time.Now()
	out.Item = item
	defer func() { out.Duration = time.Since(start) }()

	if itemErr != nil {
		out.Err = itemErr
		return out
	}
	rn.log.Info("processing item", "item", item.ID(), "bytes", len(item.Data))

	res := &Result{ItemID: item.ID(), Page: item.Page, Index: item.Index, Mode: rn.mode}
	switch rn.mode {
	case common.ModeOCR:
		records, err := rn.OCR.ExtractBytes(rn.ctx, item.Data)
		if err != nil {
			out.Err = fmt.Errorf("ocr: %w", err)
			return out
		}
		text := ocr.JoinText(records)
		if strings.TrimSpace(text) == "" {
			out.Err = ErrNoText
			return out
		}
		rn.log.Debug("ocr finished", "item", item.ID(), "records", len(records))
		analysis, err := rn.Analyzer.AnalyzeText(rn.ctx, text)
		if err != nil {
			out.Err = fmt.Errorf("analyze text: %w", err)
			return out
		}
		res.Records = records
		res.Text = analysis
	default:
		mime := item.MIME
		if mime == "" {
			mime = encode.DetectMIME(item.Data)
		}
		analysis, err := rn.Analyzer.AnalyzeImage(rn.ctx, item.Data, mime)
		if err != nil {
			out.Err = fmt.Errorf("analyze image: %w", err)
			return out
		}
		res.Text = analysis
	}
	out.Result = res
	return out
}

// fatal reports whether an item error must abort a document run.
func (rn *run) fatal(err error) bool {
	return rn.ctx.Err() != nil || errors.Is(err, analyzer.ErrAuthentication)
}

func (rn *run) setStage(stage runs.Stage) {
	rn.sum.Stage = stage
	rn.ledger("update stage", rn.Store.UpdateStage(rn.sum.RunID, stage))
}

func (rn *run) finish() error {
	rn.sum.Stage = runs.StagePersisted
	rn.ledger("finish run", rn.Store.FinishRun(rn.sum.RunID, len(rn.sum.Results), len(rn.sum.Failures), time.Now().UTC()))
	rn.log.Info("run finished", "succeeded", len(rn.sum.Results), "failed", len(rn.sum.Failures))
	return nil
}

func (rn *run) abort(err error) error {
	rn.sum.Stage = runs.StageAborted
	rn.ledger("fail run", rn.Store.FailRun(rn.sum.RunID, err.Error(), time.Now().UTC()))
	rn.log.Error("run aborted", "err", err)
	return err
}

func (rn *run) recordItem(o Outcome, path *string) {
	rec := &runs.ItemRecord{
		RunID:      rn.sum.RunID,
		Seq:        rn.seq,
		ItemID:     o.Item.ID(),
		Page:       o.Item.Page,
		Index:      o.Item.Index,
		Status:     runs.ItemSucceeded,
		OutputPath: path,
		Duration:   o.Duration,
	}
	if o.Err != nil {
		msg := o.Err.Error()
		rec.Status = runs.ItemFailed
		rec.Error = &msg
	} else if path == nil {
		msg := "result not written"
		rec.Status = runs.ItemFailed
		rec.Error = &msg
	}
	rn.ledger("record item", rn.Store.RecordItem(rec))
}

// ledger logs store failures. The ledger is bookkeeping and never fails a run.
func (rn *run) ledger(op string, err error) {
	if err != nil {
		rn.log.Warn("run ledger update failed", "op", op, "err", err)
	}
}
