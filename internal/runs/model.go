package runs

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist in the ledger.
var ErrNotFound = errors.New("run not found")

// Stage represents the lifecycle stage of a pipeline run.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageReading     Stage = "reading"
	StageProcessing  Stage = "processing"
	StageAggregating Stage = "aggregating"
	StagePersisted   Stage = "persisted"
	StageAborted     Stage = "aborted"
)

// ItemStatus is the terminal state of a single item.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// Run describes one invocation of the pipeline.
type Run struct {
	ID          string     // UUIDv4
	Input       string     // input file path
	Kind        string     // image|pdf, empty until the input is classified
	Mode        string     // vision|ocr
	Stage       Stage      // current stage
	Succeeded   int        // items that produced a result
	Failed      int        // items that failed
	Error       *string    // fatal error, if any
	CreatedAt   time.Time  // creation time
	CompletedAt *time.Time // when finished (persisted or aborted)
}

// ItemRecord is the ledger entry for one processed item.
type ItemRecord struct {
	RunID      string
	Seq        int    // processing order within the run, starting at 1
	ItemID     string // page<N>_img<M> or the input path
	Page       int
	Index      int
	Status     ItemStatus
	OutputPath *string // per-item result file, if one was written
	Error      *string
	Duration   time.Duration
	RecordedAt time.Time
}

// Store defines persistence for runs and their item outcomes.
type Store interface {
	CreateRun(run *Run) error
	UpdateStage(id string, stage Stage) error
	SetKind(id, kind string) error
	RecordItem(item *ItemRecord) error
	FinishRun(id string, succeeded, failed int, completedAt time.Time) error
	FailRun(id string, errMsg string, completedAt time.Time) error
	GetRun(id string) (*Run, error)
	ListItems(runID string) ([]ItemRecord, error)
	Close() error
}

// NopStore discards everything. It is used when no ledger is configured.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) CreateRun(*Run) error                        { return nil }
func (NopStore) UpdateStage(string, Stage) error             { return nil }
func (NopStore) SetKind(string, string) error                { return nil }
func (NopStore) RecordItem(*ItemRecord) error                { return nil }
func (NopStore) FinishRun(string, int, int, time.Time) error { return nil }
func (NopStore) FailRun(string, string, time.Time) error     { return nil }
func (NopStore) GetRun(string) (*Run, error)                 { return nil, ErrNotFound }
func (NopStore) ListItems(string) ([]ItemRecord, error)      { return nil, nil }
func (NopStore) Close() error                                { return nil }
