package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when two runs share a ledger.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		stage TEXT NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	`
	itemsTable := `
	CREATE TABLE IF NOT EXISTS items (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		image_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		output_path TEXT,
		error_message TEXT,
		duration_ms INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`
	for _, stmt := range []string{runsTable, itemsTable} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRun(run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if run.ID == "" {
		return errors.New("run.ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Stage == "" {
		run.Stage = StageIdle
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, input, kind, mode, stage, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Kind, run.Mode, string(run.Stage), run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStage(id string, stage Stage) error {
	res, err := s.db.Exec(`UPDATE runs SET stage = ? WHERE id = ?`, string(stage), id)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return requireRow(res, id)
}

// SetKind records the classified input kind once the source has been opened.
func (s *SQLiteStore) SetKind(id, kind string) error {
	res, err := s.db.Exec(`UPDATE runs SET kind = ? WHERE id = ?`, kind, id)
	if err != nil {
		return fmt.Errorf("update kind: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) RecordItem(item *ItemRecord) error {
	if item == nil {
		return errors.New("item is nil")
	}
	if item.RecordedAt.IsZero() {
		item.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO items (run_id, seq, item_id, page, image_index, status, output_path, error_message, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RunID, item.Seq, item.ItemID, item.Page, item.Index, string(item.Status), item.OutputPath, item.Error,
		item.Duration.Milliseconds(), item.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(id string, succeeded, failed int, completedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE runs
		SET stage = ?, succeeded = ?, failed = ?, error_message = NULL, completed_at = ?
		WHERE id = ?`,
		string(StagePersisted), succeeded, failed, completedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) FailRun(id string, errMsg string, completedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE runs
		SET stage = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(StageAborted), errMsg, completedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT id, input, kind, mode, stage, succeeded, failed, error_message, created_at, completed_at
		FROM runs WHERE id = ?`, id)

	var run Run
	var stage string
	var errMsg, created, completed sql.NullString
	if err := row.Scan(
		&run.ID,
		&run.Input,
		&run.Kind,
		&run.Mode,
		&stage,
		&run.Succeeded,
		&run.Failed,
		&errMsg,
		&created,
		&completed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Stage = Stage(stage)
	if errMsg.Valid {
		v := errMsg.String
		run.Error = &v
	}
	if created.Valid {
		if t, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
			run.CreatedAt = t
		}
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}

func (s *SQLiteStore) ListItems(runID string) ([]ItemRecord, error) {
	rows, err := s.db.Query(`SELECT run_id, seq, item_id, page, image_index, status, output_path, error_message, duration_ms, recorded_at
		FROM items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ItemRecord
	for rows.Next() {
		var it ItemRecord
		var status, recorded string
		var outPath, errMsg sql.NullString
		var durMS int64
		if err := rows.Scan(&it.RunID, &it.Seq, &it.ItemID, &it.Page, &it.Index, &status, &outPath, &errMsg, &durMS, &recorded); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Status = ItemStatus(status)
		if outPath.Valid {
			v := outPath.String
			it.OutputPath = &v
		}
		if errMsg.Valid {
			v := errMsg.String
			it.Error = &v
		}
		it.Duration = time.Duration(durMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			it.RecordedAt = t
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
