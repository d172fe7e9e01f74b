package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// sqliteTimeLayout is fixed width so created_at sorts chronologically as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps checkpoints in a single SQLite table. Summary columns
// are duplicated out of the JSON payload so listing does not decode marks.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "markedpoint.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		job_id     TEXT PRIMARY KEY,
		energy     REAL NOT NULL,
		iteration  INTEGER NOT NULL,
		marks      INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		mark_kind  TEXT NOT NULL,
		image_path TEXT NOT NULL,
		payload    BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveCheckpoint validates and upserts the checkpoint.
func (s *SQLiteStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("refusing to save checkpoint %s: %w", jobID, err)
	}

	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO checkpoints(job_id, energy, iteration, marks, created_at, mark_kind, image_path, payload)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(job_id) DO UPDATE SET
			energy=excluded.energy, iteration=excluded.iteration, marks=excluded.marks,
			created_at=excluded.created_at, mark_kind=excluded.mark_kind,
			image_path=excluded.image_path, payload=excluded.payload`,
		jobID, checkpoint.Energy, checkpoint.Iteration, len(checkpoint.Marks),
		checkpoint.Timestamp.UTC().Format(sqliteTimeLayout),
		checkpoint.Config.MarkKind, checkpoint.Config.ImagePath, payload)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", jobID, err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "db", s.path, "marks", len(checkpoint.Marks))
	return nil
}

// LoadCheckpoint reads the checkpoint of the given job.
func (s *SQLiteStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE job_id = ?`, jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint %s: %w", jobID, err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints returns metadata of every checkpoint, newest first.
func (s *SQLiteStore) ListCheckpoints() (_ []CheckpointInfo, retErr error) {
	rows, err := s.db.Query(`SELECT job_id, energy, iteration, marks, created_at, mark_kind, image_path
		FROM checkpoints ORDER BY created_at DESC, job_id`)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	infos := []CheckpointInfo{}
	for rows.Next() {
		var info CheckpointInfo
		var created string
		if err := rows.Scan(&info.JobID, &info.Energy, &info.Iteration, &info.Marks, &created, &info.MarkKind, &info.ImagePath); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if info.Timestamp, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, fmt.Errorf("checkpoint %s: bad timestamp %q: %w", info.JobID, created, err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint row.
func (s *SQLiteStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", jobID, err)
	}
	if n == 0 {
		return &NotFoundError{JobID: jobID}
	}
	return nil
}
