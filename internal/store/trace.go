package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/markedpoint/internal/mark"
)

const traceFile = "trace.jsonl"

// TraceEntry is one line of trace.jsonl.
type TraceEntry struct {
	// Iteration counts non-null iterations; Step counts all of them.
	Iteration int `json:"iteration"`
	Step      int `json:"step"`

	// Kernel is empty for null iterations.
	Kernel   string `json:"kernel,omitempty"`
	Accepted bool   `json:"accepted"`
	Failed   bool   `json:"failed,omitempty"`

	Energy      float64 `json:"energy"`
	Temperature float64 `json:"temperature"`
	Size        int     `json:"size"`

	Timestamp time.Time `json:"timestamp"`

	// Marks is an optional snapshot of the configuration.
	Marks []mark.Record `json:"marks,omitempty"`
}

// TraceWriter appends entries to a JSONL file through a buffer.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl, next to the
// job's filesystem checkpoint. With append false an existing trace is truncated.
func NewTraceWriter(baseDir, jobID string, append bool) (*TraceWriter, error) {
	return OpenTraceWriter(filepath.Join(baseDir, "jobs", jobID, traceFile), append)
}

// OpenTraceWriter opens a trace at an arbitrary path, creating parent directories.
func OpenTraceWriter(path string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		_ = tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the trace.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads entries from a JSONL trace.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace stored with a job's filesystem checkpoint.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	tr, err := OpenTraceReader(filepath.Join(baseDir, "jobs", jobID, traceFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{JobID: jobID}
	}
	return tr, err
}

// OpenTraceReader opens a trace at an arbitrary path.
func OpenTraceReader(path string) (*TraceReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// Snapshots of large configurations make long lines.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF at the end of the trace.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace file.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace of a job. A missing trace is not an error.
func DeleteTrace(baseDir, jobID string) error {
	err := os.Remove(filepath.Join(baseDir, "jobs", jobID, traceFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
