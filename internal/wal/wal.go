// Package wal journals raw upload bodies before they are parsed, so data
// lost to a crash mid-ingest can be replayed.
package wal

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// UploadJournal provides write-ahead logging for incoming record uploads.
type UploadJournal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time
	Body      []byte
}

// NewUploadJournal creates or opens a daily journal file in dirPath.
func NewUploadJournal(dirPath string) (*UploadJournal, error) {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	path := filepath.Join(dirPath, fmt.Sprintf("uploads-%s.wal", time.Now().Format("20060102")))

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &UploadJournal{
		file: file,
		path: path,
	}, nil
}

// Append writes an upload body to the journal with fsync. Called before the
// body is parsed, so malformed uploads are recoverable too.
func (j *UploadJournal) Append(body []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line := fmt.Sprintf("%s|%d|%s\n", time.Now().Format(time.RFC3339Nano), len(body), body)

	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}

	// Critical: fsync to ensure durability
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	return nil
}

// Close flushes and closes the journal
func (j *UploadJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Sync(); err != nil {
		return err
	}
	return j.file.Close()
}

// Replay reads all entries from a journal file
func Replay(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		// Parse: timestamp|length|body
		sep1 := bytes.IndexByte(line, '|')
		if sep1 < 0 {
			continue
		}
		rest := line[sep1+1:]
		sep2 := bytes.IndexByte(rest, '|')
		if sep2 < 0 {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339Nano, string(line[:sep1]))
		if err != nil {
			continue // skip malformed lines
		}

		body := make([]byte, len(rest)-sep2-1)
		copy(body, rest[sep2+1:])
		entries = append(entries, Entry{Timestamp: timestamp, Body: body})
	}

	return entries, scanner.Err()
}

// Rotate closes the current journal, opens a fresh daily file, and returns
// the old file path for archival.
func Rotate(dirPath string, current *UploadJournal) (*UploadJournal, string, error) {
	current.mu.Lock()
	oldPath := current.path
	current.mu.Unlock()

	if err := current.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close current journal: %w", err)
	}

	next, err := NewUploadJournal(dirPath)
	if err != nil {
		return nil, "", err
	}

	return next, oldPath, nil
}
