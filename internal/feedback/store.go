// Package feedback spools suggestion-outcome records that could not be
// delivered to the assistant service. Records are stored as append-only JSON
// lines in a local file and re-delivered when connectivity returns. Delivery
// is best effort end to end: losing a record is acceptable, blocking the
// engine is not.
package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pkravets/ghostline/pkg/backend"
)

// Record is one spooled feedback entry.
type Record struct {
	Timestamp time.Time        `json:"timestamp"`
	Feedback  backend.Feedback `json:"feedback"`
}

// Spool persists undelivered feedback as JSON lines in a local file.
// Safe for concurrent use.
type Spool struct {
	mu   sync.Mutex
	path string
}

// NewSpool creates a Spool backed by the given path. The file is created on
// first write.
func NewSpool(path string) *Spool {
	return &Spool{path: path}
}

// Add appends a feedback record to the spool.
func (s *Spool) Add(fb backend.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(Record{
		Timestamp: time.Now().UTC(),
		Feedback:  fb,
	})
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("feedback: open spool: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write spool: %w", err)
	}
	return nil
}

// Pending returns all spooled records in append order. Lines that fail to
// parse are skipped.
func (s *Spool) Pending() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *Spool) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: open spool: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("feedback: read spool: %w", err)
	}
	return records, nil
}

// Drain re-delivers spooled records through client. Records delivered
// successfully are removed; the rest stay spooled. Drain stops at the first
// delivery failure to avoid hammering a service that is still down.
func (s *Spool) Drain(ctx context.Context, client backend.Client) (delivered int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	var deliveryErr error
	for _, r := range records {
		if err := client.TrackFeedback(ctx, r.Feedback); err != nil {
			deliveryErr = err
			break
		}
		delivered++
	}

	if err := s.rewrite(records[delivered:]); err != nil {
		return delivered, err
	}
	return delivered, deliveryErr
}

// rewrite replaces the spool contents with the given records.
func (s *Spool) rewrite(records []Record) error {
	if len(records) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("feedback: clear spool: %w", err)
		}
		return nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("feedback: rewrite spool: %w", err)
	}
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("feedback: rewrite spool: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("feedback: rewrite spool: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("feedback: rewrite spool: %w", err)
	}
	return nil
}
