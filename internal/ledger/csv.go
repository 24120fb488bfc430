package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// CSVLedger implements the Ledger interface on an append-only CSV file.
// Rows from concurrent writers, in this process or another one, never
// interleave: appends hold both an in-process mutex and an exclusive lock on
// a sidecar ".lock" file.
type CSVLedger struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewCSVLedger creates a ledger backed by the file at path. The file itself is
// created, with its header, on the first append.
func NewCSVLedger(path string) (*CSVLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	return &CSVLedger{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the location of the CSV file
func (l *CSVLedger) Path() string {
	return l.path
}

// Append writes one row, adding the header first if the file is new or empty.
func (l *CSVLedger) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("locking ledger: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("checking ledger size: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
	}
	if err := w.Write(entryRow(entry)); err != nil {
		return fmt.Errorf("writing ledger entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing ledger: %w", err)
	}
	return f.Close()
}

func entryRow(e Entry) []string {
	return []string{
		e.Timestamp.Format(time.RFC3339),
		e.ImagePath,
		strconv.Itoa(e.InputTokens),
		strconv.Itoa(e.OutputTokens),
		strconv.FormatFloat(e.TotalCost, 'f', 4, 64),
		e.ImageHash,
	}
}

// Fingerprints reads the image_hash column of every row.
// A missing or empty file yields an empty set without error. A file whose
// header lacks image_hash yields an empty set and ErrMalformed.
func (l *CSVLedger) Fingerprints(ctx context.Context) (FingerprintSet, error) {
	set := make(FingerprintSet)
	if err := ctx.Err(); err != nil {
		return set, err
	}

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return set, nil
	} else if err != nil {
		return set, fmt.Errorf("checking ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.RLock(); err != nil {
		return set, fmt.Errorf("locking ledger: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return set, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return set, nil
	}
	if err != nil {
		return set, fmt.Errorf("reading ledger header: %w", err)
	}

	col := -1
	for i, name := range header {
		if name == "image_hash" {
			col = i
			break
		}
	}
	if col < 0 {
		return set, fmt.Errorf("%w: %s has no image_hash column", ErrMalformed, l.path)
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return set, fmt.Errorf("reading ledger row: %w", err)
		}
		if col < len(row) && row[col] != "" {
			set.Add(row[col])
		}
	}
	return set, nil
}

// Close is a no-op; the file is opened per operation.
func (l *CSVLedger) Close() error {
	return nil
}
