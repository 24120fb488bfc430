package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrMalformed is returned when a ledger exists but cannot yield fingerprints,
// for example a CSV file without the image_hash column.
var ErrMalformed = errors.New("malformed usage ledger")

// Header is the column layout of the CSV ledger.
var Header = []string{"timestamp", "image_path", "input_tokens", "output_tokens", "total_cost", "image_hash"}

// Entry is one extraction call's usage record.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	ImagePath    string    `json:"image_path"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalCost    float64   `json:"total_cost"`
	ImageHash    string    `json:"image_hash"`
}

// FingerprintSet holds the image fingerprints already recorded in a ledger.
type FingerprintSet map[string]struct{}

// Has reports whether fp is in the set. A nil set contains nothing.
func (s FingerprintSet) Has(fp string) bool {
	_, ok := s[fp]
	return ok
}

// Add inserts fp into the set
func (s FingerprintSet) Add(fp string) {
	s[fp] = struct{}{}
}

// Ledger defines the append-only usage log.
type Ledger interface {
	// Append records one entry. It is the only mutation.
	Append(ctx context.Context, entry Entry) error

	// Fingerprints returns every image hash recorded so far. The returned set
	// is never nil; a non-nil error means the set may be incomplete and should
	// be surfaced as a warning.
	Fingerprints(ctx context.Context) (FingerprintSet, error)

	// Close releases the underlying store
	Close() error
}
