package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-genie/internal/scanning"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt, budget and user operations
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// receiptDateLayouts are tried in order against the extracted store date
var receiptDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 January 2006",
	"Monday, January 2, 2006",
}

// parseReceiptDate reads the extracted date, falling back to now when it is
// missing or unreadable and clamping dates in the future to now.
func parseReceiptDate(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range receiptDateLayouts {
		date, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if date.After(now) {
			return now, false
		}
		return date, true
	}
	return now, false
}

// toCents converts a currency amount to whole cents
func toCents(amount float64) int {
	return int(math.Round(amount * 100))
}

// Record persists an extracted receipt for owner and returns its ID
func (s *Service) Record(ctx context.Context, owner, fingerprint, imagePath string, record scanning.ReceiptRecord) (string, error) {
	if record.IsError() {
		return "", fmt.Errorf("refusing to save unparsed receipt")
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	date, ok := parseReceiptDate(record.StoreInfo.Date, now)
	if !ok {
		slog.Warn("Receipt date missing, unreadable or in the future, using current date",
			"receipt_id", id,
			"date", record.StoreInfo.Date,
		)
	}

	items := record.Items
	if items == nil {
		items = []scanning.Item{}
	}

	receipt := &Receipt{
		ID:          id,
		Owner:       owner,
		Date:        date,
		Vendor:      record.StoreInfo.Name,
		Total:       toCents(record.TransactionDetails.Total),
		Store:       record.StoreInfo,
		Transaction: record.TransactionDetails,
		Items:       items,
		Categories:  record.CategoryBreakdown(),
		Fingerprint: fingerprint,
		Filename:    imagePath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return "", fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("Receipt saved", "receipt_id", id, "owner", owner, "vendor", receipt.Vendor, "total", receipt.Total)
	return id, nil
}

// GetReceipt retrieves one of owner's receipts by ID
func (s *Service) GetReceipt(owner, id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Owner != owner {
		return nil, fmt.Errorf("getting receipt: receipt %s: %w", id, ErrNotFound)
	}
	return receipt, nil
}

// ListReceipts returns owner's receipts, newest first
func (s *Service) ListReceipts(owner string) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(owner)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].Date.After(receipts[j].Date)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and, when no other receipt shares it, its file
func (s *Service) DeleteReceipt(owner, id string) error {
	receipt, err := s.GetReceipt(owner, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	// Delete from database
	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}

	if receipt.Filename == "" {
		return nil
	}
	shared, err := s.db.FindByFingerprint(receipt.Fingerprint)
	if err != nil {
		slog.Warn("Failed to check for shared file", "filename", receipt.Filename, "error", err)
		return nil
	}
	for _, other := range shared {
		if other.Filename == receipt.Filename {
			return nil
		}
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// Log error; the database row is already gone
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}
	return nil
}

// GetReceiptFile retrieves the stored image for a receipt
func (s *Service) GetReceiptFile(owner, id string) ([]byte, string, error) {
	receipt, err := s.GetReceipt(owner, id)
	if err != nil {
		return nil, "", err
	}
	if receipt.Filename == "" {
		return nil, "", fmt.Errorf("receipt %s has no stored file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(receipt.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
