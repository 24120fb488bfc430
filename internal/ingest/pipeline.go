package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/receipt-genie/internal/ledger"
	"github.com/zombor/receipt-genie/internal/scanning"
	"github.com/zombor/receipt-genie/internal/telemetry"
)

// Status describes how an upload was handled
type Status string

const (
	// StatusProcessed means the image was extracted and logged
	StatusProcessed Status = "processed"
	// StatusCached means the image was the session's last one and the previous result was reused
	StatusCached Status = "cached"
	// StatusDuplicate means the image is already in the ledger and needs confirmation
	StatusDuplicate Status = "duplicate"
)

// Upload is one image submitted for ingestion
type Upload struct {
	Owner          string
	Filename       string
	ContentType    string
	Data           []byte
	AllowDuplicate bool
}

// Outcome is the result of one Ingest call
type Outcome struct {
	Status       Status                  `json:"status"`
	Fingerprint  string                  `json:"fingerprint"`
	Record       *scanning.ReceiptRecord `json:"record,omitempty"`
	ReceiptID    string                  `json:"receipt_id,omitempty"`
	ImagePath    string                  `json:"image_path,omitempty"`
	InputTokens  int                     `json:"input_tokens"`
	OutputTokens int                     `json:"output_tokens"`
	Cost         float64                 `json:"cost"`
	Warnings     []string                `json:"warnings,omitempty"`
}

func (o *Outcome) warn(msg string, err error) {
	slog.Warn(msg, "fingerprint", o.Fingerprint, "error", err)
	o.Warnings = append(o.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

// Storage keeps the uploaded images
type Storage interface {
	Save(filename string, data []byte) (string, error)
	Exists(path string) (bool, error)
	Delete(path string) error
}

// Recorder persists a successfully extracted record and returns its ID
type Recorder interface {
	Record(ctx context.Context, owner, fingerprint, imagePath string, record scanning.ReceiptRecord) (string, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline runs fingerprinting, the duplicate check, extraction,
// normalisation and usage logging for one upload at a time.
type Pipeline struct {
	scanner    scanning.Scanner
	ledger     ledger.Ledger
	storage    Storage
	recorder   Recorder
	rates      ledger.Rates
	metrics    *telemetry.Metrics
	timeSource TimeSource
}

// NewPipeline creates a Pipeline. storage, recorder and metrics may be nil.
func NewPipeline(scanner scanning.Scanner, l ledger.Ledger, storage Storage, recorder Recorder, rates ledger.Rates, metrics *telemetry.Metrics) *Pipeline {
	return NewPipelineWithDeps(scanner, l, storage, recorder, rates, metrics, defaultTimeSource{})
}

// NewPipelineWithDeps creates a Pipeline with a custom time source for testing
func NewPipelineWithDeps(scanner scanning.Scanner, l ledger.Ledger, storage Storage, recorder Recorder, rates ledger.Rates, metrics *telemetry.Metrics, timeSrc TimeSource) *Pipeline {
	return &Pipeline{
		scanner:    scanner,
		ledger:     l,
		storage:    storage,
		recorder:   recorder,
		rates:      rates,
		metrics:    metrics,
		timeSource: timeSrc,
	}
}

// Ingest handles one upload against the given session state and returns the
// outcome together with the state to keep for the next call. Only extraction
// failures are returned as errors; ledger, storage and persistence problems
// are reported in Outcome.Warnings.
func (p *Pipeline) Ingest(ctx context.Context, state State, up Upload) (*Outcome, State, error) {
	fp := Fingerprint(up.Data)
	out := &Outcome{Fingerprint: fp}

	if state.LastRecord != nil && state.LastFingerprint == fp {
		state.PendingDuplicate = false
		state.PendingFingerprint = ""
		out.Status = StatusCached
		out.Record = state.LastRecord
		out.ReceiptID = state.LastReceiptID
		p.metrics.Ingest(telemetry.OutcomeCached)
		return out, state, nil
	}

	prior, err := p.ledger.Fingerprints(ctx)
	if err != nil {
		out.warn("Could not read usage ledger", err)
		p.metrics.LedgerWarning()
	}

	if !ShouldProceed(fp, prior, up.AllowDuplicate) {
		state.PendingDuplicate = true
		state.PendingFingerprint = fp
		out.Status = StatusDuplicate
		p.metrics.Ingest(telemetry.OutcomeDuplicate)
		slog.Info("Duplicate receipt awaiting confirmation", "owner", up.Owner, "fingerprint", fp)
		return out, state, nil
	}

	// the override, if any, is spent on this upload
	state.PendingDuplicate = false
	state.PendingFingerprint = ""

	imagePath := up.Filename
	stored, created := p.storeImage(out, fp+imageExtension(up.Filename, up.ContentType), up.Data)
	if stored != "" {
		imagePath = stored
	}
	out.ImagePath = imagePath

	start := p.timeSource.Now()
	res, err := p.scanner.ScanReceipt(ctx, up.Data, up.ContentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", up.Filename,
			"content_type", up.ContentType,
			"file_size", len(up.Data),
			"error", err,
		)
		if created {
			p.discardImage(stored)
		}
		if errors.Is(err, scanning.ErrUnavailable) {
			p.metrics.Ingest(telemetry.OutcomeUnavailable)
		} else {
			p.metrics.Ingest(telemetry.OutcomeFailed)
		}
		return nil, State{}, fmt.Errorf("scanning receipt: %w", err)
	}
	now := p.timeSource.Now()

	record := scanning.Normalize(res.Text)
	if record.IsError() {
		slog.Warn("Failed to parse extraction response", "fingerprint", fp, "response_length", len(res.Text))
		p.metrics.ParseFailure()
	}

	out.InputTokens = res.InputTokens
	out.OutputTokens = res.OutputTokens
	out.Cost = p.rates.Cost(res.InputTokens, res.OutputTokens)
	p.metrics.Extraction(now.Sub(start), res.InputTokens, res.OutputTokens, out.Cost)

	entry := ledger.Entry{
		Timestamp:    now,
		ImagePath:    imagePath,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		TotalCost:    out.Cost,
		ImageHash:    fp,
	}
	if err := p.ledger.Append(ctx, entry); err != nil {
		out.warn("Could not write usage ledger", err)
		p.metrics.LedgerWarning()
	}

	if p.recorder != nil {
		if !record.IsError() {
			id, err := p.recorder.Record(ctx, up.Owner, fp, stored, record)
			if err != nil {
				out.warn("Could not save receipt", err)
			} else {
				out.ReceiptID = id
			}
		}
		// nothing refers to an image this upload added unless a receipt was saved
		if created && out.ReceiptID == "" {
			p.discardImage(stored)
			out.ImagePath = ""
		}
	}

	out.Status = StatusProcessed
	out.Record = &record
	p.metrics.Ingest(telemetry.OutcomeProcessed)

	return out, State{
		LastFingerprint: fp,
		LastRecord:      &record,
		LastReceiptID:   out.ReceiptID,
	}, nil
}

// storeImage saves the upload under name. It returns the stored path, empty
// when saving failed, and whether this call added the file.
func (p *Pipeline) storeImage(out *Outcome, name string, data []byte) (string, bool) {
	if p.storage == nil {
		return "", false
	}
	existed, err := p.storage.Exists(name)
	if err != nil {
		slog.Warn("Failed to check for stored file", "filename", name, "error", err)
		existed = true
	}
	path, err := p.storage.Save(name, data)
	if err != nil {
		out.warn("Could not store receipt image", err)
		return "", false
	}
	return path, !existed
}

func (p *Pipeline) discardImage(path string) {
	if err := p.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// imageExtension picks the stored file extension from the upload name,
// falling back to the content type.
func imageExtension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filepath.Base(filename))); isSimpleExtension(ext) {
		return ext
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}

func isSimpleExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
