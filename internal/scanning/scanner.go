package scanning

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the extraction service could not be reached
// or did not produce a usable response envelope.
var ErrUnavailable = errors.New("extraction service unavailable")

const (
	// DefaultTimeout bounds a single extraction request.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxOutputTokens caps the length of the model's answer.
	DefaultMaxOutputTokens = 1500
	// DefaultTemperature keeps the output close to deterministic.
	DefaultTemperature = 0.2
)

// Result is the raw, uninterpreted answer of the extraction service.
type Result struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Options configures generation for every scanner backend
type Options struct {
	Timeout         time.Duration
	MaxOutputTokens int
	Temperature     float32
}

// DefaultOptions returns the generation settings used when none are given.
func DefaultOptions() Options {
	return Options{
		Timeout:         DefaultTimeout,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Temperature:     DefaultTemperature,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = d.MaxOutputTokens
	}
	if o.Temperature < 0 {
		o.Temperature = d.Temperature
	}
	return o
}

// Scanner defines the interface for receipt extraction calls
type Scanner interface {
	// ScanReceipt sends one receipt image to the extraction service and returns
	// its text verbatim together with the reported token usage.
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*Result, error)
	// Close closes the scanner and releases resources
	Close() error
}
