package ledger

import (
	"fmt"
	"math"
)

// Rates are the extraction prices in currency units per 1000 tokens.
type Rates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultRates are the gpt-4o list prices.
var DefaultRates = Rates{InputPer1K: 0.005, OutputPer1K: 0.015}

// Cost prices one call, rounded to four decimal places.
func (r Rates) Cost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1000*r.InputPer1K + float64(outputTokens)/1000*r.OutputPer1K
	return math.Round(cost*1e4) / 1e4
}

// Validate rejects negative prices.
func (r Rates) Validate() error {
	if r.InputPer1K < 0 || r.OutputPer1K < 0 {
		return fmt.Errorf("rates must not be negative: input %g, output %g", r.InputPer1K, r.OutputPer1K)
	}
	return nil
}
