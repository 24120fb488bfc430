package ingest

import "github.com/zombor/receipt-genie/internal/ledger"

// ShouldProceed decides whether an upload may be sent for extraction.
// Unknown fingerprints always proceed; known ones only with an explicit override.
func ShouldProceed(fingerprint string, prior ledger.FingerprintSet, override bool) bool {
	if !prior.Has(fingerprint) {
		return true
	}
	return override
}
