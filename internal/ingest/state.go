package ingest

import (
	"sync"

	"github.com/zombor/receipt-genie/internal/scanning"
)

// State is the ingestion state of one interactive session. It is passed into
// and returned from Pipeline.Ingest rather than kept globally.
type State struct {
	LastFingerprint    string                  `json:"last_fingerprint,omitempty"`
	LastRecord         *scanning.ReceiptRecord `json:"last_record,omitempty"`
	LastReceiptID      string                  `json:"last_receipt_id,omitempty"`
	PendingDuplicate   bool                    `json:"pending_duplicate"`
	PendingFingerprint string                  `json:"pending_fingerprint,omitempty"`
}

// Sessions keeps one State per session key (the authenticated username).
type Sessions struct {
	mu     sync.Mutex
	states map[string]State
}

// NewSessions creates an empty session store
func NewSessions() *Sessions {
	return &Sessions{states: make(map[string]State)}
}

// Get returns the state for key, or the zero State
func (s *Sessions) Get(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key]
}

// Put replaces the state for key
func (s *Sessions) Put(key string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
}

// Abandon drops a pending duplicate confirmation but keeps the last result.
func (s *Sessions) Abandon(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[key]
	state.PendingDuplicate = false
	state.PendingFingerprint = ""
	s.states[key] = state
	return state
}

// Reset forgets everything about the session
func (s *Sessions) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
}
