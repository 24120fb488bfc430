package ledger

import (
	"context"
	"sync"
)

// CachedLedger keeps the fingerprint set of another ledger in memory so the
// duplicate check does not re-read the whole store on every upload. The set
// is loaded on first use and extended on each successful append. Loads that
// return a warning are not cached.
type CachedLedger struct {
	inner  Ledger
	mu     sync.Mutex
	set    FingerprintSet
	loaded bool
}

// NewCachedLedger wraps inner
func NewCachedLedger(inner Ledger) *CachedLedger {
	return &CachedLedger{inner: inner}
}

// Append writes through to the wrapped ledger
func (c *CachedLedger) Append(ctx context.Context, entry Entry) error {
	if err := c.inner.Append(ctx, entry); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && entry.ImageHash != "" {
		c.set.Add(entry.ImageHash)
	}
	return nil
}

// Fingerprints returns a copy of the cached set, loading it if needed
func (c *CachedLedger) Fingerprints(ctx context.Context) (FingerprintSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		set, err := c.inner.Fingerprints(ctx)
		if err != nil {
			if set == nil {
				set = make(FingerprintSet)
			}
			return set, err
		}
		c.set = set
		c.loaded = true
	}

	out := make(FingerprintSet, len(c.set))
	for fp := range c.set {
		out.Add(fp)
	}
	return out, nil
}

// Close closes the wrapped ledger
func (c *CachedLedger) Close() error {
	return c.inner.Close()
}
