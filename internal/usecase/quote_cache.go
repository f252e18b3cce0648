package usecase

import (
	"sync"

	"speedliner/internal/domain/models"
)

// QuoteCache keeps the latest successful quote of a session. Every input
// change bumps the input sequence; a result computed for an older sequence is
// discarded instead of overwriting a newer one.
type QuoteCache struct {
	mu       sync.RWMutex
	inputSeq uint64
	quoteSeq uint64
	quote    *models.Quote
}

// Invalidate clears the cached quote and returns the new input sequence.
func (c *QuoteCache) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputSeq++
	c.quote = nil
	return c.inputSeq
}

// Seq returns the current input sequence.
func (c *QuoteCache) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inputSeq
}

// Store records a quote computed for input sequence seq. It reports false and
// leaves the cache alone when seq is stale.
func (c *QuoteCache) Store(seq uint64, q models.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.inputSeq || seq < c.quoteSeq {
		return false
	}
	c.quoteSeq = seq
	c.quote = &q
	return true
}

// Clear drops the quote after a failed calculation for seq.
func (c *QuoteCache) Clear(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == c.inputSeq {
		c.quote = nil
	}
}

// Get returns a copy of the cached quote.
func (c *QuoteCache) Get() (models.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.quote == nil {
		return models.Quote{}, false
	}
	return *c.quote, true
}
