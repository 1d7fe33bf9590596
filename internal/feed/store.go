// Package feed holds the most recent market tick per instrument token
// and the websocket stream client that keeps it fresh.
package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/types"
)

// Update is one partial tick pushed by the stream. Nil fields were not
// part of the message and keep their previous value in the store.
type Update struct {
	Token        string
	Open         *decimal.Decimal
	High         *decimal.Decimal
	Low          *decimal.Decimal
	Close        *decimal.Decimal
	LastPrice    *decimal.Decimal
	Volume       *int64
	VWAP         *decimal.Decimal
	BestBid      *decimal.Decimal
	BestAsk      *decimal.Decimal
	OpenInterest *int64
}

// Store keeps the merged most-recent tick per token. Reads are
// best-effort: monitors tolerate acting on a slightly stale tick.
type Store struct {
	mu    sync.RWMutex
	ticks map[string]types.Tick
}

// NewStore creates an empty tick store.
func NewStore() *Store {
	return &Store{ticks: make(map[string]types.Tick)}
}

// Apply merges a partial update into the stored tick for its token.
func (s *Store) Apply(u Update) {
	if u.Token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.ticks[u.Token]
	t.Token = u.Token
	if u.Open != nil {
		t.Open = *u.Open
	}
	if u.High != nil {
		t.High = *u.High
	}
	if u.Low != nil {
		t.Low = *u.Low
	}
	if u.Close != nil {
		t.Close = *u.Close
	}
	if u.LastPrice != nil {
		t.LastPrice = *u.LastPrice
	}
	if u.Volume != nil {
		t.Volume = *u.Volume
	}
	if u.VWAP != nil {
		t.VWAP = *u.VWAP
	}
	if u.BestBid != nil {
		t.BestBid = *u.BestBid
	}
	if u.BestAsk != nil {
		t.BestAsk = *u.BestAsk
	}
	if u.OpenInterest != nil {
		t.OpenInterest = *u.OpenInterest
	}
	t.UpdatedAt = time.Now()

	s.ticks[u.Token] = t
}

// LastPrice returns the last traded price for a token.
func (s *Store) LastPrice(token string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.ticks[token]
	if !ok {
		return decimal.Decimal{}, types.ErrNoTick
	}
	return t.LastPrice, nil
}

// Tick returns the full merged tick for a token.
func (s *Store) Tick(token string) (types.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.ticks[token]
	return t, ok
}

// Snapshot returns the ticks for the given tokens, in order. Tokens
// without data yield a zero Tick so callers keep row alignment.
func (s *Store) Snapshot(tokens []string) []types.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Tick, len(tokens))
	for i, token := range tokens {
		out[i] = s.ticks[token]
	}
	return out
}
