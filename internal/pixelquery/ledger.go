// Package pixelquery records the most recent pixel query per raster layer.
//
// Each query fully replaces its layer's entry; entries for other layers are
// never touched. An empty result is data, not a failure: it is stored with the
// ErrNoData text in its Error field.
package pixelquery

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rasterscope/rasterscope/internal/telemetry"
)

var (
	// ErrNoData is the query error recorded when a location holds no value
	ErrNoData = errors.New("no data at this location")
	// ErrUnknownLayer is returned when recording for a layer that never existed
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrInvalidCoords is returned for non-finite coordinates
	ErrInvalidCoords = errors.New("coordinates must be finite")
)

// Result is the outcome of one pixel query
type Result struct {
	// Coords is [lon, lat]
	Coords    [2]float64 `json:"coords"`
	Value     *float64   `json:"value"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// HasValue reports whether the query produced a value
func (r Result) HasValue() bool {
	return r.Value != nil
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithKnownLayers restricts recording to layer ids for which known returns
// true. known is called without the ledger lock held.
func WithKnownLayers(known func(id string) bool) Option {
	return func(l *Ledger) { l.known = known }
}

// Ledger maps layer ids to their latest query result
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]Result
	now     func() time.Time
	known   func(id string) bool
}

// NewLedger creates an empty ledger
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		entries: make(map[string]Result),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordQuery stores the result of querying layerID at coords and returns a
// copy of the updated ledger. A nil or non-finite value with no queryErr is
// recorded as ErrNoData.
func (l *Ledger) RecordQuery(layerID string, coords [2]float64, value *float64, queryErr string) (map[string]Result, error) {
	if layerID == "" || (l.known != nil && !l.known(layerID)) {
		telemetry.PixelQueriesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, layerID)
	}
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			telemetry.PixelQueriesTotal.WithLabelValues("rejected").Inc()
			return nil, ErrInvalidCoords
		}
	}

	res := Result{Coords: coords, Error: queryErr}
	if value != nil && !math.IsNaN(*value) && !math.IsInf(*value, 0) {
		v := *value
		res.Value = &v
	}
	if res.Value == nil && res.Error == "" {
		res.Error = ErrNoData.Error()
	}

	outcome := "value"
	if res.Value == nil {
		outcome = "no_data"
	}
	telemetry.PixelQueriesTotal.WithLabelValues(outcome).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()

	res.Timestamp = l.now()
	l.entries[layerID] = res
	slog.Debug("pixel query recorded", "layer_id", layerID, "lon", coords[0], "lat", coords[1], "outcome", outcome)

	return l.copyLocked(), nil
}

// Get returns the latest result for layerID
func (l *Ledger) Get(layerID string) (Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.entries[layerID]
	if ok {
		res = cloneResult(res)
	}
	return res, ok
}

// Entries returns a copy of all entries
func (l *Ledger) Entries() map[string]Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Len returns the number of layers with a recorded query
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Evict drops the entries for ids and returns how many existed
func (l *Ledger) Evict(ids ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := l.entries[id]; ok {
			delete(l.entries, id)
			n++
		}
	}
	if n > 0 {
		slog.Debug("pixel query entries evicted", "count", n)
	}
	return n
}

// Reset drops every entry
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]Result)
}

func (l *Ledger) copyLocked() map[string]Result {
	out := make(map[string]Result, len(l.entries))
	for k, v := range l.entries {
		out[k] = cloneResult(v)
	}
	return out
}

func cloneResult(r Result) Result {
	if r.Value != nil {
		v := *r.Value
		r.Value = &v
	}
	return r
}
