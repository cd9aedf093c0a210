// Package period maps named reporting periods to concrete half-open
// date ranges in the portal's local civil calendar.
package period

import (
	"fmt"
	"sync"
	"time"
)

// RangeFunc computes the half-open [start, end) range for a reference
// instant. Implementations must be deterministic and return start < end,
// both aligned to local midnight.
type RangeFunc func(ref time.Time) (start, end time.Time)

// Definition describes one named period.
type Definition struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Range       RangeFunc `json:"-"`
}

// UnknownPeriodError is returned when a period key is not registered.
// It indicates a configuration or programming error, not upstream data.
type UnknownPeriodError struct {
	Key string
}

func (e *UnknownPeriodError) Error() string {
	return fmt.Sprintf("unknown period: %s", e.Key)
}

// Registry is an append-only set of period definitions. Iteration order
// is registration order so cycles walk periods deterministically.
type Registry struct {
	mu   sync.Mutex
	keys []string
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Registering an existing key replaces the
// definition but keeps its position.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Key]; !ok {
		r.keys = append(r.keys, def.Key)
	}
	r.defs[def.Key] = def
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Definition, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.defs[k])
	}
	return out
}

// Resolve computes the date range for the given key and reference
// instant.
func (r *Registry) Resolve(key string, ref time.Time) (time.Time, time.Time, error) {
	r.mu.Lock()
	def, ok := r.defs[key]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, time.Time{}, &UnknownPeriodError{Key: key}
	}
	start, end := def.Range(ref)
	return start, end, nil
}

// midnight truncates t to 00:00 in its own location.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
