package indicator

import (
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Snapshot maps indicator keys to their readings at one point in time.
// Multi-output indicators contribute "<name>.<suffix>" keys as well.
type Snapshot map[string]Value

// Get returns the reading for name, or Undefined when absent.
func (s Snapshot) Get(name string) Value {
	if s == nil {
		return Undefined
	}
	return s[name]
}

// AllDefined reports whether every named reading is defined.
func (s Snapshot) AllDefined(names ...string) bool {
	for _, n := range names {
		if !s.Get(n).Valid {
			return false
		}
	}
	return true
}

// Set is an ordered collection of indicators updated together.
// Designed for single-goroutine usage; no locks.
type Set struct {
	inds   []Indicator
	byName map[string]Indicator
}

// NewSet creates a Set containing inds (duplicates by name are dropped).
func NewSet(inds ...Indicator) *Set {
	s := &Set{byName: make(map[string]Indicator, len(inds))}
	for _, ind := range inds {
		s.Add(ind)
	}
	return s
}

// Add registers ind and returns it. If an indicator with the same name is
// already present, the existing instance is returned instead.
func (s *Set) Add(ind Indicator) Indicator {
	if existing, ok := s.byName[ind.Name()]; ok {
		return existing
	}
	s.inds = append(s.inds, ind)
	s.byName[ind.Name()] = ind
	return ind
}

// Get looks up an indicator by name.
func (s *Set) Get(name string) (Indicator, bool) {
	ind, ok := s.byName[name]
	return ind, ok
}

// Names returns indicator names in registration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.inds))
	for i, ind := range s.inds {
		names[i] = ind.Name()
	}
	return names
}

// Len returns the number of registered indicators.
func (s *Set) Len() int { return len(s.inds) }

// Update feeds p to every indicator (one pass).
func (s *Set) Update(p model.PricePoint) {
	for _, ind := range s.inds {
		ind.Update(p)
	}
}

// Reset clears every indicator.
func (s *Set) Reset() {
	for _, ind := range s.inds {
		ind.Reset()
	}
}

// Snapshot collects the current readings of all indicators.
func (s *Set) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.inds)+4)
	for _, ind := range s.inds {
		name := ind.Name()
		snap[name] = ind.Value()
		if mo, ok := ind.(MultiOutput); ok {
			for suffix, v := range mo.Outputs() {
				snap[name+"."+suffix] = v
			}
		}
	}
	return snap
}
