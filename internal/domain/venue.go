// Package domain defines the core types of the arbitrager (venues, board
// snapshots, order legs, exchange records) and the collaborator interfaces
// the rest of the system is wired against.
package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Credentials is the decrypted API key pair for one venue.
type Credentials struct {
	Key    string
	Secret string
}

// Venue is the immutable per-run identity of one exchange.
type Venue struct {
	Code              string
	Name              string
	CommissionPercent decimal.Decimal
	// Priority orders saga execution; the lower value is submitted first.
	Priority    int
	Enabled     bool
	Credentials Credentials
}

// Registry owns every configured venue. It is built once at startup and passed
// explicitly into the components that need venue lookups.
type Registry struct {
	venues []*Venue
	byCode map[string]*Venue
}

// NewRegistry creates a Registry from the given venues, sorted by priority.
func NewRegistry(venues []*Venue) *Registry {
	sorted := make([]*Venue, len(venues))
	copy(sorted, venues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	byCode := make(map[string]*Venue, len(sorted))
	for _, v := range sorted {
		byCode[v.Code] = v
	}
	return &Registry{venues: sorted, byCode: byCode}
}

// Get returns the venue with the given code.
func (r *Registry) Get(code string) (*Venue, error) {
	v, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("registry: unknown venue %q: %w", code, ErrNotFound)
	}
	return v, nil
}

// Enabled returns the venues that are enabled for trading, in priority order.
func (r *Registry) Enabled() []*Venue {
	out := make([]*Venue, 0, len(r.venues))
	for _, v := range r.venues {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// All returns every configured venue in priority order.
func (r *Registry) All() []*Venue {
	out := make([]*Venue, len(r.venues))
	copy(out, r.venues)
	return out
}
