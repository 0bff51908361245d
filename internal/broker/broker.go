// Package broker constructs the venue-specific adapter for each configured
// exchange.
package broker

import (
	"fmt"

	"github.com/stbmp23/arbitrager/internal/broker/bitflyer"
	"github.com/stbmp23/arbitrager/internal/broker/coincheck"
	"github.com/stbmp23/arbitrager/internal/domain"
)

// constructors maps venue codes to adapter factories. Adding a venue means
// implementing domain.BrokerAdapter and registering it here.
var constructors = map[string]func(venue *domain.Venue, baseURL string) domain.BrokerAdapter{
	"bitflyer": func(v *domain.Venue, baseURL string) domain.BrokerAdapter {
		return bitflyer.New(v, baseURL)
	},
	"coincheck": func(v *domain.Venue, baseURL string) domain.BrokerAdapter {
		return coincheck.New(v, baseURL)
	},
}

// Supported reports whether an adapter exists for the venue code.
func Supported(code string) bool {
	_, ok := constructors[code]
	return ok
}

// New creates the adapter for the given venue. The baseURL override is for
// tests and sandboxes; empty means production.
func New(venue *domain.Venue, baseURL string) (domain.BrokerAdapter, error) {
	ctor, ok := constructors[venue.Code]
	if !ok {
		return nil, fmt.Errorf("broker: no adapter for venue %q: %w", venue.Code, domain.ErrNotFound)
	}
	return ctor(venue, baseURL), nil
}
