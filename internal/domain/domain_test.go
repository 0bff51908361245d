package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSideOpposite(t *testing.T) {
	if SideAsk.Opposite() != SideBid {
		t.Fatalf("ask opposite = %s, want bid", SideAsk.Opposite())
	}
	if SideBid.Opposite() != SideAsk {
		t.Fatalf("bid opposite = %s, want ask", SideBid.Opposite())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "wrapped timeout", err: fmt.Errorf("venue: %w", ErrTimeout), want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "validation error", err: &ValidationError{Venue: "a", Op: "op", Detail: "bad"}, want: false},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry([]*Venue{
		{Code: "c", Priority: 3, Enabled: true},
		{Code: "a", Priority: 1, Enabled: true},
		{Code: "b", Priority: 2, Enabled: false},
	})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("venues = %d, want 3", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].Code != want {
			t.Fatalf("all[%d] = %s, want %s", i, all[i].Code, want)
		}
	}

	enabled := r.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("enabled = %d, want 2", len(enabled))
	}
	if enabled[0].Code != "a" || enabled[1].Code != "c" {
		t.Fatalf("enabled = %s, %s, want a, c", enabled[0].Code, enabled[1].Code)
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry([]*Venue{{Code: "a", Priority: 1}})

	if _, err := r.Get("a"); err != nil {
		t.Fatalf("Get(a): %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
