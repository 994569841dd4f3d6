package aoa

import (
	"fmt"
	"time"

	"github.com/banshee-data/aoa.report/internal/timeutil"
)

// AnchorLayout names the two anchors. Anchor 1 is the origin, anchor 2 lies
// on the +X axis at the query separation.
type AnchorLayout struct {
	Anchor1ID string `json:"anchor1_id"`
	Anchor2ID string `json:"anchor2_id"`
}

// Locator answers position queries from the latest readings in a Store.
type Locator struct {
	store  *Store
	layout AnchorLayout
	clock  timeutil.Clock
	// staleAfter of zero disables the age check.
	staleAfter time.Duration
}

// LocatorConfig configures a Locator.
type LocatorConfig struct {
	Store      *Store
	Layout     AnchorLayout
	Clock      timeutil.Clock
	StaleAfter time.Duration
}

// NewLocator builds a Locator. A nil clock means wall time.
func NewLocator(cfg LocatorConfig) *Locator {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	return &Locator{
		store:      store,
		layout:     cfg.Layout,
		clock:      clock,
		staleAfter: cfg.StaleAfter,
	}
}

// Layout returns the configured anchor pair.
func (l *Locator) Layout() AnchorLayout { return l.layout }

// Latest returns a copy of every stored reading.
func (l *Locator) Latest() Snapshot {
	return l.store.Snapshot()
}

// Readings returns both anchors' readings or ErrMissingAnchorData /
// ErrStaleAnchorData.
func (l *Locator) Readings() (AnchorReading, AnchorReading, error) {
	r1, ok1, r2, ok2 := l.store.Pair(l.layout.Anchor1ID, l.layout.Anchor2ID)
	if !ok1 || !ok2 {
		return AnchorReading{}, AnchorReading{}, ErrMissingAnchorData
	}
	if l.staleAfter > 0 {
		now := l.clock.Now()
		ordered := []struct {
			id string
			r  AnchorReading
		}{{l.layout.Anchor1ID, r1}, {l.layout.Anchor2ID, r2}}
		for _, a := range ordered {
			if age := now.Sub(a.r.Timestamp); age > l.staleAfter {
				return AnchorReading{}, AnchorReading{}, fmt.Errorf("%s last reported %v ago: %w", a.id, age.Round(time.Millisecond), ErrStaleAnchorData)
			}
		}
	}
	return r1, r2, nil
}

// Triangulate estimates the tag position for an anchor separation in metres.
func (l *Locator) Triangulate(separation float64) (Result, error) {
	r1, r2, err := l.Readings()
	if err != nil {
		return Result{}, err
	}
	return Triangulate(r1, r2, separation)
}
