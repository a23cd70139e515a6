// Package query answers read-only lookups over a persisted catalog.
package query

import (
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"golang.org/x/text/cases"

	"github.com/thriftndrift/storecollect/internal/model"
)

const (
	// CityRadiusMeters bounds the stores shown for a city.
	CityRadiusMeters = 25000
	// DefaultNearbyRadiusMeters is used when a nearby lookup gives no radius.
	DefaultNearbyRadiusMeters = 50000
)

// Match is a store with its state and distance from the query point.
type Match struct {
	State          string            `json:"state"`
	DistanceMeters float64           `json:"distanceMeters"`
	Store          model.StoreRecord `json:"store"`
}

// StateSummary is one row of the state listing.
type StateSummary struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Stores int    `json:"stores"`
}

// States lists the catalog's states sorted by name, then code.
func States(cat *model.PersistedCatalog) []StateSummary {
	out := make([]StateSummary, 0, len(cat.States))
	for code, st := range cat.States {
		out = append(out, StateSummary{Code: code, Name: st.Name, Stores: len(st.Stores)})
	}
	slices.SortFunc(out, func(a, b StateSummary) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

// Within returns the stores of one state within radius meters of center,
// nearest first.
func Within(code string, stores []model.StoreRecord, center orb.Point, radius float64) []Match {
	bound := geo.NewBoundAroundPoint(center, radius)

	out := make([]Match, 0)
	for _, s := range stores {
		pt := orb.Point{s.Longitude, s.Latitude}
		if !bound.Contains(pt) {
			continue
		}
		d := geo.Distance(center, pt)
		if d > radius {
			continue
		}
		out = append(out, Match{State: code, DistanceMeters: d, Store: s})
	}
	sortByDistance(out)
	return out
}

// Nearby searches every state of cat. A non-positive radius uses DefaultNearbyRadiusMeters.
func Nearby(cat *model.PersistedCatalog, center orb.Point, radius float64) []Match {
	if radius <= 0 {
		radius = DefaultNearbyRadiusMeters
	}
	out := make([]Match, 0)
	for _, code := range cat.Codes() {
		out = append(out, Within(code, cat.States[code].Stores, center, radius)...)
	}
	sortByDistance(out)
	return out
}

// InCity returns the state's stores within CityRadiusMeters of the city centre.
func InCity(code string, stores []model.StoreRecord, city model.CityEntry) []Match {
	return Within(code, stores, city.Point(), CityRadiusMeters)
}

// Search filters stores whose name, address or any category contains q,
// ignoring case. An empty q returns all stores.
func Search(stores []model.StoreRecord, q string) []model.StoreRecord {
	q = strings.TrimSpace(q)
	if q == "" {
		return stores
	}
	// A Caser is stateful and must not be shared between requests.
	fold := cases.Fold()
	needle := fold.String(q)

	out := make([]model.StoreRecord, 0)
	for _, s := range stores {
		if matches(fold, s, needle) {
			out = append(out, s)
		}
	}
	return out
}

func matches(fold cases.Caser, s model.StoreRecord, needle string) bool {
	if strings.Contains(fold.String(s.Name), needle) || strings.Contains(fold.String(s.Address), needle) {
		return true
	}
	for _, c := range s.Categories {
		if strings.Contains(fold.String(c), needle) {
			return true
		}
	}
	return false
}

func sortByDistance(m []Match) {
	slices.SortStableFunc(m, func(a, b Match) int {
		switch {
		case a.DistanceMeters < b.DistanceMeters:
			return -1
		case a.DistanceMeters > b.DistanceMeters:
			return 1
		}
		return 0
	})
}
