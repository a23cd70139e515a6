// Package audit checks a persisted catalog for the problems the app rejects on load.
package audit

import (
	"github.com/thriftndrift/storecollect/internal/model"
)

// Duplicate is an identifier that appears more than once in one state.
type Duplicate struct {
	State string `json:"state" yaml:"state"`
	ID    string `json:"id" yaml:"id"`
	Count int    `json:"count" yaml:"count"`
}

// Mismatch is a store whose address names a different state than the one it is filed under.
// The app drops these records.
type Mismatch struct {
	State        string `json:"state" yaml:"state"`
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	AddressState string `json:"address_state" yaml:"address_state"`
}

// Report is the result of Check.
type Report struct {
	States     int         `json:"states" yaml:"states"`
	Stores     int         `json:"stores" yaml:"stores"`
	Duplicates []Duplicate `json:"duplicates" yaml:"duplicates"`
	Mismatches []Mismatch  `json:"mismatches" yaml:"mismatches"`
}

// Clean reports whether no problems were found.
func (r *Report) Clean() bool {
	return len(r.Duplicates) == 0 && len(r.Mismatches) == 0
}

// Check inspects every state in code order.
func Check(cat *model.PersistedCatalog) *Report {
	r := &Report{
		Duplicates: []Duplicate{},
		Mismatches: []Mismatch{},
	}

	for _, code := range cat.Codes() {
		stores := cat.States[code].Stores
		r.States++
		r.Stores += len(stores)

		counts := make(map[string]int, len(stores))
		var order []string
		for _, s := range stores {
			if counts[s.ID] == 0 {
				order = append(order, s.ID)
			}
			counts[s.ID]++

			if st, ok := addressState(s); ok && st != code {
				r.Mismatches = append(r.Mismatches, Mismatch{State: code, ID: s.ID, Name: s.Name, AddressState: st})
			}
		}
		for _, id := range order {
			if counts[id] > 1 {
				r.Duplicates = append(r.Duplicates, Duplicate{State: code, ID: id, Count: counts[id]})
			}
		}
	}
	return r
}

// addressState returns the state component of an address with at least three
// comma separated parts. Shorter addresses are not checked.
func addressState(s model.StoreRecord) (string, bool) {
	_, _, state, _ := s.AddressParts()
	if state == "" {
		return "", false
	}
	return state, true
}
