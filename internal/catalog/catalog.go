// Package catalog provides the static list of states and cities searched for stores.
package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/thriftndrift/storecollect/internal/model"
)

const defaultRadius = 50000

// File is the on-disk YAML shape of a city catalog.
type File struct {
	States []model.StateEntry `yaml:"states"`
}

// Default returns the built-in catalog in search order.
func Default() []model.StateEntry {
	return []model.StateEntry{
		{Code: "NC", Name: "North Carolina", Cities: []model.CityEntry{
			{Name: "Charlotte", Latitude: 35.2271, Longitude: -80.8431, SearchRadiusMeters: defaultRadius},
			{Name: "Raleigh", Latitude: 35.7796, Longitude: -78.6382, SearchRadiusMeters: defaultRadius},
			{Name: "Durham", Latitude: 35.9940, Longitude: -78.8986, SearchRadiusMeters: defaultRadius},
			{Name: "Greensboro", Latitude: 36.0726, Longitude: -79.7920, SearchRadiusMeters: defaultRadius},
		}},
		{Code: "SC", Name: "South Carolina", Cities: []model.CityEntry{
			{Name: "Charleston", Latitude: 32.7765, Longitude: -79.9311, SearchRadiusMeters: defaultRadius},
			{Name: "Columbia", Latitude: 34.0007, Longitude: -81.0348, SearchRadiusMeters: defaultRadius},
			{Name: "Greenville", Latitude: 34.8526, Longitude: -82.3940, SearchRadiusMeters: defaultRadius},
		}},
		{Code: "GA", Name: "Georgia", Cities: []model.CityEntry{
			{Name: "Atlanta", Latitude: 33.7490, Longitude: -84.3880, SearchRadiusMeters: defaultRadius},
			{Name: "Savannah", Latitude: 32.0809, Longitude: -81.0912, SearchRadiusMeters: defaultRadius},
			{Name: "Athens", Latitude: 33.9519, Longitude: -83.3576, SearchRadiusMeters: defaultRadius},
		}},
		{Code: "FL", Name: "Florida", Cities: []model.CityEntry{
			{Name: "Miami", Latitude: 25.7617, Longitude: -80.1918, SearchRadiusMeters: defaultRadius},
			{Name: "Orlando", Latitude: 28.5383, Longitude: -81.3792, SearchRadiusMeters: defaultRadius},
			{Name: "Tampa", Latitude: 27.9506, Longitude: -82.4572, SearchRadiusMeters: defaultRadius},
		}},
		{Code: "TN", Name: "Tennessee", Cities: []model.CityEntry{
			{Name: "Nashville", Latitude: 36.1627, Longitude: -86.7816, SearchRadiusMeters: defaultRadius},
			{Name: "Memphis", Latitude: 35.1495, Longitude: -90.0490, SearchRadiusMeters: defaultRadius},
			{Name: "Knoxville", Latitude: 35.9606, Longitude: -83.9207, SearchRadiusMeters: defaultRadius},
		}},
		{Code: "VA", Name: "Virginia", Cities: []model.CityEntry{
			{Name: "Richmond", Latitude: 37.5407, Longitude: -77.4360, SearchRadiusMeters: defaultRadius},
			{Name: "Virginia Beach", Latitude: 36.8529, Longitude: -75.9780, SearchRadiusMeters: defaultRadius},
			{Name: "Norfolk", Latitude: 36.8508, Longitude: -76.2859, SearchRadiusMeters: defaultRadius},
		}},
	}
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) ([]model.StateEntry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and checks it for obvious mistakes.
func Parse(data []byte) ([]model.StateEntry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	if len(f.States) == 0 {
		return nil, eris.New("catalog: no states defined")
	}

	seen := make(map[string]struct{}, len(f.States))
	for i := range f.States {
		st := &f.States[i]
		st.Code = strings.ToUpper(strings.TrimSpace(st.Code))
		if st.Code == "" {
			return nil, eris.Errorf("catalog: state %d has no code", i)
		}
		if _, dup := seen[st.Code]; dup {
			return nil, eris.Errorf("catalog: duplicate state %s", st.Code)
		}
		seen[st.Code] = struct{}{}
		for j, c := range st.Cities {
			if c.Name == "" {
				return nil, eris.Errorf("catalog: %s city %d has no name", st.Code, j)
			}
			if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
				return nil, eris.Errorf("catalog: %s/%s coordinates out of range", st.Code, c.Name)
			}
			if c.SearchRadiusMeters <= 0 {
				st.Cities[j].SearchRadiusMeters = defaultRadius
			}
		}
	}
	return f.States, nil
}

// Marshal encodes a catalog as YAML in the same shape Parse reads.
func Marshal(states []model.StateEntry) ([]byte, error) {
	data, err := yaml.Marshal(File{States: states})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal yaml")
	}
	return data, nil
}

// Select keeps the states whose codes are listed, in catalog order.
// An empty list selects everything.
func Select(states []model.StateEntry, codes []string) ([]model.StateEntry, error) {
	if len(codes) == 0 {
		return states, nil
	}

	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[strings.ToUpper(strings.TrimSpace(c))] = false
	}

	var out []model.StateEntry
	for _, st := range states {
		if _, ok := want[st.Code]; ok {
			want[st.Code] = true
			out = append(out, st)
		}
	}

	for code, found := range want {
		if !found {
			return nil, eris.Errorf("catalog: unknown state %q", code)
		}
	}
	return out, nil
}

// Find returns the state with the given code.
func Find(states []model.StateEntry, code string) (model.StateEntry, bool) {
	code = strings.ToUpper(code)
	for _, st := range states {
		if st.Code == code {
			return st, true
		}
	}
	return model.StateEntry{}, false
}

// CityNames lists every city in catalog order.
func CityNames(states []model.StateEntry) []string {
	var names []string
	for _, st := range states {
		for _, c := range st.Cities {
			names = append(names, c.Name)
		}
	}
	return names
}
