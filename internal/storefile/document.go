package storefile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thriftndrift/storecollect/internal/model"
)

const statesKey = "states"

// Document is stores.json held as raw JSON per state. Only the states a run
// touches are decoded or re-encoded; every other state and any top-level key
// besides "states" is written back unchanged.
type Document struct {
	fields map[string]json.RawMessage
	states map[string]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		fields: make(map[string]json.RawMessage),
		states: make(map[string]json.RawMessage),
	}
}

// ParseDocument splits data into top-level fields and per-state entries.
// The document must be an object and "states", when present and not null,
// must be an object too.
func ParseDocument(data []byte) (*Document, error) {
	d := NewDocument()
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, eris.Wrap(err, "storefile: decode document")
	}
	if top == nil {
		return nil, eris.New("storefile: document is null")
	}

	if raw, ok := top[statesKey]; ok {
		var states map[string]json.RawMessage
		if err := json.Unmarshal(raw, &states); err != nil {
			return nil, eris.Wrap(err, "storefile: decode states")
		}
		if states != nil {
			d.states = states
		}
		delete(top, statesKey)
	}
	d.fields = top
	return d, nil
}

// ReadDocument parses the file at path.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "storefile: read %s", path)
	}
	d, err := ParseDocument(data)
	if err != nil {
		return nil, eris.Wrapf(err, "storefile: parse %s", path)
	}
	return d, nil
}

// LoadOrEmpty returns the document at path, or an empty one when the file is
// absent or is not a JSON object with a "states" object. It never fails.
func LoadOrEmpty(path string) *Document {
	log := zap.L().With(zap.String("component", "storefile"), zap.String("path", path))

	d, err := ReadDocument(path)
	if err == nil {
		log.Info("loaded existing catalog", zap.Int("states", len(d.states)))
		return d
	}

	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no existing catalog, starting fresh")
	} else {
		log.Warn("error reading existing catalog, starting fresh", zap.Error(err))
	}
	return NewDocument()
}

// Codes returns the state codes in sorted order.
func (d *Document) Codes() []string {
	return slices.Sorted(maps.Keys(d.states))
}

// Raw returns the stored bytes of one state entry.
func (d *Document) Raw(code string) (json.RawMessage, bool) {
	raw, ok := d.states[code]
	return raw, ok
}

// SetState replaces one state's entry.
func (d *Document) SetState(code string, st model.StateStores) error {
	if st.Stores == nil {
		st.Stores = []model.StoreRecord{}
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return eris.Wrapf(err, "storefile: encode state %s", code)
	}
	d.states[code] = raw
	return nil
}

// MergeState writes fresh records first and keeps the state's previous
// records whose id was not re-fetched, as written. Extra keys of the previous
// entry are kept; "name" and "stores" are replaced. It returns the number of
// stores in the merged entry.
func (d *Document) MergeState(code string, fresh model.StateStores) (int, error) {
	prevRaw, ok := d.states[code]
	if !ok {
		return len(fresh.Stores), d.SetState(code, fresh)
	}

	var prev map[string]json.RawMessage
	if err := json.Unmarshal(prevRaw, &prev); err != nil {
		return 0, eris.Wrapf(err, "storefile: decode state %s", code)
	}
	if prev == nil {
		prev = make(map[string]json.RawMessage)
	}
	var prevStores []json.RawMessage
	if raw, ok := prev["stores"]; ok {
		if err := json.Unmarshal(raw, &prevStores); err != nil {
			return 0, eris.Wrapf(err, "storefile: decode stores of %s", code)
		}
	}

	seen := make(map[string]struct{}, len(fresh.Stores)+len(prevStores))
	records := make([]json.RawMessage, 0, len(fresh.Stores)+len(prevStores))
	for _, s := range fresh.Stores {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		raw, err := json.Marshal(s)
		if err != nil {
			return 0, eris.Wrapf(err, "storefile: encode store %s", s.ID)
		}
		records = append(records, raw)
	}
	for _, raw := range prevStores {
		if id, ok := recordID(raw); ok {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		records = append(records, raw)
	}

	name, err := json.Marshal(fresh.Name)
	if err != nil {
		return 0, eris.Wrapf(err, "storefile: encode name of %s", code)
	}
	stores, err := json.Marshal(records)
	if err != nil {
		return 0, eris.Wrapf(err, "storefile: encode stores of %s", code)
	}
	prev["name"] = name
	prev["stores"] = stores

	merged, err := json.Marshal(prev)
	if err != nil {
		return 0, eris.Wrapf(err, "storefile: encode state %s", code)
	}
	d.states[code] = merged
	return len(records), nil
}

// recordID reads the string id of a raw record. Records without one are
// never treated as duplicates.
func recordID(raw json.RawMessage) (string, bool) {
	var rec struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == nil {
		return "", false
	}
	return *rec.ID, true
}

// MarshalJSON emits the top-level fields with "states" alongside them.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.fields)+1)
	maps.Copy(out, d.fields)

	states, err := json.Marshal(d.states)
	if err != nil {
		return nil, err
	}
	out[statesKey] = states
	return json.Marshal(out)
}

// SaveDocument writes d to path, indented two spaces, replacing the file atomically.
func SaveDocument(path string, d *Document) error {
	return writeAtomic(path, d)
}
