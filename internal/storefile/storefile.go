// Package storefile reads and writes the persisted store catalog (stores.json).
package storefile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/thriftndrift/storecollect/internal/model"
)

// Read decodes the catalog at path into typed records. Missing files and
// invalid JSON are errors. Use it for read-only views; writers go through
// Document so records they do not own are kept as written.
func Read(path string) (*model.PersistedCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "storefile: read %s", path)
	}

	cat := model.NewPersistedCatalog()
	if err := json.Unmarshal(data, cat); err != nil {
		return nil, eris.Wrapf(err, "storefile: decode %s", path)
	}
	if cat.States == nil {
		cat.States = make(map[string]model.StateStores)
	}
	return cat, nil
}

// Save writes a typed catalog to path, indented two spaces.
func Save(path string, cat *model.PersistedCatalog) error {
	if cat.States == nil {
		cat.States = make(map[string]model.StateStores)
	}
	return writeAtomic(path, cat)
}

// writeAtomic encodes v indented two spaces and replaces path with it, so a
// crash mid-write keeps the previous version.
func writeAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "storefile: encode catalog")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "storefile: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "storefile: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "storefile: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "storefile: close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrap(err, "storefile: chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "storefile: replace %s", path)
	}
	return nil
}
