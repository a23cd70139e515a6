// Package export writes the persisted store catalog as a spreadsheet.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/thriftndrift/storecollect/internal/model"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Header is the column header shared by both formats.
var Header = []string{
	"state", "id", "name", "address", "city", "zip",
	"latitude", "longitude", "phone", "website",
	"rating", "review_count", "price_range", "categories",
	"last_verified", "verification_status",
}

// ParseFormat resolves an explicit format name, falling back to the extension of path.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch Format(strings.ToLower(name)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unsupported format %q (csv or xlsx)", name)
}

// Row flattens one store into the Header column order.
func Row(code string, s model.StoreRecord) []string {
	_, city, _, zip := s.AddressParts()
	return []string{
		code,
		s.ID,
		s.Name,
		s.Address,
		city,
		zip,
		strconv.FormatFloat(s.Latitude, 'f', 6, 64),
		strconv.FormatFloat(s.Longitude, 'f', 6, 64),
		s.Phone(),
		s.Website,
		strconv.FormatFloat(s.Rating, 'f', 1, 64),
		strconv.Itoa(s.ReviewCount),
		s.PriceRange,
		strings.Join(s.Categories, ";"),
		s.LastVerified,
		string(s.VerificationStatus),
	}
}

// WriteCSV writes every store, states in code order, as CSV with a header row.
func WriteCSV(w io.Writer, cat *model.PersistedCatalog) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, eris.Wrap(err, "export: write csv header")
	}

	n := 0
	for _, code := range cat.Codes() {
		for _, s := range cat.States[code].Stores {
			if err := cw.Write(Row(code, s)); err != nil {
				return n, eris.Wrapf(err, "export: write csv row %s", s.ID)
			}
			n++
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, eris.Wrap(err, "export: flush csv")
	}
	return n, nil
}

// WriteXLSX saves a workbook at path with one sheet per state, named by state code.
// An empty catalog produces a single header-only sheet.
func WriteXLSX(path string, cat *model.PersistedCatalog) (int, error) {
	f := xlsx.NewFile()

	codes := cat.Codes()
	if len(codes) == 0 {
		if _, err := addSheet(f, "stores"); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, code := range codes {
		sheet, err := addSheet(f, code)
		if err != nil {
			return n, err
		}
		for _, s := range cat.States[code].Stores {
			appendRow(sheet, Row(code, s))
			n++
		}
	}

	if err := f.Save(path); err != nil {
		return n, eris.Wrapf(err, "export: save %s", path)
	}
	return n, nil
}

// WriteFile exports cat to path in the given format and returns the row count.
func WriteFile(path string, format Format, cat *model.PersistedCatalog) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrapf(err, "export: create %s", dir)
		}
	}

	switch format {
	case FormatXLSX:
		return WriteXLSX(path, cat)
	case FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrapf(err, "export: create %s", path)
		}
		n, err := WriteCSV(f, cat)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = eris.Wrapf(cerr, "export: close %s", path)
		}
		return n, err
	}
	return 0, eris.Errorf("export: unsupported format %q", format)
}

func addSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", name)
	}
	appendRow(sheet, Header)
	return sheet, nil
}

func appendRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
