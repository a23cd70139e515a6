// Package assets scaffolds the per-city skyline image sets of the app's asset catalog.
package assets

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const contentsFile = "Contents.json"

// Info is the asset catalog authoring block.
type Info struct {
	Author  string `json:"author"`
	Version int    `json:"version"`
}

// Image is one slot of an image set.
type Image struct {
	Filename string `json:"filename,omitempty"`
	Idiom    string `json:"idiom"`
	Scale    string `json:"scale"`
}

// ImageSet is the Contents.json of a .imageset directory.
type ImageSet struct {
	Images []Image `json:"images"`
	Info   Info    `json:"info"`
}

// Folder is the Contents.json of a plain asset folder.
type Folder struct {
	Info Info `json:"info"`
}

var xcodeInfo = Info{Author: "xcode", Version: 1}

// Slug lower-cases a city name, folds accents and joins words with underscores.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(folded)), "_")
}

// SkylineImageSet returns the image set for a slug: the named 1x image plus
// empty 2x and 3x slots.
func SkylineImageSet(slug string) ImageSet {
	return ImageSet{
		Images: []Image{
			{Filename: slug + "_skyline.jpg", Idiom: "universal", Scale: "1x"},
			{Idiom: "universal", Scale: "2x"},
			{Idiom: "universal", Scale: "3x"},
		},
		Info: xcodeInfo,
	}
}

// Result lists what Generate wrote.
type Result struct {
	Slugs []string
}

// Generate writes dir/Contents.json and one skyline image set per distinct city
// slug. Existing files are overwritten; images are never touched.
func Generate(dir string, cities []string) (*Result, error) {
	log := zap.L().With(zap.String("component", "assets"), zap.String("dir", dir))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "assets: create %s", dir)
	}
	if err := writeJSON(filepath.Join(dir, contentsFile), Folder{Info: xcodeInfo}); err != nil {
		return nil, err
	}

	res := &Result{}
	seen := make(map[string]struct{}, len(cities))
	for _, city := range cities {
		slug := Slug(city)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		setDir := filepath.Join(dir, slug+"_skyline.imageset")
		if err := os.MkdirAll(setDir, 0o755); err != nil {
			return res, eris.Wrapf(err, "assets: create %s", setDir)
		}
		if err := writeJSON(filepath.Join(setDir, contentsFile), SkylineImageSet(slug)); err != nil {
			return res, err
		}
		res.Slugs = append(res.Slugs, slug)
		log.Debug("wrote image set", zap.String("slug", slug))
	}

	log.Info("asset stubs written", zap.Int("image_sets", len(res.Slugs)))
	return res, nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "assets: encode %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "assets: write %s", path)
	}
	return nil
}
