package collect

import (
	"strings"
	"time"

	"github.com/thriftndrift/storecollect/internal/model"
	"github.com/thriftndrift/storecollect/pkg/google"
)

// lastVerifiedLayout matches the ISO-8601 UTC form the app already parses.
const lastVerifiedLayout = "2006-01-02T15:04:05.000000Z"

// PriceRange renders a price level as repeated currency symbols. Levels below
// one, including an absent level, render as a single symbol.
func PriceRange(level int) string {
	return strings.Repeat("$", max(level, 1))
}

// BuildStoreRecord maps a place's details into a StoreRecord. Feature flags are
// fixed best-effort defaults for thrift stores, not derived from API data.
func BuildStoreRecord(placeID string, d google.PlaceDetails, now time.Time) model.StoreRecord {
	var lat, lng float64
	if d.Geometry != nil {
		lat = d.Geometry.Location.Lat
		lng = d.Geometry.Location.Lng
	}

	var phone *string
	if d.FormattedPhoneNumber != "" {
		p := d.FormattedPhoneNumber
		phone = &p
	}

	return model.StoreRecord{
		ID:                    placeID,
		Name:                  d.Name,
		Description:           "",
		Address:               d.FormattedAddress,
		Latitude:              lat,
		Longitude:             lng,
		PhoneNumber:           phone,
		Website:               d.Website,
		Rating:                d.Rating,
		ReviewCount:           d.UserRatingsTotal,
		PriceRange:            PriceRange(d.PriceLevel),
		Categories:            uniqueStrings(d.Types),
		AcceptsDonations:      true,
		HasClothingSection:    true,
		HasFurnitureSection:   false,
		HasElectronicsSection: false,
		LastVerified:          now.UTC().Format(lastVerifiedLayout),
		IsUserSubmitted:       false,
		VerificationStatus:    model.VerificationVerified,
	}
}

// isEmptyDetails reports whether a details payload carried nothing usable.
func isEmptyDetails(d google.PlaceDetails) bool {
	return d.Name == "" && d.FormattedAddress == "" && d.Geometry == nil
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
