// Package google is a small client for the Google Maps Places and Geocoding web services.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com"

const (
	textSearchPath = "/maps/api/place/textsearch/json"
	detailsPath    = "/maps/api/place/details/json"
	geocodePath    = "/maps/api/geocode/json"
)

// DefaultDetailFields is the field mask requested for each place.
var DefaultDetailFields = []string{
	"name",
	"formatted_address",
	"geometry/location",
	"formatted_phone_number",
	"website",
	"rating",
	"user_ratings_total",
	"current_opening_hours",
	"type",
	"price_level",
}

// Client performs Google Maps web service operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
	PlaceDetails(ctx context.Context, placeID string, fields []string) (*PlaceDetailsResponse, error)
	Geocode(ctx context.Context, address string) (*GeocodeResponse, error)
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TextSearchRequest is a location-biased text search. When PageToken is set the
// API returns the next page of the original query.
type TextSearchRequest struct {
	Query        string
	Location     *LatLng
	RadiusMeters int
	PageToken    string
}

// TextSearchResponse is one page of text search results.
type TextSearchResponse struct {
	Results       []SearchResult `json:"results"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// SearchResult is a place returned by text search.
type SearchResult struct {
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	FormattedAddress string    `json:"formatted_address,omitempty"`
	Geometry         *Geometry `json:"geometry,omitempty"`
	Rating           float64   `json:"rating,omitempty"`
	UserRatingsTotal int       `json:"user_ratings_total,omitempty"`
	Types            []string  `json:"types,omitempty"`
}

// Geometry holds a place location.
type Geometry struct {
	Location LatLng `json:"location"`
}

// OpeningHours is the subset of opening hours the collector reads.
type OpeningHours struct {
	OpenNow     bool     `json:"open_now"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// PlaceDetails holds the extended fields of a single place.
type PlaceDetails struct {
	Name                 string        `json:"name"`
	FormattedAddress     string        `json:"formatted_address"`
	Geometry             *Geometry     `json:"geometry,omitempty"`
	FormattedPhoneNumber string        `json:"formatted_phone_number,omitempty"`
	Website              string        `json:"website,omitempty"`
	Rating               float64       `json:"rating,omitempty"`
	UserRatingsTotal     int           `json:"user_ratings_total,omitempty"`
	PriceLevel           int           `json:"price_level,omitempty"`
	Types                []string      `json:"types,omitempty"`
	CurrentOpeningHours  *OpeningHours `json:"current_opening_hours,omitempty"`
}

// PlaceDetailsResponse is the response from Place Details.
type PlaceDetailsResponse struct {
	Result       PlaceDetails `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// GeocodeResult is one geocoding match.
type GeocodeResult struct {
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id"`
	Geometry         Geometry `json:"geometry"`
}

// GeocodeResponse is the response from the Geocoding API.
type GeocodeResponse struct {
	Results      []GeocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL. A blank url keeps the default.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(url), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Maps web service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	params := url.Values{}
	if req.Query != "" {
		params.Set("query", req.Query)
	}
	if req.Location != nil {
		params.Set("location", formatLatLng(*req.Location))
	}
	if req.RadiusMeters > 0 {
		params.Set("radius", strconv.Itoa(req.RadiusMeters))
	}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	}
	if params.Get("query") == "" && params.Get("pagetoken") == "" {
		return nil, eris.New("google: text search needs a query or page token")
	}

	var result TextSearchResponse
	if err := c.get(ctx, textSearchPath, params, &result); err != nil {
		return nil, eris.Wrap(err, "google: text search")
	}
	if err := checkStatus(result.Status, result.ErrorMessage); err != nil {
		return nil, eris.Wrap(err, "google: text search")
	}
	return &result, nil
}

func (c *httpClient) PlaceDetails(ctx context.Context, placeID string, fields []string) (*PlaceDetailsResponse, error) {
	if placeID == "" {
		return nil, eris.New("google: place details needs a place id")
	}
	params := url.Values{"place_id": {placeID}}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}

	var result PlaceDetailsResponse
	if err := c.get(ctx, detailsPath, params, &result); err != nil {
		return nil, eris.Wrapf(err, "google: place details %s", placeID)
	}
	if err := checkStatus(result.Status, result.ErrorMessage); err != nil {
		return nil, eris.Wrapf(err, "google: place details %s", placeID)
	}
	return &result, nil
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*GeocodeResponse, error) {
	var result GeocodeResponse
	if err := c.get(ctx, geocodePath, url.Values{"address": {address}}, &result); err != nil {
		return nil, eris.Wrap(err, "google: geocode")
	}
	if err := checkStatus(result.Status, result.ErrorMessage); err != nil {
		return nil, eris.Wrap(err, "google: geocode")
	}
	return &result, nil
}

// get issues a signed GET request and decodes the JSON body into out.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit")
		}
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full request URL, key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

// checkStatus maps the API status field to an error. ZERO_RESULTS is not a failure.
func checkStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "":
		return eris.New("missing status in response")
	}
	if message != "" {
		return eris.Errorf("status %s: %s", status, message)
	}
	return eris.Errorf("status %s", status)
}

func formatLatLng(ll LatLng) string {
	return strconv.FormatFloat(ll.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(ll.Lng, 'f', -1, 64)
}
