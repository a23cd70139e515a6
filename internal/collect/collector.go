// Package collect runs the sequential fetch-and-merge pipeline that builds the
// per-state thrift store catalog from the Places web service.
package collect

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thriftndrift/storecollect/internal/model"
	"github.com/thriftndrift/storecollect/internal/storefile"
	"github.com/thriftndrift/storecollect/pkg/google"
)

// AccessCheckAddress is geocoded once at startup to validate the credential.
const AccessCheckAddress = "1600 Amphitheatre Parkway, Mountain View, CA"

// Options configures a Collector. Zero values take the defaults noted per field.
type Options struct {
	Output         string        // stores.json path, required for Run
	Queries        []string      // required
	DetailFields   []string      // default google.DefaultDetailFields
	PageTokenDelay time.Duration // wait before reusing a next_page_token
	CityDelay      time.Duration // wait between cities
	StateDelay     time.Duration // wait between states
	DetailCacheTTL time.Duration // default 1h
	Merge          bool          // keep previously persisted stores not re-fetched
	Sleeper        Sleeper       // default timer based
	Now            func() time.Time
}

// Collector drives the Places client over a city catalog.
type Collector struct {
	client  google.Client
	opts    Options
	sleeper Sleeper
	now     func() time.Time
	details *gocache.Cache
}

// NewCollector creates a Collector using the given client.
func NewCollector(client google.Client, opts Options) *Collector {
	if len(opts.DetailFields) == 0 {
		opts.DetailFields = google.DefaultDetailFields
	}
	if opts.DetailCacheTTL <= 0 {
		opts.DetailCacheTTL = time.Hour
	}

	c := &Collector{
		client:  client,
		opts:    opts,
		sleeper: opts.Sleeper,
		now:     opts.Now,
		details: gocache.New(opts.DetailCacheTTL, 2*opts.DetailCacheTTL),
	}
	if c.sleeper == nil {
		c.sleeper = timerSleeper{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// CheckAccess makes one geocoding call to confirm the credential works.
func (c *Collector) CheckAccess(ctx context.Context) error {
	if _, err := c.client.Geocode(ctx, AccessCheckAddress); err != nil {
		return eris.Wrap(err, "collect: api key check")
	}
	return nil
}

// RunSummary reports what a Run fetched and persisted.
type RunSummary struct {
	States []StateReport
}

// Stores returns the number of stores persisted across the run.
func (s *RunSummary) Stores() int {
	n := 0
	for _, st := range s.States {
		n += st.Stores
	}
	return n
}

// Run fetches every state in order, replacing (or merging into) each state's
// entry of the persisted catalog and rewriting the file after each state.
// A state interrupted by cancellation is not written.
func (c *Collector) Run(ctx context.Context, states []model.StateEntry) (*RunSummary, error) {
	if c.opts.Output == "" {
		return nil, eris.New("collect: output path is required")
	}
	log := zap.L().With(zap.String("component", "collect.run"))

	doc := storefile.LoadOrEmpty(c.opts.Output)
	summary := &RunSummary{}

	for i, st := range states {
		if i > 0 {
			if err := c.sleeper.Sleep(ctx, c.opts.StateDelay); err != nil {
				return summary, eris.Wrap(err, "collect: wait between states")
			}
		}

		log.Info("processing state", zap.String("state", st.Code), zap.String("name", st.Name))

		entry, report, err := c.FetchState(ctx, st)
		if err != nil {
			return summary, err
		}

		report.Stores, err = c.storeState(doc, st.Code, entry)
		if err != nil {
			return summary, eris.Wrapf(err, "collect: store %s", st.Code)
		}

		if err := storefile.SaveDocument(c.opts.Output, doc); err != nil {
			return summary, eris.Wrapf(err, "collect: save after %s", st.Code)
		}
		summary.States = append(summary.States, report)

		log.Info("saved state",
			zap.String("state", st.Code),
			zap.Int("stores", report.Stores),
			zap.Int("failed_queries", report.FailedQueries()),
		)
	}

	return summary, nil
}

// StateReport is the outcome of fetching one state.
type StateReport struct {
	Code   string
	Name   string
	Cities []CityReport
	Stores int
}

// FailedQueries counts queries that ended with an error.
func (r StateReport) FailedQueries() int {
	n := 0
	for _, city := range r.Cities {
		for _, q := range city.Queries {
			if q.Err != nil {
				n++
			}
		}
	}
	return n
}

// CityReport is the outcome of searching one city.
type CityReport struct {
	Name    string
	Stores  int
	Queries []QueryResult
}

// FetchState searches every city of st in order and concatenates the results,
// keeping the first occurrence of each place identifier. The only error is
// context cancellation; API failures are reported per query.
func (c *Collector) FetchState(ctx context.Context, st model.StateEntry) (model.StateStores, StateReport, error) {
	log := zap.L().With(zap.String("component", "collect.state"), zap.String("state", st.Code))

	report := StateReport{Code: st.Code, Name: st.Name}
	seen := make(map[string]struct{})
	stores := make([]model.StoreRecord, 0)

	for i, city := range st.Cities {
		if i > 0 {
			if err := c.sleeper.Sleep(ctx, c.opts.CityDelay); err != nil {
				return model.StateStores{}, report, eris.Wrap(err, "collect: wait between cities")
			}
		}

		log.Info("fetching stores", zap.String("city", city.Name))
		cityStores, queries := c.SearchCity(ctx, city)
		if err := ctx.Err(); err != nil {
			return model.StateStores{}, report, eris.Wrapf(err, "collect: %s interrupted", city.Name)
		}

		added := 0
		for _, s := range cityStores {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			stores = append(stores, s)
			added++
		}

		report.Cities = append(report.Cities, CityReport{Name: city.Name, Stores: len(cityStores), Queries: queries})
		log.Info("found stores",
			zap.String("city", city.Name),
			zap.Int("stores", len(cityStores)),
			zap.Int("new_in_state", added),
		)
	}

	return model.StateStores{Name: st.Name, Stores: stores}, report, nil
}

// QueryResult is the outcome of one query template for one city.
type QueryResult struct {
	Query          string
	Pages          int
	Added          int
	DetailFailures int
	Err            error
}

// OK reports whether the query ran to its last page.
func (r QueryResult) OK() bool { return r.Err == nil }

// SearchCity runs every query template for city and returns the unique stores
// found, in discovery order, with one result per query. A failing query never
// stops the remaining ones.
func (c *Collector) SearchCity(ctx context.Context, city model.CityEntry) ([]model.StoreRecord, []QueryResult) {
	seen := make(map[string]struct{})
	stores := make([]model.StoreRecord, 0)
	results := make([]QueryResult, 0, len(c.opts.Queries))

	for _, q := range c.opts.Queries {
		if ctx.Err() != nil {
			break
		}
		res := c.runQuery(ctx, city, q, seen, &stores)
		results = append(results, res)
	}
	return stores, results
}

func (c *Collector) runQuery(ctx context.Context, city model.CityEntry, query string, seen map[string]struct{}, stores *[]model.StoreRecord) QueryResult {
	log := zap.L().With(
		zap.String("component", "collect.search"),
		zap.String("city", city.Name),
		zap.String("query", query),
	)

	res := QueryResult{Query: query}
	req := google.TextSearchRequest{
		Query:        fmt.Sprintf("%s in %s", query, city.Name),
		Location:     &google.LatLng{Lat: city.Latitude, Lng: city.Longitude},
		RadiusMeters: city.SearchRadiusMeters,
	}

	for {
		resp, err := c.client.TextSearch(ctx, req)
		if err != nil {
			log.Warn("search failed", zap.Int("page", res.Pages+1), zap.Error(err))
			res.Err = err
			return res
		}
		res.Pages++

		for _, place := range resp.Results {
			if place.PlaceID == "" {
				continue
			}
			if _, dup := seen[place.PlaceID]; dup {
				continue
			}

			details, err := c.placeDetails(ctx, place.PlaceID)
			if err != nil {
				log.Warn("place details failed", zap.String("place_id", place.PlaceID), zap.Error(err))
				res.DetailFailures++
				continue
			}

			seen[place.PlaceID] = struct{}{}
			*stores = append(*stores, BuildStoreRecord(place.PlaceID, details, c.now()))
			res.Added++
		}

		if resp.NextPageToken == "" {
			return res
		}

		// The token only becomes valid a short while after it is issued.
		if err := c.sleeper.Sleep(ctx, c.opts.PageTokenDelay); err != nil {
			res.Err = err
			return res
		}
		req.PageToken = resp.NextPageToken
	}
}

// placeDetails returns the cached details for id or fetches them.
func (c *Collector) placeDetails(ctx context.Context, id string) (google.PlaceDetails, error) {
	if v, ok := c.details.Get(id); ok {
		return v.(google.PlaceDetails), nil
	}

	resp, err := c.client.PlaceDetails(ctx, id, c.opts.DetailFields)
	if err != nil {
		return google.PlaceDetails{}, err
	}
	if isEmptyDetails(resp.Result) {
		return google.PlaceDetails{}, eris.Errorf("collect: empty details for %s", id)
	}

	c.details.Set(id, resp.Result, gocache.DefaultExpiration)
	return resp.Result, nil
}

// storeState writes entry under code and returns the state's store count.
// In merge mode, a previous entry that cannot be decoded is replaced.
func (c *Collector) storeState(doc *storefile.Document, code string, entry model.StateStores) (int, error) {
	if c.opts.Merge {
		n, err := doc.MergeState(code, entry)
		if err == nil {
			return n, nil
		}
		zap.L().Warn("cannot merge previous entry, replacing it",
			zap.String("component", "collect.run"),
			zap.String("state", code),
			zap.Error(err),
		)
	}
	if err := doc.SetState(code, entry); err != nil {
		return 0, err
	}
	return len(entry.Stores), nil
}
