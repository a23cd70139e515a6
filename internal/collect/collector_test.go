package collect

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thriftndrift/storecollect/internal/model"
	"github.com/thriftndrift/storecollect/internal/storefile"
	"github.com/thriftndrift/storecollect/pkg/google"
	"github.com/thriftndrift/storecollect/pkg/google/mocks"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var durham = model.CityEntry{Name: "Durham", Latitude: 35.9940, Longitude: -78.8986, SearchRadiusMeters: 50000}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestCollector(client google.Client, sl Sleeper, opts Options) *Collector {
	opts.Sleeper = sl
	opts.Now = func() time.Time { return fixedNow }
	if len(opts.Queries) == 0 {
		opts.Queries = []string{"goodwill"}
	}
	return NewCollector(client, opts)
}

func searchReq(query string, city model.CityEntry, token string) google.TextSearchRequest {
	return google.TextSearchRequest{
		Query:        query + " in " + city.Name,
		Location:     &google.LatLng{Lat: city.Latitude, Lng: city.Longitude},
		RadiusMeters: city.SearchRadiusMeters,
		PageToken:    token,
	}
}

func details(name string) *google.PlaceDetailsResponse {
	return &google.PlaceDetailsResponse{
		Status: "OK",
		Result: google.PlaceDetails{
			Name:             name,
			FormattedAddress: "1 Main St, Durham, NC 27701, USA",
			Geometry:         &google.Geometry{Location: google.LatLng{Lat: 36, Lng: -78.9}},
		},
	}
}

func results(ids ...string) []google.SearchResult {
	out := make([]google.SearchResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, google.SearchResult{PlaceID: id})
	}
	return out
}

func ids(stores []model.StoreRecord) []string {
	out := make([]string, 0, len(stores))
	for _, s := range stores {
		out = append(out, s.ID)
	}
	return out
}

func TestSearchCity_SingleResult(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("X")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "X", google.DefaultDetailFields).
		Return(details("Goodwill Store"), nil).Once()

	sl := &recordingSleeper{}
	c := newTestCollector(client, sl, Options{})

	stores, queries := c.SearchCity(context.Background(), durham)

	require.Len(t, stores, 1)
	assert.Equal(t, "X", stores[0].ID)
	assert.Equal(t, "Goodwill Store", stores[0].Name)
	assert.Equal(t, "2024-05-01T12:00:00.000000Z", stores[0].LastVerified)
	assert.Equal(t, "$", stores[0].PriceRange)
	assert.True(t, stores[0].AcceptsDonations)
	require.Len(t, queries, 1)
	assert.True(t, queries[0].OK())
	assert.Equal(t, 1, queries[0].Pages)
	assert.Equal(t, 1, queries[0].Added)
	assert.Empty(t, sl.waits)
}

func TestSearchCity_FollowsPageTokens(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A", "B"), NextPageToken: "t2"}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "t2")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("C"), NextPageToken: "t3"}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "t3")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("D")}, nil).Once()
	for _, id := range []string{"A", "B", "C", "D"} {
		client.On("PlaceDetails", mock.Anything, id, google.DefaultDetailFields).Return(details(id), nil).Once()
	}

	sl := &recordingSleeper{}
	c := newTestCollector(client, sl, Options{PageTokenDelay: 2 * time.Second})

	stores, queries := c.SearchCity(context.Background(), durham)

	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(stores))
	assert.Equal(t, 3, queries[0].Pages)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sl.waits)
}

func TestSearchCity_DedupAcrossQueries(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A", "B")}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("thrift store", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("B", "C", "")}, nil).Once()
	// B is fetched once; the second sighting is skipped before any details call.
	client.On("PlaceDetails", mock.Anything, "A", google.DefaultDetailFields).Return(details("A"), nil).Once()
	client.On("PlaceDetails", mock.Anything, "B", google.DefaultDetailFields).Return(details("B"), nil).Once()
	client.On("PlaceDetails", mock.Anything, "C", google.DefaultDetailFields).Return(details("C"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Queries: []string{"goodwill", "thrift store"}})

	stores, queries := c.SearchCity(context.Background(), durham)

	assert.Equal(t, []string{"A", "B", "C"}, ids(stores))
	require.Len(t, queries, 2)
	assert.Equal(t, 2, queries[0].Added)
	assert.Equal(t, 1, queries[1].Added)
}

func TestSearchCity_FailedQueryContinues(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(nil, errors.New("google: text search: status OVER_QUERY_LIMIT")).Once()
	client.On("TextSearch", mock.Anything, searchReq("salvation army", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("S")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "S", google.DefaultDetailFields).Return(details("S"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Queries: []string{"goodwill", "salvation army"}})

	stores, queries := c.SearchCity(context.Background(), durham)

	assert.Equal(t, []string{"S"}, ids(stores))
	require.Len(t, queries, 2)
	assert.False(t, queries[0].OK())
	assert.Contains(t, queries[0].Err.Error(), "OVER_QUERY_LIMIT")
	assert.True(t, queries[1].OK())
}

func TestSearchCity_FailedPageKeepsEarlierResults(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A"), NextPageToken: "t2"}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "t2")).
		Return(nil, errors.New("google: text search: status INVALID_REQUEST")).Once()
	client.On("PlaceDetails", mock.Anything, "A", google.DefaultDetailFields).Return(details("A"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{})

	stores, queries := c.SearchCity(context.Background(), durham)

	assert.Equal(t, []string{"A"}, ids(stores))
	assert.Equal(t, 1, queries[0].Pages)
	assert.Error(t, queries[0].Err)
}

func TestSearchCity_DetailFailuresSkipped(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A", "B", "C")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "A", google.DefaultDetailFields).
		Return(nil, errors.New("google: place details A: status NOT_FOUND")).Once()
	client.On("PlaceDetails", mock.Anything, "B", google.DefaultDetailFields).
		Return(&google.PlaceDetailsResponse{Status: "OK"}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "C", google.DefaultDetailFields).Return(details("C"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{})

	stores, queries := c.SearchCity(context.Background(), durham)

	assert.Equal(t, []string{"C"}, ids(stores))
	assert.True(t, queries[0].OK())
	assert.Equal(t, 2, queries[0].DetailFailures)
	assert.Equal(t, 1, queries[0].Added)
}

func TestSearchCity_CachesDetails(t *testing.T) {
	raleigh := model.CityEntry{Name: "Raleigh", Latitude: 35.7796, Longitude: -78.6382, SearchRadiusMeters: 50000}

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A")}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("goodwill", raleigh, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "A", google.DefaultDetailFields).Return(details("A"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{})

	first, _ := c.SearchCity(context.Background(), durham)
	second, _ := c.SearchCity(context.Background(), raleigh)

	assert.Equal(t, ids(first), ids(second))
}

func TestSearchCity_CanceledContext(t *testing.T) {
	client := mocks.NewMockClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCollector(client, &recordingSleeper{}, Options{})
	stores, queries := c.SearchCity(ctx, durham)

	assert.Empty(t, stores)
	assert.Empty(t, queries)
}

func TestFetchState_DedupAcrossCities(t *testing.T) {
	raleigh := model.CityEntry{Name: "Raleigh", Latitude: 35.7796, Longitude: -78.6382, SearchRadiusMeters: 50000}
	st := model.StateEntry{Code: "NC", Name: "North Carolina", Cities: []model.CityEntry{durham, raleigh}}

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("A", "B")}, nil).Once()
	client.On("TextSearch", mock.Anything, searchReq("goodwill", raleigh, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("B", "C")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, mock.AnythingOfType("string"), google.DefaultDetailFields).
		Return(func(_ context.Context, id string, _ []string) (*google.PlaceDetailsResponse, error) {
			return details(id), nil
		})

	sl := &recordingSleeper{}
	c := newTestCollector(client, sl, Options{CityDelay: 2 * time.Second})

	entry, report, err := c.FetchState(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, "North Carolina", entry.Name)
	assert.Equal(t, []string{"A", "B", "C"}, ids(entry.Stores))
	require.Len(t, report.Cities, 2)
	assert.Equal(t, 2, report.Cities[1].Stores)
	assert.Equal(t, 0, report.FailedQueries())
	assert.Equal(t, []time.Duration{2 * time.Second}, sl.waits)
}

func TestFetchState_NoCities(t *testing.T) {
	c := newTestCollector(mocks.NewMockClient(t), &recordingSleeper{}, Options{})

	entry, _, err := c.FetchState(context.Background(), model.StateEntry{Code: "NC", Name: "North Carolina"})
	require.NoError(t, err)
	assert.NotNil(t, entry.Stores)
	assert.Empty(t, entry.Stores)
}

func TestCheckAccess(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Geocode", mock.Anything, AccessCheckAddress).
		Return(&google.GeocodeResponse{Status: "OK"}, nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{})
	assert.NoError(t, c.CheckAccess(context.Background()))
}

func TestCheckAccess_Denied(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Geocode", mock.Anything, AccessCheckAddress).
		Return(nil, errors.New("google: geocode: status REQUEST_DENIED")).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{})
	err := c.CheckAccess(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
}

func singleCityState(code, name string, city model.CityEntry) model.StateEntry {
	return model.StateEntry{Code: code, Name: name, Cities: []model.CityEntry{city}}
}

func writeCatalog(t *testing.T, path string, cat *model.PersistedCatalog) {
	t.Helper()
	require.NoError(t, storefile.Save(path, cat))
}

func TestRun_ReplacesStateAndKeepsOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")

	prev := model.NewPersistedCatalog()
	prev.States["NC"] = model.StateStores{Name: "North Carolina", Stores: []model.StoreRecord{{ID: "OLD"}}}
	prev.States["SC"] = model.StateStores{Name: "South Carolina", Stores: []model.StoreRecord{{ID: "SC1"}}}
	writeCatalog(t, path, prev)

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("X")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "X", google.DefaultDetailFields).Return(details("X"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Output: path})

	summary, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stores())

	got, err := storefile.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, ids(got.States["NC"].Stores))
	assert.Equal(t, []string{"SC1"}, ids(got.States["SC"].Stores))
}

func TestRun_MergeKeepsUnrefetchedStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")

	prev := model.NewPersistedCatalog()
	prev.States["NC"] = model.StateStores{Name: "North Carolina", Stores: []model.StoreRecord{
		{ID: "X", Name: "stale"},
		{ID: "OLD"},
	}}
	writeCatalog(t, path, prev)

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "OK", Results: results("X")}, nil).Once()
	client.On("PlaceDetails", mock.Anything, "X", google.DefaultDetailFields).Return(details("fresh"), nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Output: path, Merge: true})

	summary, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Stores())

	got, err := storefile.Read(path)
	require.NoError(t, err)
	stores := got.States["NC"].Stores
	assert.Equal(t, []string{"X", "OLD"}, ids(stores))
	assert.Equal(t, "fresh", stores[0].Name)
}

func TestRun_InvalidExistingFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "ZERO_RESULTS"}, nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Output: path})

	_, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[]`, string(raw["states"]["NC"]["stores"]))
	assert.JSONEq(t, `"North Carolina"`, string(raw["states"]["NC"]["name"]))
}

func TestRun_SleepsBetweenStatesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	charleston := model.CityEntry{Name: "Charleston", Latitude: 32.7765, Longitude: -79.9311, SearchRadiusMeters: 50000}

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&google.TextSearchResponse{Status: "ZERO_RESULTS"}, nil).Twice()

	sl := &recordingSleeper{}
	c := newTestCollector(client, sl, Options{Output: path, StateDelay: 5 * time.Second, CityDelay: time.Second})

	summary, err := c.Run(context.Background(), []model.StateEntry{
		singleCityState("NC", "North Carolina", durham),
		singleCityState("SC", "South Carolina", charleston),
	})
	require.NoError(t, err)
	require.Len(t, summary.States, 2)
	assert.Equal(t, []time.Duration{5 * time.Second}, sl.waits)
}

func TestRun_CanceledStateNotSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	ctx, cancel := context.WithCancel(context.Background())

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Run(func(mock.Arguments) { cancel() }).
		Return(&google.TextSearchResponse{Status: "ZERO_RESULTS"}, nil).Once()

	c := newTestCollector(client, &recordingSleeper{}, Options{Output: path})

	_, err := c.Run(ctx, []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_RequiresOutput(t *testing.T) {
	c := newTestCollector(mocks.NewMockClient(t), &recordingSleeper{}, Options{})
	_, err := c.Run(context.Background(), nil)
	assert.Error(t, err)
}

func zeroResultsClient(t *testing.T) *mocks.MockClient {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, searchReq("goodwill", durham, "")).
		Return(&google.TextSearchResponse{Status: "ZERO_RESULTS"}, nil).Once()
	return client
}

func savedStates(t *testing.T, path string) (map[string]json.RawMessage, map[string]json.RawMessage) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	var states map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(top["states"], &states))
	return top, states
}

func TestRun_KeepsOtherStatesAsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	sc := `{"name": "South Carolina", "stores": [
		{"id": "s1", "name": "Keep Me", "phoneNumber": 8435550100, "isFeatured": true},
		{"id": "k"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(`{"schema": 2, "states": {"SC": `+sc+`}}`), 0o644))

	c := newTestCollector(zeroResultsClient(t), &recordingSleeper{}, Options{Output: path})
	_, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)

	top, states := savedStates(t, path)
	assert.JSONEq(t, `2`, string(top["schema"]))
	assert.JSONEq(t, sc, string(states["SC"]))
	assert.JSONEq(t, `{"name": "North Carolina", "stores": []}`, string(states["NC"]))
}

func TestRun_MergeKeepsPreviousRecordsAsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"states": {"NC": {
		"name": "North Carolina",
		"stores": [{"id": "k"}, {"id": "s1", "phoneNumber": 8435550100}]
	}}}`), 0o644))

	c := newTestCollector(zeroResultsClient(t), &recordingSleeper{}, Options{Output: path, Merge: true})
	summary, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Stores())

	_, states := savedStates(t, path)
	assert.JSONEq(t, `{"name": "North Carolina", "stores": [
		{"id": "k"}, {"id": "s1", "phoneNumber": 8435550100}
	]}`, string(states["NC"]))
}

func TestRun_MergeReplacesUndecodableEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"states": {"NC": {"stores": "broken"}}}`), 0o644))

	c := newTestCollector(zeroResultsClient(t), &recordingSleeper{}, Options{Output: path, Merge: true})
	_, err := c.Run(context.Background(), []model.StateEntry{singleCityState("NC", "North Carolina", durham)})
	require.NoError(t, err)

	_, states := savedStates(t, path)
	assert.JSONEq(t, `{"name": "North Carolina", "stores": []}`, string(states["NC"]))
}
