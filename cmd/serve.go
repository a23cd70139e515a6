package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thriftndrift/storecollect/internal/assets"
	"github.com/thriftndrift/storecollect/internal/model"
	"github.com/thriftndrift/storecollect/internal/query"
	"github.com/thriftndrift/storecollect/internal/storefile"
)

var (
	servePort    int
	serveInput   string
	serveCatalog string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only HTTP view of stores.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		input := serveInput
		if input == "" {
			input = cfg.Collect.Output
		}
		cat, err := storefile.Read(input)
		if err != nil {
			return err
		}
		cities, err := loadCatalog(serveCatalog, nil)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(cat, cities),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return runServer(ctx, srv)
	},
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type readAPI struct {
	cat    *model.PersistedCatalog
	cities map[string][]model.CityEntry
}

// buildRouter mounts the read API over an immutable catalog snapshot.
func buildRouter(cat *model.PersistedCatalog, states []model.StateEntry) http.Handler {
	api := &readAPI{cat: cat, cities: make(map[string][]model.CityEntry, len(states))}
	for _, st := range states {
		api.cities[st.Code] = st.Cities
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/states", api.listStates)
	r.Route("/states/{code}", func(r chi.Router) {
		r.Get("/stores", api.stateStores)
		r.Get("/cities", api.stateCities)
		r.Get("/cities/{city}/stores", api.cityStores)
	})
	r.Get("/stores/nearby", api.nearby)

	return r
}

func (a *readAPI) listStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, query.States(a.cat))
}

func (a *readAPI) state(w http.ResponseWriter, r *http.Request) (string, model.StateStores, bool) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	st, ok := a.cat.States[code]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("state %s not found", code))
	}
	return code, st, ok
}

func (a *readAPI) stateStores(w http.ResponseWriter, r *http.Request) {
	_, st, ok := a.state(w, r)
	if !ok {
		return
	}
	stores := query.Search(st.Stores, r.URL.Query().Get("q"))
	if stores == nil {
		stores = []model.StoreRecord{}
	}
	writeJSON(w, http.StatusOK, stores)
}

type cityView struct {
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Stores    int     `json:"stores"`
}

func (a *readAPI) stateCities(w http.ResponseWriter, r *http.Request) {
	code, st, ok := a.state(w, r)
	if !ok {
		return
	}
	out := make([]cityView, 0, len(a.cities[code]))
	for _, c := range a.cities[code] {
		out = append(out, cityView{
			Name:      c.Name,
			Slug:      assets.Slug(c.Name),
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Stores:    len(query.InCity(code, st.Stores, c)),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *readAPI) cityStores(w http.ResponseWriter, r *http.Request) {
	code, st, ok := a.state(w, r)
	if !ok {
		return
	}
	// Accepts the display name or its slug.
	want := assets.Slug(chi.URLParam(r, "city"))
	for _, c := range a.cities[code] {
		if assets.Slug(c.Name) == want {
			writeJSON(w, http.StatusOK, query.InCity(code, st.Stores, c))
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("city %s not found in %s", chi.URLParam(r, "city"), code))
}

func (a *readAPI) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "lat must be a number in [-90, 90]")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		writeError(w, http.StatusBadRequest, "lng must be a number in [-180, 180]")
		return
	}
	radius := float64(query.DefaultNearbyRadiusMeters)
	if v := q.Get("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			writeError(w, http.StatusBadRequest, "radius must be a positive number of meters")
			return
		}
	}
	writeJSON(w, http.StatusOK, query.Nearby(a.cat, orb.Point{lng, lat}, radius))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveInput, "input", "", "stores.json path (default collect.output)")
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "", "city catalog YAML (default collect.catalog or built-in)")
	rootCmd.AddCommand(serveCmd)
}
