package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thriftndrift/storecollect/internal/collect"
)

var (
	fetchStates    []string
	fetchCatalog   string
	fetchOutput    string
	fetchMerge     bool
	fetchSkipCheck bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch stores for every catalog city and update stores.json",
	Long:  "Runs the query templates for each city, state by state, and rewrites the output file after each state completes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if fetchOutput != "" {
			cfg.Collect.Output = fetchOutput
		}
		if cmd.Flags().Changed("merge") {
			cfg.Collect.Merge = fetchMerge
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		states, err := loadCatalog(fetchCatalog, fetchStates)
		if err != nil {
			return err
		}

		runID := uuid.New().String()
		log := zap.L().With(zap.String("run_id", runID))
		log.Info("starting fetch",
			zap.String("api_key", cfg.Google.MaskedKey()),
			zap.Int("states", len(states)),
			zap.String("output", cfg.Collect.Output),
			zap.Bool("merge", cfg.Collect.Merge),
		)

		c := collect.NewCollector(newPlacesClient(), collect.Options{
			Output:         cfg.Collect.Output,
			Queries:        cfg.Collect.Queries,
			PageTokenDelay: cfg.Collect.PageTokenDelay,
			CityDelay:      cfg.Collect.CityDelay,
			StateDelay:     cfg.Collect.StateDelay,
			DetailCacheTTL: cfg.Collect.DetailCacheTTL,
			Merge:          cfg.Collect.Merge,
		})

		if !fetchSkipCheck {
			if err := c.CheckAccess(ctx); err != nil {
				log.Error("api access check failed", zap.Error(err))
				return err
			}
			log.Info("api access ok")
		}

		start := time.Now()
		summary, err := c.Run(ctx, states)
		if summary != nil {
			for _, st := range summary.States {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d stores\t%d failed queries\n",
					st.Code, st.Name, st.Stores, st.FailedQueries())
			}
		}
		if err != nil {
			log.Error("fetch stopped", zap.Error(err))
			return err
		}

		log.Info("fetch complete",
			zap.Int("stores", summary.Stores()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchStates, "states", nil, "state codes to fetch (default all catalog states)")
	fetchCmd.Flags().StringVar(&fetchCatalog, "catalog", "", "city catalog YAML (default collect.catalog or built-in)")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "stores.json path (default collect.output)")
	fetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "keep previously saved stores that were not re-fetched")
	fetchCmd.Flags().BoolVar(&fetchSkipCheck, "skip-check", false, "skip the startup api key check")
	rootCmd.AddCommand(fetchCmd)
}
