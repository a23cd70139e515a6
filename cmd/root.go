package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thriftndrift/storecollect/internal/catalog"
	"github.com/thriftndrift/storecollect/internal/config"
	"github.com/thriftndrift/storecollect/internal/model"
	"github.com/thriftndrift/storecollect/pkg/google"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "storecollect",
	Short: "Thrift store catalog collector",
	Long:  "Fetches thrift and second-hand stores per city from the Google Places web service and maintains the per-state stores.json the app ships with.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// newPlacesClient builds the web service client from config.
func newPlacesClient() google.Client {
	return google.NewClient(cfg.Google.APIKey,
		google.WithBaseURL(cfg.Google.BaseURL),
		google.WithRateLimit(cfg.Google.RequestsPerSecond),
	)
}

// loadCatalog returns the effective city catalog, narrowed to codes when given.
// An explicit path wins over collect.catalog.
func loadCatalog(path string, codes []string) ([]model.StateEntry, error) {
	if path == "" {
		path = cfg.Collect.Catalog
	}
	states, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	return catalog.Select(states, codes)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
