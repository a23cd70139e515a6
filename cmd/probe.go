package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thriftndrift/storecollect/pkg/google"
)

var (
	probeQuery  string
	probeLat    float64
	probeLng    float64
	probeRadius int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one sample text search to check the API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("probe"); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key loaded: %s\n", cfg.Google.MaskedKey())

		resp, err := newPlacesClient().TextSearch(ctx, google.TextSearchRequest{
			Query:        probeQuery,
			Location:     &google.LatLng{Lat: probeLat, Lng: probeLng},
			RadiusMeters: probeRadius,
		})
		if err != nil {
			zap.L().Error("probe failed", zap.Error(err))
			return err
		}

		fmt.Fprintln(out, "Search successful!")
		if len(resp.Results) == 0 {
			fmt.Fprintln(out, "No results found")
			return nil
		}

		data, err := json.MarshalIndent(resp.Results[0], "", "  ")
		if err != nil {
			return eris.Wrap(err, "probe: encode result")
		}
		fmt.Fprintf(out, "First result:\n%s\n", data)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeQuery, "query", "coffee shop", "search text")
	probeCmd.Flags().Float64Var(&probeLat, "lat", 35.7796, "bias latitude")
	probeCmd.Flags().Float64Var(&probeLng, "lng", -78.6382, "bias longitude")
	probeCmd.Flags().IntVar(&probeRadius, "radius", 1000, "bias radius in meters")
	rootCmd.AddCommand(probeCmd)
}
