package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thriftndrift/storecollect/internal/assets"
	"github.com/thriftndrift/storecollect/internal/catalog"
)

var (
	assetsDir     string
	assetsCatalog string
	assetsCities  []string
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Create skyline image-set stubs for each catalog city",
	RunE: func(cmd *cobra.Command, args []string) error {
		if assetsDir != "" {
			cfg.Assets.Dir = assetsDir
		}
		if err := cfg.Validate("assets"); err != nil {
			return err
		}

		cities := assetsCities
		if len(cities) == 0 {
			states, err := loadCatalog(assetsCatalog, nil)
			if err != nil {
				return err
			}
			cities = catalog.CityNames(states)
		}

		res, err := assets.Generate(cfg.Assets.Dir, cities)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %d image sets in %s\n", len(res.Slugs), cfg.Assets.Dir)
		return nil
	},
}

func init() {
	assetsCmd.Flags().StringVar(&assetsDir, "dir", "", "asset folder (default assets.dir)")
	assetsCmd.Flags().StringVar(&assetsCatalog, "catalog", "", "city catalog YAML (default collect.catalog or built-in)")
	assetsCmd.Flags().StringSliceVar(&assetsCities, "cities", nil, "city names instead of the catalog")
	rootCmd.AddCommand(assetsCmd)
}
