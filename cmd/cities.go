package main

import (
	"github.com/spf13/cobra"

	"github.com/thriftndrift/storecollect/internal/catalog"
)

var (
	citiesCatalog string
	citiesStates  []string
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "Print the effective city catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := loadCatalog(citiesCatalog, citiesStates)
		if err != nil {
			return err
		}
		data, err := catalog.Marshal(states)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	citiesCmd.Flags().StringVar(&citiesCatalog, "catalog", "", "city catalog YAML (default collect.catalog or built-in)")
	citiesCmd.Flags().StringSliceVar(&citiesStates, "states", nil, "state codes to print")
	rootCmd.AddCommand(citiesCmd)
}
