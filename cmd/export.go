package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thriftndrift/storecollect/internal/export"
	"github.com/thriftndrift/storecollect/internal/storefile"
)

var (
	exportInput  string
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stores.json as XLSX or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOutput == "" {
			return eris.New("export: --output is required")
		}
		format, err := export.ParseFormat(exportFormat, exportOutput)
		if err != nil {
			return err
		}

		input := exportInput
		if input == "" {
			input = cfg.Collect.Output
		}
		cat, err := storefile.Read(input)
		if err != nil {
			return err
		}

		n, err := export.WriteFile(exportOutput, format, cat)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d stores to %s\n", n, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportInput, "input", "", "stores.json path (default collect.output)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or xlsx (default from output extension)")
	rootCmd.AddCommand(exportCmd)
}
