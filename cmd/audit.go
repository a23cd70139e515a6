package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thriftndrift/storecollect/internal/audit"
	"github.com/thriftndrift/storecollect/internal/storefile"
)

var (
	auditInput  string
	auditStrict bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report duplicate ids and address/state mismatches in stores.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		input := auditInput
		if input == "" {
			input = cfg.Collect.Output
		}
		cat, err := storefile.Read(input)
		if err != nil {
			return err
		}

		report := audit.Check(cat)
		data, err := yaml.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "audit: encode report")
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}

		if !report.Clean() {
			zap.L().Warn("catalog has problems",
				zap.Int("duplicates", len(report.Duplicates)),
				zap.Int("mismatches", len(report.Mismatches)),
			)
			if auditStrict {
				return eris.New("audit: catalog is not clean")
			}
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditInput, "input", "", "stores.json path (default collect.output)")
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false, "exit non-zero when problems are found")
	rootCmd.AddCommand(auditCmd)
}
