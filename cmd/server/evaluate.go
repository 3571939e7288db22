package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/hbr-risk/assessment"
	"github.com/jrsteele09/hbr-risk/fhir"
	"github.com/jrsteele09/hbr-risk/score"
	"github.com/jrsteele09/hbr-risk/tradeoff"
	"github.com/spf13/cobra"
)

type evaluation struct {
	Assessment score.RiskAssessment `json:"assessment"`
	Tradeoff   tradeoff.Analysis    `json:"tradeoff"`
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a FHIR Bundle file and print the assessment as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesFile, _ := cmd.Flags().GetString("rules")
			bundleFile, _ := cmd.Flags().GetString("bundle")
			terminologyDir, _ := cmd.Flags().GetString("terminology")
			asOf, _ := cmd.Flags().GetString("as-of")
			tradeoffFile, _ := cmd.Flags().GetString("tradeoff")

			opts, err := tradeoffOptions(tradeoffFile)
			if err != nil {
				return err
			}
			if asOf != "" {
				at, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				opts = append(opts, assessment.WithNowTime(func() time.Time { return at }))
			}

			service, err := newAssessmentService(rulesFile, terminologyDir, opts...)
			if err != nil {
				return err
			}

			f, err := os.Open(bundleFile)
			if err != nil {
				return err
			}
			defer f.Close()
			bundle, err := fhir.DecodeBundle(f)
			if err != nil {
				return err
			}

			result, err := service.AssessBundle(cmd.Context(), bundle)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if tradeoffFile == "" {
				return enc.Encode(result)
			}
			analysis, err := service.TradeoffBundle(cmd.Context(), bundle)
			if err != nil {
				return err
			}
			return enc.Encode(evaluation{Assessment: result, Tradeoff: analysis})
		},
	}
	cmd.Flags().String("rules", "configs/precise_hbr.yaml", "Criterion configuration file (YAML or JSON)")
	cmd.Flags().String("bundle", "", "FHIR Bundle JSON file")
	cmd.Flags().String("terminology", "", "Directory of ValueSet JSON files")
	cmd.Flags().String("as-of", "", "Evaluate as of this date (YYYY-MM-DD) instead of today")
	cmd.Flags().String("tradeoff", "", "Tradeoff model file; adds the bleeding and thrombotic tradeoff to the output")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}
