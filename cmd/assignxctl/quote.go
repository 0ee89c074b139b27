package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/noah-isme/assignx-api/pkg/config"
	"github.com/noah-isme/assignx-api/pkg/settlement"
)

func quoteCmd() *cobra.Command {
	var in settlement.Input
	var urgency, complexity string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a project and print the settlement split",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Urgency = settlement.UrgencyTier(urgency)
			in.Complexity = settlement.ComplexityTier(complexity)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			result, err := settlement.NewCalculator(cfg.Pricing.Table()).Calculate(in)
			if err != nil {
				return err
			}
			if err := settlement.Verify(result); err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			renderQuote(cmd, result)
			return nil
		},
	}
	cmd.Flags().Int64Var(&in.BaseRate, "rate", 0, "base rate per unit in minor currency units")
	cmd.Flags().Int64Var(&in.Count, "count", 1, "number of units (pages or 250-word blocks)")
	cmd.Flags().StringVar(&urgency, "urgency", string(settlement.UrgencyStandard), "urgency tier")
	cmd.Flags().StringVar(&complexity, "complexity", string(settlement.ComplexityBasic), "complexity tier")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

func renderQuote(cmd *cobra.Command, r settlement.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Party", "Share", "Amount"})
	tw.AppendRow(table.Row{"doer", bps(settlement.DoerShareBPS), r.DoerPayout})
	tw.AppendRow(table.Row{"supervisor", bps(settlement.SupervisorShareBPS), r.SupervisorCommission})
	tw.AppendRow(table.Row{"platform", bps(settlement.PlatformShareBPS), r.PlatformFee})
	tw.AppendFooter(table.Row{"client quote", "", r.ClientQuote})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	tw.Render()
}

func bps(v int64) string {
	return fmt.Sprintf("%d.%02d%%", v/100, v%100)
}
