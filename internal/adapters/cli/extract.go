package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func (r *runner) extractCommand() *cobra.Command {
	var (
		types    []string
		isDomain bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "extract [targets...]",
		Short: "Run extractions for one or more targets",
		Long: `Runs the selected extraction types for every target concurrently. A target
is a domain or a document id; --domain forces domain scope.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				if s.Batch == nil {
					return errors.New("batch extractor not configured")
				}
				report := s.Batch.Run(ctx, domain.BatchRequest{
					Targets:  args,
					Types:    types,
					IsDomain: isDomain,
				})
				if asJSON {
					if err := printJSON(cmd, report); err != nil {
						return err
					}
				} else {
					printBatchReport(cmd, report)
				}
				if report.TotalTargets > 0 && report.Successful == 0 {
					return fmt.Errorf("all %d targets failed", report.TotalTargets)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", []string{domain.AllExtractionTypes}, "extraction types to run, or \"all\"")
	cmd.Flags().BoolVar(&isDomain, "domain", false, "treat every target as a domain")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the batch report as JSON")
	return cmd
}

func printBatchReport(cmd *cobra.Command, report domain.BatchReport) {
	targets := make([]string, 0, len(report.Targets))
	for t := range report.Targets {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, t := range targets {
		tr := report.Targets[t]
		mark := "ok"
		if !tr.Success {
			mark = "FAIL"
		}
		cmd.Printf("[%s] %s (%s)\n", mark, t, tr.Duration.Round(time.Millisecond))
		printResults(cmd, tr.Results)
		if tr.Error != "" {
			cmd.Printf("    error: %s\n", tr.Error)
		}
	}
	cmd.Printf("%d targets: %d successful, %d failed\n", report.TotalTargets, report.Successful, report.Failed)
}

func printResults(cmd *cobra.Command, results []domain.ExtractionResult) {
	for _, res := range results {
		switch res.Status {
		case domain.StatusSuccess:
			cmd.Printf("    %-22s %s\n", res.Type, string(res.Payload))
		case domain.StatusNoData:
			cmd.Printf("    %-22s (no data)\n", res.Type)
		default:
			cmd.Printf("    %-22s failed: %s\n", res.Type, res.Error)
		}
	}
}
