package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (r *runner) statsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show extraction statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				if s.Repo == nil {
					return errors.New("extraction repository not configured")
				}
				stats, err := s.Repo.Stats(ctx)
				if err != nil {
					return fmt.Errorf("stats failed: %w", err)
				}
				if asJSON {
					return printJSON(cmd, stats)
				}

				cmd.Printf("Domains:     %d\n", stats.Domains)
				cmd.Printf("Extractions: %d\n", stats.TotalExtractions)
				if len(stats.ByType) > 0 {
					cmd.Println()
					cmd.Println("By type:")
					for _, c := range stats.ByType {
						cmd.Printf("  %-22s %d\n", c.Name, c.Count)
					}
				}
				if len(stats.Recent) > 0 {
					cmd.Println()
					cmd.Println("Recent:")
					for _, rec := range stats.Recent {
						cmd.Printf("  %s  %-22s %-8s %s\n",
							rec.ExtractedAt.UTC().Format("2006-01-02 15:04"), rec.Name, rec.Status, rec.Domain)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}
