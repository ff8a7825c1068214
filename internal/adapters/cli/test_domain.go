package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func (r *runner) testDomainCommand() *cobra.Command {
	var reEmbed bool
	cmd := &cobra.Command{
		Use:   "test-domain [domain]",
		Short: "Verify, optionally re-embed, and extract everything for one domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := domain.NormalizeDomain(args[0])
			if name == "" {
				return fmt.Errorf("invalid domain %q", args[0])
			}
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				if s.Embedder == nil || s.Batch == nil {
					return errors.New("embedder and batch extractor are required")
				}

				cmd.Printf("Domain %s (id %s)\n", name, domain.DomainID(name))
				stats, err := s.Embedder.Verify(ctx, name)
				switch {
				case err == nil:
					cmd.Printf("  stored: %d chunks from %d documents\n", stats.Chunks, stats.Documents)
				case domain.IsKind(err, domain.ErrNotFound):
					cmd.Println("  stored: unknown, backend does not report stats")
				default:
					return fmt.Errorf("verify failed: %w", err)
				}

				if reEmbed || (err == nil && stats.Chunks == 0) {
					cmd.Println("Embedding:")
					reports, err := s.Embedder.EmbedDomain(ctx, name, reEmbed)
					if err != nil {
						return fmt.Errorf("embed failed: %w", err)
					}
					printEmbedReports(cmd, reports)
				}

				cmd.Println("Extracting:")
				report := s.Batch.Run(ctx, domain.BatchRequest{
					Targets:  []string{name},
					Types:    []string{domain.AllExtractionTypes},
					IsDomain: true,
				})
				tr := report.Targets[name]
				printResults(cmd, tr.Results)
				if !tr.Success {
					return fmt.Errorf("extraction failed: %s", tr.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reEmbed, "re-embed", false, "clear and re-embed the domain before extracting")
	return cmd
}
