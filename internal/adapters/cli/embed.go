package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func (r *runner) embedCommand() *cobra.Command {
	var (
		isDomain bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "embed [targets...]",
		Short: "Embed crawled pages into the vector store",
		Long: `Embeds crawled pages for each target. A target is either a domain, whose
pages are read from <domain>/markdown/ in object storage, or a single page key.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				if s.Embedder == nil {
					return errors.New("embedder not configured")
				}
				reports, err := s.Embedder.EmbedTargets(ctx, args, isDomain, force)
				printEmbedReports(cmd, reports)
				if err != nil {
					return fmt.Errorf("embed failed: %w", err)
				}
				if failed := countFailedEmbeds(reports); failed == len(reports) && failed > 0 {
					return fmt.Errorf("all %d documents failed", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&isDomain, "domain", false, "treat every target as a domain")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-embed documents that are already stored")
	return cmd
}

func printEmbedReports(cmd *cobra.Command, reports []domain.EmbedReport) {
	chunks := 0
	for _, rep := range reports {
		switch {
		case rep.Error != "":
			cmd.Printf("  [FAIL] %s: %s\n", rep.DocumentID, rep.Error)
		case rep.Skipped:
			cmd.Printf("  [skip] %s (%d chunks stored)\n", rep.DocumentID, rep.Chunks)
		default:
			cmd.Printf("  [ok]   %s (%d chunks)\n", rep.DocumentID, rep.Chunks)
			chunks += rep.Chunks
		}
	}
	cmd.Printf("%d documents, %d new chunks, %d failed\n", len(reports), chunks, countFailedEmbeds(reports))
}

func countFailedEmbeds(reports []domain.EmbedReport) int {
	n := 0
	for _, rep := range reports {
		if rep.Error != "" {
			n++
		}
	}
	return n
}
