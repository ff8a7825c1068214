package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (r *runner) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				cfg := s.Config
				cmd.Println("Configuration:")
				cmd.Printf("  LLM provider:     %s\n", cfg.LLMProvider)
				cmd.Printf("  Vector backend:   %s\n", cfg.VectorBackend)
				cmd.Printf("  Storage path:     %s\n", cfg.StoragePath)
				cmd.Printf("  Chunking:         size %d, overlap %d\n", cfg.ChunkSize, cfg.ChunkOverlap)
				cmd.Printf("  Sampling:         temperature %.2f, top_p %.2f\n", cfg.Temperature, cfg.TopP)
				if s.Catalog != nil {
					cmd.Printf("  Extraction types: %d\n", len(s.Catalog.Names()))
				}
				cmd.Println()

				if s.Health == nil {
					return nil
				}
				cmd.Println("Dependencies:")
				failed := 0
				for _, h := range s.Health.Health(ctx) {
					mark := "ok"
					if !h.OK {
						mark = "FAIL"
						failed++
					}
					cmd.Printf("  [%s] %s: %s\n", mark, h.Name, h.Detail)
				}
				if failed > 0 {
					return fmt.Errorf("%d dependency checks failed", failed)
				}
				return nil
			})
		},
	}
}
