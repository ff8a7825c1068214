package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
)

// HealthChecker probes the external dependencies of a running app.
type HealthChecker interface {
	Health(ctx context.Context) []domain.ComponentHealth
}

// Services is what the commands need from a bootstrapped app.
type Services struct {
	Config   config.Config
	Catalog  *domain.ExtractionCatalog
	Health   HealthChecker
	Embedder ports.DocumentEmbedder
	Batch    ports.BatchExtractor
	Repo     ports.ExtractionRepository
}

// Loader builds Services on demand, so "--help" never touches the network.
// The returned func releases them.
type Loader func(ctx context.Context) (*Services, func(), error)

type runner struct {
	load Loader
}

func NewRootCommand(load Loader) *cobra.Command {
	r := &runner{load: load}

	root := &cobra.Command{
		Use:   "distillery",
		Short: "Extract structured facts from crawled law firm websites",
		Long: `distillery embeds crawled law firm pages into a vector store and runs
retrieval-augmented extractions (offices, attorneys, contact details, ...)
against them.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		r.statusCommand(),
		r.statsCommand(),
		r.embedCommand(),
		r.extractCommand(),
		r.testDomainCommand(),
		r.exportCommand(),
	)
	return root
}

// with loads services for one command run.
func (r *runner) with(cmd *cobra.Command, fn func(ctx context.Context, s *Services) error) error {
	if r.load == nil {
		return errors.New("services not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, release, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, services)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
