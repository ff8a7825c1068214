package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/export"
)

func (r *runner) exportCommand() *cobra.Command {
	var (
		format     string
		out        string
		domainName string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored extractions to a spreadsheet or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != export.FormatXLSX && format != export.FormatJSON {
				return fmt.Errorf("unsupported format %q, use xlsx or json", format)
			}
			return r.with(cmd, func(ctx context.Context, s *Services) error {
				if s.Repo == nil {
					return errors.New("extraction repository not configured")
				}
				records, err := s.Repo.ListExtractions(ctx, domain.NormalizeDomain(domainName), limit)
				if err != nil {
					return fmt.Errorf("list extractions: %w", err)
				}

				if out == "" || out == "-" {
					return export.Write(cmd.OutOrStdout(), format, records)
				}
				if err := writeExportFile(out, format, records); err != nil {
					return err
				}
				cmd.Printf("Exported %d extractions to %s\n", len(records), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatXLSX, "output format: xlsx or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, \"-\" or empty for stdout")
	cmd.Flags().StringVar(&domainName, "domain", "", "only export this domain")
	cmd.Flags().IntVar(&limit, "limit", 10000, "maximum number of extractions")
	return cmd
}

func writeExportFile(path, format string, records []domain.ExtractionRecord) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()
	return export.Write(f, format, records)
}
