package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"

	extractionsSheet = "Extractions"
	summarySheet     = "Summary"
)

var extractionHeader = []any{
	"Domain", "Extraction", "Status", "Payload", "Provenance",
	"Provider", "Model", "Input tokens", "Output tokens", "Extracted at", "Error",
}

// Write renders records in the given format.
func Write(w io.Writer, format string, records []domain.ExtractionRecord) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatXLSX:
		return WriteXLSX(w, records)
	case FormatJSON:
		return WriteJSON(w, records)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "export", fmt.Errorf("unsupported format %q", format))
	}
}

func WriteJSON(w io.Writer, records []domain.ExtractionRecord) error {
	if records == nil {
		records = []domain.ExtractionRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteXLSX writes one row per record plus a per-domain status summary.
func WriteXLSX(w io.Writer, records []domain.ExtractionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", extractionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRows(f, extractionsSheet, extractionHeader, extractionRows(records), headerStyle); err != nil {
		return err
	}
	_ = f.SetColWidth(extractionsSheet, "A", "B", 24)
	_ = f.SetColWidth(extractionsSheet, "D", "D", 80)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summaryHeader := []any{"Domain", "Success", "No data", "Failed", "Last extracted at"}
	if err := writeRows(f, summarySheet, summaryHeader, summaryRows(records), headerStyle); err != nil {
		return err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func extractionRows(records []domain.ExtractionRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.Domain,
			r.Name,
			string(r.Status),
			string(r.Payload),
			strings.Join(r.Provenance, ", "),
			r.RequestMeta.Provider,
			r.RequestMeta.Model,
			r.RequestMeta.InputTokens,
			r.RequestMeta.OutputTokens,
			r.ExtractedAt.UTC().Format(time.RFC3339),
			r.Error,
		})
	}
	return rows
}

type domainSummary struct {
	success, noData, failed int
	last                    time.Time
}

func summaryRows(records []domain.ExtractionRecord) [][]any {
	byDomain := make(map[string]*domainSummary)
	for _, r := range records {
		s, ok := byDomain[r.Domain]
		if !ok {
			s = &domainSummary{}
			byDomain[r.Domain] = s
		}
		switch r.Status {
		case domain.StatusSuccess:
			s.success++
		case domain.StatusNoData:
			s.noData++
		default:
			s.failed++
		}
		if r.ExtractedAt.After(s.last) {
			s.last = r.ExtractedAt
		}
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	rows := make([][]any, 0, len(domains))
	for _, d := range domains {
		s := byDomain[d]
		rows = append(rows, []any{d, s.success, s.noData, s.failed, s.last.UTC().Format(time.RFC3339)})
	}
	return rows
}
