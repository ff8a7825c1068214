package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// ExtractionTable is the effective extraction configuration.
type ExtractionTable struct {
	Types                []domain.ExtractionType
	PracticeAreaKeywords []string
}

type extractionFile struct {
	ExtractionTypes      []extractionTypeEntry `yaml:"extraction_types"`
	PracticeAreaKeywords []string              `yaml:"practice_area_keywords"`
}

type extractionTypeEntry struct {
	Name         string `yaml:"name"`
	Query        string `yaml:"query"`
	K            int    `yaml:"k"`
	Boost        string `yaml:"boost"`
	MaxTokens    int    `yaml:"max_tokens"`
	Instructions string `yaml:"instructions"`
	// Schema is JSON text.
	Schema string `yaml:"schema"`
}

// LoadExtractionTypes merges the YAML file at path over the built-in table.
// Entries match by name; set fields override, unknown names are appended.
// An empty path yields the defaults.
func LoadExtractionTypes(path string) (ExtractionTable, error) {
	table := ExtractionTable{Types: domain.DefaultExtractionTypes()}
	if strings.TrimSpace(path) == "" {
		return table, validateTable(table)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ExtractionTable{}, domain.WrapError(domain.ErrInvalidConfig, "load extraction types", err)
	}
	return mergeExtractionTypes(table, raw)
}

func mergeExtractionTypes(table ExtractionTable, raw []byte) (ExtractionTable, error) {
	var file extractionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return ExtractionTable{}, domain.WrapError(domain.ErrInvalidConfig, "parse extraction types", err)
	}

	index := make(map[string]int, len(table.Types))
	for i, t := range table.Types {
		index[t.Name] = i
	}

	for _, entry := range file.ExtractionTypes {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return ExtractionTable{}, domain.WrapError(domain.ErrInvalidConfig, "parse extraction types", errors.New("entry without name"))
		}
		boost, err := domain.ParseBoostField(entry.Boost)
		if err != nil {
			return ExtractionTable{}, domain.WrapError(domain.ErrInvalidConfig, "parse extraction types", fmt.Errorf("%s: %w", name, err))
		}

		i, ok := index[name]
		if !ok {
			table.Types = append(table.Types, domain.ExtractionType{Name: name})
			i = len(table.Types) - 1
			index[name] = i
		}
		t := &table.Types[i]
		if q := strings.TrimSpace(entry.Query); q != "" {
			t.Query = q
		}
		if entry.K != 0 {
			t.K = entry.K
		}
		if boost != domain.BoostNone {
			t.Boost = boost
		}
		if entry.MaxTokens != 0 {
			t.MaxTokens = entry.MaxTokens
		}
		if instructions := strings.TrimSpace(entry.Instructions); instructions != "" {
			t.Instructions = instructions
		}
		if schema := strings.TrimSpace(entry.Schema); schema != "" {
			t.Schema = json.RawMessage(schema)
		}
	}

	if len(file.PracticeAreaKeywords) > 0 {
		table.PracticeAreaKeywords = file.PracticeAreaKeywords
	}
	return table, validateTable(table)
}

func validateTable(table ExtractionTable) error {
	_, err := domain.NewExtractionCatalog(table.Types)
	return err
}
