package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AllExtractionTypes selects every entry of the catalog in batch requests.
const AllExtractionTypes = "all"

var officeLocationsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "offices": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "address": {"type": "string"},
          "city": {"type": "string"},
          "state": {"type": "string"},
          "zip": {"type": "string"},
          "phone": {"type": "string"}
        },
        "required": ["address"]
      }
    }
  },
  "required": ["offices"]
}`)

var lawFirmConfirmationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "is_law_firm": {"type": "boolean"},
    "confidence": {"type": "number"}
  },
  "required": ["is_law_firm"]
}`)

// DefaultExtractionTypes is the built-in extraction table. A YAML table may
// override entries by name.
func DefaultExtractionTypes() []ExtractionType {
	return []ExtractionType{
		{
			Name:      "office_locations",
			Query:     "office location address street city state zip where find us directions map contact headquarters branch main office satellite",
			K:         4,
			Boost:     BoostAddresses,
			MaxTokens: 500,
			Schema:    officeLocationsSchema,
		},
		{
			Name:      "attorneys",
			Query:     "attorney lawyer partner associate counsel team staff bio biography",
			K:         4,
			MaxTokens: 1500,
		},
		{
			Name:      "company_description",
			Query:     "about us our firm company overview history mission vision values who we are law firm practice description specialization experience founding established",
			K:         3,
			MaxTokens: 200,
		},
		{
			Name:      "contact_info",
			Query:     "phone call contact email fax 24/7 24 hours emergency hotline toll free 1-800 after hours available anytime always available weekend",
			K:         3,
			Boost:     BoostContact,
			MaxTokens: 200,
		},
		{
			Name:      "languages_spoken",
			Query:     "language speak spanish chinese vietnamese french german arabic russian portuguese multilingual bilingual interpreter translator hablamos espanol",
			K:         3,
			MaxTokens: 500,
		},
		{
			Name:      "law_firm_confirmation",
			Query:     "law firm attorney lawyer legal practice injury accident personal injury about us",
			K:         2,
			MaxTokens: 50,
			Schema:    lawFirmConfirmationSchema,
		},
		{
			Name:      "practice_areas",
			Query:     "practice areas services we handle cases legal services personal injury medical malpractice wrongful death product liability premises liability motor vehicle workplace",
			K:         4,
			MaxTokens: 500,
		},
		{
			Name:      "social_media",
			Query:     "social media facebook twitter linkedin instagram youtube contact us footer follow us connect links profiles justia avvo martindale lawyers.com nolo",
			K:         3,
			MaxTokens: 500,
		},
		{
			Name:      "states_served",
			Query:     "states served licensed practice nationwide nationwide coverage service areas jurisdiction bar admission admitted multi-state regional tri-state",
			K:         3,
			MaxTokens: 200,
		},
		{
			Name:      "supported_languages",
			Query:     "language speak spanish chinese vietnamese french german arabic russian portuguese multilingual bilingual interpreter translator hablamos espanol call center phone support website available we offer assistance",
			K:         4,
			MaxTokens: 600,
		},
		{
			Name:      "total_settlements",
			Query:     "settlement verdict million billion recovered won obtained secured compensation case result success story client testimonial award judgment",
			K:         5,
			Boost:     BoostMoney,
			MaxTokens: 500,
		},
		{
			Name:      "year_founded",
			Query:     "founded established began started year history since inception opened first 1970s 1980s 1990s 2000s experience serving",
			K:         1,
			MaxTokens: 50,
		},
	}
}

func (t ExtractionType) Validate() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return WrapError(ErrInvalidConfig, "validate extraction type", fmt.Errorf("name is required"))
	case strings.TrimSpace(t.Query) == "":
		return WrapError(ErrInvalidConfig, "validate extraction type", fmt.Errorf("%s: query is required", t.Name))
	case t.K < 1:
		return WrapError(ErrInvalidConfig, "validate extraction type", fmt.Errorf("%s: k must be at least 1, got %d", t.Name, t.K))
	case t.MaxTokens < 1:
		return WrapError(ErrInvalidConfig, "validate extraction type", fmt.Errorf("%s: max_tokens must be positive, got %d", t.Name, t.MaxTokens))
	}
	if len(t.Schema) > 0 && !json.Valid(t.Schema) {
		return WrapError(ErrInvalidConfig, "validate extraction type", fmt.Errorf("%s: schema is not valid JSON", t.Name))
	}
	return nil
}

// ExtractionCatalog is the immutable, validated extraction table.
type ExtractionCatalog struct {
	types map[string]ExtractionType
	order []string
}

func NewExtractionCatalog(types []ExtractionType) (*ExtractionCatalog, error) {
	c := &ExtractionCatalog{types: make(map[string]ExtractionType, len(types))}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.types[t.Name]; dup {
			return nil, WrapError(ErrInvalidConfig, "new extraction catalog", fmt.Errorf("duplicate extraction type %q", t.Name))
		}
		c.types[t.Name] = t
		c.order = append(c.order, t.Name)
	}
	return c, nil
}

func (c *ExtractionCatalog) Lookup(name string) (ExtractionType, bool) {
	t, ok := c.types[strings.TrimSpace(name)]
	return t, ok
}

// Names lists entries in table order.
func (c *ExtractionCatalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Resolve expands "all" and checks that every name exists.
func (c *ExtractionCatalog) Resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return c.Names(), nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, AllExtractionTypes) {
			return c.Names(), nil
		}
		if _, ok := c.types[name]; !ok {
			return nil, WrapError(ErrInvalidInput, "resolve extraction types", fmt.Errorf("unknown extraction type %q", name))
		}
		out = append(out, name)
	}
	return out, nil
}
