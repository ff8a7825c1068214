package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BoostField names a pattern category usable as a primary ranking key.
type BoostField string

const (
	BoostNone      BoostField = ""
	BoostAddresses BoostField = "addresses"
	BoostEmails    BoostField = "emails"
	BoostPhones    BoostField = "phones"
	BoostMoney     BoostField = "money"
	BoostContact   BoostField = "contact"
)

// ParseBoostField accepts both the short category names and the persisted
// presence keys (contains_addresses, contains_phone_numbers, ...).
func ParseBoostField(raw string) (BoostField, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "contains_")
	switch name {
	case "", "none":
		return BoostNone, nil
	case "addresses", "address":
		return BoostAddresses, nil
	case "emails", "email":
		return BoostEmails, nil
	case "phones", "phone", "phone_numbers":
		return BoostPhones, nil
	case "money":
		return BoostMoney, nil
	case "contact", "contacts":
		return BoostContact, nil
	default:
		return BoostNone, WrapError(ErrInvalidInput, "parse boost field", fmt.Errorf("unknown boost field %q", raw))
	}
}

// UnmarshalYAML lets extraction-type tables use any accepted spelling.
func (b *BoostField) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseBoostField(raw)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// PresenceKey is the metadata key of the boolean flag for the field.
func (b BoostField) PresenceKey() string {
	switch b {
	case BoostAddresses:
		return "contains_addresses"
	case BoostEmails:
		return "contains_emails"
	case BoostPhones:
		return "contains_phone_numbers"
	case BoostMoney:
		return "contains_money"
	case BoostContact:
		return "contains_contact"
	default:
		return ""
	}
}

// CountKey is the metadata key of the distinct-match count for the field.
func (b BoostField) CountKey() string {
	switch b {
	case BoostAddresses:
		return "address_count"
	case BoostEmails:
		return "email_count"
	case BoostPhones:
		return "phone_count"
	case BoostMoney:
		return "money_count"
	case BoostContact:
		return "contact_count"
	default:
		return ""
	}
}

type PatternSignal struct {
	Present bool `json:"present"`
	Count   int  `json:"count"`
}

func NewPatternSignal(count int) PatternSignal {
	if count < 0 {
		count = 0
	}
	return PatternSignal{Present: count > 0, Count: count}
}

// PatternSignals is the structural metadata attached to every chunk.
type PatternSignals struct {
	Addresses PatternSignal
	Emails    PatternSignal
	Phones    PatternSignal
	Money     PatternSignal
	Contact   PatternSignal

	AttorneyNames bool
	Hours         bool
	PracticeAreas bool

	Length int
}

// Signal returns the presence/count pair backing a boost field.
func (p PatternSignals) Signal(field BoostField) (PatternSignal, bool) {
	switch field {
	case BoostAddresses:
		return p.Addresses, true
	case BoostEmails:
		return p.Emails, true
	case BoostPhones:
		return p.Phones, true
	case BoostMoney:
		return p.Money, true
	case BoostContact:
		return p.Contact, true
	default:
		return PatternSignal{}, false
	}
}

type patternMetadata struct {
	ContainsAddresses     bool `json:"contains_addresses"`
	AddressCount          int  `json:"address_count"`
	ContainsEmails        bool `json:"contains_emails"`
	EmailCount            int  `json:"email_count"`
	ContainsPhoneNumbers  bool `json:"contains_phone_numbers"`
	PhoneCount            int  `json:"phone_count"`
	ContainsContact       bool `json:"contains_contact"`
	ContactCount          int  `json:"contact_count"`
	ContainsMoney         bool `json:"contains_money"`
	MoneyCount            int  `json:"money_count"`
	ContainsAttorneyNames bool `json:"contains_attorney_names"`
	ContainsHours         bool `json:"contains_hours"`
	ContainsPracticeAreas bool `json:"contains_practice_areas"`
	ChunkLength           int  `json:"chunk_length"`
}

func (p PatternSignals) MarshalJSON() ([]byte, error) {
	return json.Marshal(patternMetadata{
		ContainsAddresses:     p.Addresses.Present,
		AddressCount:          p.Addresses.Count,
		ContainsEmails:        p.Emails.Present,
		EmailCount:            p.Emails.Count,
		ContainsPhoneNumbers:  p.Phones.Present,
		PhoneCount:            p.Phones.Count,
		ContainsContact:       p.Contact.Present,
		ContactCount:          p.Contact.Count,
		ContainsMoney:         p.Money.Present,
		MoneyCount:            p.Money.Count,
		ContainsAttorneyNames: p.AttorneyNames,
		ContainsHours:         p.Hours,
		ContainsPracticeAreas: p.PracticeAreas,
		ChunkLength:           p.Length,
	})
}

func (p *PatternSignals) UnmarshalJSON(data []byte) error {
	var m patternMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = PatternSignals{
		Addresses:     PatternSignal{Present: m.ContainsAddresses, Count: m.AddressCount},
		Emails:        PatternSignal{Present: m.ContainsEmails, Count: m.EmailCount},
		Phones:        PatternSignal{Present: m.ContainsPhoneNumbers, Count: m.PhoneCount},
		Contact:       PatternSignal{Present: m.ContainsContact, Count: m.ContactCount},
		Money:         PatternSignal{Present: m.ContainsMoney, Count: m.MoneyCount},
		AttorneyNames: m.ContainsAttorneyNames,
		Hours:         m.ContainsHours,
		PracticeAreas: m.ContainsPracticeAreas,
		Length:        m.ChunkLength,
	}
	return nil
}

// StringMap flattens the signals for stores that only keep string metadata.
func (p PatternSignals) StringMap() map[string]string {
	out := make(map[string]string, 14)
	for _, field := range []BoostField{BoostAddresses, BoostEmails, BoostPhones, BoostMoney, BoostContact} {
		signal, _ := p.Signal(field)
		out[field.PresenceKey()] = strconv.FormatBool(signal.Present)
		out[field.CountKey()] = strconv.Itoa(signal.Count)
	}
	out["contains_attorney_names"] = strconv.FormatBool(p.AttorneyNames)
	out["contains_hours"] = strconv.FormatBool(p.Hours)
	out["contains_practice_areas"] = strconv.FormatBool(p.PracticeAreas)
	out["chunk_length"] = strconv.Itoa(p.Length)
	return out
}

// PatternSignalsFromStrings is the inverse of StringMap. Missing or
// malformed values read as zero.
func PatternSignalsFromStrings(m map[string]string) PatternSignals {
	flag := func(key string) bool {
		v, _ := strconv.ParseBool(m[key])
		return v
	}
	count := func(key string) int {
		v, _ := strconv.Atoi(m[key])
		return v
	}
	signal := func(field BoostField) PatternSignal {
		return PatternSignal{Present: flag(field.PresenceKey()), Count: count(field.CountKey())}
	}
	return PatternSignals{
		Addresses:     signal(BoostAddresses),
		Emails:        signal(BoostEmails),
		Phones:        signal(BoostPhones),
		Money:         signal(BoostMoney),
		Contact:       signal(BoostContact),
		AttorneyNames: flag("contains_attorney_names"),
		Hours:         flag("contains_hours"),
		PracticeAreas: flag("contains_practice_areas"),
		Length:        count("chunk_length"),
	}
}
