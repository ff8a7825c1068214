package patterns

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

const streetSuffixes = `street|st|avenue|ave|boulevard|blvd|drive|dr|lane|ln|road|rd|way|court|ct|plaza|pl|circle|cir|parkway|pkwy|highway|hwy|square|sq|concourse|center|ctr|terrace|trail|park|place`

const numberWords = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|sixty|seventy|eighty|ninety|hundred|thousand|million|billion`

var (
	addressPatterns = []*regexp.Regexp{
		// 100 Main Street, 2500 N. Peachtree Rd
		regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[NSEW]\.?\s+)?(?:[a-z0-9][\w'.-]*\s+){1,4}?(?:` + streetSuffixes + `)\b\.?`),
		// 100 5th Avenue
		regexp.MustCompile(`(?i)\b\d{1,5}\s+\d{1,3}(?:st|nd|rd|th)\s+(?:` + streetSuffixes + `)\b\.?`),
		// 1234 GA-400, 55 US 1, 10 State Route 9
		regexp.MustCompile(`\b\d{1,5}\s+(?:GA|US|State Route|Route|SR|Highway|Hwy|Interstate|I)[\s-]?\d{1,4}\b`),
		regexp.MustCompile(`(?i)\bP\.?\s?O\.?\s*Box\s+\d+\b`),
	}

	emailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	}

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+1[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`),
		regexp.MustCompile(`\b1-\d{3}-\d{3}-\d{4}`),
		regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`),
	}
	yearPrefix = regexp.MustCompile(`^\(?(?:19|20)\d{2}`)

	moneyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?i:million|billion|thousand|mil|k|m|b|mm)\b)?`),
		regexp.MustCompile(`(?i)\b(?:` + numberWords + `)(?:[\s-]+(?:` + numberWords + `|and))*\s+dollars\b`),
		regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s*(?:million|billion|thousand|k|m|b)?\s+(?:settlement|verdict|award|compensation|recovery|damages)\b`),
		regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:million|billion)\b`),
		// Bare large numbers usually denote dollar amounts on these sites.
		regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d{5,}\b`),
	}

	attorneyCue = regexp.MustCompile(`(?i)\b(?:attorneys?|lawyers?|esq\.?|esquire|partners?|associates?|counsel|jr\.?|sr\.?|iii|ii)\b`)
	hoursCue    = regexp.MustCompile(`(?i)\b(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?[^\n]{0,40}?\b\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)`)

	whitespace = regexp.MustCompile(`\s+`)
)

// DefaultPracticeAreaKeywords is used when no taxonomy file is configured.
var DefaultPracticeAreaKeywords = []string{
	"personal injury", "criminal defense", "family law", "divorce", "bankruptcy",
	"immigration", "real estate", "corporate", "tax", "estate planning",
	"workers compensation", "medical malpractice", "employment law", "intellectual property",
}

type Option func(*Detector)

// WithPracticeAreaKeywords replaces the practice-area taxonomy.
func WithPracticeAreaKeywords(keywords []string) Option {
	return func(d *Detector) {
		if len(keywords) == 0 {
			return
		}
		d.practiceAreas = normalizeKeywords(keywords)
	}
}

// Detector recognizes structured facts in chunk text. It holds no mutable
// state and is safe for concurrent use.
type Detector struct {
	practiceAreas []string
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{practiceAreas: normalizeKeywords(DefaultPracticeAreaKeywords)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) Detect(text string) domain.PatternSignals {
	if strings.TrimSpace(text) == "" {
		return domain.PatternSignals{}
	}

	emails := countDistinct(text, emailPatterns, nil, normalizeText)
	phones := countDistinct(text, phonePatterns, acceptPhone, normalizePhone)

	return domain.PatternSignals{
		Addresses:     domain.NewPatternSignal(countDistinct(text, addressPatterns, nil, normalizeText)),
		Emails:        domain.NewPatternSignal(emails),
		Phones:        domain.NewPatternSignal(phones),
		Money:         domain.NewPatternSignal(countDistinct(text, moneyPatterns, nil, normalizeMoney)),
		Contact:       domain.NewPatternSignal(emails + phones),
		AttorneyNames: attorneyCue.MatchString(text),
		Hours:         hoursCue.MatchString(text),
		PracticeAreas: d.hasPracticeArea(text),
		Length:        utf8.RuneCountInString(text),
	}
}

func (d *Detector) hasPracticeArea(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range d.practiceAreas {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type span struct {
	start, end int
}

// countDistinct gathers matches of every family, drops matches overlapping an
// earlier accepted match, and counts distinct normalized values.
func countDistinct(
	text string,
	families []*regexp.Regexp,
	accept func(text string, s span) bool,
	normalize func(string) string,
) int {
	var spans []span
	for _, re := range families {
		spans = append(spans, findAccepted(text, re, accept)...)
	}
	if len(spans) == 0 {
		return 0
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	seen := make(map[string]struct{}, len(spans))
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		lastEnd = s.end
		key := normalize(text[s.start:s.end])
		if key == "" {
			continue
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

// findAccepted scans left to right. A rejected match resumes the scan one
// byte past its start, so a real match it swallowed is still found.
func findAccepted(text string, re *regexp.Regexp, accept func(text string, s span) bool) []span {
	if accept == nil {
		var spans []span
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1]})
		}
		return spans
	}

	var spans []span
	for offset := 0; offset < len(text); {
		loc := re.FindStringIndex(text[offset:])
		if loc == nil {
			break
		}
		s := span{start: offset + loc[0], end: offset + loc[1]}
		switch {
		case accept(text, s):
			spans = append(spans, s)
			offset = max(s.end, s.start+1)
		default:
			offset = s.start + 1
		}
	}
	return spans
}

func acceptPhone(text string, s span) bool {
	match := text[s.start:s.end]
	if yearPrefix.MatchString(match) {
		return false
	}
	if s.start > 0 && isDigitByte(text[s.start-1]) {
		return false
	}
	if s.end < len(text) && isDigitByte(text[s.end]) {
		return false
	}
	return len(digitsOnly(match)) >= 10
}

func normalizeText(s string) string {
	s = whitespace.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Trim(s, " .,;:")
}

func normalizePhone(s string) string {
	digits := digitsOnly(s)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

func normalizeMoney(s string) string {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	return normalizeText(s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigitByte(c byte) bool {
	return c >= '0' && c <= '9'
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
