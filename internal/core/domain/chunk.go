package domain

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// DomainIDLength is the number of hex characters kept from the domain hash.
const DomainIDLength = 12

// Chunk is the atomic retrievable unit. It is created once at embedding time
// and only ever removed in bulk.
type Chunk struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	DocumentID  string         `json:"document_id"`
	Domain      string         `json:"domain,omitempty"`
	DomainID    string         `json:"domain_id,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	ChunkIndex  int            `json:"chunk_index"`
	TotalChunks int            `json:"total_chunks"`
	Patterns    PatternSignals `json:"metadata"`
	Embedding   []float32      `json:"-"`
}

type RetrievedChunk struct {
	Chunk
	Distance float64 `json:"distance"`
}

// SearchFilter scopes a search to one domain or one document, never both.
type SearchFilter struct {
	DomainID   string `json:"domain_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

func (f SearchFilter) Validate() error {
	hasDomain := strings.TrimSpace(f.DomainID) != ""
	hasDocument := strings.TrimSpace(f.DocumentID) != ""
	switch {
	case hasDomain && hasDocument:
		return WrapError(ErrInvalidInput, "validate search filter", errors.New("domain_id and document_id are mutually exclusive"))
	case !hasDomain && !hasDocument:
		return WrapError(ErrInvalidInput, "validate search filter", errors.New("domain_id or document_id is required"))
	default:
		return nil
	}
}

// Key returns the filtered column name and its value.
func (f SearchFilter) Key() (string, string) {
	if f.DomainID != "" {
		return "domain_id", f.DomainID
	}
	return "document_id", f.DocumentID
}

// RetrievalQuery is one scoped similarity request.
type RetrievalQuery struct {
	Text   string
	Filter SearchFilter
	K      int
	Boost  BoostField
}

func DomainFilter(domainName string) SearchFilter {
	return SearchFilter{DomainID: DomainID(domainName)}
}

func DocumentFilter(documentID string) SearchFilter {
	return SearchFilter{DocumentID: strings.TrimSpace(documentID)}
}

// NormalizeDomain reduces a domain, host or URL to a lowercase host without
// scheme, port, path or leading "www.".
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			d = u.Host
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}

// DomainID is a deterministic function of the normalized domain only, so all
// chunks of one site share it whatever document they came from.
func DomainID(domainName string) string {
	normalized := NormalizeDomain(domainName)
	if normalized == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:DomainIDLength]
}

// InferDomain derives a domain from a document id. It returns "" when the id
// carries no recognizable domain.
func InferDomain(documentID string) string {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return ""
	}
	lower := strings.ToLower(id)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(id)
		if err != nil || u.Host == "" {
			return ""
		}
		return NormalizeDomain(u.Host)
	}
	if first, _, found := strings.Cut(id, "/"); found {
		if strings.Contains(first, ".") {
			return NormalizeDomain(first)
		}
		return ""
	}
	if strings.Contains(id, ".") {
		return NormalizeDomain(id)
	}
	return ""
}
