package domain

import (
	"encoding/base64"
	"strconv"
)

// Page sizes for metastore listings.
const (
	DefaultMaxResults = 100
	MaxMaxResults     = 1000
)

// PageRequest selects one page of a metastore listing. PageToken is the
// opaque NextPageToken of the previous page; empty selects the first page.
type PageRequest struct {
	MaxResults int
	PageToken  string
}

// Offset decodes the page token into a row offset. A token that does not
// decode to a non-negative offset is a *ValidationError.
func (p PageRequest) Offset() (int, error) {
	if p.PageToken == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0, ErrValidation("malformed page token %q", p.PageToken)
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0, ErrValidation("malformed page token %q", p.PageToken)
	}
	return offset, nil
}

// Limit returns the page size clamped to [1, MaxMaxResults].
func (p PageRequest) Limit() int {
	switch {
	case p.MaxResults <= 0:
		return DefaultMaxResults
	case p.MaxResults > MaxMaxResults:
		return MaxMaxResults
	default:
		return p.MaxResults
	}
}

// EncodePageToken returns the token selecting the page at offset, or ""
// for the first page.
func EncodePageToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// Page is one page of a listing of total items.
type Page[T any] struct {
	Items         []T
	Total         int64
	NextPageToken string
}

// NewPage wraps items read at offset with page size limit. NextPageToken is
// empty on the last page.
func NewPage[T any](items []T, offset, limit int, total int64) Page[T] {
	p := Page[T]{Items: items, Total: total}
	if next := offset + limit; int64(next) < total {
		p.NextPageToken = EncodePageToken(next)
	}
	return p
}
