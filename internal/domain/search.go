package domain

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Query length bounds, in characters.
const (
	MinQueryLength = 1
	MaxQueryLength = 1000
)

// Status selects markets by where now falls relative to their close time.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusAll    Status = "all"
)

// ParseStatus maps the wire value to a Status. The empty string selects
// StatusOpen.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case "":
		return StatusOpen, nil
	case StatusOpen, StatusClosed, StatusAll:
		return st, nil
	default:
		return "", Validationf("status", "must be one of open, closed, all; got %q", s)
	}
}

// SearchRequest is one page request. Embedding, when set, is a vector the
// caller obtained earlier for the same query and is reused verbatim.
type SearchRequest struct {
	Query     string
	Cursor    string
	Embedding []float32
	Status    Status
	Sources   []Site
}

// Validate checks the request against the configured embedding length.
// It fills in the default status.
func (r *SearchRequest) Validate(dims int) error {
	n := utf8.RuneCountInString(r.Query)
	if n < MinQueryLength || n > MaxQueryLength {
		return Validationf("query", "length must be %d-%d characters, got %d", MinQueryLength, MaxQueryLength, n)
	}
	if r.Embedding != nil && len(r.Embedding) != dims {
		return Validationf("embedding", "must have exactly %d dimensions, got %d", dims, len(r.Embedding))
	}
	if r.Embedding != nil {
		if err := checkVector(r.Embedding); err != nil {
			return err
		}
	}
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	for _, s := range r.Sources {
		if _, err := ParseSite(string(s)); err != nil {
			return err
		}
	}
	return nil
}

// checkVector rejects vectors that cosine similarity is undefined for.
func checkVector(v []float32) error {
	var norm float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Validationf("embedding", "must contain only finite numbers")
		}
		norm += f * f
	}
	if norm == 0 {
		return Validationf("embedding", "must not be the zero vector")
	}
	return nil
}

// SearchPage is one page of ranked results. NextCursor is nil on the last
// page.
type SearchPage struct {
	Markets    []MarketView `json:"markets"`
	NextCursor *string      `json:"nextCursor"`
}
