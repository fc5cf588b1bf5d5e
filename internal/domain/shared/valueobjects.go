// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID reports whether s looks like a canonical UUID.
func IsUUID(s string) bool {
	return uuidRegex.MatchString(s)
}

// IDSet is an ordered set of entity identifiers. The zero value is an empty set.
// Order is kept sorted so that persisted arrays compare equal regardless of
// insertion order.
type IDSet []string

// NewIDSet builds a set from ids, dropping blanks and duplicates.
func NewIDSet(ids ...string) IDSet {
	var s IDSet
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Has reports whether id is a member of the set.
func (s IDSet) Has(id string) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

// Add returns a new set with id inserted. The receiver is not modified.
func (s IDSet) Add(id string) IDSet {
	id = strings.TrimSpace(id)
	if id == "" {
		return s
	}
	i, found := slices.BinarySearch(s, id)
	if found {
		return s
	}
	return slices.Insert(s.Clone(), i, id)
}

// Remove returns a new set with id removed. The receiver is not modified.
func (s IDSet) Remove(id string) IDSet {
	i, found := slices.BinarySearch(s, id)
	if !found {
		return s
	}
	return slices.Delete(s.Clone(), i, i+1)
}

// Len returns the number of members.
func (s IDSet) Len() int { return len(s) }

// Equal reports set equality.
func (s IDSet) Equal(other IDSet) bool {
	return slices.Equal(s, other)
}

// Intersects reports whether the two sets share a member.
func (s IDSet) Intersects(other IDSet) bool {
	for _, id := range s {
		if other.Has(id) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Slice returns the members as a plain slice.
func (s IDSet) Slice() []string {
	return []string(s.Clone())
}

// ═══════════════════════════════════════════════════════════════════════════
// Explanations (rejection/return reasons, feedback)
// ═══════════════════════════════════════════════════════════════════════════

// MinExplanationLength is the minimum length, in characters, of any free-text
// reason or feedback that accompanies a negative decision.
const MinExplanationLength = 20

// ExplanationStatus classifies a reason/feedback text.
type ExplanationStatus int

const (
	ExplanationOK ExplanationStatus = iota
	ExplanationMissing
	ExplanationTooShort
)

// CheckExplanation classifies text. Length is counted in characters, not bytes,
// so Cyrillic reasons are measured the same way as Latin ones.
func CheckExplanation(text string) ExplanationStatus {
	if strings.TrimSpace(text) == "" {
		return ExplanationMissing
	}
	if utf8.RuneCountInString(text) < MinExplanationLength {
		return ExplanationTooShort
	}
	return ExplanationOK
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset calculates the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the page size, bounded to [1, 100].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return 20
	case p.PageSize > 100:
		return 100
	default:
		return p.PageSize
	}
}

// NewPagination creates pagination parameters.
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns the first page with the default size.
func DefaultPagination() Pagination {
	return NewPagination(1, 20)
}
