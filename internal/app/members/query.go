package members

import (
	"strings"

	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// FilterState is the user-facing filter selection.
type FilterState struct {
	Search string
	Status domain.Status
	Gender domain.Gender
}

// SortState is the user-facing sort selection. Field uses the UI vocabulary;
// fields without a backend-sortable column produce no server-side sort.
type SortState struct {
	Field     string
	Direction string // "asc" or "desc"; anything else normalizes to "asc"
}

// PageState is 1-indexed pagination state.
type PageState struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WithPageSize returns the page state with a new page size and the current
// page reset to 1, so the user never lands on a now-out-of-range page.
func (p PageState) WithPageSize(size int) PageState {
	return PageState{Page: 1, PageSize: size}
}

// sortColumns maps UI sort fields onto the backend-sortable columns. Fields
// absent here (e.g. computed projections) sort client-side only.
var sortColumns = map[string]string{
	"name":         "name",
	"email":        "email",
	"status":       "status",
	"joinDate":     "join_date",
	"memberNumber": "member_number",
	"createdAt":    "created_at",
}

// BuildQuery translates filter/sort/page state into the normalized query
// object consumed by the backend. It is pure and deterministic: identical
// inputs always yield an identical query, and blank or whitespace-only search
// input is omitted entirely so "no filter" and "empty filter" never conflate.
func BuildQuery(f FilterState, s SortState, p PageState) memberbackend.Query {
	q := memberbackend.Query{
		Search: strings.TrimSpace(f.Search),
		Status: f.Status,
		Gender: f.Gender,
	}

	if col, ok := sortColumns[s.Field]; ok {
		q.OrderBy = col
		q.OrderDirection = "asc"
		if strings.EqualFold(s.Direction, "desc") {
			q.OrderDirection = "desc"
		}
	}

	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	q.Limit = size
	q.Offset = (page - 1) * size
	return q
}
