package members

import (
	"reflect"
	"testing"

	"github.com/ironledger/memberd/internal/domain"
)

func TestBuildQuery_Deterministic(t *testing.T) {
	t.Parallel()

	f := FilterState{Search: "smith", Status: domain.StatusActive}
	s := SortState{Field: "name", Direction: "asc"}
	p := PageState{Page: 3, PageSize: 25}

	q1 := BuildQuery(f, s, p)
	q2 := BuildQuery(f, s, p)
	if !reflect.DeepEqual(q1, q2) {
		t.Fatalf("identical inputs produced different queries:\n%+v\n%+v", q1, q2)
	}
	if q1.Signature() != q2.Signature() {
		t.Fatalf("signatures differ: %q vs %q", q1.Signature(), q2.Signature())
	}
}

func TestBuildQuery_PageTwoWithStatusAndSort(t *testing.T) {
	t.Parallel()

	q := BuildQuery(
		FilterState{Status: domain.StatusActive},
		SortState{Field: "name", Direction: "asc"},
		PageState{Page: 2, PageSize: 20},
	)
	if q.Status != domain.StatusActive {
		t.Fatalf("status=%q", q.Status)
	}
	if q.OrderBy != "name" || q.OrderDirection != "asc" {
		t.Fatalf("order=%q %q", q.OrderBy, q.OrderDirection)
	}
	if q.Limit != 20 || q.Offset != 20 {
		t.Fatalf("limit=%d offset=%d, want 20/20", q.Limit, q.Offset)
	}
	if q.Search != "" {
		t.Fatalf("search should be empty, got %q", q.Search)
	}
}

func TestBuildQuery_BlankSearchOmitted(t *testing.T) {
	t.Parallel()

	for _, search := range []string{"", "   ", "\t\n"} {
		q := BuildQuery(FilterState{Search: search}, SortState{}, PageState{})
		if q.Search != "" {
			t.Fatalf("search %q: want omitted, got %q", search, q.Search)
		}
	}

	with := BuildQuery(FilterState{Search: "  ng  "}, SortState{}, PageState{})
	if with.Search != "ng" {
		t.Fatalf("search not trimmed: %q", with.Search)
	}

	none := BuildQuery(FilterState{}, SortState{}, PageState{})
	blank := BuildQuery(FilterState{Search: "   "}, SortState{}, PageState{})
	if none.Signature() != blank.Signature() {
		t.Fatalf("blank search must equal no search: %q vs %q", none.Signature(), blank.Signature())
	}
}

func TestBuildQuery_SortFieldMapping(t *testing.T) {
	t.Parallel()

	q := BuildQuery(FilterState{}, SortState{Field: "joinDate", Direction: "desc"}, PageState{})
	if q.OrderBy != "join_date" || q.OrderDirection != "desc" {
		t.Fatalf("joinDate mapping: %q %q", q.OrderBy, q.OrderDirection)
	}

	// Fields with no backend column produce no server-side sort at all.
	q = BuildQuery(FilterState{}, SortState{Field: "activeSubscription", Direction: "desc"}, PageState{})
	if q.OrderBy != "" || q.OrderDirection != "" {
		t.Fatalf("unsortable field leaked into query: %q %q", q.OrderBy, q.OrderDirection)
	}

	// Unknown direction normalizes to asc.
	q = BuildQuery(FilterState{}, SortState{Field: "email", Direction: "sideways"}, PageState{})
	if q.OrderDirection != "asc" {
		t.Fatalf("direction=%q, want asc", q.OrderDirection)
	}
}

func TestBuildQuery_PageBounds(t *testing.T) {
	t.Parallel()

	q := BuildQuery(FilterState{}, SortState{}, PageState{Page: -4, PageSize: 0})
	if q.Limit != 20 || q.Offset != 0 {
		t.Fatalf("defaults: limit=%d offset=%d", q.Limit, q.Offset)
	}

	q = BuildQuery(FilterState{}, SortState{}, PageState{Page: 1, PageSize: 5000})
	if q.Limit != 100 {
		t.Fatalf("page size not capped: %d", q.Limit)
	}
}

func TestPageState_WithPageSizeResetsPage(t *testing.T) {
	t.Parallel()

	p := PageState{Page: 7, PageSize: 20}.WithPageSize(50)
	if p.Page != 1 || p.PageSize != 50 {
		t.Fatalf("got %+v, want page 1 size 50", p)
	}
}

func TestQuerySignature_Distinguishes(t *testing.T) {
	t.Parallel()

	base := BuildQuery(FilterState{Status: domain.StatusActive}, SortState{}, PageState{})
	other := BuildQuery(FilterState{Status: domain.StatusInactive}, SortState{}, PageState{})
	if base.Signature() == other.Signature() {
		t.Fatalf("different filters share a signature: %q", base.Signature())
	}
	page2 := BuildQuery(FilterState{Status: domain.StatusActive}, SortState{}, PageState{Page: 2})
	if base.Signature() == page2.Signature() {
		t.Fatalf("different pages share a signature: %q", base.Signature())
	}
}
