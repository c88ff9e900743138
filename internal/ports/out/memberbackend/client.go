package memberbackend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ironledger/memberd/internal/domain"
)

// Query is the normalized query-parameter object consumed by the backend's
// read path. It is produced by the application-layer query builder; adapters
// translate it into their native filter/sort/limit/offset form.
type Query struct {
	// Search is a free-text filter across name, email and member number.
	// Empty means no search filter (never sent as an empty string).
	Search string
	// Status filters to a single lifecycle status; empty means all.
	Status domain.Status
	// Gender filters to a single gender; empty means all.
	Gender domain.Gender

	// OrderBy is a backend-sortable column; empty means no server-side sort.
	OrderBy string
	// OrderDirection is "asc" or "desc"; meaningful only when OrderBy is set.
	OrderDirection string

	Limit  int
	Offset int
}

// Signature returns a canonical string form of the query. Equal queries yield
// equal signatures regardless of how they were constructed, so the signature
// is usable as a cache key. Blank fields are omitted entirely.
func (q Query) Signature() string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Gender != "" {
		v.Set("gender", string(q.Gender))
	}
	if q.OrderBy != "" {
		v.Set("orderBy", q.OrderBy)
		v.Set("orderDirection", q.OrderDirection)
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	// Encode emits keys in sorted order, which keeps signatures deterministic.
	return v.Encode()
}

// ChangeType tags a change-feed event.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is a push notification from the backend's realtime feed. The payload
// is advisory: consumers invalidate and re-fetch rather than trusting it as
// authoritative entity state.
type Change struct {
	Type     ChangeType
	MemberID domain.MemberID
}

// Page is one page of a member list read, with the total row count for the
// query (ignoring limit/offset).
type Page struct {
	Members []domain.Member
	Total   int
}

// Client is the narrow contract over the hosted backend. All persistence,
// uniqueness enforcement and projection computation happen on the other side
// of this interface.
//
// Write methods return the authoritative post-write entity state; reads of a
// single member include server-computed projections where available.
type Client interface {
	Get(ctx context.Context, id domain.MemberID) (domain.Member, error)
	List(ctx context.Context, q Query) (Page, error)
	StatusCounts(ctx context.Context) (map[domain.Status]int, error)
	Count(ctx context.Context) (int, error)

	// Create persists a new member. The backend assigns ID, MemberNumber and
	// timestamps, and defaults Status to pending when unset.
	Create(ctx context.Context, m domain.Member) (domain.Member, error)
	// Update replaces the mutable fields of an existing member and returns the
	// authoritative post-write state.
	Update(ctx context.Context, m domain.Member) (domain.Member, error)
	// Delete removes the member permanently. There is no soft delete.
	Delete(ctx context.Context, id domain.MemberID) error

	// Changes opens the backend's change feed. The channel is closed when ctx
	// is done. Implementations without realtime support return
	// ErrChangeFeedUnsupported.
	Changes(ctx context.Context) (<-chan Change, error)
}
