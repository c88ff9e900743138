package membercache

import (
	"context"

	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// ListPage is a cached page of a member list, keyed by the canonical
// signature of the query that produced it.
type ListPage struct {
	Query   memberbackend.Query
	Members []domain.Member
	Total   int
}

// Store is the injected cache port. It tracks four view kinds: single-member
// detail by id, list pages by query signature, aggregate status counts, and
// the total member count.
//
// The store is mechanical: it holds and drops values. All coherence policy
// (what to invalidate after which mutation, ordering between racing
// mutations) lives in the application layer, which is the only permitted
// writer of this port.
type Store interface {
	GetDetail(ctx context.Context, id domain.MemberID) (domain.Member, bool)
	SetDetail(ctx context.Context, m domain.Member)
	DropDetail(ctx context.Context, id domain.MemberID)

	// ListKeys returns the signatures of all currently cached list pages.
	ListKeys(ctx context.Context) []string
	GetList(ctx context.Context, key string) (ListPage, bool)
	SetList(ctx context.Context, key string, page ListPage)
	InvalidateList(ctx context.Context, key string)

	GetStatusCounts(ctx context.Context) (map[domain.Status]int, bool)
	SetStatusCounts(ctx context.Context, counts map[domain.Status]int)
	InvalidateStatusCounts(ctx context.Context)

	GetTotal(ctx context.Context) (int, bool)
	SetTotal(ctx context.Context, total int)
	InvalidateTotal(ctx context.Context)
}
