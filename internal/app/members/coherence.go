package members

import (
	"context"
	"sync"

	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
	"github.com/ironledger/memberd/internal/ports/out/membercache"
)

// Coherence is the sole writer of the cache port. After every mutation it
// decides which cached views are stale and either patches them in place or
// invalidates them, coalescing invalidations for bulk operations.
//
// Racing mutations for the same member are arbitrated by issuance order: the
// most recently issued mutation wins, so a slow earlier request can never
// clobber the settled state of a faster later one.
type Coherence struct {
	store membercache.Store

	mu          sync.Mutex
	lastApplied map[domain.MemberID]uint64
}

func NewCoherence(store membercache.Store) *Coherence {
	return &Coherence{
		store:       store,
		lastApplied: make(map[domain.MemberID]uint64),
	}
}

// Snapshot captures the cached state of a member before an optimistic patch
// is applied. Rollback restores exactly this state; it is never reconstructed
// after the fact.
type Snapshot struct {
	id     domain.MemberID
	detail *domain.Member
	// rows holds the cached list row per list signature the member appears in.
	rows map[string]domain.Member
}

// Snapshot captures the current cached views of id.
func (c *Coherence) Snapshot(ctx context.Context, id domain.MemberID) Snapshot {
	snap := Snapshot{id: id, rows: make(map[string]domain.Member)}
	if m, ok := c.store.GetDetail(ctx, id); ok {
		snap.detail = &m
	}
	for _, key := range c.store.ListKeys(ctx) {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		for _, row := range page.Members {
			if row.ID == id {
				snap.rows[key] = row
				break
			}
		}
	}
	return snap
}

// ApplyOptimistic patches the detail cache and any list rows for m.ID with
// the optimistic value, synchronously, before the backend call resolves.
func (c *Coherence) ApplyOptimistic(ctx context.Context, seq uint64, m domain.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.claim(m.ID, seq) {
		return
	}
	c.store.SetDetail(ctx, m)
	c.patchRows(ctx, m)
}

// Rollback restores the pre-mutation snapshot after a failed backend call.
// If a later-issued mutation for the same member has already applied, the
// rollback is discarded: the newer state wins.
func (c *Coherence) Rollback(ctx context.Context, seq uint64, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.superseded(snap.id, seq) {
		return
	}
	if snap.detail != nil {
		c.store.SetDetail(ctx, *snap.detail)
	} else {
		c.store.DropDetail(ctx, snap.id)
	}
	for key, row := range snap.rows {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		for i := range page.Members {
			if page.Members[i].ID == snap.id {
				page.Members[i] = row
				c.store.SetList(ctx, key, page)
				break
			}
		}
	}
}

// CommitCreate settles a successful create. A new row may match any active
// filter, so every list page plus both counts are invalidated.
func (c *Coherence) CommitCreate(ctx context.Context, seq uint64, m domain.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claim(m.ID, seq)
	c.store.SetDetail(ctx, m)

	p := newPending()
	for _, key := range c.store.ListKeys(ctx) {
		p.invalidateLists[key] = true
	}
	p.invalidateCounts = true
	p.invalidateTotal = true
	c.flush(ctx, p)
}

// CommitUpdate settles a successful non-status update with the authoritative
// backend state. changed names the canonical fields the mutation touched
// (see fieldName* constants); a list page is invalidated only when one of its
// sort/filter keys changed, otherwise its row is patched in place.
func (c *Coherence) CommitUpdate(ctx context.Context, seq uint64, after domain.Member, changed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.claim(after.ID, seq) {
		return
	}
	p := newPending()
	c.settleUpdate(ctx, after, changed, p)
	c.flush(ctx, p)
}

// CommitStatus settles a successful status transition. Both the old and new
// status buckets changed, so status counts are always invalidated; lists
// filtered or sorted by status are invalidated, others get a row patch.
func (c *Coherence) CommitStatus(ctx context.Context, seq uint64, after domain.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.claim(after.ID, seq) {
		return
	}
	p := newPending()
	c.settleStatus(ctx, after, p)
	c.flush(ctx, p)
}

// CommitDelete settles a successful delete. status is the member's status at
// deletion time, used to decrement the right count bucket.
func (c *Coherence) CommitDelete(ctx context.Context, seq uint64, id domain.MemberID, status domain.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claim(id, seq)
	p := newPending()
	c.settleDelete(ctx, id, status, p)
	c.flush(ctx, p)
}

// StatusSettle is one successful item of a bulk status operation.
type StatusSettle struct {
	Seq   uint64
	After domain.Member
}

// CommitStatusBulk settles the succeeded subset of a bulk status change as a
// single coalesced batch: each member's row is patched, but every stale view
// is invalidated exactly once.
func (c *Coherence) CommitStatusBulk(ctx context.Context, settles []StatusSettle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := newPending()
	for _, s := range settles {
		if !c.claim(s.After.ID, s.Seq) {
			continue
		}
		c.settleStatus(ctx, s.After, p)
	}
	c.flush(ctx, p)
}

// DeleteSettle is one successful item of a bulk delete.
type DeleteSettle struct {
	Seq    uint64
	ID     domain.MemberID
	Status domain.Status
}

// CommitDeleteBulk settles the succeeded subset of a bulk delete in one batch.
func (c *Coherence) CommitDeleteBulk(ctx context.Context, settles []DeleteSettle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := newPending()
	for _, s := range settles {
		c.claim(s.ID, s.Seq)
		c.settleDelete(ctx, s.ID, s.Status, p)
	}
	c.flush(ctx, p)
}

// OnChange reacts to a backend change-feed event. The payload is advisory, so
// affected views are only marked stale; nothing is patched from the event.
func (c *Coherence) OnChange(ctx context.Context, ch memberbackend.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.MemberID != "" {
		c.store.DropDetail(ctx, ch.MemberID)
	}
	p := newPending()
	for _, key := range c.store.ListKeys(ctx) {
		p.invalidateLists[key] = true
	}
	p.invalidateCounts = true
	p.invalidateTotal = true
	c.flush(ctx, p)
}

// PeekDetail reads the cached detail view without touching it.
func (c *Coherence) PeekDetail(ctx context.Context, id domain.MemberID) (domain.Member, bool) {
	return c.store.GetDetail(ctx, id)
}

// StoreDetail records a read-through detail fetch. It is set-if-absent: a
// slow read must never overwrite state a mutation has already settled.
func (c *Coherence) StoreDetail(ctx context.Context, m domain.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.store.GetDetail(ctx, m.ID); ok {
		return
	}
	c.store.SetDetail(ctx, m)
}

// PeekList reads a cached list page by signature.
func (c *Coherence) PeekList(ctx context.Context, key string) (membercache.ListPage, bool) {
	return c.store.GetList(ctx, key)
}

// StoreList records a read-through list fetch under its query signature.
func (c *Coherence) StoreList(ctx context.Context, key string, q memberbackend.Query, p memberbackend.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SetList(ctx, key, membercache.ListPage{Query: q, Members: p.Members, Total: p.Total})
}

// PeekStatusCounts reads the cached status counts.
func (c *Coherence) PeekStatusCounts(ctx context.Context) (map[domain.Status]int, bool) {
	return c.store.GetStatusCounts(ctx)
}

// StoreStatusCounts records a read-through counts fetch.
func (c *Coherence) StoreStatusCounts(ctx context.Context, counts map[domain.Status]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SetStatusCounts(ctx, counts)
}

// PeekTotal reads the cached total member count.
func (c *Coherence) PeekTotal(ctx context.Context) (int, bool) {
	return c.store.GetTotal(ctx)
}

// StoreTotal records a read-through total fetch.
func (c *Coherence) StoreTotal(ctx context.Context, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SetTotal(ctx, total)
}

// pending accumulates invalidations so bulk settles flush each one once.
type pending struct {
	invalidateLists  map[string]bool
	invalidateCounts bool
	invalidateTotal  bool
	deltaTotal       int
	deltaCounts      map[domain.Status]int
}

func newPending() *pending {
	return &pending{
		invalidateLists: make(map[string]bool),
		deltaCounts:     make(map[domain.Status]int),
	}
}

// settleDetail writes the authoritative post-mutation state to the detail
// cache. Backend write responses carry the bare row, so the server-computed
// projections from the last enhanced read survive the settle; the response
// only wins for the fields it actually carries.
func (c *Coherence) settleDetail(ctx context.Context, after domain.Member) {
	if after.Projections == nil {
		if prev, ok := c.store.GetDetail(ctx, after.ID); ok {
			after.Projections = prev.Projections
		}
	}
	c.store.SetDetail(ctx, after)
}

func (c *Coherence) settleUpdate(ctx context.Context, after domain.Member, changed []string, p *pending) {
	c.settleDetail(ctx, after)
	for _, key := range c.store.ListKeys(ctx) {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		if queryDependsOn(page.Query, changed) {
			p.invalidateLists[key] = true
			continue
		}
		patchPageRow(ctx, c.store, key, page, after)
	}
}

func (c *Coherence) settleStatus(ctx context.Context, after domain.Member, p *pending) {
	c.settleDetail(ctx, after)
	for _, key := range c.store.ListKeys(ctx) {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		// Membership in a status-filtered page may have changed either way.
		if page.Query.Status != "" || page.Query.OrderBy == "status" {
			p.invalidateLists[key] = true
			continue
		}
		patchPageRow(ctx, c.store, key, page, after)
	}
	p.invalidateCounts = true
}

func (c *Coherence) settleDelete(ctx context.Context, id domain.MemberID, status domain.Status, p *pending) {
	c.store.DropDetail(ctx, id)
	for _, key := range c.store.ListKeys(ctx) {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		idx := -1
		for i := range page.Members {
			if page.Members[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		page.Members = append(page.Members[:idx:idx], page.Members[idx+1:]...)
		page.Total--
		// A short page would silently show fewer rows than the page size
		// implies; force a re-fetch instead.
		if len(page.Members) < page.Query.Limit && page.Total > page.Query.Offset+len(page.Members) {
			p.invalidateLists[key] = true
			continue
		}
		c.store.SetList(ctx, key, page)
	}
	p.deltaTotal--
	if status != "" {
		p.deltaCounts[status]--
	}
}

func (c *Coherence) flush(ctx context.Context, p *pending) {
	for key := range p.invalidateLists {
		c.store.InvalidateList(ctx, key)
	}
	if p.invalidateCounts {
		c.store.InvalidateStatusCounts(ctx)
	} else if len(p.deltaCounts) > 0 {
		if counts, ok := c.store.GetStatusCounts(ctx); ok {
			for st, d := range p.deltaCounts {
				counts[st] += d
			}
			c.store.SetStatusCounts(ctx, counts)
		} else {
			c.store.InvalidateStatusCounts(ctx)
		}
	}
	if p.invalidateTotal {
		c.store.InvalidateTotal(ctx)
	} else if p.deltaTotal != 0 {
		if total, ok := c.store.GetTotal(ctx); ok {
			c.store.SetTotal(ctx, total+p.deltaTotal)
		} else {
			c.store.InvalidateTotal(ctx)
		}
	}
}

// claim records seq as the latest applied mutation for id. It returns false,
// leaving the record untouched, when a newer mutation already applied.
func (c *Coherence) claim(id domain.MemberID, seq uint64) bool {
	if seq < c.lastApplied[id] {
		return false
	}
	c.lastApplied[id] = seq
	return true
}

func (c *Coherence) superseded(id domain.MemberID, seq uint64) bool {
	return seq < c.lastApplied[id]
}

// patchRows replaces m's row in every cached list page it appears in.
// Called with c.mu held.
func (c *Coherence) patchRows(ctx context.Context, m domain.Member) {
	for _, key := range c.store.ListKeys(ctx) {
		page, ok := c.store.GetList(ctx, key)
		if !ok {
			continue
		}
		patchPageRow(ctx, c.store, key, page, m)
	}
}

func patchPageRow(ctx context.Context, store membercache.Store, key string, page membercache.ListPage, m domain.Member) {
	for i := range page.Members {
		if page.Members[i].ID == m.ID {
			page.Members[i] = m
			store.SetList(ctx, key, page)
			return
		}
	}
}

// Canonical changed-field names, aligned with the backend sort columns so
// sort relevance is a direct match.
const (
	fieldName         = "name"
	fieldEmail        = "email"
	fieldStatus       = "status"
	fieldGender       = "gender"
	fieldJoinDate     = "join_date"
	fieldMemberNumber = "member_number"
)

// queryDependsOn reports whether any changed field is a sort or filter key of
// the query, in which case a cached page for it can no longer be patched in
// place.
func queryDependsOn(q memberbackend.Query, changed []string) bool {
	for _, f := range changed {
		if q.OrderBy != "" && f == q.OrderBy {
			return true
		}
		if q.Status != "" && f == fieldStatus {
			return true
		}
		if q.Gender != "" && f == fieldGender {
			return true
		}
		if q.Search != "" && (f == fieldName || f == fieldEmail || f == fieldMemberNumber) {
			return true
		}
	}
	return false
}
