package members

import (
	"context"
	"testing"
	"time"

	memcache "github.com/ironledger/memberd/internal/adapters/memory/membercache"
	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

func testMember(id, first, email string, status domain.Status) domain.Member {
	return domain.Member{
		ID:        domain.MemberID(id),
		FirstName: first,
		LastName:  "Tester",
		Email:     email,
		Status:    status,
		Gender:    domain.GenderFemale,
	}
}

func TestCoherence_OptimisticPatchVisibleImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	coh.StoreDetail(ctx, alice)

	q := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})

	patched := alice
	patched.Email = "new@example.com"
	coh.ApplyOptimistic(ctx, 1, patched)

	got, ok := coh.PeekDetail(ctx, alice.ID)
	if !ok || got.Email != "new@example.com" {
		t.Fatalf("detail not patched: ok=%v email=%q", ok, got.Email)
	}
	page, ok := coh.PeekList(ctx, q.Signature())
	if !ok || page.Members[0].Email != "new@example.com" {
		t.Fatalf("list row not patched: ok=%v page=%+v", ok, page)
	}
}

func TestCoherence_RollbackRestoresSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	coh.StoreDetail(ctx, alice)
	q := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})

	snap := coh.Snapshot(ctx, alice.ID)
	patched := alice
	patched.Email = "doomed@example.com"
	coh.ApplyOptimistic(ctx, 1, patched)
	coh.Rollback(ctx, 1, snap)

	got, ok := coh.PeekDetail(ctx, alice.ID)
	if !ok || got.Email != "alice@example.com" {
		t.Fatalf("detail not restored: ok=%v email=%q", ok, got.Email)
	}
	page, _ := coh.PeekList(ctx, q.Signature())
	if page.Members[0].Email != "alice@example.com" {
		t.Fatalf("list row not restored: %+v", page.Members[0])
	}
}

func TestCoherence_RollbackDropsDetailWhenNoneCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	id := domain.MemberID("a")

	snap := coh.Snapshot(ctx, id)
	coh.ApplyOptimistic(ctx, 1, testMember("a", "Alice", "alice@example.com", domain.StatusActive))
	coh.Rollback(ctx, 1, snap)

	if _, ok := coh.PeekDetail(ctx, id); ok {
		t.Fatal("detail should be absent after rollback to empty snapshot")
	}
}

func TestCoherence_StaleRollbackDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	coh.StoreDetail(ctx, alice)

	// Mutation 1 snapshots, then mutation 2 applies and settles first.
	snap1 := coh.Snapshot(ctx, alice.ID)
	second := alice
	second.Email = "second@example.com"
	coh.ApplyOptimistic(ctx, 2, second)
	coh.CommitUpdate(ctx, 2, second, []string{fieldEmail})

	// Mutation 1 fails late; its rollback must not clobber mutation 2.
	coh.Rollback(ctx, 1, snap1)

	got, _ := coh.PeekDetail(ctx, alice.ID)
	if got.Email != "second@example.com" {
		t.Fatalf("stale rollback clobbered newer state: email=%q", got.Email)
	}
}

func TestCoherence_StaleOptimisticDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	coh.StoreDetail(ctx, alice)

	newer := alice
	newer.Email = "newer@example.com"
	coh.ApplyOptimistic(ctx, 5, newer)

	older := alice
	older.Email = "older@example.com"
	coh.ApplyOptimistic(ctx, 3, older)

	got, _ := coh.PeekDetail(ctx, alice.ID)
	if got.Email != "newer@example.com" {
		t.Fatalf("older mutation overwrote newer: email=%q", got.Email)
	}
}

func TestCoherence_ReadThroughNeverOverwritesSettledState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	settled := testMember("a", "Alice", "settled@example.com", domain.StatusActive)
	coh.CommitUpdate(ctx, 1, settled, nil)

	// A read that started before the mutation resolves afterwards with stale data.
	stale := settled
	stale.Email = "stale@example.com"
	coh.StoreDetail(ctx, stale)

	got, _ := coh.PeekDetail(ctx, settled.ID)
	if got.Email != "settled@example.com" {
		t.Fatalf("slow read overwrote settled state: email=%q", got.Email)
	}
}

func TestCoherence_SettleKeepsCachedProjections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	paid := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	alice.Projections = &domain.EnhancedProjections{LastPaymentDate: &paid}
	coh.StoreDetail(ctx, alice)

	// Backend write responses carry the bare row without projections.
	after := alice
	after.FirstName = "Alicia"
	after.Projections = nil
	coh.CommitUpdate(ctx, 1, after, []string{fieldName})

	got, ok := coh.PeekDetail(ctx, alice.ID)
	if !ok || got.FirstName != "Alicia" {
		t.Fatalf("update not settled: ok=%v first=%q", ok, got.FirstName)
	}
	if got.Projections == nil || got.Projections.LastPaymentDate == nil || !got.Projections.LastPaymentDate.Equal(paid) {
		t.Fatalf("projections lost on settle: %+v", got.Projections)
	}

	suspended := after
	suspended.Status = domain.StatusSuspended
	coh.CommitStatus(ctx, 2, suspended)

	got, _ = coh.PeekDetail(ctx, alice.ID)
	if got.Status != domain.StatusSuspended {
		t.Fatalf("status not settled: %q", got.Status)
	}
	if got.Projections == nil || got.Projections.LastPaymentDate == nil {
		t.Fatalf("projections lost on status settle: %+v", got.Projections)
	}
}

func TestCoherence_CommitUpdateInvalidatesDependentLists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)

	sorted := memberbackend.Query{OrderBy: "email", OrderDirection: "asc", Limit: 20}
	plain := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, sorted.Signature(), sorted, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})
	coh.StoreList(ctx, plain.Signature(), plain, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})

	after := alice
	after.Email = "zz@example.com"
	coh.CommitUpdate(ctx, 1, after, []string{fieldEmail})

	// The email-sorted page can no longer be trusted; the plain page is patched.
	if _, ok := coh.PeekList(ctx, sorted.Signature()); ok {
		t.Fatal("email-sorted list should have been invalidated")
	}
	page, ok := coh.PeekList(ctx, plain.Signature())
	if !ok || page.Members[0].Email != "zz@example.com" {
		t.Fatalf("plain list should have been patched in place: ok=%v %+v", ok, page)
	}
}

func TestCoherence_CommitStatusInvalidatesStatusViews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)

	filtered := memberbackend.Query{Status: domain.StatusActive, Limit: 20}
	plain := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, filtered.Signature(), filtered, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})
	coh.StoreList(ctx, plain.Signature(), plain, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})
	coh.StoreStatusCounts(ctx, map[domain.Status]int{domain.StatusActive: 1})

	after := alice
	after.Status = domain.StatusInactive
	coh.CommitStatus(ctx, 1, after)

	if _, ok := coh.PeekList(ctx, filtered.Signature()); ok {
		t.Fatal("status-filtered list should have been invalidated")
	}
	page, ok := coh.PeekList(ctx, plain.Signature())
	if !ok || page.Members[0].Status != domain.StatusInactive {
		t.Fatalf("plain list row should carry the new status: ok=%v %+v", ok, page)
	}
	if _, ok := coh.PeekStatusCounts(ctx); ok {
		t.Fatal("status counts should have been invalidated")
	}
}

func TestCoherence_DeleteDecrementsCachedCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	coh.StoreTotal(ctx, 5)
	coh.StoreStatusCounts(ctx, map[domain.Status]int{domain.StatusActive: 3, domain.StatusPending: 2})

	coh.CommitDelete(ctx, 1, domain.MemberID("a"), domain.StatusActive)

	total, ok := coh.PeekTotal(ctx)
	if !ok || total != 4 {
		t.Fatalf("total: ok=%v got=%d want 4", ok, total)
	}
	counts, ok := coh.PeekStatusCounts(ctx)
	if !ok || counts[domain.StatusActive] != 2 || counts[domain.StatusPending] != 2 {
		t.Fatalf("counts: ok=%v got=%v", ok, counts)
	}
}

func TestCoherence_DeleteInvalidatesShortPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	a := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	b := testMember("b", "Bob", "bob@example.com", domain.StatusActive)

	// A full first page of two, with a third member on the next page.
	q := memberbackend.Query{Limit: 2}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Members: []domain.Member{a, b}, Total: 3})

	coh.CommitDelete(ctx, 1, a.ID, a.Status)

	// Removing the row would show one member where the page size implies two.
	if _, ok := coh.PeekList(ctx, q.Signature()); ok {
		t.Fatal("short page should have been invalidated")
	}
}

func TestCoherence_DeleteKeepsCompletePage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	a := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	b := testMember("b", "Bob", "bob@example.com", domain.StatusActive)

	// The whole result set fits in one page, so removal keeps it coherent.
	q := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Members: []domain.Member{a, b}, Total: 2})

	coh.CommitDelete(ctx, 1, a.ID, a.Status)

	page, ok := coh.PeekList(ctx, q.Signature())
	if !ok {
		t.Fatal("complete page should have survived the delete")
	}
	if len(page.Members) != 1 || page.Members[0].ID != b.ID || page.Total != 1 {
		t.Fatalf("unexpected page after delete: %+v", page)
	}
}

func TestCoherence_CommitCreateInvalidatesListsAndCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	q := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Total: 0})
	coh.StoreStatusCounts(ctx, map[domain.Status]int{})
	coh.StoreTotal(ctx, 0)

	created := testMember("a", "Alice", "alice@example.com", domain.StatusPending)
	coh.CommitCreate(ctx, 1, created)

	if _, ok := coh.PeekList(ctx, q.Signature()); ok {
		t.Fatal("lists should have been invalidated by create")
	}
	if _, ok := coh.PeekStatusCounts(ctx); ok {
		t.Fatal("status counts should have been invalidated by create")
	}
	if _, ok := coh.PeekTotal(ctx); ok {
		t.Fatal("total should have been invalidated by create")
	}
	if got, ok := coh.PeekDetail(ctx, created.ID); !ok || got.Email != created.Email {
		t.Fatalf("created member should be cached: ok=%v %+v", ok, got)
	}
}

func TestCoherence_OnChangeMarksEverythingStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coh := NewCoherence(memcache.NewStore())
	alice := testMember("a", "Alice", "alice@example.com", domain.StatusActive)
	coh.StoreDetail(ctx, alice)
	q := memberbackend.Query{Limit: 20}
	coh.StoreList(ctx, q.Signature(), q, memberbackend.Page{Members: []domain.Member{alice}, Total: 1})
	coh.StoreStatusCounts(ctx, map[domain.Status]int{domain.StatusActive: 1})
	coh.StoreTotal(ctx, 1)

	coh.OnChange(ctx, memberbackend.Change{Type: memberbackend.ChangeUpdate, MemberID: alice.ID})

	if _, ok := coh.PeekDetail(ctx, alice.ID); ok {
		t.Fatal("detail should be dropped, the event payload is advisory")
	}
	if _, ok := coh.PeekList(ctx, q.Signature()); ok {
		t.Fatal("lists should be stale after a feed event")
	}
	if _, ok := coh.PeekStatusCounts(ctx); ok {
		t.Fatal("counts should be stale after a feed event")
	}
	if _, ok := coh.PeekTotal(ctx); ok {
		t.Fatal("total should be stale after a feed event")
	}
}
