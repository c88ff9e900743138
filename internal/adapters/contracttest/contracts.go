package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ironledger/memberd/internal/domain"
	backendport "github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

type CleanupFunc = func()

type ClientFactory func(t *testing.T) (backendport.Client, CleanupFunc)

func seedMember(first, last, email string) domain.Member {
	return domain.Member{
		FirstName:        first,
		LastName:         last,
		DateOfBirth:      time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC),
		Gender:           domain.GenderFemale,
		Email:            email,
		PreferredContact: domain.ContactEmail,
		WaiverSigned:     true,
	}
}

// RunBackend exercises the backend contract: create defaults, uniqueness,
// reads with filter/sort/pagination, counts, update and delete semantics.
func RunBackend(t *testing.T, newClient ClientFactory) {
	t.Helper()
	ctx := context.Background()

	client, cleanup := newClient(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	alice, err := client.Create(ctx, seedMember("Alice", "Ng", "alice@example.com"))
	if err != nil {
		t.Fatalf("Create alice: %v", err)
	}
	if alice.ID == "" || alice.MemberNumber == "" {
		t.Fatalf("expected assigned id and member number, got %+v", alice)
	}
	if alice.Status != domain.StatusPending {
		t.Fatalf("expected default status pending, got %q", alice.Status)
	}
	if alice.JoinDate.IsZero() || alice.CreatedAt.IsZero() {
		t.Fatalf("expected defaulted timestamps, got join=%v created=%v", alice.JoinDate, alice.CreatedAt)
	}

	bobIn := seedMember("Bob", "Araya", "bob@example.com")
	bobIn.Gender = domain.GenderMale
	bobIn.Status = domain.StatusActive
	bob, err := client.Create(ctx, bobIn)
	if err != nil {
		t.Fatalf("Create bob: %v", err)
	}
	if bob.Status != domain.StatusActive {
		t.Fatalf("explicit status not kept: %q", bob.Status)
	}
	if bob.MemberNumber == alice.MemberNumber {
		t.Fatalf("member numbers must be unique")
	}

	if _, err := client.Create(ctx, seedMember("Alice", "Duplicate", "alice@example.com")); !errors.Is(err, backendport.ErrEmailTaken) {
		t.Fatalf("duplicate email: want ErrEmailTaken, got %v", err)
	}

	got, err := client.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "alice@example.com" || got.MemberNumber != alice.MemberNumber {
		t.Fatalf("Get returned wrong member: %+v", got)
	}
	if _, err := client.Get(ctx, domain.MemberID("00000000-0000-0000-0000-000000000000")); !errors.Is(err, backendport.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}

	t.Run("list", func(t *testing.T) {
		page, err := client.List(ctx, backendport.Query{Limit: 10})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if page.Total != 2 || len(page.Members) != 2 {
			t.Fatalf("want 2 members total=2, got len=%d total=%d", len(page.Members), page.Total)
		}

		page, err = client.List(ctx, backendport.Query{Status: domain.StatusActive, Limit: 10})
		if err != nil {
			t.Fatalf("List status filter: %v", err)
		}
		if page.Total != 1 || page.Members[0].ID != bob.ID {
			t.Fatalf("status filter: want only bob, got %+v", page.Members)
		}

		page, err = client.List(ctx, backendport.Query{Search: "alice", Limit: 10})
		if err != nil {
			t.Fatalf("List search: %v", err)
		}
		if page.Total != 1 || page.Members[0].ID != alice.ID {
			t.Fatalf("search: want only alice, got total=%d", page.Total)
		}

		page, err = client.List(ctx, backendport.Query{OrderBy: "name", OrderDirection: "desc", Limit: 1, Offset: 0})
		if err != nil {
			t.Fatalf("List sorted: %v", err)
		}
		if page.Total != 2 || len(page.Members) != 1 {
			t.Fatalf("pagination: want 1 of 2, got len=%d total=%d", len(page.Members), page.Total)
		}
		if page.Members[0].ID != bob.ID {
			t.Fatalf("desc name sort: want bob first, got %q", page.Members[0].DisplayName())
		}
	})

	t.Run("counts", func(t *testing.T) {
		counts, err := client.StatusCounts(ctx)
		if err != nil {
			t.Fatalf("StatusCounts: %v", err)
		}
		if counts[domain.StatusPending] != 1 || counts[domain.StatusActive] != 1 {
			t.Fatalf("unexpected counts: %v", counts)
		}
		for _, s := range domain.Statuses {
			if _, ok := counts[s]; !ok {
				t.Fatalf("counts missing zero entry for %q", s)
			}
		}
		total, err := client.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if total != 2 {
			t.Fatalf("Count: want 2, got %d", total)
		}
	})

	t.Run("update", func(t *testing.T) {
		mod := alice
		mod.Phone = strPtr("+61 400 000 000")
		mod.Status = domain.StatusActive
		mod.MemberNumber = domain.MemberNumber("GM-FORGED")
		updated, err := client.Update(ctx, mod)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.Phone == nil || *updated.Phone != "+61 400 000 000" {
			t.Fatalf("phone not updated: %+v", updated.Phone)
		}
		if updated.MemberNumber != alice.MemberNumber {
			t.Fatalf("member number must be immutable, got %q", updated.MemberNumber)
		}
		if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
			t.Fatalf("UpdatedAt went backwards: %v < %v", updated.UpdatedAt, updated.CreatedAt)
		}

		clash := updated
		clash.Email = "bob@example.com"
		if _, err := client.Update(ctx, clash); !errors.Is(err, backendport.ErrEmailTaken) {
			t.Fatalf("email clash on update: want ErrEmailTaken, got %v", err)
		}

		missing := updated
		missing.ID = domain.MemberID("00000000-0000-0000-0000-000000000000")
		if _, err := client.Update(ctx, missing); !errors.Is(err, backendport.ErrNotFound) {
			t.Fatalf("update missing: want ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := client.Delete(ctx, bob.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := client.Get(ctx, bob.ID); !errors.Is(err, backendport.ErrNotFound) {
			t.Fatalf("Get deleted: want ErrNotFound, got %v", err)
		}
		if err := client.Delete(ctx, bob.ID); !errors.Is(err, backendport.ErrNotFound) {
			t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
		}
		total, err := client.Count(ctx)
		if err != nil || total != 1 {
			t.Fatalf("Count after delete: want 1, got %d err=%v", total, err)
		}
	})
}

func strPtr(s string) *string { return &s }
