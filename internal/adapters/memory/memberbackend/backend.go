package memberbackend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// Backend is an in-memory implementation of memberbackend.Client. It stands
// in for the hosted backend in tests and local dev: it assigns identity,
// enforces email uniqueness, serves seeded projections, and emits change-feed
// events. Safe for concurrent use.
type Backend struct {
	mu sync.RWMutex

	byID    map[domain.MemberID]domain.Member
	nextNum int

	projections map[domain.MemberID]domain.EnhancedProjections

	subs []chan memberbackend.Change

	// Now provides timestamps; overridable for deterministic tests.
	Now func() time.Time
}

func NewBackend() *Backend {
	return &Backend{
		byID:        make(map[domain.MemberID]domain.Member),
		nextNum:     1,
		projections: make(map[domain.MemberID]domain.EnhancedProjections),
		Now:         time.Now,
	}
}

func (b *Backend) Get(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.byID[id]
	if !ok {
		return domain.Member{}, memberbackend.ErrNotFound
	}
	out := cloneMember(m)
	if p, ok := b.projections[id]; ok {
		pc := cloneProjections(p)
		out.Projections = &pc
	}
	return out, nil
}

func (b *Backend) List(ctx context.Context, q memberbackend.Query) (memberbackend.Page, error) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]domain.Member, 0, len(b.byID))
	qTokens := tokenize(q.Search)
	for _, m := range b.byID {
		if q.Status != "" && m.Status != q.Status {
			continue
		}
		if q.Gender != "" && m.Gender != q.Gender {
			continue
		}
		if len(qTokens) > 0 && !matchesAllTokens(m, qTokens) {
			continue
		}
		matched = append(matched, cloneMember(m))
	}
	sortMembers(matched, q.OrderBy, q.OrderDirection)

	total := len(matched)
	if q.Offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return memberbackend.Page{Members: matched, Total: total}, nil
}

func (b *Backend) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[domain.Status]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	for _, m := range b.byID {
		out[m.Status]++
	}
	return out, nil
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID), nil
}

func (b *Backend) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.byID {
		if strings.EqualFold(existing.Email, m.Email) {
			return domain.Member{}, memberbackend.ErrEmailTaken
		}
	}

	now := b.Now().UTC()
	m = cloneMember(m)
	m.ID = domain.MemberID(uuid.NewString())
	m.MemberNumber = domain.MemberNumber(fmt.Sprintf("GM-%06d", b.nextNum))
	b.nextNum++
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	if m.JoinDate.IsZero() {
		m.JoinDate = now
	}
	m.Projections = nil
	m.CreatedAt = now
	m.UpdatedAt = now

	b.byID[m.ID] = m
	b.broadcast(memberbackend.Change{Type: memberbackend.ChangeInsert, MemberID: m.ID})
	return cloneMember(m), nil
}

func (b *Backend) Update(ctx context.Context, m domain.Member) (domain.Member, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.byID[m.ID]
	if !ok {
		return domain.Member{}, memberbackend.ErrNotFound
	}
	for id, other := range b.byID {
		if id != m.ID && strings.EqualFold(other.Email, m.Email) {
			return domain.Member{}, memberbackend.ErrEmailTaken
		}
	}

	m = cloneMember(m)
	// Identity is immutable; the backend is authoritative for it.
	m.MemberNumber = existing.MemberNumber
	m.CreatedAt = existing.CreatedAt
	m.Projections = nil
	m.UpdatedAt = b.Now().UTC()

	b.byID[m.ID] = m
	b.broadcast(memberbackend.Change{Type: memberbackend.ChangeUpdate, MemberID: m.ID})
	return cloneMember(m), nil
}

func (b *Backend) Delete(ctx context.Context, id domain.MemberID) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[id]; !ok {
		return memberbackend.ErrNotFound
	}
	delete(b.byID, id)
	delete(b.projections, id)
	b.broadcast(memberbackend.Change{Type: memberbackend.ChangeDelete, MemberID: id})
	return nil
}

func (b *Backend) Changes(ctx context.Context) (<-chan memberbackend.Change, error) {
	ch := make(chan memberbackend.Change, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// SeedProjections attaches server-computed projections to a member, the way
// the hosted backend would derive them from subscriptions/payments/sessions.
func (b *Backend) SeedProjections(id domain.MemberID, p domain.EnhancedProjections) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projections[id] = cloneProjections(p)
}

// broadcast is called with b.mu held.
func (b *Backend) broadcast(ch memberbackend.Change) {
	for _, sub := range b.subs {
		select {
		case sub <- ch:
		default:
			// Slow consumer; drop rather than block the write path. Consumers
			// refetch on every event, so a dropped event only delays refresh.
		}
	}
}

func sortMembers(ms []domain.Member, orderBy, direction string) {
	if orderBy == "" {
		// Deterministic default ordering.
		sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
		return
	}
	less := func(i, j int) bool {
		a, b := ms[i], ms[j]
		var cmp int
		switch orderBy {
		case "name":
			cmp = strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
		case "email":
			cmp = strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email))
		case "status":
			cmp = strings.Compare(string(a.Status), string(b.Status))
		case "join_date":
			switch {
			case a.JoinDate.Before(b.JoinDate):
				cmp = -1
			case a.JoinDate.After(b.JoinDate):
				cmp = 1
			}
		case "member_number":
			cmp = strings.Compare(string(a.MemberNumber), string(b.MemberNumber))
		case "created_at":
			switch {
			case a.CreatedAt.Before(b.CreatedAt):
				cmp = -1
			case a.CreatedAt.After(b.CreatedAt):
				cmp = 1
			}
		}
		if cmp == 0 {
			return a.ID < b.ID
		}
		return cmp < 0
	}
	if strings.EqualFold(direction, "desc") {
		sort.Slice(ms, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.Slice(ms, less)
}

func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func matchesAllTokens(m domain.Member, tokens []string) bool {
	hay := strings.ToLower(m.DisplayName() + " " + m.Email + " " + string(m.MemberNumber))
	for _, t := range tokens {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

func cloneMember(m domain.Member) domain.Member {
	out := m
	out.Phone = cloneStringPtr(m.Phone)
	out.Address = cloneAddress(m.Address)
	out.WaiverSignedAt = cloneTimePtr(m.WaiverSignedAt)
	out.Notes = cloneStringPtr(m.Notes)
	out.MedicalConditions = cloneStringPtr(m.MedicalConditions)
	out.FitnessGoals = cloneStringPtr(m.FitnessGoals)
	out.UniformSize = cloneStringPtr(m.UniformSize)
	out.UniformStatus = cloneStringPtr(m.UniformStatus)
	out.VestSize = cloneStringPtr(m.VestSize)
	out.HipBeltSize = cloneStringPtr(m.HipBeltSize)
	out.TrainingPreference = cloneStringPtr(m.TrainingPreference)
	if m.ReferralSource != nil {
		v := *m.ReferralSource
		out.ReferralSource = &v
	}
	if m.ReferredByMemberID != nil {
		v := *m.ReferredByMemberID
		out.ReferredByMemberID = &v
	}
	if m.Projections != nil {
		p := cloneProjections(*m.Projections)
		out.Projections = &p
	}
	return out
}

func cloneProjections(p domain.EnhancedProjections) domain.EnhancedProjections {
	out := p
	if p.ActiveSubscription != nil {
		v := *p.ActiveSubscription
		out.ActiveSubscription = &v
	}
	if p.SessionStats != nil {
		v := *p.SessionStats
		v.LastSessionAt = cloneTimePtr(p.SessionStats.LastSessionAt)
		v.NextSessionAt = cloneTimePtr(p.SessionStats.NextSessionAt)
		out.SessionStats = &v
	}
	out.LastPaymentDate = cloneTimePtr(p.LastPaymentDate)
	return out
}

func cloneAddress(a *domain.Address) *domain.Address {
	if a == nil {
		return nil
	}
	out := *a
	out.Street = cloneStringPtr(a.Street)
	out.City = cloneStringPtr(a.City)
	out.State = cloneStringPtr(a.State)
	out.PostCode = cloneStringPtr(a.PostCode)
	out.Country = cloneStringPtr(a.Country)
	return &out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
