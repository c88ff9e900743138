package membercache

import (
	"context"
	"sync"

	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/membercache"
)

// Store is an in-memory implementation of membercache.Store.
// It is safe for concurrent use; values are cloned on read and write so
// callers can never mutate cached state in place.
type Store struct {
	mu sync.RWMutex

	detail    map[domain.MemberID]domain.Member
	lists     map[string]membercache.ListPage
	counts    map[domain.Status]int
	hasCounts bool
	total     int
	hasTotal  bool
}

func NewStore() *Store {
	return &Store{
		detail: make(map[domain.MemberID]domain.Member),
		lists:  make(map[string]membercache.ListPage),
	}
}

func (s *Store) GetDetail(ctx context.Context, id domain.MemberID) (domain.Member, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.detail[id]
	return m, ok
}

func (s *Store) SetDetail(ctx context.Context, m domain.Member) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail[m.ID] = m
}

func (s *Store) DropDetail(ctx context.Context, id domain.MemberID) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.detail, id)
}

func (s *Store) ListKeys(ctx context.Context) []string {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.lists))
	for k := range s.lists {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) GetList(ctx context.Context, key string) (membercache.ListPage, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.lists[key]
	if !ok {
		return membercache.ListPage{}, false
	}
	return clonePage(p), true
}

func (s *Store) SetList(ctx context.Context, key string, page membercache.ListPage) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = clonePage(page)
}

func (s *Store) InvalidateList(ctx context.Context, key string) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, key)
}

func (s *Store) GetStatusCounts(ctx context.Context) (map[domain.Status]int, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasCounts {
		return nil, false
	}
	out := make(map[domain.Status]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, true
}

func (s *Store) SetStatusCounts(ctx context.Context, counts map[domain.Status]int) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[domain.Status]int, len(counts))
	for k, v := range counts {
		cp[k] = v
	}
	s.counts = cp
	s.hasCounts = true
}

func (s *Store) InvalidateStatusCounts(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = nil
	s.hasCounts = false
}

func (s *Store) GetTotal(ctx context.Context) (int, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, s.hasTotal
}

func (s *Store) SetTotal(ctx context.Context, total int) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.hasTotal = true
}

func (s *Store) InvalidateTotal(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.hasTotal = false
}

func clonePage(p membercache.ListPage) membercache.ListPage {
	out := p
	out.Members = make([]domain.Member, len(p.Members))
	copy(out.Members, p.Members)
	return out
}
