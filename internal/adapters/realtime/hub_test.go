package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	membackend "github.com/ironledger/memberd/internal/adapters/memory/memberbackend"
	memcache "github.com/ironledger/memberd/internal/adapters/memory/membercache"
	"github.com/ironledger/memberd/internal/app/members"
	"github.com/ironledger/memberd/internal/domain"
	backendport "github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// subscribedBackend signals once the change feed has been opened, so tests
// can mutate only after the hub is listening.
type subscribedBackend struct {
	backendport.Client
	ready chan struct{}
}

func (s subscribedBackend) Changes(ctx context.Context) (<-chan backendport.Change, error) {
	ch, err := s.Client.Changes(ctx)
	close(s.ready)
	return ch, err
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		hub.mu.Lock()
		got := len(hub.clients)
		hub.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d, want %d", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsChangesAndInvalidatesCache(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := membackend.NewBackend()
	coh := members.NewCoherence(memcache.NewStore())
	hub := NewHub(coh, quietLogger())

	feed := subscribedBackend{Client: backend, ready: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, feed) }()
	<-feed.ready

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	waitForClients(t, hub, 1)

	// Mutate through the backend the way another admin session would.
	created, err := backend.Create(ctx, domain.Member{
		FirstName: "Alice", LastName: "Ng", Gender: domain.GenderFemale,
		Email: "alice@example.com", PreferredContact: domain.ContactEmail,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev struct {
		Type     string `json:"type"`
		MemberID string `json:"memberId"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != string(backendport.ChangeInsert) || ev.MemberID != string(created.ID) {
		t.Fatalf("event=%+v", ev)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestHub_CacheStaleAfterFeedEvent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := membackend.NewBackend()
	coh := members.NewCoherence(memcache.NewStore())
	hub := NewHub(coh, quietLogger())

	created, err := backend.Create(ctx, domain.Member{
		FirstName: "Alice", LastName: "Ng", Gender: domain.GenderFemale,
		Email: "alice@example.com", PreferredContact: domain.ContactEmail,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	coh.StoreDetail(ctx, created)

	feed := subscribedBackend{Client: backend, ready: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, feed) }()
	<-feed.ready

	created.FirstName = "Alicia"
	if _, err := backend.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := coh.PeekDetail(ctx, created.ID); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cached detail never invalidated after feed event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

type feedlessBackend struct {
	backendport.Client
}

func (feedlessBackend) Changes(context.Context) (<-chan backendport.Change, error) {
	return nil, backendport.ErrChangeFeedUnsupported
}

func TestHub_ToleratesBackendsWithoutFeed(t *testing.T) {
	t.Parallel()

	hub := NewHub(members.NewCoherence(memcache.NewStore()), quietLogger())
	if err := hub.Run(context.Background(), feedlessBackend{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
