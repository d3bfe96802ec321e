package remotesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeStore struct {
	mu       sync.Mutex
	cursor   string
	upserted []ActivityEvent
}

func (f *fakeStore) UpsertActivity(ctx context.Context, ev ActivityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, ev)
	return nil
}

func (f *fakeStore) LastCursor(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor, nil
}

func (f *fakeStore) SaveCursor(ctx context.Context, cursor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = cursor
	return nil
}

func (f *fakeStore) snapshot() ([]ActivityEvent, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ActivityEvent, len(f.upserted))
	copy(out, f.upserted)
	return out, f.cursor
}

func TestReplayHistoryPagesUntilEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		since := r.URL.Query().Get("since")
		var page []ActivityEvent
		switch since {
		case "":
			page = []ActivityEvent{{Cursor: "c1", Kind: "task_created"}}
		case "c1":
			page = []ActivityEvent{{Cursor: "c2", Kind: "task_updated"}}
		default:
			page = nil
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	store := &fakeStore{}
	c := &Client{BaseURL: srv.URL, OrgID: "org1", Store: store}
	if err := c.replayHistory(context.Background()); err != nil {
		t.Fatalf("replayHistory: %v", err)
	}
	events, cursor := store.snapshot()
	if len(events) != 2 || cursor != "c2" {
		t.Fatalf("expected 2 events ending at cursor c2, got %v cursor=%q", events, cursor)
	}
	if calls != 3 {
		t.Fatalf("expected 3 pages fetched (2 data + 1 empty), got %d", calls)
	}
}

func TestFeedUpsertsIncomingActivityAndTracksCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ev := ActivityEvent{Cursor: "c3", Kind: "task_attempt_created"}
		b, _ := json.Marshal(ev)
		_ = conn.Write(r.Context(), websocket.MessageText, b)
		// Keep the connection open briefly so the client's Read doesn't race
		// a premature close before it observes the message.
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	store := &fakeStore{}
	c := &Client{WSURL: wsURL, OrgID: "org1", Store: store, PingInterval: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.feed(ctx)
	if err == nil {
		t.Fatal("expected feed to return an error once the server closes the connection")
	}

	events, cursor := store.snapshot()
	if len(events) != 1 || events[0].Kind != "task_attempt_created" {
		t.Fatalf("expected one upserted activity event, got %v", events)
	}
	if cursor != "c3" {
		t.Fatalf("expected cursor advanced to c3, got %q", cursor)
	}
}

func TestFetchHistoryPageBuildsOrgScopedURL(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]ActivityEvent{})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, OrgID: "acme"}
	if _, err := c.fetchHistoryPage(context.Background(), "cafe"); err != nil {
		t.Fatalf("fetchHistoryPage: %v", err)
	}
	if gotPath != "/orgs/acme/activity" {
		t.Fatalf("expected org-scoped path, got %q", gotPath)
	}
	q, _ := url.ParseQuery(gotQuery)
	if q.Get("since") != "cafe" {
		t.Fatalf("expected since=cafe, got %q", gotQuery)
	}
}
