// Package remotesync is an optional client for a remote activity stream: a
// long-lived websocket with an organization-scoped cursor, fronted by a
// REST history replay that covers the gap since the last persisted cursor.
// Reconnects use exponential backoff bounded by a max delay; the websocket
// carries a short periodic ping.
package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// ActivityEvent is one remote activity item, upserted into local
// shared-task tables and acknowledged by advancing the cursor.
type ActivityEvent struct {
	Cursor     string          `json:"cursor"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Store is the narrow persistence surface remotesync needs: where to
// upsert incoming activity and where its cursor survives a restart.
type Store interface {
	UpsertActivity(ctx context.Context, ev ActivityEvent) error
	LastCursor(ctx context.Context) (string, error)
	SaveCursor(ctx context.Context, cursor string) error
}

// Client syncs one organization's activity stream against Store.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string // e.g. https://example.org/api
	WSURL      string // e.g. wss://example.org/api/ws
	OrgID      string
	Store      Store

	// PingInterval is how often a ping is sent on the live websocket.
	// Defaults to 30s if zero.
	PingInterval time.Duration
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) pingInterval() time.Duration {
	if c.PingInterval > 0 {
		return c.PingInterval
	}
	return 30 * time.Second
}

// Run drives the sync loop until ctx is cancelled: replay history from the
// last cursor, then hold a live websocket feed; on any feed error,
// reconnect with exponential backoff bounded at maxBackoff.
func (c *Client) Run(ctx context.Context) error {
	b := newBackoff()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.replayThenFeed(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.next()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		b.reset()
	}
}

func (c *Client) replayThenFeed(ctx context.Context) error {
	if err := c.replayHistory(ctx); err != nil {
		return fmt.Errorf("remotesync: replay history: %w", err)
	}
	return c.feed(ctx)
}

// replayHistory pages through the REST history endpoint starting at the
// last persisted cursor, upserting and advancing the cursor as it goes,
// until the server reports no more events.
func (c *Client) replayHistory(ctx context.Context) error {
	cursor, err := c.Store.LastCursor(ctx)
	if err != nil {
		return fmt.Errorf("last cursor: %w", err)
	}
	for {
		page, err := c.fetchHistoryPage(ctx, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, ev := range page {
			if err := c.Store.UpsertActivity(ctx, ev); err != nil {
				return fmt.Errorf("upsert activity: %w", err)
			}
			cursor = ev.Cursor
			if err := c.Store.SaveCursor(ctx, cursor); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
	}
}

func (c *Client) fetchHistoryPage(ctx context.Context, cursor string) ([]ActivityEvent, error) {
	url := fmt.Sprintf("%s/orgs/%s/activity?since=%s", c.BaseURL, c.OrgID, cursor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var page []ActivityEvent
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode history page: %w", err)
	}
	return page, nil
}

// feed holds one live websocket connection open, upserting each inbound
// activity event and periodically pinging, until the connection closes or
// ctx is cancelled.
func (c *Client) feed(ctx context.Context) error {
	url := fmt.Sprintf("%s?org=%s", c.WSURL, c.OrgID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}
		var ev ActivityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if err := c.Store.UpsertActivity(ctx, ev); err != nil {
			return fmt.Errorf("upsert activity: %w", err)
		}
		if err := c.Store.SaveCursor(ctx, ev.Cursor); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}
