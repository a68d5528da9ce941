// ABOUTME: HTTP and websocket client for the remote document store
// ABOUTME: JSON documents over REST, change subscriptions over one websocket
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harperreed/orgsync/models"
)

// ClientConfig holds remote server connection settings.
type ClientConfig struct {
	// Server is the base URL, e.g. https://sync.example.com
	Server string

	// Token is the bearer token presented on every request.
	Token string

	// DeviceID identifies this device on the change feed.
	DeviceID string

	// Timeout bounds each HTTP request. Defaults to 15s.
	Timeout time.Duration
}

// Client talks to the remote document store. Document reads and writes go
// over HTTP; subscriptions share a single websocket connection. The client
// does not reconnect on its own: delivery errors are surfaced through each
// Sub, and the subscription manager re-subscribes after its retry delay.
type Client struct {
	cfg  ClientConfig
	http *http.Client

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string
	subs   map[string]*clientSub
}

type clientSub struct {
	client  *Client
	path    string
	coll    bool
	docFn   func(models.Envelope)
	collFn  func([]Doc)
	errFn   func(error)
	removed bool
}

// NewClient creates a remote store client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		subs: make(map[string]*clientSub),
	}
}

func (c *Client) docURL(path string) string {
	return strings.TrimSuffix(c.cfg.Server, "/") + "/v1/docs/" + url.PathEscape(path)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return c.http.Do(req)
}

// Get fetches one document. Absent documents return (nil, nil).
func (c *Client) Get(ctx context.Context, path string) (*models.Envelope, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("remote get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote get %s: status %d", path, resp.StatusCode)
	}

	var env models.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("remote get %s: decode: %w", path, err)
	}
	return &env, nil
}

// GetCollection fetches all documents under a prefix.
func (c *Client) GetCollection(ctx context.Context, prefix string) ([]Doc, error) {
	u := strings.TrimSuffix(c.cfg.Server, "/") + "/v1/collections/" + url.PathEscape(prefix)
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("remote collection %s: %w", prefix, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote collection %s: status %d", prefix, resp.StatusCode)
	}

	var payload CollectionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote collection %s: decode: %w", prefix, err)
	}
	return payload.Docs, nil
}

// Set writes one document. The server assigns updatedAt; with merge=true
// envelope fields absent from env are preserved server-side.
func (c *Client) Set(ctx context.Context, path string, env models.Envelope, merge bool) error {
	u := c.docURL(path)
	if merge {
		u += "?merge=1"
	}
	resp, err := c.do(ctx, http.MethodPut, u, env)
	if err != nil {
		return fmt.Errorf("remote set %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remote set %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.docURL(path), nil)
	if err != nil {
		return fmt.Errorf("remote delete %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remote delete %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// EnsureOrg creates the organization root document if it does not exist.
func (c *Client) EnsureOrg(ctx context.Context, org, createdBy string) error {
	existing, err := c.Get(ctx, OrgPath(org))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return c.Set(ctx, OrgPath(org), models.Envelope{UpdatedBy: createdBy}, false)
}

// Ping checks remote reachability with a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	u := strings.TrimSuffix(c.cfg.Server, "/") + "/v1/ping"
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote ping: status %d", resp.StatusCode)
	}
	return nil
}

// Watch subscribes to one document's change feed.
func (c *Client) Watch(path string, fn func(models.Envelope)) (Sub, error) {
	return c.subscribe(path, false, fn, nil)
}

// WatchCollection subscribes to snapshots of all documents under a prefix.
func (c *Client) WatchCollection(prefix string, fn func([]Doc)) (Sub, error) {
	return c.subscribe(prefix, true, nil, fn)
}

func (c *Client) subscribe(path string, coll bool, docFn func(models.Envelope), collFn func([]Doc)) (Sub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(); err != nil {
		return nil, err
	}

	sub := &clientSub{client: c, path: path, coll: coll, docFn: docFn, collFn: collFn}
	msg, err := NewMessage(TypeSubscribe, path, SubscribePayload{
		Path:       path,
		Collection: coll,
		ClientID:   c.connID,
	})
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("remote subscribe %s: %w", path, err)
	}

	c.subs[subKey(path, coll)] = sub
	return sub, nil
}

func subKey(path string, coll bool) string {
	if coll {
		return "collection:" + path
	}
	return "doc:" + path
}

// ensureConnLocked dials the websocket change feed if not already connected
// and starts the read loop. Caller holds c.mu.
func (c *Client) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}

	u, err := url.Parse(c.cfg.Server)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/watch"

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.DeviceID != "" {
		header.Set("X-Device-ID", c.cfg.DeviceID)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect change feed: %w", err)
	}

	c.conn = conn
	c.connID = uuid.NewString()
	go c.readLoop(conn)
	return nil
}

// readLoop dispatches inbound frames to subscriptions. A read error tears
// down the connection and notifies every subscription; re-subscribing dials
// a fresh connection.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.failAll(conn, err)
			return
		}

		switch msg.Type {
		case TypeDoc:
			var payload DocPayload
			if err := msg.UnmarshalPayload(&payload); err != nil {
				continue
			}
			if sub := c.lookup(subKey(payload.Path, false)); sub != nil && sub.docFn != nil {
				sub.docFn(payload.Envelope)
			}
		case TypeCollection:
			var payload CollectionPayload
			if err := msg.UnmarshalPayload(&payload); err != nil {
				continue
			}
			if sub := c.lookup(subKey(payload.Prefix, true)); sub != nil && sub.collFn != nil {
				sub.collFn(payload.Docs)
			}
		case TypeError:
			var payload ErrorPayload
			if err := msg.UnmarshalPayload(&payload); err != nil {
				continue
			}
			for _, key := range []string{subKey(payload.Path, false), subKey(payload.Path, true)} {
				if sub := c.lookup(key); sub != nil && sub.errFn != nil {
					sub.errFn(fmt.Errorf("subscription %s: %s", payload.Path, payload.Error))
				}
			}
		case TypePing:
			pong, _ := NewMessage(TypePong, "", nil)
			c.mu.Lock()
			if c.conn == conn {
				_ = conn.WriteJSON(pong)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) lookup(key string) *clientSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[key]
}

func (c *Client) failAll(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	subs := make([]*clientSub, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]*clientSub)
	c.mu.Unlock()

	_ = conn.Close()
	for _, sub := range subs {
		if sub.errFn != nil {
			sub.errFn(fmt.Errorf("change feed disconnected: %w", err))
		}
	}
}

// Close tears down the change feed connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.subs = make(map[string]*clientSub)
		return err
	}
	return nil
}

func (s *clientSub) Unsubscribe() {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	delete(s.client.subs, subKey(s.path, s.coll))
	if s.client.conn != nil {
		msg, err := NewMessage(TypeUnsubscribe, s.path, SubscribePayload{Path: s.path, Collection: s.coll})
		if err == nil {
			_ = s.client.conn.WriteJSON(msg)
		}
	}
}

func (s *clientSub) OnError(fn func(error)) {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.errFn = fn
}
