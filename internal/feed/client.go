// Package feed pulls activity snapshots from the office source over HTTP and
// subscribes to its websocket push stream.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"agent_office/internal/domain"
)

const (
	activityPath = "/api/activity"
	eventsPath   = "/api/events"
)

type Client struct {
	baseURL    string
	retryDelay time.Duration
	httpc      *http.Client
	logger     *log.Logger
	events     chan domain.PushEvent
}

func New(baseURL string, retryDelay time.Duration, logger *log.Logger) *Client {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryDelay: retryDelay,
		httpc:      &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		events:     make(chan domain.PushEvent, 64),
	}
}

type activityResponse struct {
	Activity []domain.ActivityItem `json:"activity"`
}

// Pull fetches the full activity snapshot from the source.
func (c *Client) Pull(ctx context.Context) ([]domain.ActivityItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+activityPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build activity request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch activity: unexpected status %s", resp.Status)
	}
	var body activityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return body.Activity, nil
}

// Events is the push stream. The channel closes when Run returns.
func (c *Client) Events() <-chan domain.PushEvent {
	return c.events
}

// Run maintains the websocket subscription until ctx is cancelled,
// redialing after retryDelay on any failure. Each successful connect emits
// a synthetic connected event so the consumer can re-pull.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)
	wsURL, err := c.eventsURL()
	if err != nil {
		c.logger.Printf("event stream disabled: %v", err)
		<-ctx.Done()
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.subscribe(ctx, wsURL); err != nil && ctx.Err() == nil {
			c.logger.Printf("event stream lost: %v (retrying in %s)", err, c.retryDelay)
			c.emit(ctx, domain.PushEvent{Type: domain.PushEventError, Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) subscribe(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	// The read loop below blocks in ReadJSON without a deadline, so a
	// cancelled ctx unsticks it by closing the connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if !c.emit(ctx, domain.PushEvent{Type: domain.PushEventConnected}) {
		return nil
	}
	for {
		var ev domain.PushEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if !c.emit(ctx, ev) {
			return nil
		}
	}
}

func (c *Client) emit(ctx context.Context, ev domain.PushEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case c.events <- ev:
		return true
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base url", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + eventsPath
	return u.String(), nil
}
