// Package analytics pushes guild activity events to a Google Analytics
// property using the Measurement Protocol.
package analytics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEndpoint is the Measurement Protocol collection URL.
const DefaultEndpoint = "https://www.google-analytics.com/collect"

const (
	ActionVoiceJoin      = "voice_join"
	ActionVoiceLeave     = "voice_leave"
	ActionVoiceSwitch    = "voice_switch"
	ActionMessageReceive = "message_receive"
	ActionUserJoined     = "user_joined"
	ActionUserLeft       = "user_left"
	ActionUserBanned     = "user_banned"
)

// Event is one hit. Dimensions are sent as custom dimensions (cd1, cd2, ...).
type Event struct {
	Action     string
	GuildID    string
	UserID     string
	Dimensions []string
}

func (e Event) values(trackingID string) url.Values {
	v := url.Values{}
	v.Set("v", "1")
	v.Set("t", "event")
	v.Set("tid", trackingID)
	v.Set("ec", e.GuildID)
	v.Set("ea", e.Action)
	v.Set("el", e.UserID)
	for i, d := range e.Dimensions {
		v.Set(fmt.Sprintf("cd%d", i+1), d)
	}
	return v
}

// Client sends hits. A nil Client or one without a tracking id does nothing.
type Client struct {
	trackingID string
	endpoint   string
	http       *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(trackingID string, opts ...Option) *Client {
	c := &Client{
		trackingID: trackingID,
		endpoint:   DefaultEndpoint,
		http:       &http.Client{Timeout: 10 * time.Second},
		timeout:    10 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "analytics"))
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.trackingID != ""
}

// Send posts a single hit and waits for the response.
func (c *Client) Send(ctx context.Context, e Event) error {
	if !c.Enabled() {
		return nil
	}
	if e.Action == "" || e.GuildID == "" || e.UserID == "" {
		return fmt.Errorf("incomplete analytics event %q", e.Action)
	}

	body := e.values(c.trackingID).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("building analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending analytics hit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics endpoint returned %s", resp.Status)
	}
	return nil
}

// Track sends hits in the background. Failures are logged and dropped.
func (c *Client) Track(events ...Event) {
	if !c.Enabled() || len(events) == 0 {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("analytics hit dropped after close", slog.String("action", events[0].Action))
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		for _, e := range events {
			if err := c.Send(ctx, e); err != nil {
				c.logger.Warn("analytics hit failed",
					slog.String("action", e.Action),
					slog.String("guild", e.GuildID),
					slog.Any("err", err))
			}
		}
	}()
}

// Wait blocks until background hits have finished. Callers that may still
// Track concurrently use Close instead.
func (c *Client) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

// Close stops accepting hits and waits for those in flight. Track after
// Close is a no-op.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
