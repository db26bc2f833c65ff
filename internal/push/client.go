// Package push subscribes to the Mailpit event stream and delivers decoded
// mailbox events.
package push

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/wesm/pitwatch/internal/mailbox"
)

// Message is delivered on the channel passed to Run.
type Message interface {
	pushMessage()
}

// EventMessage carries one decoded notification.
type EventMessage struct {
	Event mailbox.Event
}

// StatusMessage reports a change of the connection state. Err is set when
// a connection attempt or an established connection failed.
type StatusMessage struct {
	Connected bool
	Err       error
}

func (EventMessage) pushMessage()  {}
func (StatusMessage) pushMessage() {}

// Config configures a Client.
type Config struct {
	URL          string // ws:// or wss:// URL of the event stream
	Username     string
	Password     string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client maintains a websocket subscription and reconnects with jittered
// exponential backoff.
type Client struct {
	url        string
	header     http.Header
	httpClient *http.Client
	minDelay   time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// New creates a client. It does not connect until Run is called.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, &mailbox.ConfigurationError{Field: "events url"}
	}
	minDelay, maxDelay := cfg.ReconnectMin, cfg.ReconnectMax
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxDelay < minDelay {
		return nil, fmt.Errorf("reconnect_max (%s) is less than reconnect_min (%s)", maxDelay, minDelay)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if cfg.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		header.Set("Authorization", "Basic "+creds)
	}

	return &Client{
		url:        cfg.URL,
		header:     header,
		httpClient: cfg.HTTPClient,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}, nil
}

// Run connects and delivers messages on out until ctx is done. It always
// returns ctx.Err(). Sends on out block, so the consumer must keep reading.
func (c *Client) Run(ctx context.Context, out chan<- Message) error {
	attempt := 0
	for {
		connected, err := c.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		if !send(ctx, out, StatusMessage{Connected: false, Err: err}) {
			return ctx.Err()
		}

		attempt++
		delay := c.backoff(attempt)
		c.logger.Info("event stream disconnected, reconnecting",
			"err", err,
			"attempt", attempt,
			"delay", delay)
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
}

// session runs one connection. It reports whether the dial succeeded.
func (c *Client) session(ctx context.Context, out chan<- Message) (bool, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: c.header,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(4 << 20)

	c.logger.Debug("event stream connected", "url", c.url)
	if !send(ctx, out, StatusMessage{Connected: true}) {
		return true, ctx.Err()
	}

	for {
		typ, frame, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, errors.New("server closed the event stream")
			}
			return true, err
		}
		if typ != websocket.MessageText {
			continue
		}
		for _, raw := range SplitFrame(frame) {
			ev, err := Decode(raw)
			if errors.Is(err, ErrUnknownType) {
				c.logger.Debug("skipping notification", "err", err)
				continue
			}
			if err != nil {
				c.logger.Warn("malformed notification", "err", err)
				continue
			}
			if !send(ctx, out, EventMessage{Event: ev}) {
				return true, ctx.Err()
			}
		}
	}
}

// backoff returns the delay before reconnect attempt n (1-based): an
// exponential step capped at maxDelay, jittered within its upper half.
func (c *Client) backoff(n int) time.Duration {
	d := c.minDelay
	for i := 1; i < n && d < c.maxDelay; i++ {
		d *= 2
	}
	d = min(d, c.maxDelay)
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

func send(ctx context.Context, out chan<- Message, m Message) bool {
	select {
	case out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
