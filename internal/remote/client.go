// Package remote provides an HTTP client for the Mailpit API.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/mod/semver"

	"github.com/wesm/pitwatch/internal/mailbox"
)

// API paths.
const (
	MessagesPath = "/api/v1/messages"
	SearchPath   = "/api/v1/search"
	InfoPath     = "/api/v1/info"
	EventsPath   = "/api/events"
)

// MinServerVersion is the oldest Mailpit release that reports per-query
// counts (messages_count, messages_unread) in list responses.
const MinServerVersion = "v1.16.0"

// ErrUnsupportedServer is returned by CheckVersion for servers older than
// MinServerVersion.
var ErrUnsupportedServer = errors.New("unsupported server version")

// Client provides access to a Mailpit server.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Config holds configuration for creating a client.
type Config struct {
	URL           string
	Username      string
	Password      string
	AllowInsecure bool
	Timeout       time.Duration
	// MaxRetries bounds retries of network errors, 429 and 5xx responses.
	// Zero means 2; negative disables retries.
	MaxRetries int
	Logger     *slog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, &mailbox.ConfigurationError{Field: "server.url"}
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	// Mailpit listens on plain HTTP by default, so this is opt-out.
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for this server\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [server] url = \"https://mailpit:8025\"\n" +
			"  2. For trusted networks: set 'allow_insecure = true' in [server] in config.toml")
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("server URL must include a host (e.g., http://localhost:8025)")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 2
	}
	if retries < 0 {
		retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		maxRetries: retries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BasicAuth returns the configured credentials.
func (c *Client) BasicAuth() (username, password string, ok bool) {
	return c.username, c.password, c.username != ""
}

// EventsURL returns the websocket URL of the event stream.
func (c *Client) EventsURL() string {
	u := c.baseURL + EventsPath
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

// do performs an authenticated request and returns the response body of a
// 2xx response. Transient failures are retried until the context ends.
func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Debug("request failed, retrying", "op", op, "attempt", attempt+1, "err", err)
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, &mailbox.TransportError{Op: op, Err: waitErr}
				}
				continue
			}
			return nil, &mailbox.TransportError{Op: op, Err: err}
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, &mailbox.TransportError{Op: op, StatusCode: resp.StatusCode, Err: readErr}
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			c.logger.Debug("server error, retrying", "op", op, "status", resp.StatusCode, "attempt", attempt+1)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, &mailbox.TransportError{Op: op, StatusCode: resp.StatusCode, Err: waitErr}
			}
			continue
		}

		return nil, errorResponse(op, resp.StatusCode, payload)
	}
}

// apiError is the JSON error body some proxies return in front of Mailpit.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorResponse converts a non-2xx response to a TransportError. Mailpit
// replies to bad requests with a plain-text message.
func errorResponse(op string, status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Message != "" || apiErr.Error != "") {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return &mailbox.TransportError{Op: op, StatusCode: status, Err: errors.New(msg)}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &mailbox.TransportError{Op: op, StatusCode: status, Err: errors.New(msg)}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, maxDelay)
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
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

// FetchPage fetches one page of the list or search endpoint named by
// req.Endpoint. It implements mailbox.Fetcher.
func (c *Client) FetchPage(ctx context.Context, req mailbox.Request) (*mailbox.Page, error) {
	if req.Endpoint == "" {
		return nil, &mailbox.ConfigurationError{Field: "endpoint"}
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Start > 0 {
		q.Set("start", strconv.Itoa(req.Start))
	}
	if req.Filter != "" {
		q.Set("query", req.Filter)
	}

	payload, err := c.do(ctx, "fetch", http.MethodGet, req.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return decodePage(payload)
}

// decodePage validates a list response against the schema and converts
// it. Malformed payloads are reported as transport errors.
func decodePage(payload []byte) (*mailbox.Page, error) {
	if err := validateList(payload); err != nil {
		return nil, &mailbox.TransportError{Op: "decode", Err: err}
	}
	var lr ListResponse
	if err := json.Unmarshal(payload, &lr); err != nil {
		return nil, &mailbox.TransportError{Op: "decode", Err: fmt.Errorf("decode list response: %w", err)}
	}

	items := make([]mailbox.Item, len(lr.Messages))
	for i, m := range lr.Messages {
		items[i] = m.Item()
	}
	return &mailbox.Page{
		Total:          lr.Total,
		Unread:         lr.Unread,
		MessagesCount:  lr.MessagesCount,
		MessagesUnread: lr.MessagesUnread,
		Start:          lr.Start,
		Tags:           lr.Tags,
		Items:          items,
	}, nil
}

// Info fetches the server's application information.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	payload, err := c.do(ctx, "info", http.MethodGet, InfoPath, nil)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, &mailbox.TransportError{Op: "info", Err: fmt.Errorf("decode info response: %w", err)}
	}
	return &info, nil
}

// CheckVersion reports whether version is new enough. Development builds
// without a semantic version are accepted.
func CheckVersion(version string) error {
	v := version
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil
	}
	if semver.Compare(v, MinServerVersion) < 0 {
		return fmt.Errorf("%w: %s (need %s or newer)", ErrUnsupportedServer, version, MinServerVersion)
	}
	return nil
}

// MessageRaw fetches the RFC 822 source of a message.
func (c *Client) MessageRaw(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("message ID is required")
	}
	return c.do(ctx, "raw", http.MethodGet, "/api/v1/message/"+url.PathEscape(id)+"/raw", nil)
}

// SetReadStatus marks the given messages read or unread.
func (c *Client) SetReadStatus(ctx context.Context, ids []string, read bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.do(ctx, "read status", http.MethodPut, MessagesPath, ReadStatusRequest{IDs: ids, Read: read})
	return err
}

// DeleteMessages deletes the given messages. It refuses an empty list,
// which the server would treat as "delete everything".
func (c *Client) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("no messages to delete")
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, MessagesPath, DeleteRequest{IDs: ids})
	return err
}
