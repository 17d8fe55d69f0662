package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

// Client talks to the telephony platform's REST API. It knows how to
// authenticate and how to page, nothing about what the payloads mean.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxPages   int
	observer   ObserverFunc
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("telephony request failed with status %d", e.StatusCode)
}

// ErrBodyTooLarge is returned by Download when the asset exceeds the caller's limit.
var ErrBodyTooLarge = errors.New("telephony response exceeds size limit")

const defaultMaxPages = 50

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithMaxPages bounds how many pages WalkPages will follow.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

func New(baseURL, token string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxPages:   defaultMaxPages,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// UsersURL is the seed URL for the paginated users listing.
func (c *Client) UsersURL(pageSize int) string {
	q := url.Values{}
	q.Set("page[size]", strconv.Itoa(pageSize))
	return c.baseURL + "/users?" + q.Encode()
}

// GroupsURL lists groups with their live queue data included.
func (c *Client) GroupsURL() string {
	q := url.Values{}
	q.Set("include", "queue")
	return c.baseURL + "/groups?" + q.Encode()
}

// CallAudioURL lists the audio assets attached to a call.
func (c *Client) CallAudioURL(callID string) string {
	return c.baseURL + "/calls/" + url.PathEscape(callID) + "/audio"
}

type CallsQuery struct {
	Limit        int
	AccountScope string
	StartDate    string
	EndDate      string
}

func (c *Client) CallsURL(in CallsQuery) string {
	q := url.Values{}
	if in.Limit > 0 {
		q.Set("page[size]", strconv.Itoa(in.Limit))
	}
	if in.AccountScope != "" {
		q.Set("filter[account]", in.AccountScope)
	}
	if in.StartDate != "" {
		q.Set("filter[start_date]", in.StartDate)
	}
	if in.EndDate != "" {
		q.Set("filter[end_date]", in.EndDate)
	}
	if len(q) == 0 {
		return c.baseURL + "/calls"
	}
	return c.baseURL + "/calls?" + q.Encode()
}

// Get fetches rawURL and returns the response body of a 2xx reply.
func (c *Client) Get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	return c.fetch(ctx, endpoint, rawURL, "application/json", -1)
}

// Download fetches a binary asset. A positive maxBytes caps the body size.
func (c *Client) Download(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	return c.fetch(ctx, "audio_download", rawURL, "*/*", maxBytes)
}

func (c *Client) fetch(ctx context.Context, endpoint, rawURL, accept string, maxBytes int64) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}

	if maxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBytes)
	}
	return body, nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
