// Package httpapi implements the REST collaborator clients the chat session
// consumes: history fetch and counterpart directory search.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobwire/cmd/internal/chat"
	"jobwire/cmd/internal/identity"
)

const defaultRequestTimeout = 10 * time.Second

// Config describes the REST backend.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is an HTTP implementation of chat.HistoryClient and
// chat.DirectoryClient. Every request carries a timeout so a stalled
// backend cannot wedge a history fetch.
type Client struct {
	log     *slog.Logger
	httpc   *http.Client
	baseURL *url.URL
	token   string
}

// NewClient constructs a Client after validating the base URL.
func NewClient(log *slog.Logger, cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("httpapi: empty base URL")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("httpapi: bad base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		log:     log,
		httpc:   &http.Client{Timeout: timeout},
		baseURL: u,
		token:   strings.TrimSpace(cfg.Token),
	}, nil
}

// FetchThreads returns the persisted chat threads for the given identity.
func (c *Client) FetchThreads(ctx context.Context, self identity.Identity) ([]chat.Thread, error) {
	if self.IsNone() {
		return nil, identity.ErrNoIdentity
	}

	q := url.Values{}
	q.Set("clientType", string(self.Kind))
	q.Set("clientId", self.ID)

	var out []chat.Thread
	if err := c.getJSON(ctx, "/chat/history", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search queries the counterpart directory by name or keyword.
func (c *Client) Search(ctx context.Context, query string) ([]chat.Summary, error) {
	q := url.Values{}
	q.Set("query", query)

	var out []chat.Summary
	if err := c.getJSON(ctx, "/directory/search", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpapi: %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpapi: %s: decode: %w", path, err)
	}
	return nil
}
