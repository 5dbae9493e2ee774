// Package api is a read-only client for the platform REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kokistudios/orbctl/internal/filter"
)

// ErrEmptyItem is returned by Get when the server answers with null.
var ErrEmptyItem = errors.New("empty item")

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	logger   *log.Logger
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: 100,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, fn := range opts {
		fn(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

type page struct {
	Offset int
	Limit  int
	Total  int
	Items  []filter.Item
	Count  int // entries sent, nulls included
}

// List fetches every item of res, following offset pagination until the
// server reports no more.
func (c *Client) List(ctx context.Context, res Resource) ([]filter.Item, error) {
	var all []filter.Item
	offset := 0
	for {
		p, err := c.page(ctx, res, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		limit := p.Limit
		if limit <= 0 {
			limit = c.pageSize
		}
		if p.Offset+limit >= p.Total || p.Count == 0 {
			break
		}
		offset = p.Offset + limit
	}
	if all == nil {
		all = []filter.Item{}
	}
	if res.Name == Agents.Name {
		for _, item := range all {
			combineTags(item)
		}
	}
	return all, nil
}

func (c *Client) page(ctx context.Context, res Resource, offset int) (*page, error) {
	q := url.Values{}
	q.Set("order", "name")
	q.Set("dir", "asc")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(c.pageSize))

	var body map[string]json.RawMessage
	if err := c.get(ctx, res.Path, q, &body); err != nil {
		return nil, fmt.Errorf("list %s: %w", res.Name, err)
	}

	p := &page{Offset: offset, Limit: c.pageSize}
	for key, dst := range map[string]*int{"offset": &p.Offset, "limit": &p.Limit, "total": &p.Total} {
		if raw, ok := body[key]; ok {
			if n, err := intField(raw); err == nil {
				*dst = n
			}
		}
	}
	if raw, ok := body[res.Key]; ok && string(raw) != "null" {
		var items []filter.Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("list %s: decode %q: %w", res.Name, res.Key, err)
		}
		p.Count = len(items)
		for _, item := range items {
			if item != nil {
				p.Items = append(p.Items, item)
			}
		}
	}
	return p, nil
}

// intField decodes counters sent either as numbers or numeric strings.
func intField(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := n.Int64()
		return int(v), err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// Get fetches a single item by id.
func (c *Client) Get(ctx context.Context, res Resource, id string) (filter.Item, error) {
	var item filter.Item
	if err := c.get(ctx, res.Path+"/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", res.Name, id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("get %s %s: %w", res.Name, id, ErrEmptyItem)
	}
	if res.Name == Agents.Name {
		combineTags(item)
	}
	return item, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "method", req.Method, "url", u, "status", resp.StatusCode,
		"request_id", reqID, "elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// combineTags sets combined_tags to orb_tags overlaid with agent_tags.
func combineTags(item filter.Item) {
	if item == nil {
		return
	}
	combined := map[string]any{}
	for _, key := range []string{"orb_tags", "agent_tags"} {
		if tags, ok := item[key].(map[string]any); ok {
			for k, v := range tags {
				combined[k] = v
			}
		}
	}
	item["combined_tags"] = combined
}
