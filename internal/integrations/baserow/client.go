// Package baserow is a storage.Remote over the Baserow row API.
package baserow

import (
	"bytes"
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

	"widget-preview/internal/storage"
)

const (
	defaultBaseURL = "https://api.baserow.io"
	pageSize       = 200
)

// TokenSource yields the database token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Configured() bool
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("baserow: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// listResponse is one page of the list rows endpoint.
type listResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// Client talks to one Baserow database. Each storage table maps to a numeric
// Baserow table id; a table with no id is reported as not configured.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authScheme string
	tokens     TokenSource
	databaseID int
	tableIDs   map[storage.Table]int
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u := strings.TrimSpace(baseURL); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAuthScheme sets the Authorization scheme. Database tokens use "Token";
// JWTs use "JWT" or "Bearer".
func WithAuthScheme(scheme string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(scheme); s != "" {
			c.authScheme = s
		}
	}
}

// WithDatabaseID enables Ping through the database's table listing.
func WithDatabaseID(id int) Option {
	return func(c *Client) {
		c.databaseID = id
	}
}

// NewClient creates a Client. tableIDs maps storage tables to Baserow table ids.
func NewClient(tokens TokenSource, tableIDs map[storage.Table]int, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("baserow: token source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		authScheme: "Token",
		tokens:     tokens,
		tableIDs:   make(map[storage.Table]int, len(tableIDs)),
	}
	for t, id := range tableIDs {
		if id > 0 {
			c.tableIDs[t] = id
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Configured reports whether credentials exist and table is mapped remotely.
func (c *Client) Configured(table storage.Table) bool {
	_, ok := c.tableIDs[table]
	return ok && c.tokens.Configured()
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) rowsURL(table storage.Table, rowID string, query url.Values) (string, error) {
	tid, ok := c.tableIDs[table]
	if !ok {
		return "", fmt.Errorf("baserow: table %q has no table id", table)
	}
	u := fmt.Sprintf("%s/api/database/rows/table/%d/", strings.TrimRight(c.baseURL, "/"), tid)
	if rowID != "" {
		u += url.PathEscape(rowID) + "/"
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("user_field_names", "true")
	return u + "?" + query.Encode(), nil
}

func (c *Client) Create(ctx context.Context, table storage.Table, row storage.Row) (string, error) {
	u, err := c.rowsURL(table, "", nil)
	if err != nil {
		return "", err
	}
	raw, err := c.do(ctx, http.MethodPost, u, outbound(row))
	if err != nil {
		return "", fmt.Errorf("baserow: Create: %w", err)
	}
	created, err := decodeRow(raw)
	if err != nil {
		return "", fmt.Errorf("baserow: Create: %w", err)
	}
	id := created.String(storage.FieldID)
	if id == "" {
		return "", errors.New("baserow: Create: response has no row id")
	}
	return id, nil
}

// List follows the pagination cursor until every row is read.
func (c *Client) List(ctx context.Context, table storage.Table) ([]storage.Row, error) {
	rows := []storage.Row{}
	for page := 1; ; page++ {
		u, err := c.rowsURL(table, "", url.Values{
			"page": {strconv.Itoa(page)},
			"size": {strconv.Itoa(pageSize)},
		})
		if err != nil {
			return nil, err
		}
		raw, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("baserow: List: %w", err)
		}
		var resp listResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("baserow: List: decode response: %w", err)
		}
		for _, r := range resp.Results {
			row, err := decodeRow(r)
			if err != nil {
				return nil, fmt.Errorf("baserow: List: %w", err)
			}
			rows = append(rows, row)
		}
		if resp.Next == nil || len(resp.Results) == 0 {
			return rows, nil
		}
	}
}

func (c *Client) Get(ctx context.Context, table storage.Table, id string) (storage.Row, error) {
	u, err := c.rowsURL(table, id, nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("baserow: Get: %w", notFound(err))
	}
	row, err := decodeRow(raw)
	if err != nil {
		return nil, fmt.Errorf("baserow: Get: %w", err)
	}
	return row, nil
}

func (c *Client) Update(ctx context.Context, table storage.Table, id string, partial storage.Row) error {
	u, err := c.rowsURL(table, id, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPatch, u, outbound(partial)); err != nil {
		return fmt.Errorf("baserow: Update: %w", notFound(err))
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, table storage.Table, id string) error {
	u, err := c.rowsURL(table, id, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodDelete, u, nil); err != nil {
		return fmt.Errorf("baserow: Delete: %w", notFound(err))
	}
	return nil
}

// Ping lists the database's tables, or reads one row of the first mapped
// table when no database id is configured.
func (c *Client) Ping(ctx context.Context) error {
	var u string
	if c.databaseID > 0 {
		u = fmt.Sprintf("%s/api/database/%d/tables/", strings.TrimRight(c.baseURL, "/"), c.databaseID)
	} else {
		for _, t := range storage.Tables {
			if _, ok := c.tableIDs[t]; ok {
				u, _ = c.rowsURL(t, "", url.Values{"size": {"1"}})
				break
			}
		}
	}
	if u == "" {
		return errors.New("baserow: Ping: no table configured")
	}
	if _, err := c.do(ctx, http.MethodGet, u, nil); err != nil {
		return fmt.Errorf("baserow: Ping: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.authScheme+" "+token)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func notFound(err error) error {
	var se *HTTPStatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	return err
}

// outbound drops the fields Baserow owns.
func outbound(row storage.Row) storage.Row {
	out := make(storage.Row, len(row))
	for k, v := range row {
		if k == storage.FieldID || k == "order" {
			continue
		}
		out[k] = v
	}
	return out
}

// decodeRow turns a Baserow row into a storage.Row with a string id.
func decodeRow(raw []byte) (storage.Row, error) {
	var row storage.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	delete(row, "order")
	switch id := row[storage.FieldID].(type) {
	case float64:
		row[storage.FieldID] = strconv.FormatFloat(id, 'f', -1, 64)
	case string:
	case nil:
	default:
		row[storage.FieldID] = fmt.Sprint(id)
	}
	return row, nil
}
