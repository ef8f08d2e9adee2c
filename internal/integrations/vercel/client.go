// Package vercel registers client subdomains on a Vercel project.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.vercel.com"

// Error codes Vercel returns when the domain is already attached somewhere.
// Both mean the subdomain is usable.
const (
	codeAlreadyInUse = "domain_already_in_use"
	codeTaken        = "domain_taken"
)

// TokenSource yields the API token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Configured() bool
}

// APIError is a non-2xx response from the Vercel API.
type APIError struct {
	StatusCode int
	URL        string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vercel: unexpected status %d from %s: %s: %s", e.StatusCode, e.URL, e.Code, e.Message)
	}
	return fmt.Sprintf("vercel: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type domainsResponse struct {
	Domains []struct {
		Name string `json:"name"`
	} `json:"domains"`
}

// Client manages the domains of one project.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	projectID  string
	teamID     string
	rootDomain string
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

// WithTeamID scopes every call to a team.
func WithTeamID(teamID string) Option {
	return func(c *Client) {
		c.teamID = strings.TrimSpace(teamID)
	}
}

// NewClient creates a Client that registers <slug>.<rootDomain>.
func NewClient(tokens TokenSource, projectID, rootDomain string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("vercel: token source must not be nil")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("vercel: project id must not be empty")
	}
	rootDomain = strings.Trim(strings.TrimSpace(rootDomain), ".")
	if rootDomain == "" {
		return nil, errors.New("vercel: root domain must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		projectID:  projectID,
		rootDomain: rootDomain,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Domain returns the fully qualified domain for slug.
func (c *Client) Domain(slug string) string {
	return slug + "." + c.rootDomain
}

func (c *Client) domainsURL(domain string) string {
	u := fmt.Sprintf("%s/v9/projects/%s/domains", strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.projectID))
	if domain != "" {
		u += "/" + url.PathEscape(domain)
	}
	if c.teamID != "" {
		u += "?" + url.Values{"teamId": {c.teamID}}.Encode()
	}
	return u
}

// AddDomain attaches <slug>.<root> to the project and returns the domain.
// A domain that is already attached counts as success.
func (c *Client) AddDomain(ctx context.Context, slug string) (string, error) {
	if strings.TrimSpace(slug) == "" {
		return "", errors.New("vercel: AddDomain: slug must not be empty")
	}
	domain := c.Domain(slug)
	body, err := json.Marshal(map[string]string{"name": domain})
	if err != nil {
		return "", fmt.Errorf("vercel: AddDomain: marshal request: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, c.domainsURL(""), body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Code == codeAlreadyInUse || apiErr.Code == codeTaken) {
			return domain, nil
		}
		return "", fmt.Errorf("vercel: AddDomain: %w", err)
	}
	return domain, nil
}

// RemoveDomain detaches <slug>.<root> from the project.
func (c *Client) RemoveDomain(ctx context.Context, slug string) error {
	if strings.TrimSpace(slug) == "" {
		return errors.New("vercel: RemoveDomain: slug must not be empty")
	}
	if _, err := c.do(ctx, http.MethodDelete, c.domainsURL(c.Domain(slug)), nil); err != nil {
		return fmt.Errorf("vercel: RemoveDomain: %w", err)
	}
	return nil
}

// ListDomains returns the names of the project's domains.
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, c.domainsURL(""), nil)
	if err != nil {
		return nil, fmt.Errorf("vercel: ListDomains: %w", err)
	}
	var resp domainsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("vercel: ListDomains: decode response: %w", err)
	}
	names := make([]string, 0, len(resp.Domains))
	for _, d := range resp.Domains {
		names = append(names, d.Name)
	}
	return names, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	buf, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, URL: u, Message: strings.TrimSpace(string(buf))}
		var eb errorBody
		if json.Unmarshal(buf, &eb) == nil && eb.Error.Code != "" {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return nil, apiErr
	}
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}
	return buf, nil
}
