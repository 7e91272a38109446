// Package redmine is a minimal client for the Redmine REST API, covering
// the read surface the exporter needs: projects, issues with attachments
// and journals, wiki pages and attachment downloads.
//
// The API key travels in the X-Redmine-API-Key header, never in the URL,
// and error responses map to typed errors so callers can distinguish
// authentication, missing-resource and throttling cases.
package redmine

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
)

const defaultPageSize = 100

// Client talks to a single Redmine server.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for the given server URL and API key.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("redmine: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("redmine: invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		userAgent: "redmine-md-exporter",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("redmine: build request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("redmine: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "", ""); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("redmine: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, resource, id string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusNotFound:
		return &NotFoundError{Resource: resource, ID: id}
	case http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitError{RetryAfter: retryAfter}
	default:
		return &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}
}

// Projects returns all projects visible to the API key, following
// pagination to the end.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var all []Project
	offset := 0
	for {
		var page struct {
			Projects   []Project `json:"projects"`
			TotalCount int       `json:"total_count"`
		}
		q := url.Values{
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(defaultPageSize)},
		}
		if err := c.get(ctx, "/projects.json", q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Projects...)
		offset += len(page.Projects)
		if len(page.Projects) == 0 || offset >= page.TotalCount {
			return all, nil
		}
	}
}

// IssueFilter narrows an issue listing.
type IssueFilter struct {
	Project            string
	Status             string // status id or "open", "closed", "*"
	UpdatedSince       time.Time
	IncludeSubprojects bool
}

func (f IssueFilter) query(offset int) url.Values {
	q := url.Values{
		"offset":    {strconv.Itoa(offset)},
		"limit":     {strconv.Itoa(defaultPageSize)},
		"status_id": {"*"},
		"sort":      {"updated_on:asc"},
	}
	if f.Project != "" {
		q.Set("project_id", f.Project)
	}
	if f.Status != "" {
		q.Set("status_id", f.Status)
	}
	if !f.UpdatedSince.IsZero() {
		q.Set("updated_on", ">="+f.UpdatedSince.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !f.IncludeSubprojects {
		q.Set("subproject_id", "!*")
	}
	return q
}

// Issues fetches a single page of issues for the filter.
func (c *Client) Issues(ctx context.Context, filter IssueFilter, offset int) (IssuePage, error) {
	var page IssuePage
	if err := c.get(ctx, "/issues.json", filter.query(offset), &page); err != nil {
		return IssuePage{}, err
	}
	return page, nil
}

// Issue fetches a single issue with attachments and journals included.
func (c *Client) Issue(ctx context.Context, id int) (Issue, error) {
	var envelope struct {
		Issue Issue `json:"issue"`
	}
	q := url.Values{"include": {"attachments,journals"}}
	err := c.get(ctx, fmt.Sprintf("/issues/%d.json", id), q, &envelope)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return Issue{}, &NotFoundError{Resource: "issue", ID: strconv.Itoa(id)}
		}
		return Issue{}, err
	}
	return envelope.Issue, nil
}

// EachIssue walks every issue matching the filter, fetching the full issue
// (attachments, journals) for each listing entry and invoking fn. Iteration
// stops on the first error.
func (c *Client) EachIssue(ctx context.Context, filter IssueFilter, fn func(Issue) error) error {
	offset := 0
	for {
		page, err := c.Issues(ctx, filter, offset)
		if err != nil {
			return err
		}
		for _, listed := range page.Issues {
			full, err := c.Issue(ctx, listed.ID)
			if err != nil {
				return err
			}
			if err := fn(full); err != nil {
				return err
			}
		}
		offset += len(page.Issues)
		if len(page.Issues) == 0 || offset >= page.TotalCount {
			return nil
		}
	}
}

// WikiPages lists a project's wiki index (titles and versions, no text).
func (c *Client) WikiPages(ctx context.Context, project string) ([]WikiPage, error) {
	var envelope struct {
		WikiPages []WikiPage `json:"wiki_pages"`
	}
	err := c.get(ctx, fmt.Sprintf("/projects/%s/wiki/index.json", url.PathEscape(project)), nil, &envelope)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			// Projects without a wiki report 404; treat as empty.
			return nil, nil
		}
		return nil, err
	}
	return envelope.WikiPages, nil
}

// WikiPage fetches a single wiki page with text and attachments.
func (c *Client) WikiPage(ctx context.Context, project, title string) (WikiPage, error) {
	var envelope struct {
		WikiPage WikiPage `json:"wiki_page"`
	}
	path := fmt.Sprintf("/projects/%s/wiki/%s.json", url.PathEscape(project), url.PathEscape(title))
	q := url.Values{"include": {"attachments"}}
	err := c.get(ctx, path, q, &envelope)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return WikiPage{}, &NotFoundError{Resource: "wiki page", ID: title}
		}
		return WikiPage{}, err
	}
	return envelope.WikiPage, nil
}

// DownloadAttachment streams an attachment's content to w. The content URL
// comes from the attachment metadata and must live under the client's base
// URL; anything else is rejected to keep the API key on its own host.
func (c *Client) DownloadAttachment(ctx context.Context, contentURL string, w io.Writer) (int64, error) {
	if !strings.HasPrefix(contentURL, c.baseURL+"/") {
		return 0, fmt.Errorf("redmine: attachment URL %q outside server %q", contentURL, c.baseURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return 0, fmt.Errorf("redmine: build request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("redmine: download: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "attachment", contentURL); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}
