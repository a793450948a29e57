package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultUserAgent identifies the client to the release service, which
	// rejects requests without one.
	DefaultUserAgent = "shellapp-builder"

	// defaultPerPage is the number of releases fetched per API page.
	defaultPerPage = 100

	// maxPages bounds pagination.
	maxPages = 10

	// maxJSONResponseBytes bounds a single JSON response (10 MiB).
	maxJSONResponseBytes = 10 << 20

	acceptJSON = "application/vnd.github+json"
)

type (
	// MetadataStore persists release metadata by tag so a known tag can be
	// verified without a network round trip.
	MetadataStore interface {
		LoadRelease(tag string) (*Release, bool)
	}

	// Client queries the release listing endpoint of one repository.
	Client struct {
		httpClient *http.Client
		baseURL    string
		repo       string
		token      string
		userAgent  string
		store      MetadataStore
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(base, "/")
	}
}

// WithRepo sets the "owner/name" repository to query.
func WithRepo(repo string) ClientOption {
	return func(cl *Client) {
		cl.repo = repo
	}
}

// WithToken sets the optional bearer credential.
func WithToken(token string) ClientOption {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithMetadataStore lets VerifyTag answer from persisted metadata.
func WithMetadataStore(store MetadataStore) ClientOption {
	return func(cl *Client) {
		cl.store = store
	}
}

// NewClient creates a Client for the atom-shell repository on api.github.com
// unless options say otherwise.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    "https://api.github.com",
		repo:       "atom/atom-shell",
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListReleases fetches the full release list in API order, following
// pagination up to maxPages.
func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	pageURL := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", c.baseURL, c.repo, defaultPerPage)

	var all []Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		releases, next, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		all = append(all, releases...)
		pageURL = next
	}

	return all, nil
}

// fetchPage fetches one page of releases and returns the next page URL.
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]Release, string, error) {
	req, err := c.NewRequest(ctx, pageURL, acceptJSON)
	if err != nil {
		return nil, "", fmt.Errorf("list releases: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("list releases: execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse("list releases", pageURL, resp); err != nil {
		return nil, "", err
	}

	var raw []apiRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&raw); err != nil {
		return nil, "", fmt.Errorf("list releases: decode response: %w", err)
	}

	releases := make([]Release, 0, len(raw))
	for _, ar := range raw {
		releases = append(releases, toRelease(ar))
	}

	return releases, parseLinkHeader(resp.Header.Get("Link")), nil
}

// LatestStable fetches the release list and returns its first stable entry
// along with the list, so a following VerifyTag can reuse it.
func (c *Client) LatestStable(ctx context.Context) (*Release, []Release, error) {
	releases, err := c.ListReleases(ctx)
	if err != nil {
		return nil, nil, err
	}

	latest, err := NewIndex(releases).LatestStable()
	if err != nil {
		return nil, releases, err
	}
	return latest, releases, nil
}

// VerifyTag returns the release for tag. A list fetched earlier in the same
// invocation is searched when given; otherwise the metadata store is
// consulted and, failing that, the list is fetched.
func (c *Client) VerifyTag(ctx context.Context, tag string, prefetched []Release) (*Release, error) {
	if prefetched != nil {
		if r, ok := NewIndex(prefetched).Lookup(tag); ok {
			return r, nil
		}
		return nil, &NotFoundError{Kind: KindRelease, Name: tag}
	}

	if c.store != nil {
		for _, candidate := range TagCandidates(tag) {
			if r, ok := c.store.LoadRelease(candidate); ok {
				return r, nil
			}
		}
	}

	releases, err := c.ListReleases(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := NewIndex(releases).Lookup(tag); ok {
		return r, nil
	}
	return nil, &NotFoundError{Kind: KindRelease, Name: tag}
}

// NewRequest builds a GET request carrying the client identifier and, when
// configured, the bearer credential.
func (c *Client) NewRequest(ctx context.Context, reqURL, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return req, nil
}

// HTTPClient returns the HTTP client used for requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// parseLinkHeader extracts the URL for the "next" page from a Link header.
//
// Example header: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}

	return ""
}

// redactURL strips query parameters and fragments from a URL for error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
