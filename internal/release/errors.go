package release

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// Kinds of NotFoundError.
const (
	KindRelease = "release"
	KindAsset   = "asset"
	KindStable  = "stable"
)

// NotFoundError is returned when a release tag, a stable release or a release
// asset does not exist. For assets, Available lists the names that do exist.
type NotFoundError struct {
	Kind      string
	Name      string
	Release   string // tag the asset was looked up in
	Available []string
}

func (e *NotFoundError) Error() string {
	switch e.Kind {
	case KindAsset:
		available := "none"
		if len(e.Available) > 0 {
			available = strings.Join(e.Available, ", ")
		}
		return fmt.Sprintf("could not find asset %s in release %s (available assets: %s)",
			e.Name, e.Release, available)
	case KindRelease:
		return fmt.Sprintf("could not find a release with tag %s", e.Name)
	default:
		return "could not find a stable release"
	}
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RemoteServiceError is returned for non-success HTTP responses from the
// release index or an asset download.
type RemoteServiceError struct {
	Op         string
	URL        string
	StatusCode int
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s: unexpected response from %s with HTTP status %d", e.Op, e.URL, e.StatusCode)
}

// RateLimitedError is the RemoteServiceError returned when the service
// throttles the client. errors.As also matches it as *RemoteServiceError.
type RateLimitedError struct {
	RemoteServiceError
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitedError) Error() string {
	msg := fmt.Sprintf("%s: rate limit exceeded at %s (HTTP status %d)", e.Op, e.URL, e.StatusCode)
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(", %d/%d remaining, resets at %s",
			e.Remaining, e.Limit, e.ResetAt.UTC().Format("15:04 UTC"))
	}
	return msg + "; set an authorization token to raise the limit"
}

// As lets errors.As extract the embedded RemoteServiceError.
func (e *RateLimitedError) As(target any) bool {
	if t, ok := target.(**RemoteServiceError); ok {
		*t = &e.RemoteServiceError
		return true
	}
	return false
}

// CheckResponse maps a non-2xx response to a RemoteServiceError, or to a
// RateLimitedError for 429 and for 403 with no remaining quota. A 403 that
// still reports quota left is a permission failure. It returns nil for 2xx.
func CheckResponse(op, rawURL string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	base := RemoteServiceError{Op: op, URL: redactURL(rawURL), StatusCode: resp.StatusCode}

	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && quotaExhausted(resp.Header)) {
		rl := &RateLimitedError{RemoteServiceError: base}
		// Best-effort header parsing; missing values stay zero.
		rl.Limit, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
		rl.Remaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && reset > 0 {
			rl.ResetAt = time.Unix(reset, 0)
		}
		return rl
	}

	return &base
}

// quotaExhausted reports whether a 403 looks like throttling: the remaining
// quota is zero or not reported at all.
func quotaExhausted(h http.Header) bool {
	remaining := h.Get("X-RateLimit-Remaining")
	return remaining == "" || remaining == "0"
}
