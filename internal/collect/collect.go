// Package collect retrieves upcoming release records from a remote source
// for one time window at a time. Two strategies exist: the TMDB discovery
// API and an HTML listings page scraper.
package collect

import (
	"context"
	"fmt"
	"net/url"

	"ukmoviecal/internal/model"
)

// Collector produces the releases for one window. Records lacking a
// parseable release date or a title are skipped, never returned.
type Collector interface {
	Collect(ctx context.Context, w model.Window) ([]model.Release, error)
}

// Enricher adds secondary detail (runtime, genres, trailer) to releases.
// Missing detail leaves fields at their zero value; only transport-level
// failures are returned.
type Enricher interface {
	Enrich(ctx context.Context, releases []model.Release) ([]model.Release, error)
}

// HTTPError is returned when a source answers with a non-2xx status.
type HTTPError struct {
	URL        string // redacted
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// redactURL hides credential query parameters for logging and errors.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	q := u.Query()
	for _, k := range []string{"api_key", "apikey", "token", "access_token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
