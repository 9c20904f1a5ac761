package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/model"
)

const (
	DefaultTMDBBaseURL       = "https://api.themoviedb.org/3"
	DefaultRegion            = "GB"
	DefaultLanguage          = "en-GB"
	DefaultRequestsPerSecond = 20
	DefaultDetailConcurrency = 4

	// TMDB refuses page numbers above 500.
	maxDiscoverPages = 500
	maxBodyBytes     = 8 << 20
	youtubeWatchURL  = "https://www.youtube.com/watch?v="
)

// TMDBConfig is the per-run configuration of the API collector.
type TMDBConfig struct {
	BaseURL  string
	APIKey   string
	Region   string
	Language string

	// RequestsPerSecond throttles every request made by the collector.
	RequestsPerSecond float64
	// DetailConcurrency bounds parallel detail requests during Enrich.
	DetailConcurrency int

	// HTTPClient overrides the default client (15s timeout).
	HTTPClient *http.Client
}

// TMDB collects releases from the TMDB discover endpoint and enriches them
// from the per-movie detail endpoint.
type TMDB struct {
	cfg     TMDBConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewTMDB validates cfg and fills in defaults.
func NewTMDB(cfg TMDBConfig) (*TMDB, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tmdb: api key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTMDBBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = DefaultDetailConcurrency
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
		}
	}

	return &TMDB{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type discoverPage struct {
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Results    []json.RawMessage `json:"results"`
}

type discoverResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Overview    string  `json:"overview"`
}

type movieDetails struct {
	Runtime     int      `json:"runtime"`
	VoteAverage *float64 `json:"vote_average"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Videos struct {
		Results []struct {
			Key  string `json:"key"`
			Site string `json:"site"`
			Type string `json:"type"`
		} `json:"results"`
	} `json:"videos"`
}

// Collect walks the discover pages for w in ascending release date order
// until the reported page reaches the reported total.
func (t *TMDB) Collect(ctx context.Context, w model.Window) ([]model.Release, error) {
	params := url.Values{}
	params.Set("region", t.cfg.Region)
	params.Set("language", t.cfg.Language)
	params.Set("sort_by", "release_date.asc")
	params.Set("primary_release_date.gte", w.Start.Format(model.DateLayout))
	params.Set("primary_release_date.lte", w.End.Format(model.DateLayout))

	var out []model.Release
	skipped := 0

	for page := 1; page <= maxDiscoverPages; page++ {
		params.Set("page", fmt.Sprint(page))

		body, err := t.get(ctx, "/discover/movie", params)
		if err != nil {
			return nil, fmt.Errorf("tmdb: discover %s page %d: %w", w.Key, page, err)
		}

		var dp discoverPage
		if err := json.Unmarshal(body, &dp); err != nil {
			appLog.Warn("tmdb: unreadable discover page; treating as empty", "bucket", w.Key, "page", page, "err", err)
			break
		}

		for _, raw := range dp.Results {
			rel, ok := releaseFromResult(raw)
			if !ok {
				skipped++
				continue
			}
			out = append(out, rel)
		}

		if dp.Page >= dp.TotalPages || page >= dp.TotalPages {
			break
		}
	}

	appLog.Debug("tmdb: bucket collected", "bucket", w.Key, "count", len(out), "skipped", skipped)
	return out, nil
}

func releaseFromResult(raw json.RawMessage) (model.Release, bool) {
	var res discoverResult
	if err := json.Unmarshal(raw, &res); err != nil {
		appLog.Debug("tmdb: skipping malformed result", "err", err)
		return model.Release{}, false
	}

	rel := model.Release{
		ReleaseDate: strings.TrimSpace(res.ReleaseDate),
		Title:       strings.TrimSpace(res.Title),
		Popularity:  res.Popularity,
		VoteAverage: res.VoteAverage,
		VoteCount:   res.VoteCount,
		Overview:    res.Overview,
	}
	if res.ID != 0 {
		rel.SourceID = fmt.Sprint(res.ID)
	}
	if !rel.Valid() {
		appLog.Debug("tmdb: skipping result without date or title", "id", res.ID, "title", res.Title)
		return model.Release{}, false
	}
	return rel, true
}

// Enrich fetches detail for every release with a SourceID. The returned
// slice keeps input order; the input is not modified.
func (t *TMDB) Enrich(ctx context.Context, releases []model.Release) ([]model.Release, error) {
	out := make([]model.Release, len(releases))
	copy(out, releases)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.DetailConcurrency)

	for i := range out {
		if out[i].SourceID == "" {
			continue
		}
		g.Go(func() error {
			d, err := t.details(gctx, out[i].SourceID)
			if err != nil {
				return fmt.Errorf("tmdb: details %s: %w", out[i].SourceID, err)
			}
			if d != nil {
				applyDetails(&out[i], d)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// details returns nil without error when the body cannot be decoded.
func (t *TMDB) details(ctx context.Context, id string) (*movieDetails, error) {
	params := url.Values{}
	params.Set("language", t.cfg.Language)
	params.Set("append_to_response", "videos")

	body, err := t.get(ctx, "/movie/"+url.PathEscape(id), params)
	if err != nil {
		return nil, err
	}

	var d movieDetails
	if err := json.Unmarshal(body, &d); err != nil {
		appLog.Warn("tmdb: unreadable details; leaving release un-enriched", "id", id, "err", err)
		return nil, nil
	}
	return &d, nil
}

func applyDetails(r *model.Release, d *movieDetails) {
	r.Runtime = d.Runtime
	if d.VoteAverage != nil {
		r.VoteAverage = *d.VoteAverage
	}

	r.Genres = nil
	for _, g := range d.Genres {
		if g.Name != "" {
			r.Genres = append(r.Genres, g.Name)
		}
	}

	r.TrailerURL = ""
	for _, v := range d.Videos.Results {
		if v.Type == "Trailer" && v.Site == "YouTube" && v.Key != "" {
			r.TrailerURL = youtubeWatchURL + v.Key
			break
		}
	}
	r.Enriched = true
}

func (t *TMDB) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", t.cfg.APIKey)
	endpoint := t.cfg.BaseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	appLog.Debug("tmdb: request", "url", redactURL(endpoint))

	resp, err := t.client.Do(req)
	if err != nil {
		// *url.Error carries the full URL, key included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("GET %s: %w", redactURL(endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: redactURL(endpoint), StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
