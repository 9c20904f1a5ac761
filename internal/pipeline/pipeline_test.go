package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ukmoviecal/internal/collect"
	"ukmoviecal/internal/config"
	"ukmoviecal/internal/ics"
	"ukmoviecal/internal/model"
	"ukmoviecal/internal/selector"
)

type staticCollector map[string][]model.Release

func (s staticCollector) Collect(_ context.Context, w model.Window) ([]model.Release, error) {
	return s[w.Key], nil
}

type failingCollector struct{ failOn string }

func (f failingCollector) Collect(_ context.Context, w model.Window) ([]model.Release, error) {
	if w.Key == f.failOn {
		return nil, errors.New("connection refused")
	}
	return []model.Release{{ReleaseDate: "2026-03-01", Title: "Film"}}, nil
}

type markingEnricher struct{ calls int }

func (m *markingEnricher) Enrich(_ context.Context, rs []model.Release) ([]model.Release, error) {
	m.calls++
	out := append([]model.Release(nil), rs...)
	for i := range out {
		out[i].Enriched = true
		out[i].Runtime = 100 + i
	}
	return out, nil
}

func windows(keys ...string) []model.Window {
	out := make([]model.Window, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.Window{Key: k})
	}
	return out
}

func TestRun_EndToEnd(t *testing.T) {
	out := filepath.Join(t.TempDir(), "uk.ics")

	res, err := Run(context.Background(), Options{
		Windows: windows("2026-03"),
		Collector: staticCollector{"2026-03": {
			{ReleaseDate: "2026-03-05", Title: "Film A", Popularity: 50},
			{ReleaseDate: "2026-03-01", Title: "Film B", Popularity: 10},
		}},
		Policy: selector.Rank{TopN: 5},
		Output: out,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, []BucketSummary{{Key: "2026-03", Collected: 2, Selected: 2}}, res.Buckets)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(data)

	assert.Equal(t, 2, strings.Count(doc, "BEGIN:VEVENT"))
	b := strings.Index(doc, "DTSTART;VALUE=DATE:20260301")
	a := strings.Index(doc, "DTSTART;VALUE=DATE:20260305")
	require.True(t, b > 0 && a > 0)
	assert.Less(t, b, a, "Film B must come before Film A")
	assert.Less(t, strings.Index(doc, "SUMMARY:Film B"), strings.Index(doc, "SUMMARY:Film A"))
}

func TestRun_SelectsPerBucketThenSortsGlobally(t *testing.T) {
	var buf bytes.Buffer

	res, err := Run(context.Background(), Options{
		Windows: windows("2026-03", "2026-04"),
		Collector: staticCollector{
			"2026-03": {
				{ReleaseDate: "2026-03-20", Title: "March Hit", Popularity: 90},
				{ReleaseDate: "2026-03-02", Title: "March Flop", Popularity: 1},
			},
			"2026-04": {
				{ReleaseDate: "2026-04-10", Title: "April Small", Popularity: 5},
			},
		},
		Policy: selector.Rank{TopN: 1},
		Output: StdoutPath,
		Stdout: &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)

	parsed, err := ics.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "March Hit", parsed[0].Summary)
	assert.Equal(t, "April Small", parsed[1].Summary)
}

func TestRun_EnrichesSelectedOnly(t *testing.T) {
	enricher := &markingEnricher{}
	var buf bytes.Buffer

	_, err := Run(context.Background(), Options{
		Windows: windows("2026-03"),
		Collector: staticCollector{"2026-03": {
			{ReleaseDate: "2026-03-05", Title: "Kept", Popularity: 50, SourceID: "1"},
			{ReleaseDate: "2026-03-06", Title: "Dropped", Popularity: 1, SourceID: "2"},
		}},
		Enricher: enricher,
		Policy:   selector.Rank{TopN: 1},
		Format:   ics.Options{Description: ics.DescriptionAuto},
		Output:   StdoutPath,
		Stdout:   &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, enricher.calls)
	assert.Contains(t, buf.String(), `DESCRIPTION:Runtime: 100 minutes\n`)
	assert.NotContains(t, buf.String(), "Dropped")
}

func TestRun_CollectFailureWritesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "uk.ics")

	_, err := Run(context.Background(), Options{
		Windows:   windows("2026-03", "2026-04"),
		Collector: failingCollector{failOn: "2026-04"},
		Policy:    selector.Rank{TopN: 5},
		Output:    out,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collect 2026-04")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_EmptyRunWritesEmptyCalendar(t *testing.T) {
	var buf bytes.Buffer
	res, err := Run(context.Background(), Options{
		Windows:   windows("2026-03"),
		Collector: staticCollector{},
		Policy:    selector.Rank{TopN: 5},
		Output:    StdoutPath,
		Stdout:    &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Events)
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, buf.String(), "END:VCALENDAR\r\n")
}

func TestRun_RequiresWiring(t *testing.T) {
	_, err := Run(context.Background(), Options{Policy: selector.Rank{}, Output: "x"})
	assert.Error(t, err)
	_, err = Run(context.Background(), Options{Collector: staticCollector{}, Output: "x"})
	assert.Error(t, err)
	_, err = Run(context.Background(), Options{Collector: staticCollector{}, Policy: selector.Rank{}})
	assert.Error(t, err)
}

func TestFromConfig_TMDBAgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/discover/movie":
			gte := r.URL.Query().Get("primary_release_date.gte")
			if gte == "2026-03-01" {
				fmt.Fprint(w, `{"page":1,"total_pages":1,"results":[
					{"id":11,"title":"Film A","release_date":"2026-03-05","popularity":50,"vote_count":200},
					{"id":12,"title":"Film B","release_date":"2026-03-01","popularity":10,"vote_count":5}
				]}`)
				return
			}
			fmt.Fprint(w, `{"page":1,"total_pages":1,"results":[]}`)
		case strings.HasPrefix(r.URL.Path, "/movie/"):
			fmt.Fprint(w, `{"runtime":95,"genres":[{"name":"Comedy"}],"videos":{"results":[{"key":"k1","site":"YouTube","type":"Trailer"}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.TMDB.BaseURL = srv.URL
	cfg.TMDB.APIKey = "test"
	cfg.TMDB.RequestsPerSecond = 1000
	cfg.Window.Year = 2026
	cfg.Window.Month = 3
	cfg.Calendar.Output = filepath.Join(t.TempDir(), "out.ics")
	require.NoError(t, cfg.Validate())

	opts, err := FromConfig(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, opts.Windows, 1)
	_, isTMDB := opts.Collector.(*collect.TMDB)
	assert.True(t, isTMDB)
	require.NotNil(t, opts.Enricher)

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)

	f, err := os.Open(cfg.Calendar.Output)
	require.NoError(t, err)
	defer f.Close()
	parsed, err := ics.Parse(f)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	assert.Equal(t, "20260301-12@ukmovies", parsed[0].UID)
	assert.Equal(t, "20260305-11@ukmovies", parsed[1].UID)
	assert.Contains(t, parsed[1].Description, "Runtime: 95 minutes")
	assert.Contains(t, parsed[1].Description, "Genres: Comedy")
	assert.Contains(t, parsed[1].Description, "Trailer: https://www.youtube.com/watch?v=k1")
}

func TestFromConfig_ThresholdScrape(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source = config.SourceScrape
	cfg.Scrape.URL = "https://films.example/releases"
	cfg.Scrape.RowSelector = "tr"
	cfg.Scrape.DateSelector = "td:nth-child(1)"
	cfg.Scrape.TitleSelector = "td a"
	cfg.Selection.Mode = "threshold"
	cfg.Selection.MinPopularity = 20
	cfg.Window.Bucket = "year"
	cfg.Window.Year = 2026

	opts, err := FromConfig(cfg, time.Now())
	require.NoError(t, err)

	_, isScraper := opts.Collector.(*collect.Scraper)
	assert.True(t, isScraper)
	assert.Nil(t, opts.Enricher)
	assert.Equal(t, selector.Threshold{MinPopularity: 20}, opts.Policy)
	require.Len(t, opts.Windows, 1)
	assert.Equal(t, "2026", opts.Windows[0].Key)
}
