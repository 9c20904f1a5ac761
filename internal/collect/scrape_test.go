package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ukmoviecal/internal/model"
)

const listingPage1 = `<html><body>
<ul>
  <li class="release"><span class="date">Friday 6th March 2026</span> <a class="title" href="/film/dune-part-three/">Dune: Part Three</a></li>
  <li class="release"><span class="date">TBC</span> <a class="title" href="/film/mystery">Mystery Film</a></li>
  <li class="release"><span class="date">13 March 2026</span> <a class="title" href="/film/no-title"></a></li>
  <li class="release"><span class="date">2 April 2026</span> <a class="title" href="/film/april">April Film</a></li>
  <li class="release"><span class="date">20 March</span> <a class="title" href="/film/no-year">No Year Film</a></li>
</ul>
<a class="next" href="/releases?page=2">Next</a>
</body></html>`

const listingPage2 = `<html><body>
<ul>
  <li class="release"><span class="date">27/03/2026</span> <a class="title" href="/film/late-march">Late   March
   Film</a></li>
</ul>
</body></html>`

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, listingPage1)
		case "2":
			fmt.Fprint(w, listingPage2)
		default:
			http.NotFound(w, r)
		}
	}))
}

func listingConfig(url string) ScrapeConfig {
	return ScrapeConfig{
		URL:           url + "/releases",
		RowSelector:   "li.release",
		DateSelector:  ".date",
		TitleSelector: "a.title",
		IDAttr:        "href",
		NextSelector:  "a.next",
	}
}

func TestNewScraper_Validates(t *testing.T) {
	_, err := NewScraper(ScrapeConfig{}, nil)
	assert.Error(t, err)

	_, err = NewScraper(ScrapeConfig{URL: "http://x", RowSelector: "tr"}, nil)
	assert.Error(t, err)
}

func TestScraper_CollectStatic(t *testing.T) {
	srv := listingServer(t)
	defer srv.Close()

	s, err := NewScraper(listingConfig(srv.URL), nil)
	require.NoError(t, err)

	got, err := s.Collect(context.Background(), march2026)
	require.NoError(t, err)

	assert.Equal(t, []model.Release{
		{ReleaseDate: "2026-03-06", Title: "Dune: Part Three", SourceID: "dune-part-three"},
		{ReleaseDate: "2026-03-20", Title: "No Year Film", SourceID: "no-year"},
		{ReleaseDate: "2026-03-27", Title: "Late March Film", SourceID: "late-march"},
	}, got)
}

func TestScraper_CollectStaticFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewScraper(listingConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = s.Collect(context.Background(), march2026)
	assert.Error(t, err)
}

type fakeRenderer struct {
	pages map[string]string
	calls []string
}

func (f *fakeRenderer) Render(_ context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	html, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("no page %s", pageURL)
	}
	return html, nil
}

func TestScraper_CollectRendered(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://films.example/releases":        listingPage1,
		"https://films.example/releases?page=2": listingPage2,
	}}
	cfg := listingConfig("https://films.example")
	cfg.Render = true

	s, err := NewScraper(cfg, r)
	require.NoError(t, err)

	got, err := s.Collect(context.Background(), march2026)
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Equal(t, []string{"https://films.example/releases", "https://films.example/releases?page=2"}, r.calls)
}

func TestScraper_CollectRenderedFailure(t *testing.T) {
	cfg := listingConfig("https://films.example")
	cfg.Render = true

	s, err := NewScraper(cfg, &fakeRenderer{})
	require.NoError(t, err)

	_, err = s.Collect(context.Background(), march2026)
	assert.Error(t, err)
}

func TestParseListingDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2026-03-05", "2026-03-05"},
		{"5th March 2026", "2026-03-05"},
		{"  Thursday 1st   January 2026 ", "2026-01-01"},
		{"Sat 22nd Aug 2026", "2026-08-22"},
		{"March 3, 2026", "2026-03-03"},
		{"05/03/2026", "2026-03-05"},
	}
	for _, tt := range tests {
		d, err := ParseListingDate(tt.in, DefaultDateLayouts)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, d.Format(model.DateLayout), tt.in)
	}

	for _, bad := range []string{"", "TBC", "Spring 2026"} {
		_, err := ParseListingDate(bad, DefaultDateLayouts)
		assert.Error(t, err, bad)
	}
}

func TestSourceIDFromAttr(t *testing.T) {
	assert.Equal(t, "dune", sourceIDFromAttr("href", "https://x.example/film/dune/"))
	assert.Equal(t, "", sourceIDFromAttr("href", "/"))
	assert.Equal(t, "tt123", sourceIDFromAttr("data-id", " tt123 "))
}

func TestScraper_FetchesListingOncePerRun(t *testing.T) {
	var requests atomic.Int32
	inner := listingServer(t)
	defer inner.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	s, err := NewScraper(listingConfig(srv.URL), nil)
	require.NoError(t, err)

	march, err := s.Collect(context.Background(), march2026)
	require.NoError(t, err)
	april, err := s.Collect(context.Background(), model.Window{
		Key:   "2026-04",
		Start: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Len(t, march, 3)
	require.Len(t, april, 1)
	assert.Equal(t, "April Film", april[0].Title)
	assert.EqualValues(t, 2, requests.Load(), "each listing page is fetched once")
}

func TestScraper_RenderedListingOncePerRun(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://films.example/releases":        listingPage1,
		"https://films.example/releases?page=2": listingPage2,
	}}
	cfg := listingConfig("https://films.example")
	cfg.Render = true

	s, err := NewScraper(cfg, r)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Collect(context.Background(), march2026)
		require.NoError(t, err)
	}
	assert.Len(t, r.calls, 2)
}

func TestScraper_LeapDayWithoutYear(t *testing.T) {
	page := `<html><body><ul>
  <li class="release"><span class="date">29 February</span> <a class="title" href="/film/leap">Leap Film</a></li>
</ul></body></html>`
	r := &fakeRenderer{pages: map[string]string{"https://films.example/releases": page}}
	cfg := listingConfig("https://films.example")
	cfg.Render = true

	s, err := NewScraper(cfg, r)
	require.NoError(t, err)

	feb := func(year int) model.Window {
		return model.Window{
			Key:   fmt.Sprintf("%d-02", year),
			Start: time.Date(year, time.February, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(year, time.March, 0, 0, 0, 0, 0, time.UTC),
		}
	}
	mar2027 := model.Window{
		Key:   "2027-03",
		Start: time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2027, time.March, 31, 0, 0, 0, 0, time.UTC),
	}

	got, err := s.Collect(context.Background(), feb(2027))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Collect(context.Background(), mar2027)
	require.NoError(t, err)
	assert.Empty(t, got, "29 February must not roll into March")

	got, err = s.Collect(context.Background(), feb(2028))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2028-02-29", got[0].ReleaseDate)
}

func TestResolveYear(t *testing.T) {
	leap, err := ParseListingDate("29 February", DefaultDateLayouts)
	require.NoError(t, err)

	_, ok := resolveYear(leap, 2027)
	assert.False(t, ok)

	d, ok := resolveYear(leap, 2028)
	require.True(t, ok)
	assert.Equal(t, "2028-02-29", d.Format(model.DateLayout))

	full := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	d, ok = resolveYear(full, 2030)
	require.True(t, ok)
	assert.Equal(t, full, d)
}
