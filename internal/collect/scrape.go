package collect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/model"
)

const (
	DefaultMaxPages  = 20
	DefaultUserAgent = "ukmoviecal/1.0 (+https://github.com/ukmoviecal)"
)

// DefaultDateLayouts covers the date styles seen on UK listing pages.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2 January 2006",
	"2 Jan 2006",
	"Monday 2 January 2006",
	"Mon 2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
	"2 January",
	"2 Jan",
}

var (
	ordinalSuffix = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// ScrapeConfig describes where release rows live on a listings page.
type ScrapeConfig struct {
	URL string

	// RowSelector matches one element per release (e.g. "li.release",
	// "table.releases tr").
	RowSelector string

	// DateSelector and TitleSelector are evaluated inside each row.
	DateSelector  string
	TitleSelector string

	// IDAttr names an attribute of the title element used as source id.
	// For "href" the last path segment is used.
	IDAttr string

	DateLayouts []string

	// NextSelector matches a link to the following page, if any.
	NextSelector string
	MaxPages     int

	// Render loads pages through a headless browser instead of plain HTTP.
	Render    bool
	UserAgent string
}

// Renderer returns the fully rendered HTML of a page.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Scraper collects releases from an HTML listings page. The listing is
// fetched on the first Collect and then filtered for every window, so one
// Scraper should serve one run.
type Scraper struct {
	cfg      ScrapeConfig
	renderer Renderer

	mu      sync.Mutex
	fetched bool
	rows    []listingRow
}

// listingRow is one usable row of the listing. A zero year means the page
// printed the date without one.
type listingRow struct {
	date     time.Time
	title    string
	sourceID string
}

// NewScraper validates cfg. renderer is only used when cfg.Render is set;
// nil selects a ChromeRenderer with default options.
func NewScraper(cfg ScrapeConfig, renderer Renderer) (*Scraper, error) {
	if cfg.URL == "" {
		return nil, errors.New("scrape: url is empty")
	}
	if cfg.RowSelector == "" || cfg.DateSelector == "" || cfg.TitleSelector == "" {
		return nil, errors.New("scrape: row, date and title selectors are required")
	}
	if len(cfg.DateLayouts) == 0 {
		cfg.DateLayouts = DefaultDateLayouts
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Render && renderer == nil {
		renderer = &ChromeRenderer{}
	}
	return &Scraper{cfg: cfg, renderer: renderer}, nil
}

// Collect returns the listing rows dated inside w.
func (s *Scraper) Collect(ctx context.Context, w model.Window) ([]model.Release, error) {
	rows, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Release
	for _, row := range rows {
		d, ok := resolveYear(row.date, w.Start.Year())
		if !ok || !w.Contains(d) {
			continue
		}
		out = append(out, model.Release{
			ReleaseDate: d.Format(model.DateLayout),
			Title:       row.title,
			SourceID:    row.sourceID,
		})
	}

	appLog.Debug("scrape: bucket collected", "bucket", w.Key, "count", len(out))
	return out, nil
}

// listing fetches every page once. A failed fetch is not remembered.
func (s *Scraper) listing(ctx context.Context) ([]listingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetched {
		return s.rows, nil
	}

	var (
		rows []listingRow
		err  error
	)
	if s.cfg.Render {
		rows, err = s.fetchRendered(ctx)
	} else {
		rows, err = s.fetchStatic(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.rows, s.fetched = rows, true
	appLog.Info("scrape: listing fetched", "url", s.cfg.URL, "rows", len(rows), "rendered", s.cfg.Render)
	return rows, nil
}

func (s *Scraper) fetchStatic(ctx context.Context) ([]listingRow, error) {
	c := colly.NewCollector(
		colly.MaxDepth(s.cfg.MaxPages),
		colly.UserAgent(s.cfg.UserAgent),
	)

	var (
		out    []listingRow
		failed error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		out = append(out, s.extract(e.DOM, e.Request.URL)...)

		if next := s.nextLink(e.DOM); next != "" {
			// Already-visited and depth errors just end the walk.
			_ = e.Request.Visit(next)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if failed == nil {
			failed = fmt.Errorf("scrape: GET %s: status %d: %w", r.Request.URL, r.StatusCode, err)
		}
	})

	if err := c.Visit(s.cfg.URL); err != nil && failed == nil {
		failed = fmt.Errorf("scrape: GET %s: %w", s.cfg.URL, err)
	}
	if failed != nil {
		return nil, failed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scraper) fetchRendered(ctx context.Context) ([]listingRow, error) {
	var out []listingRow
	visited := make(map[string]bool)

	pageURL := s.cfg.URL
	for page := 0; page < s.cfg.MaxPages && pageURL != "" && !visited[pageURL]; page++ {
		visited[pageURL] = true

		base, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("scrape: bad page url %q: %w", pageURL, err)
		}

		html, err := s.renderer.Render(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("scrape: render %s: %w", pageURL, err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("scrape: parse %s: %w", pageURL, err)
		}

		out = append(out, s.extract(doc.Selection, base)...)

		pageURL = ""
		if next := s.nextLink(doc.Selection); next != "" {
			if ref, err := base.Parse(next); err == nil {
				pageURL = ref.String()
			}
		}
	}
	return out, nil
}

func (s *Scraper) nextLink(doc *goquery.Selection) string {
	if s.cfg.NextSelector == "" {
		return ""
	}
	href, _ := doc.Find(s.cfg.NextSelector).First().Attr("href")
	return strings.TrimSpace(href)
}

// extract walks every row in doc. Rows without a parseable date or a title
// are skipped.
func (s *Scraper) extract(doc *goquery.Selection, base *url.URL) []listingRow {
	var out []listingRow
	skipped := 0

	doc.Find(s.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		r, ok := s.rowFromSelection(row)
		if !ok {
			skipped++
			return
		}
		out = append(out, r)
	})

	if skipped > 0 {
		appLog.Debug("scrape: skipped rows without date or title", "url", base.String(), "skipped", skipped)
	}
	return out
}

func (s *Scraper) rowFromSelection(row *goquery.Selection) (listingRow, bool) {
	titleSel := row.Find(s.cfg.TitleSelector).First()
	title := collapseSpace(titleSel.Text())
	if title == "" {
		return listingRow{}, false
	}

	d, err := ParseListingDate(row.Find(s.cfg.DateSelector).First().Text(), s.cfg.DateLayouts)
	if err != nil {
		return listingRow{}, false
	}

	r := listingRow{date: d, title: title}
	if s.cfg.IDAttr != "" {
		if v, ok := titleSel.Attr(s.cfg.IDAttr); ok {
			r.sourceID = sourceIDFromAttr(s.cfg.IDAttr, v)
		}
	}
	return r, true
}

// resolveYear places a year-less date into year. It reports false when the
// day does not exist in that year, such as 29 February outside a leap year.
func resolveYear(d time.Time, year int) (time.Time, bool) {
	if d.Year() != 0 {
		return d, true
	}
	r := time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if r.Month() != d.Month() {
		return time.Time{}, false
	}
	return r, true
}

// ParseListingDate reads human-written dates such as "Friday 5th March
// 2026" by removing ordinal suffixes and trying each layout in turn.
func ParseListingDate(text string, layouts []string) (time.Time, error) {
	text = collapseSpace(text)
	text = ordinalSuffix.ReplaceAllString(text, "$1")
	text = strings.TrimRight(text, ".,;")
	if text == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range layouts {
		if d, err := time.Parse(layout, text); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

func sourceIDFromAttr(attr, v string) string {
	v = strings.TrimSpace(v)
	if attr != "href" {
		return v
	}
	u, err := url.Parse(v)
	if err != nil {
		return v
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
