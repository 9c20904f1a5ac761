package pipeline

import (
	"fmt"
	"time"

	"ukmoviecal/internal/collect"
	"ukmoviecal/internal/config"
	"ukmoviecal/internal/ics"
	"ukmoviecal/internal/model"
	"ukmoviecal/internal/selector"
)

// FromConfig builds run options from a validated config. now anchors
// rolling windows.
func FromConfig(cfg *config.Config, now time.Time) (Options, error) {
	windows, err := model.PlanWindows(model.PlanConfig{
		Bucket: model.Granularity(cfg.Window.Bucket),
		Year:   cfg.Window.Year,
		Month:  cfg.Window.Month,
		Months: cfg.Window.Months,
		Now:    now,
	})
	if err != nil {
		return Options{}, err
	}

	policy, err := selector.New(selector.Options{
		Mode:          selector.Mode(cfg.Selection.Mode),
		TopN:          cfg.Selection.TopN,
		MinPopularity: cfg.Selection.MinPopularity,
		MinVoteCount:  cfg.Selection.MinVoteCount,
	})
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Windows: windows,
		Policy:  policy,
		Format: ics.Options{
			ProductID:   cfg.Calendar.ProductID,
			UIDDomain:   cfg.Calendar.UIDDomain,
			Description: ics.DescriptionMode(cfg.Calendar.Description),
		},
		Output: cfg.Calendar.Output,
	}

	switch cfg.Source {
	case config.SourceTMDB:
		c, err := collect.NewTMDB(collect.TMDBConfig{
			BaseURL:           cfg.TMDB.BaseURL,
			APIKey:            cfg.TMDB.APIKey,
			Region:            cfg.TMDB.Region,
			Language:          cfg.TMDB.Language,
			RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
			DetailConcurrency: cfg.TMDB.DetailConcurrency,
		})
		if err != nil {
			return Options{}, err
		}
		opts.Collector = c
		if cfg.Enrich {
			opts.Enricher = c
		}
	case config.SourceScrape:
		c, err := collect.NewScraper(collect.ScrapeConfig{
			URL:           cfg.Scrape.URL,
			RowSelector:   cfg.Scrape.RowSelector,
			DateSelector:  cfg.Scrape.DateSelector,
			TitleSelector: cfg.Scrape.TitleSelector,
			IDAttr:        cfg.Scrape.IDAttr,
			DateLayouts:   cfg.Scrape.DateLayouts,
			NextSelector:  cfg.Scrape.NextSelector,
			MaxPages:      cfg.Scrape.MaxPages,
			Render:        cfg.Scrape.Render,
		}, nil)
		if err != nil {
			return Options{}, err
		}
		opts.Collector = c
	default:
		return Options{}, fmt.Errorf("pipeline: unknown source %q", cfg.Source)
	}

	return opts, nil
}
