package model

import (
	"fmt"
	"time"
)

// Granularity selects how the run's range is split into buckets.
type Granularity string

const (
	ByMonth Granularity = "month"
	ByYear  Granularity = "year"
)

// PlanConfig describes the time range a run covers.
type PlanConfig struct {
	Bucket Granularity

	// Year pins the run to one calendar year. Zero means rolling from Now.
	Year   int
	// Month narrows a pinned year to a single month (1-12). Zero means all.
	Month  int
	// Months is the length of the rolling range. Zero means 12.
	Months int

	Now time.Time
}

// PlanWindows returns the buckets for a run in chronological order.
func PlanWindows(cfg PlanConfig) ([]Window, error) {
	if cfg.Month < 0 || cfg.Month > 12 {
		return nil, fmt.Errorf("plan: month %d out of range", cfg.Month)
	}
	if cfg.Months < 0 {
		return nil, fmt.Errorf("plan: months %d must not be negative", cfg.Months)
	}

	var start, end time.Time
	switch {
	case cfg.Year > 0 && cfg.Month > 0:
		start = civil(cfg.Year, time.Month(cfg.Month), 1)
		end = start.AddDate(0, 1, -1)
	case cfg.Year > 0:
		start = civil(cfg.Year, time.January, 1)
		end = civil(cfg.Year, time.December, 31)
	default:
		now := cfg.Now
		if now.IsZero() {
			now = time.Now()
		}
		months := cfg.Months
		if months == 0 {
			months = 12
		}
		start = civil(now.Year(), now.Month(), 1)
		end = start.AddDate(0, months, -1)
	}

	switch cfg.Bucket {
	case ByYear:
		return yearWindows(start, end), nil
	case ByMonth, "":
		return monthWindows(start, end), nil
	default:
		return nil, fmt.Errorf("plan: unknown bucket %q", cfg.Bucket)
	}
}

func monthWindows(start, end time.Time) []Window {
	var out []Window
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		last := m.AddDate(0, 1, -1)
		if last.After(end) {
			last = end
		}
		out = append(out, Window{
			Key:   m.Format("2006-01"),
			Start: m,
			End:   last,
		})
	}
	return out
}

func yearWindows(start, end time.Time) []Window {
	var out []Window
	for y := start.Year(); y <= end.Year(); y++ {
		ws := civil(y, time.January, 1)
		we := civil(y, time.December, 31)
		if ws.Before(start) {
			ws = start
		}
		if we.After(end) {
			we = end
		}
		out = append(out, Window{
			Key:   fmt.Sprintf("%04d", y),
			Start: ws,
			End:   we,
		})
	}
	return out
}

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
