package model

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the canonical release date format carried between stages.
const DateLayout = "2006-01-02"

// Release is a single upcoming movie release as collected from a source.
// ReleaseDate and Title are mandatory; every other field is optional and
// defaults to its zero value.
type Release struct {
	ReleaseDate string // YYYY-MM-DD
	Title       string

	Popularity  float64
	VoteAverage float64
	VoteCount   int

	Overview   string
	Runtime    int // minutes
	Genres     []string
	TrailerURL string

	// SourceID is the upstream identifier (TMDB id, listing href, ...).
	SourceID string

	// Enriched is set once detail enrichment filled in runtime/genres/trailer.
	Enriched bool
}

// Date parses ReleaseDate against DateLayout.
func (r Release) Date() (time.Time, error) {
	if strings.TrimSpace(r.ReleaseDate) == "" {
		return time.Time{}, errors.New("empty release date")
	}
	return time.Parse(DateLayout, r.ReleaseDate)
}

// Valid reports whether the mandatory fields are present and the date parses.
func (r Release) Valid() bool {
	if strings.TrimSpace(r.Title) == "" {
		return false
	}
	_, err := r.Date()
	return err == nil
}

// Window is an inclusive civil-date range that forms one selection bucket.
type Window struct {
	// Key labels the bucket: "2026-03" for months, "2026" for years.
	Key   string
	Start time.Time
	End   time.Time
}

// Contains reports whether d (a civil date) falls inside the window.
func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Bucket groups the releases collected for one window.
type Bucket struct {
	Window   Window
	Releases []Release
}
