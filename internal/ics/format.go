package ics

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/model"
)

const (
	DefaultProductID = "-//UK Top Movie Releases Rolling 12 Months//EN"
	DefaultUIDDomain = "ukmovies"

	dateValue = "20060102"
	crlf      = "\r\n"
)

// DescriptionMode controls whether events carry a DESCRIPTION.
type DescriptionMode string

const (
	// DescriptionFull always writes the runtime/rating/genres block, even
	// with zero or empty fields.
	DescriptionFull DescriptionMode = "full"
	// DescriptionAuto writes the block for enriched releases, the bare
	// overview when that is all there is, and nothing otherwise.
	DescriptionAuto DescriptionMode = "auto"
	// DescriptionOmit never writes a DESCRIPTION.
	DescriptionOmit DescriptionMode = "omit"
)

// Options configures document rendering.
type Options struct {
	ProductID   string
	UIDDomain   string
	Description DescriptionMode
}

func (o Options) withDefaults() Options {
	if o.ProductID == "" {
		o.ProductID = DefaultProductID
	}
	if o.UIDDomain == "" {
		o.UIDDomain = DefaultUIDDomain
	}
	if o.Description == "" {
		o.Description = DescriptionAuto
	}
	return o
}

// Event is one VEVENT before escaping.
type Event struct {
	UID         string
	Start       time.Time
	Summary     string
	Description string
}

// Merge flattens the selected buckets and orders releases by date. Equal
// dates keep their bucket order.
func Merge(buckets []model.Bucket) []model.Release {
	var out []model.Release
	for _, b := range buckets {
		out = append(out, b.Releases...)
	}
	SortByDate(out)
	return out
}

// SortByDate stable-sorts releases ascending by ReleaseDate. ISO dates
// order lexically.
func SortByDate(releases []model.Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].ReleaseDate < releases[j].ReleaseDate
	})
}

// UID builds the deterministic event identifier for r. The disambiguator is
// the source id when present, else the title without spaces and colons.
func UID(r model.Release, domain string) (string, error) {
	d, err := r.Date()
	if err != nil {
		return "", err
	}
	if domain == "" {
		domain = DefaultUIDDomain
	}
	return d.Format(dateValue) + "-" + disambiguator(r) + "@" + domain, nil
}

func disambiguator(r model.Release) string {
	if id := strings.TrimSpace(r.SourceID); id != "" {
		return id
	}
	return strings.NewReplacer(" ", "", ":", "").Replace(r.Title)
}

// Description composes the multi-line detail block for r.
func Description(r model.Release) string {
	lines := []string{
		"Runtime: " + strconv.Itoa(r.Runtime) + " minutes",
		"Rating: " + strconv.FormatFloat(r.VoteAverage, 'f', -1, 64),
		"Genres: " + strings.Join(r.Genres, ", "),
		"",
		r.Overview,
		"",
		"Trailer: " + r.TrailerURL,
	}
	return strings.Join(lines, "\n")
}

func describe(r model.Release, mode DescriptionMode) string {
	switch mode {
	case DescriptionFull:
		return Description(r)
	case DescriptionOmit:
		return ""
	default:
		if r.Enriched {
			return Description(r)
		}
		return r.Overview
	}
}

// Events converts releases into calendar events in input order. Releases
// with unparseable dates and releases repeating an already emitted UID are
// dropped.
func Events(releases []model.Release, opts Options) []Event {
	opts = opts.withDefaults()

	events := make([]Event, 0, len(releases))
	seen := make(map[string]struct{}, len(releases))
	for _, r := range releases {
		start, err := r.Date()
		if err != nil {
			appLog.Debug("ics: dropping release with bad date", "title", r.Title, "date", r.ReleaseDate)
			continue
		}
		uid, _ := UID(r, opts.UIDDomain)
		if _, dup := seen[uid]; dup {
			appLog.Debug("ics: dropping duplicate uid", "uid", uid)
			continue
		}
		seen[uid] = struct{}{}

		events = append(events, Event{
			UID:         uid,
			Start:       start,
			Summary:     r.Title,
			Description: describe(r, opts.Description),
		})
	}
	return events
}

// Render writes the VCALENDAR document for events. Lines end with CRLF and
// are folded at 75 octets by the serializer.
func Render(w io.Writer, events []Event, opts Options) error {
	opts = opts.withDefaults()

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetCalscale("GREGORIAN")

	for _, ev := range events {
		vev := cal.AddEvent(ev.UID)
		// The UID may carry title characters that need TEXT escaping.
		vev.SetProperty(ical.ComponentPropertyUniqueId, Escape(ev.UID))
		vev.SetAllDayStartAt(ev.Start)
		vev.SetSummary(normalizeBreaks(ev.Summary))
		if ev.Description != "" {
			vev.SetDescription(normalizeBreaks(ev.Description))
		}
	}

	if _, err := io.WriteString(w, cal.Serialize(ical.WithNewLine(crlf))); err != nil {
		return fmt.Errorf("ics: write: %w", err)
	}
	return nil
}

// Format is Events followed by Render into memory.
func Format(releases []model.Release, opts Options) ([]byte, []Event, error) {
	events := Events(releases, opts)
	var buf bytes.Buffer
	if err := Render(&buf, events, opts); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), events, nil
}
