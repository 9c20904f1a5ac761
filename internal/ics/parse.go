package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "ukmoviecal/internal/log"
)

// ParsedEvent is a VEVENT read back from a generated calendar.
type ParsedEvent struct {
	UID         string
	Start       time.Time
	AllDay      bool
	Summary     string
	Description string
}

// Parse reads an ICS document and returns its events in file order. TEXT
// values come back unescaped from the parser.
// Events without a UID or a parseable DTSTART are logged and skipped.
func Parse(r io.Reader) ([]ParsedEvent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Warn("ics: skipping vevent", "err", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Verify parses doc and checks that it holds exactly the given events, in
// order, with unique UIDs.
func Verify(doc []byte, want []Event) error {
	got, err := Parse(bytes.NewReader(doc))
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("ics: verify: document has %d events, expected %d", len(got), len(want))
	}

	seen := make(map[string]struct{}, len(got))
	for i, ev := range got {
		if _, dup := seen[ev.UID]; dup {
			return fmt.Errorf("ics: verify: duplicate uid %q", ev.UID)
		}
		seen[ev.UID] = struct{}{}

		if ev.UID != want[i].UID {
			return fmt.Errorf("ics: verify: event %d uid %q, expected %q", i, ev.UID, want[i].UID)
		}
		if !ev.Start.Equal(want[i].Start) {
			return fmt.Errorf("ics: verify: event %q starts %s, expected %s",
				ev.UID, ev.Start.Format(dateValue), want[i].Start.Format(dateValue))
		}
	}
	return nil
}

// Inspect lists the events of a calendar as date, UID and summary columns
// and returns how many were listed.
func Inspect(w io.Writer, r io.Reader) (int, error) {
	events, err := Parse(r)
	if err != nil {
		return 0, err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUID\tSUMMARY")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Start.Format("2006-01-02"), ev.UID, ev.Summary)
	}
	if err := tw.Flush(); err != nil {
		return 0, fmt.Errorf("ics: inspect: %w", err)
	}
	return len(events), nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, fmt.Errorf("uid %s: missing DTSTART", out.UID)
	}
	if params := dtStartProp.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
	}
	if !strings.Contains(dtStartProp.Value, "T") {
		out.AllDay = true
	}

	start, err := parseICSTime(dtStartProp.Value)
	if err != nil {
		return out, fmt.Errorf("uid %s: %w", out.UID, err)
	}
	out.Start = start

	return out, nil
}

// parseICSTime parses a basic ICS date/date-time string. Dates and floating
// times are read as UTC so they compare equal to model dates.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Floating date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.Parse("20060102T150405", v)
	}

	return time.Parse(dateValue, v)
}
