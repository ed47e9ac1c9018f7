package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "companion/internal/log"
)

// Entry is one VEVENT of a feed, before recurrence expansion.
type Entry struct {
	Subscription Subscription

	UID      string
	Sequence int

	Summary     string
	Description string
	Location    string
	URL         string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on entries that override one instance of a
	// recurring entry with the same UID.
	RecurrenceID *time.Time
}

// Parse decodes an ICS body. Unusable VEVENTs are logged and skipped;
// cancelled ones are dropped. loc resolves floating times.
func Parse(sub Subscription, body []byte, loc *time.Location) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, ve := range cal.Events() {
		if prop := ve.GetProperty(ical.ComponentProperty("STATUS")); prop != nil && strings.EqualFold(prop.Value, "CANCELLED") {
			continue
		}
		e, err := parseEvent(sub, ve, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", sub.ID, "err", err)
			continue
		}
		out = append(out, e)
	}
	appLog.Debug("ics parsed", "id", sub.ID, "entries", len(out))
	return out, nil
}

func parseEvent(sub Subscription, ve *ical.VEvent, loc *time.Location) (Entry, error) {
	e := Entry{Subscription: sub}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		e.Sequence, _ = strconv.Atoi(strings.TrimSpace(p.Value))
	}
	e.Summary = propValue(ve, ical.ComponentPropertySummary)
	e.Description = propValue(ve, ical.ComponentPropertyDescription)
	e.Location = propValue(ve, ical.ComponentPropertyLocation)
	e.URL = propValue(ve, ical.ComponentProperty("URL"))
	e.RRule = propValue(ve, ical.ComponentPropertyRrule)

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return e, errors.New("missing DTSTART")
	}
	var err error
	e.Start, e.AllDay, err = parseTime(start.Value, start.ICalParameters, loc)
	if err != nil {
		return e, err
	}

	if end := ve.GetProperty(ical.ComponentPropertyDtEnd); end != nil {
		e.End, _, err = parseTime(end.Value, end.ICalParameters, loc)
		if err != nil {
			return e, err
		}
	} else if d := propValue(ve, ical.ComponentProperty("DURATION")); d != "" {
		dur, err := parseDuration(d)
		if err != nil {
			return e, err
		}
		e.End = e.Start.Add(dur)
	} else if e.AllDay {
		e.End = e.Start.AddDate(0, 0, 1)
	} else {
		e.End = e.Start
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseTime(part, p.ICalParameters, loc); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, _, err := parseTime(p.Value, p.ICalParameters, loc); err == nil {
			e.RecurrenceID = &t
		}
	}
	return e, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parseTime reads DATE and DATE-TIME values honoring TZID. Floating times
// and dates are placed in loc.
func parseTime(value string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, errors.New("empty time value")
	}
	if tzs := params["TZID"]; len(tzs) > 0 {
		if tz, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = tz
		}
	}
	isDate := !strings.Contains(value, "T")
	if vs := params["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}

	switch {
	case isDate:
		t, err := time.ParseInLocation("20060102", value[:min(len(value), 8)], loc)
		return t, true, err
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", value, loc)
		return t, false, err
	}
}

// parseDuration handles the RFC 5545 subset feeds use: [-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg, s = true, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, errors.New("ics: bad duration " + s)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		default:
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, errors.New("ics: bad duration")
			}
			num = ""
			switch {
			case r == 'W':
				d += time.Duration(n) * 7 * 24 * time.Hour
			case r == 'D':
				d += time.Duration(n) * 24 * time.Hour
			case r == 'H' && inTime:
				d += time.Duration(n) * time.Hour
			case r == 'M' && inTime:
				d += time.Duration(n) * time.Minute
			case r == 'S' && inTime:
				d += time.Duration(n) * time.Second
			default:
				return 0, errors.New("ics: bad duration unit")
			}
		}
	}
	if neg {
		d = -d
	}
	return d, nil
}
