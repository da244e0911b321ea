// Package calendar renders a planning document as an iCalendar feed
// that calendar apps can subscribe to, and the subscription URL as a QR
// code.
package calendar

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/skip2/go-qrcode"

	"github.com/nugget/axis/internal/buildinfo"
	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/validate"
)

// ContentType is the media type of an encoded feed.
const ContentType = "text/calendar; charset=utf-8"

// deadlineLength is the duration given to timed deadline events so
// they show up as a short block rather than a zero-length instant.
const deadlineLength = 15 * time.Minute

// Options controls feed rendering.
type Options struct {
	// Name is shown by subscribing apps as the calendar title.
	Name string
	// Location interprets task deadline dates and times, which carry no
	// zone of their own. Nil means UTC.
	Location *time.Location
	// Now stamps every event. Zero means time.Now.
	Now time.Time
}

// Encode renders doc as an iCalendar object. Schedule blocks and fixed
// blocks become timed events; deadlines of incomplete tasks become
// all-day events, or short timed events when a deadline time is set.
func Encode(doc *planner.Document, opts Options) ([]byte, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	name := opts.Name
	if name == "" {
		name = "Axis"
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Axis//"+buildinfo.Version+"//EN")
	cal.Props.SetText("X-WR-CALNAME", name)

	names := make(map[string]planner.Task, len(doc.Tasks))
	for _, t := range doc.Tasks {
		names[t.ID] = t
	}

	var events []*ical.Event
	for _, b := range doc.Schedule {
		task, ok := names[b.TaskID]
		summary := "Study block"
		if ok {
			summary = task.Name
		}
		ev := newEvent(fmt.Sprintf("block-%s-%d@axis", b.TaskID, b.Start.Unix()), now)
		ev.Props.SetText(ical.PropSummary, summary)
		ev.Props.SetDateTime(ical.PropDateTimeStart, b.Start.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, b.End.UTC())
		if b.Reason != "" {
			ev.Props.SetText(ical.PropDescription, b.Reason)
		}
		if ok && task.Category != "" {
			ev.Props.SetText(ical.PropCategories, task.Category)
		}
		events = append(events, ev)
	}

	for i, f := range doc.FixedBlocks {
		ev := newEvent(fmt.Sprintf("fixed-%d-%d@axis", i, f.Start.Unix()), now)
		ev.Props.SetText(ical.PropSummary, f.Label)
		ev.Props.SetDateTime(ical.PropDateTimeStart, f.Start.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, f.End.UTC())
		ev.Props.SetText(ical.PropTransparency, "OPAQUE")
		if f.Category != "" {
			ev.Props.SetText(ical.PropCategories, f.Category)
		}
		events = append(events, ev)
	}

	for _, t := range doc.Tasks {
		if t.Completed || t.DeadlineDate == "" {
			continue
		}
		ev, ok := deadlineEvent(t, loc, now)
		if ok {
			events = append(events, ev)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return startOf(events[i]).Before(startOf(events[j]))
	})
	for _, ev := range events {
		cal.Children = append(cal.Children, ev.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func newEvent(uid string, stamp time.Time) *ical.Event {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	return ev
}

// deadlineEvent builds the due-date event for t. Deadlines that do not
// parse are skipped; the document may predate validation.
func deadlineEvent(t planner.Task, loc *time.Location, now time.Time) (*ical.Event, bool) {
	day, err := time.ParseInLocation(validate.DateLayout, t.DeadlineDate, loc)
	if err != nil {
		return nil, false
	}
	ev := newEvent("deadline-"+t.ID+"@axis", now)
	ev.Props.SetText(ical.PropSummary, "Due: "+t.Name)
	ev.Props.SetText(ical.PropDescription, string(t.Priority))
	if t.Category != "" {
		ev.Props.SetText(ical.PropCategories, t.Category)
	}

	if t.DeadlineTime == "" {
		ev.Props.SetDate(ical.PropDateTimeStart, day)
		ev.Props.SetDate(ical.PropDateTimeEnd, day.AddDate(0, 0, 1))
		ev.Props.SetText(ical.PropTransparency, "TRANSPARENT")
		return ev, true
	}

	clock, err := time.Parse(validate.TimeLayout, t.DeadlineTime)
	if err != nil {
		return nil, false
	}
	due := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc).UTC()
	ev.Props.SetDateTime(ical.PropDateTimeStart, due.Add(-deadlineLength))
	ev.Props.SetDateTime(ical.PropDateTimeEnd, due)
	return ev, true
}

// startOf returns an event's start for ordering. All-day values and
// missing starts sort by their parsed date, or first.
func startOf(ev *ical.Event) time.Time {
	prop := ev.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return time.Time{}
	}
	v := strings.TrimSuffix(prop.Value, "Z")
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// QRCode renders url as a PNG QR code of the given pixel size.
func QRCode(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

// SubscriptionURL is the public feed address for a calendar token.
func SubscriptionURL(publicURL, token string) string {
	return strings.TrimRight(publicURL, "/") + "/calendar/" + token + ".ics"
}
