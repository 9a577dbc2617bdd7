package ical

import (
	"fmt"
	"strings"
	"time"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

const (
	dateTimeFormat = "20060102T150405Z"
	dateFormat     = "20060102"
	maxLineOctets  = 75
)

// Format renders a calendar as iCal. Events without a start time cannot be
// placed on a calendar and are left out.
func Format(cal *models.Calendar) string {
	stamp := cal.Generated
	if stamp.IsZero() {
		stamp = time.Now()
	}

	var builder strings.Builder

	builder.WriteString("BEGIN:VCALENDAR\r\n")
	builder.WriteString("VERSION:2.0\r\n")
	builder.WriteString("PRODID:-//cniga//wigc//EN\r\n")
	builder.WriteString("CALSCALE:GREGORIAN\r\n")
	writeLine(&builder, "X-WR-CALNAME:"+escapeText(cal.Name))
	if cal.Description != "" {
		writeLine(&builder, "X-WR-CALDESC:"+escapeText(cal.Description))
	}

	for i := range cal.Events {
		if cal.Events[i].Start == nil {
			continue
		}
		builder.WriteString(formatEvent(&cal.Events[i], stamp))
	}

	builder.WriteString("END:VCALENDAR\r\n")

	return builder.String()
}

// FromGroups flattens a day-grouped view into a calendar.
func FromGroups(name, description string, groups []models.DayGroup, generated time.Time) *models.Calendar {
	cal := &models.Calendar{Name: name, Description: description, Generated: generated}
	for _, g := range groups {
		cal.Events = append(cal.Events, g.Events...)
	}
	return cal
}

func formatEvent(event *models.Event, stamp time.Time) string {
	var builder strings.Builder

	builder.WriteString("BEGIN:VEVENT\r\n")
	writeLine(&builder, fmt.Sprintf("UID:wigc-event-%d", event.ID))
	builder.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatDateTime(stamp)))

	// A date with no start time is an all-day entry.
	if event.StartTime == "" {
		builder.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", formatDate(*event.Start)))
		builder.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", formatDate(event.Start.AddDate(0, 0, 1))))
	} else {
		builder.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatDateTime(*event.Start)))
		if event.End != nil {
			builder.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatDateTime(*event.End)))
		}
	}

	if event.Title != "" {
		writeLine(&builder, "SUMMARY:"+escapeText(event.Title))
	}

	if desc := description(event); desc != "" {
		writeLine(&builder, "DESCRIPTION:"+escapeText(desc))
	}

	if event.Room != "" {
		writeLine(&builder, "LOCATION:"+escapeText(event.Room))
	}

	if cats := categories(event); len(cats) > 0 {
		escaped := make([]string, len(cats))
		for i, c := range cats {
			escaped[i] = escapeText(c)
		}
		writeLine(&builder, "CATEGORIES:"+strings.Join(escaped, ","))
	}

	builder.WriteString("END:VEVENT\r\n")

	return builder.String()
}

// description is the plain-text body followed by the people on stage.
func description(event *models.Event) string {
	var parts []string
	if body := textutil.PlainText(event.ContentHTML); body != "" {
		parts = append(parts, body)
	}
	if len(event.Speakers) > 0 {
		names := make([]string, 0, len(event.Speakers))
		for _, p := range event.Speakers {
			names = append(names, p.Name)
		}
		parts = append(parts, "Speakers: "+textutil.JoinNonEmpty(names, ", "))
	}
	if event.Moderator != nil && event.Moderator.Name != "" {
		parts = append(parts, "Moderator: "+event.Moderator.Name)
	}
	return strings.Join(parts, "\n\n")
}

func categories(event *models.Event) []string {
	cats := make([]string, 0, len(event.Kinds)+1)
	cats = append(cats, event.Kinds...)
	if event.Track != "" && event.Track != "-" {
		cats = append(cats, event.Track)
	}
	return cats
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}

func escapeText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ";", "\\;")
	text = strings.ReplaceAll(text, ",", "\\,")
	text = strings.ReplaceAll(text, "\r\n", "\\n")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return text
}

// writeLine folds content lines longer than 75 octets, never splitting a
// UTF-8 sequence.
func writeLine(b *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// continuation lines carry the leading space
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}
