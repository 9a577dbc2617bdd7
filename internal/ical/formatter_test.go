package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

func ptr(t time.Time) *time.Time { return &t }

func TestFormat(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	start := time.Date(2025, 2, 27, 11, 10, 0, 0, pacific)
	mod := models.Presenter{ID: 9, Name: "Grace Hopper"}

	cal := &models.Calendar{
		Name:      "WIGC 2025",
		Generated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Events: []models.Event{
			{
				ID:          101,
				Title:       "Keynote; Compliance, Policy",
				Start:       ptr(start),
				End:         ptr(start.Add(time.Hour)),
				StartTime:   "11:10 am",
				Room:        "Ballroom A",
				Track:       "Compliance",
				Kinds:       []string{"session"},
				Speakers:    []models.Presenter{{ID: 7, Name: "Ada Lovelace"}},
				Moderator:   &mod,
				ContentHTML: "<p>Opening remarks</p>",
			},
			{
				ID:        102,
				Title:     "Registration",
				Start:     ptr(time.Date(2025, 2, 26, 0, 0, 0, 0, pacific)),
				DateLabel: "February 26, 2025",
				Kinds:     []string{"social"},
			},
			{ID: 103, Title: "Time TBD"},
		},
	}

	out := Format(cal)
	unfolded := strings.ReplaceAll(out, "\r\n ", "")

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.NotContains(t, out, "wigc-event-103")

	assert.Contains(t, unfolded, "UID:wigc-event-101\r\n")
	assert.Contains(t, unfolded, "DTSTAMP:20250101T000000Z\r\n")
	assert.Contains(t, unfolded, "DTSTART:20250227T191000Z\r\n")
	assert.Contains(t, unfolded, "DTEND:20250227T201000Z\r\n")
	assert.Contains(t, unfolded, "SUMMARY:Keynote\\; Compliance\\, Policy\r\n")
	assert.Contains(t, unfolded, "LOCATION:Ballroom A\r\n")
	assert.Contains(t, unfolded, "CATEGORIES:session,Compliance\r\n")
	assert.Contains(t, unfolded, "DESCRIPTION:Opening remarks\\n\\nSpeakers: Ada Lovelace\\n\\nModerator: Grace Hopper\r\n")

	assert.Contains(t, unfolded, "DTSTART;VALUE=DATE:20250226\r\n")
	assert.Contains(t, unfolded, "DTEND;VALUE=DATE:20250227\r\n")
}

func TestWriteLineFolds(t *testing.T) {
	var b strings.Builder
	line := "DESCRIPTION:" + strings.Repeat("é", 60)
	writeLine(&b, line)

	out := b.String()
	for _, l := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(l), maxLineOctets)
	}
	assert.Equal(t, line+"\r\n", strings.ReplaceAll(out, "\r\n ", ""))
}

func TestFromGroups(t *testing.T) {
	groups := []models.DayGroup{
		{Key: "2025-02-26", Events: []models.Event{{ID: 1}}},
		{Key: "2025-02-27", Events: []models.Event{{ID: 2}, {ID: 3}}},
	}
	cal := FromGroups("Mine", "Starred", groups, time.Time{})
	assert.Equal(t, "Mine", cal.Name)
	assert.Len(t, cal.Events, 3)
	assert.Equal(t, 3, cal.Events[2].ID)
}
