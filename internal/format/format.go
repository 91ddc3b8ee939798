// Package format holds the pure display helpers for the conversation list
// and message history: recency-bucketed timestamps and preview truncation.
// No state, no side effects.
package format

import (
	"fmt"
	"time"
)

// PreviewLength is how many runes of a message the list preview shows.
const PreviewLength = 30

// Ellipsis marks a truncated preview.
const Ellipsis = "…"

var weekdayAbbrev = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// BucketTime renders ts relative to now, the way the conversation list
// shows it: time of day for today, weekday abbreviation within the last
// seven days, day/month within the current year, day/month/year otherwise.
// A zero ts renders as the empty string.
func BucketTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	ts = ts.In(now.Location())

	if sameDay(ts, now) {
		return ts.Format("15:04")
	}
	if days := daysBetween(ts, now); days >= 0 && days < 7 {
		return weekdayAbbrev[ts.Weekday()]
	}
	if ts.Year() == now.Year() {
		return ts.Format("02/01")
	}
	return ts.Format("02/01/06")
}

// MessageTime renders a history-view timestamp: HH:MM for today, prefixed
// with the date for anything older. Zero ts renders as the empty string.
func MessageTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	ts = ts.In(now.Location())
	if sameDay(ts, now) {
		return ts.Format("15:04")
	}
	return fmt.Sprintf("%s %s", ts.Format("02/01/06"), ts.Format("15:04"))
}

// Truncate returns text unchanged when it fits in max runes, otherwise the
// first max runes followed by the ellipsis marker.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + Ellipsis
}

// Preview truncates message text to the standard list preview length.
func Preview(text string) string {
	return Truncate(text, PreviewLength)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts calendar-day boundaries from ts up to now.
func daysBetween(ts, now time.Time) int {
	tsDay := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(nowDay.Sub(tsDay) / (24 * time.Hour))
}
