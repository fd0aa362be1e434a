// Package tradingwindow answers session-clock questions shared by
// SignalEvaluator's time score and ExitManager's time-based exit rules:
// is the market open right now, how close is the close, and how many
// business hours has a position been held.
package tradingwindow

import (
	"fmt"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// closingHourWindow is how long before session end the "closing-hour
// caution" time score applies.
const closingHourWindow = 30 * time.Minute

// Window is a trading session's daily open/close, e.g. 09:00-15:20 KST.
type Window struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
}

// Parse builds a Window from "HH:MM" start/end strings.
func Parse(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("tradingwindow: start %q: %w", start, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("tradingwindow: end %q: %w", end, err)
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func todayOffset(now time.Time) time.Duration {
	k := now.In(kst)
	midnight := time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, kst)
	return k.Sub(midnight)
}

// IsWeekday reports whether now (read in KST) falls Mon-Fri.
func IsWeekday(now time.Time) bool {
	d := now.In(kst).Weekday()
	return d != time.Saturday && d != time.Sunday
}

// IsOpen reports whether now falls within the session window on a weekday.
func (w Window) IsOpen(now time.Time) bool {
	if !IsWeekday(now) {
		return false
	}
	offset := todayOffset(now)
	return offset >= w.Start && offset <= w.End
}

// IsClosingHour reports whether now is open and within closingHourWindow
// of session end — SignalEvaluator's "closing-hour caution" time score.
func (w Window) IsClosingHour(now time.Time) bool {
	if !w.IsOpen(now) {
		return false
	}
	return w.End-todayOffset(now) <= closingHourWindow
}

// TimeScore implements the time-score rule directly: 50 in-session, 60
// closing-hour caution, 30 outside-session.
func (w Window) TimeScore(now time.Time) float64 {
	if !w.IsOpen(now) {
		return 30
	}
	if w.IsClosingHour(now) {
		return 60
	}
	return 50
}

// BusinessHoursElapsed returns the trading-session time elapsed between
// since and now, excluding weekends and hours outside the session window
// — the hard time-exit clock. Walks day by day rather than
// assuming a fixed session length, so a hold spanning a weekend isn't
// overcounted.
func (w Window) BusinessHoursElapsed(since, now time.Time) time.Duration {
	if !now.After(since) {
		return 0
	}
	since = since.In(kst)
	now = now.In(kst)

	var elapsed time.Duration
	cursor := since

	for cursor.Before(now) {
		dayEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 23, 59, 59, 0, kst)
		segmentEnd := dayEnd
		if now.Before(segmentEnd) {
			segmentEnd = now
		}

		if IsWeekday(cursor) {
			elapsed += w.sessionOverlap(cursor, segmentEnd)
		}

		cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day()+1, 0, 0, 0, 0, kst)
	}
	return elapsed
}

// sessionOverlap returns how much of [from,to) (same calendar day) falls
// inside the session window.
func (w Window) sessionOverlap(from, to time.Time) time.Duration {
	dayStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, kst)
	winStart := dayStart.Add(w.Start)
	winEnd := dayStart.Add(w.End)

	start := from
	if winStart.After(start) {
		start = winStart
	}
	end := to
	if winEnd.Before(end) {
		end = winEnd
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}
