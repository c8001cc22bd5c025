// Package deadline computes derived time facts for a trip: overdue-ness,
// time remaining, the notification countdown, and the display formatting
// multiple surfaces must agree on. Everything here is a pure function of
// (TripRecord, now), with no state and no I/O, so it is callable from both the
// primary process and the short-lived action context.
//
// Nothing in this package changes a trip's status. Overdue-ness computed
// here is display-only; the authoritative status transition is made by the
// server and adopted locally (see lifecycle.Adopt).
package deadline

import (
	"fmt"
	"time"

	"github.com/waymark-app/waymark/internal/domain"
)

// Deadline is the instant after which safety contacts are notified:
// eta plus the grace period.
func Deadline(t domain.TripRecord) time.Time {
	return t.ETA.Add(time.Duration(t.GraceMinutes) * time.Minute)
}

// IsPastETA reports whether now is strictly past the trip's eta.
func IsPastETA(t domain.TripRecord, now time.Time) bool {
	return now.After(t.ETA)
}

// IsPastDeadline reports whether now is strictly past eta plus grace.
func IsPastDeadline(t domain.TripRecord, now time.Time) bool {
	return now.After(Deadline(t))
}

// TimeRemaining is eta minus now. Negative once the trip is past its eta.
func TimeRemaining(t domain.TripRecord, now time.Time) time.Duration {
	return t.ETA.Sub(now)
}

// TimeUntilNotification is the signed duration until contacts are notified
// (deadline minus now).
func TimeUntilNotification(t domain.TripRecord, now time.Time) time.Duration {
	return Deadline(t).Sub(now)
}

// FormatRemaining renders a signed duration for display. Positive durations
// use FormatSpan granularity; elapsed durations render the same granularity
// with an " overdue" suffix.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return FormatSpan(-d) + " overdue"
	}
	return FormatSpan(d)
}

// FormatSpan renders a non-negative duration as "Xd Yh" when at least 24
// hours, "Xh Ym" when at least one hour, and "Xm" otherwise. Callers across
// surfaces share this so countdown displays are consistent.
func FormatSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d.Minutes())
	switch {
	case mins >= 24*60:
		return fmt.Sprintf("%dd %dh", mins/(24*60), (mins%(24*60))/60)
	case mins >= 60:
		return fmt.Sprintf("%dh %dm", mins/60, mins%60)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

// NotifyAllowed reports whether a notification may be shown at now given the
// trip's optional notification window. An absent window (either bound nil)
// means unrestricted. The window is half-open on local hours [start, end)
// and may wrap midnight (e.g. 22 to 7).
func NotifyAllowed(t domain.TripRecord, now time.Time) bool {
	if t.NotifyStartHour == nil || t.NotifyEndHour == nil {
		return true
	}
	start, end := *t.NotifyStartHour, *t.NotifyEndHour
	if start == end {
		return true
	}
	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window wraps midnight.
	return h >= start || h < end
}
