package lockedfunds

import "time"

// DefaultDayLength is the bucket width used when none is configured.
const DefaultDayLength = 24 * time.Hour

// Calendar maps instants onto day ids.
type Calendar struct {
	Epoch     time.Time
	DayLength time.Duration
}

// DefaultCalendar counts 24-hour days from the Unix epoch.
func DefaultCalendar() Calendar {
	return Calendar{Epoch: time.Unix(0, 0).UTC(), DayLength: DefaultDayLength}
}

// MaturityDay returns the bucket for funds maturing at t. It rounds up, so
// every amount in bucket d has matured by the end of day d.
func (c Calendar) MaturityDay(t time.Time) DayID {
	since := c.since(t)
	if since == 0 {
		return 0
	}
	days := (since - 1) / c.length()
	return DayID(days + 1)
}

// Today returns the day index at now. Every bucket up to and including it
// has fully matured, so drains cut off here.
func (c Calendar) Today(now time.Time) DayID {
	return DayID(c.since(now) / c.length())
}

// Start returns the first instant of day d.
func (c Calendar) Start(d DayID) time.Time {
	return c.Epoch.Add(time.Duration(d) * c.length())
}

func (c Calendar) since(t time.Time) time.Duration {
	d := t.Sub(c.Epoch)
	if d < 0 {
		return 0
	}
	return d
}

func (c Calendar) length() time.Duration {
	if c.DayLength <= 0 {
		return DefaultDayLength
	}
	return c.DayLength
}
