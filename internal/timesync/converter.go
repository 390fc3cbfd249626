package timesync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidClock is returned for timestamps that are not HH:MM:SS[.frac].
var ErrInvalidClock = errors.New("invalid clock timestamp")

// rolloverThreshold is how far a reading may go back before it is treated as
// the next day.
const rolloverThreshold = 12 * time.Hour

// Converter handles conversion from time-of-day stamps to wall-clock time.
type Converter struct {
	mu   sync.Mutex
	day  time.Time // midnight of the current day
	last time.Time
}

// NewConverter creates a converter anchored to the day of start.
func NewConverter(start time.Time) *Converter {
	y, m, d := start.Date()
	return &Converter{
		day:  time.Date(y, m, d, 0, 0, 0, 0, start.Location()),
		last: start,
	}
}

// ClockToWallClock converts a time-of-day stamp such as "14:32:10.123456".
// Readings more than twelve hours behind the previous one advance the day.
func (c *Converter) ClockToWallClock(stamp string) (time.Time, error) {
	offset, err := ParseClock(stamp)
	if err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.day.Add(offset)
	if c.last.Sub(t) > rolloverThreshold {
		c.day = c.day.AddDate(0, 0, 1)
		t = c.day.Add(offset)
	}
	c.last = t

	return t, nil
}

// Day returns midnight of the day currently used for conversions.
func (c *Converter) Day() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}

// ParseClock parses "HH:MM:SS[.frac]" into an offset from midnight.
func ParseClock(stamp string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(stamp), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, stamp)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, stamp)
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, stamp)
	}

	secs, frac, _ := strings.Cut(parts[2], ".")
	seconds, err := strconv.Atoi(secs)
	if err != nil || seconds < 0 || seconds > 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, stamp)
	}

	var nanos int
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, stamp)
		}
		nanos = n
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(nanos), nil
}
