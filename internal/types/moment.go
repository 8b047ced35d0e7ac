package types

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
)

const nanosPerSecond = 1_000_000_000

// Moment is a normalised {seconds, nanos} pair shared by durations and
// timestamps. Nanos always carries the sign of Seconds (or is zero) and lies
// in (-1e9, 1e9).
type Moment struct {
	Seconds int64
	Nanos   int32
}

// NewMoment normalises nanosecond overflow into the seconds component.
func NewMoment(seconds int64, nanos int64) Moment {
	seconds = addSaturating(seconds, nanos/nanosPerSecond)
	nanos %= nanosPerSecond
	switch {
	case seconds > 0 && nanos < 0:
		seconds--
		nanos += nanosPerSecond
	case seconds < 0 && nanos > 0:
		seconds++
		nanos -= nanosPerSecond
	}
	return Moment{Seconds: seconds, Nanos: int32(nanos)}
}

// MomentOf reads the seconds (1) and nanos (2) fields of a
// google.protobuf.Timestamp or google.protobuf.Duration message.
func MomentOf(msg protoreflect.Message) Moment {
	fields := msg.Descriptor().Fields()
	var seconds, nanos int64
	if fd := fields.ByNumber(1); fd != nil {
		seconds = msg.Get(fd).Int()
	}
	if fd := fields.ByNumber(2); fd != nil {
		nanos = msg.Get(fd).Int()
	}
	return NewMoment(seconds, nanos)
}

// MomentFromTime converts a wall-clock instant.
func MomentFromTime(t time.Time) Moment {
	return NewMoment(t.Unix(), int64(t.Nanosecond()))
}

// Add returns m+d, clamped at the int64 second bounds.
func (m Moment) Add(d Moment) Moment {
	return NewMoment(addSaturating(m.Seconds, d.Seconds), int64(m.Nanos)+int64(d.Nanos))
}

// Sub returns m-d, clamped at the int64 second bounds.
func (m Moment) Sub(d Moment) Moment {
	return m.Add(d.Neg())
}

// Neg returns -m. The most negative second count saturates.
func (m Moment) Neg() Moment {
	if m.Seconds == math.MinInt64 {
		return Moment{Seconds: math.MaxInt64, Nanos: -m.Nanos}
	}
	return Moment{Seconds: -m.Seconds, Nanos: -m.Nanos}
}

// Less orders moments chronologically.
func (m Moment) Less(o Moment) bool {
	if m.Seconds != o.Seconds {
		return m.Seconds < o.Seconds
	}
	return m.Nanos < o.Nanos
}

// Time converts m, read as a timestamp, into a time.Time.
func (m Moment) Time() time.Time {
	return time.Unix(m.Seconds, int64(m.Nanos)).UTC()
}

// String renders m as a duration in seconds, e.g. "1.5s" or "-10s".
func (m Moment) String() string {
	if m.Nanos == 0 {
		return fmt.Sprintf("%ds", m.Seconds)
	}
	sign := ""
	s, n := m.Seconds, int64(m.Nanos)
	if s < 0 || n < 0 {
		sign = "-"
		if s < 0 {
			s = -s
		}
		if n < 0 {
			n = -n
		}
	}
	frac := fmt.Sprintf("%09d", n)
	for frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	return fmt.Sprintf("%s%d.%ss", sign, s, frac)
}

func addSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	default:
		return a + b
	}
}
