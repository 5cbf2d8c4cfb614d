package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Offset is a repeat rule's calendar duration. Fields larger than their
// natural range (minutes of 90, say) are added as-is, not normalized.
type Offset struct {
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// ParseOffset decodes the `weeks-days-hours-minutes-seconds` tuple.
func ParseOffset(s string) (Offset, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return Offset{}, fmt.Errorf("offset %q has %d fields, need 5", s, len(parts))
	}
	vals := make([]int, 5)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Offset{}, fmt.Errorf("offset field %q is not an integer", p)
		}
		if n < 0 {
			return Offset{}, fmt.Errorf("offset field %q is negative", p)
		}
		vals[i] = n
	}
	return Offset{Weeks: vals[0], Days: vals[1], Hours: vals[2], Minutes: vals[3], Seconds: vals[4]}, nil
}

func (o Offset) String() string {
	return fmt.Sprintf("%d-%d-%d-%d-%d", o.Weeks, o.Days, o.Hours, o.Minutes, o.Seconds)
}

// Duration flattens the offset into an absolute duration. A week is seven
// days and a day twenty-four hours; the addition happens on the naive
// wall-clock timestamp, so zone transitions never skew it.
func (o Offset) Duration() time.Duration {
	return time.Duration(o.Weeks*7*24)*time.Hour +
		time.Duration(o.Days*24)*time.Hour +
		time.Duration(o.Hours)*time.Hour +
		time.Duration(o.Minutes)*time.Minute +
		time.Duration(o.Seconds)*time.Second
}

// Next computes the follow-up occurrence of a fired repeat entry in the same
// textual form as the input.
func Next(scheduledFor string, off Offset) (string, error) {
	t, err := time.Parse(TimeLayout, scheduledFor)
	if err != nil {
		return "", fmt.Errorf("parse scheduled time %q: %w", scheduledFor, err)
	}
	return t.Add(off.Duration()).Format(TimeLayout), nil
}
