package schedule

import (
	"fmt"
	"strings"
)

// TimeLayout is the wall-clock form every scheduled_for field uses. It has
// no zone component; the entry's IANA zone field says how to interpret it.
const TimeLayout = "02-01-2006_-_15-04-05"

const fieldSep = " | "

const (
	RecurOnce   = "once"
	RecurRepeat = "repeat"
)

// Entry is one deferred or recurring send intent, decoded from a single
// `|`-delimited schedule line.
type Entry struct {
	Timezone     string
	ScheduledFor string
	Recipient    string
	Subject      string
	Kind         string
	Template     string
	Repeat       bool
	Offset       Offset
	Attachments  []string
}

// ParseEntry decodes one schedule line. The caller treats any error as a
// parse failure to quarantine, never as a fatal condition.
func ParseEntry(line string) (Entry, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) < 6 {
		return Entry{}, fmt.Errorf("schedule line has %d fields, need at least 6", len(fields))
	}
	e := Entry{
		Timezone:     fields[0],
		ScheduledFor: fields[1],
		Recipient:    fields[2],
		Subject:      fields[3],
	}

	kindTemplate := strings.SplitN(fields[4], "/", 2)
	if len(kindTemplate) != 2 || kindTemplate[0] == "" || kindTemplate[1] == "" {
		return Entry{}, fmt.Errorf("template field %q is not of the form kind/name", fields[4])
	}
	e.Kind = kindTemplate[0]
	e.Template = kindTemplate[1]

	recur := strings.SplitN(fields[5], " ", 2)
	switch recur[0] {
	case RecurOnce:
		if len(recur) > 1 {
			return Entry{}, fmt.Errorf("recurrence %q carries an unexpected offset", fields[5])
		}
	case RecurRepeat:
		if len(recur) != 2 {
			return Entry{}, fmt.Errorf("recurrence %q is missing its offset", fields[5])
		}
		off, err := ParseOffset(recur[1])
		if err != nil {
			return Entry{}, err
		}
		e.Repeat = true
		e.Offset = off
	default:
		return Entry{}, fmt.Errorf("unknown recurrence kind %q", recur[0])
	}

	if len(fields) > 6 {
		e.Attachments = append(e.Attachments, fields[6:]...)
	}
	return e, nil
}

// String re-serializes the entry. For a line that ParseEntry accepted and
// that was not modified, the output is byte-identical to the input.
func (e Entry) String() string {
	recur := RecurOnce
	if e.Repeat {
		recur = RecurRepeat + " " + e.Offset.String()
	}
	fields := []string{
		e.Timezone,
		e.ScheduledFor,
		e.Recipient,
		e.Subject,
		e.Kind + "/" + e.Template,
		recur,
	}
	fields = append(fields, e.Attachments...)
	return strings.Join(fields, fieldSep)
}
