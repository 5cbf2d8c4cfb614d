package schedule

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"portalmail/internal/mail"
)

// MessageBuilder assembles an outbound message from a stored template.
type MessageBuilder interface {
	BuildFromTemplate(kind, toUser, subject, template string, subs map[string]string, attachments []string) (*mail.OutboundMessage, error)
}

// MessageSender transmits an assembled message.
type MessageSender interface {
	Send(*mail.OutboundMessage) error
}

// Notifier emits a fire-and-forget user notification.
type Notifier interface {
	Notify(title, message, icon string)
}

// Recorder persists one dispatch outcome. Implementations must tolerate
// being called best-effort; errors are logged, never propagated.
type Recorder interface {
	RecordDispatch(recipient, subject, template, recurrence, outcome string) error
}

// Report summarizes one dispatch pass for the caller's one-line output.
type Report struct {
	Retained    int `json:"retained"`
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Retired     int `json:"retired"`
	Quarantined int `json:"quarantined"`
}

func (r Report) String() string {
	return fmt.Sprintf("sent %d (rescheduled %d, retired %d), retained %d, quarantined %d",
		r.Sent, r.Rescheduled, r.Retired, r.Retained, r.Quarantined)
}

// Dispatcher runs the per-pass state machine over the schedule. Entries are
// processed strictly one at a time in file order; the schedule rewrite and
// the outbound session are single stateful resources.
type Dispatcher struct {
	store    *Store
	builder  MessageBuilder
	sender   MessageSender
	notifier Notifier
	recorder Recorder
	iconDir  string

	// now is swappable for tests.
	now func() time.Time
}

func NewDispatcher(store *Store, builder MessageBuilder, sender MessageSender, notifier Notifier, recorder Recorder, iconDir string) *Dispatcher {
	return &Dispatcher{
		store:    store,
		builder:  builder,
		sender:   sender,
		notifier: notifier,
		recorder: recorder,
		iconDir:  iconDir,
		now:      time.Now,
	}
}

// Run performs one pass: due-check, validate, build, send, then reschedule
// or retire each entry. Failures of a single entry quarantine that entry and
// the pass continues; only a broken rewrite target aborts the whole pass,
// leaving the original schedule in place.
//
// A transport failure during the send step follows the same
// quarantine-and-continue policy as a validation failure, so one unreachable
// recipient never blocks the remaining due entries.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	var report Report

	lines, err := d.store.Load()
	if err != nil {
		return report, err
	}
	rw, err := d.store.BeginRewrite()
	if err != nil {
		return report, err
	}
	defer rw.Discard()

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry, err := ParseEntry(line)
		if err != nil {
			d.quarantineRaw(rw, line, &report, fmt.Errorf("parse: %w", err))
			continue
		}
		loc, err := time.LoadLocation(entry.Timezone)
		if err != nil {
			d.quarantine(rw, line, entry, &report, fmt.Errorf("timezone: %w", err))
			continue
		}
		scheduledAt, err := time.ParseInLocation(TimeLayout, entry.ScheduledFor, loc)
		if err != nil {
			d.quarantine(rw, line, entry, &report, fmt.Errorf("scheduled time: %w", err))
			continue
		}

		// "now" is taken fresh per entry, in the entry's own zone.
		if scheduledAt.After(d.now().In(loc)) {
			if err := rw.WriteLine(line); err != nil {
				return report, err
			}
			report.Retained++
			continue
		}

		if !mail.ValidKind(entry.Kind) {
			d.quarantine(rw, line, entry, &report,
				fmt.Errorf("invalid content kind %q, must be %q or %q", entry.Kind, mail.KindPlaintext, mail.KindHTML))
			continue
		}

		msg, err := d.builder.BuildFromTemplate(entry.Kind, entry.Recipient, entry.Subject, entry.Template, nil, entry.Attachments)
		if err != nil {
			d.quarantine(rw, line, entry, &report, fmt.Errorf("build: %w", err))
			continue
		}
		if err := d.sender.Send(msg); err != nil {
			d.quarantine(rw, line, entry, &report, fmt.Errorf("send: %w", err))
			continue
		}
		report.Sent++
		log.Printf("schedule: mail sent to %q, subject %q", entry.Recipient, entry.Subject)
		d.notify("Scheduled mail sent",
			fmt.Sprintf("A mail has been sent to %q.\nSubject of the mail: %q", entry.Recipient, entry.Subject),
			"send.ico")
		d.record(entry, "sent")

		if !entry.Repeat {
			report.Retired++
			continue
		}
		next, err := Next(entry.ScheduledFor, entry.Offset)
		if err != nil {
			d.quarantine(rw, line, entry, &report, fmt.Errorf("reschedule: %w", err))
			continue
		}
		entry.ScheduledFor = next
		if err := rw.WriteLine(entry.String()); err != nil {
			return report, err
		}
		report.Rescheduled++
	}

	if err := rw.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

// quarantine routes a failed entry to the side file and records the outcome.
func (d *Dispatcher) quarantine(rw *Rewrite, line string, entry Entry, report *Report, cause error) {
	if d.quarantineRaw(rw, line, report, cause) {
		d.record(entry, "quarantined")
	}
}

// quarantineRaw routes a failed line to the side file without a history
// record; lines that never parsed have no entry fields worth recording. If
// even the append fails, the line is kept in the rewritten schedule so it is
// not silently lost.
func (d *Dispatcher) quarantineRaw(rw *Rewrite, line string, report *Report, cause error) bool {
	log.Printf("schedule: quarantining entry (%v): %s", cause, line)
	if err := d.store.Quarantine(line); err != nil {
		log.Printf("schedule: quarantine append failed, retaining entry: %v", err)
		if werr := rw.WriteLine(line); werr != nil {
			log.Printf("schedule: could not retain entry either: %v", werr)
		}
		report.Retained++
		return false
	}
	report.Quarantined++
	return true
}

func (d *Dispatcher) notify(title, message, icon string) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(title, message, filepath.Join(d.iconDir, icon))
}

func (d *Dispatcher) record(entry Entry, outcome string) {
	if d.recorder == nil {
		return
	}
	recurrence := RecurOnce
	if entry.Repeat {
		recurrence = RecurRepeat + " " + entry.Offset.String()
	}
	if err := d.recorder.RecordDispatch(entry.Recipient, entry.Subject, entry.Kind+"/"+entry.Template, recurrence, outcome); err != nil {
		log.Printf("schedule: record dispatch: %v", err)
	}
}
