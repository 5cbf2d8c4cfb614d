package schedule

import "testing"

func TestParseEntryOnce(t *testing.T) {
	line := "Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | once"
	e, err := ParseEntry(line)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if e.Timezone != "Europe/Berlin" || e.ScheduledFor != "01-01-2024_-_10-00-00" {
		t.Fatalf("unexpected schedule fields: %+v", e)
	}
	if e.Recipient != "john.doe" || e.Subject != "Hello" {
		t.Fatalf("unexpected recipient fields: %+v", e)
	}
	if e.Kind != "plaintext" || e.Template != "greeting.txt" {
		t.Fatalf("unexpected template fields: %+v", e)
	}
	if e.Repeat || len(e.Attachments) != 0 {
		t.Fatalf("once entry misparsed: %+v", e)
	}
}

func TestParseEntryRepeatWithAttachments(t *testing.T) {
	line := "Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | html/news.html | repeat 0-7-0-0-0 | ./a.pdf | /tmp/b.png"
	e, err := ParseEntry(line)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !e.Repeat {
		t.Fatalf("expected repeat entry")
	}
	if e.Offset != (Offset{Days: 7}) {
		t.Fatalf("unexpected offset: %+v", e.Offset)
	}
	if len(e.Attachments) != 2 || e.Attachments[0] != "./a.pdf" || e.Attachments[1] != "/tmp/b.png" {
		t.Fatalf("unexpected attachments: %v", e.Attachments)
	}
}

func TestParseEntryErrors(t *testing.T) {
	cases := []string{
		"",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | greeting.txt | once",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | repeat",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | repeat 1-2-3",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | repeat 1-2-x-4-5",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | repeat 1-2--3-4-5",
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | sometimes",
	}
	for _, line := range cases {
		if _, err := ParseEntry(line); err == nil {
			t.Fatalf("expected parse error for %q", line)
		}
	}
}

func TestEntryRoundTrip(t *testing.T) {
	lines := []string{
		"Europe/Berlin | 01-01-2024_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | once",
		"America/New_York | 24-12-2025_-_23-59-59 | jane.doe | Frohes Fest | html/card.html | repeat 52-0-0-0-0 | ./card.png",
		"UTC | 15-06-2024_-_08-30-00 | a.b | Subject with spaces | plaintext/t.txt | repeat 0-0-0-90-0 | x.pdf | y.pdf",
	}
	for _, line := range lines {
		e, err := ParseEntry(line)
		if err != nil {
			t.Fatalf("parse failed for %q: %v", line, err)
		}
		if got := e.String(); got != line {
			t.Fatalf("round trip mismatch:\n in: %q\nout: %q", line, got)
		}
	}
}
