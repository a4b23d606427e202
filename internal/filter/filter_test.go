package filter

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/amishk599/inboxsheet/internal/model"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestFilter(subject, from string, maxAge time.Duration) *HeaderFilter {
	f := NewHeaderFilter(subject, from, maxAge)
	f.now = func() time.Time { return fixedNow }
	return f
}

func TestHeaderFilter_Match(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		from      string
		maxAge    time.Duration
		meta      model.MessageMeta
		wantMatch bool
	}{
		{
			name:      "subject substring",
			subject:   "God bless you",
			meta:      model.MessageMeta{Subject: "Fwd: God bless you - 12 openings"},
			wantMatch: true,
		},
		{
			name:      "case insensitive subject",
			subject:   "GOD BLESS YOU",
			meta:      model.MessageMeta{Subject: "god bless you"},
			wantMatch: true,
		},
		{
			name:      "subject miss",
			subject:   "God bless you",
			meta:      model.MessageMeta{Subject: "Your invoice"},
			wantMatch: false,
		},
		{
			name:      "sender filter",
			from:      "placements@college.edu",
			meta:      model.MessageMeta{Subject: "x", From: "Placement Cell <placements@college.edu>"},
			wantMatch: true,
		},
		{
			name:      "sender miss",
			from:      "placements@college.edu",
			meta:      model.MessageMeta{From: "spam@example.com"},
			wantMatch: false,
		},
		{
			name:      "too old",
			maxAge:    24 * time.Hour,
			meta:      model.MessageMeta{Date: fixedNow.Add(-48 * time.Hour)},
			wantMatch: false,
		},
		{
			name:      "fresh enough",
			maxAge:    24 * time.Hour,
			meta:      model.MessageMeta{Date: fixedNow.Add(-time.Hour)},
			wantMatch: true,
		},
		{
			name:      "missing date is kept",
			maxAge:    24 * time.Hour,
			meta:      model.MessageMeta{},
			wantMatch: true,
		},
		{
			name:      "empty filter matches all",
			meta:      model.MessageMeta{Subject: "anything"},
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter(tt.subject, tt.from, tt.maxAge)
			if got := f.Match(tt.meta); got != tt.wantMatch {
				t.Errorf("Match(%+v) = %v, want %v", tt.meta, got, tt.wantMatch)
			}
		})
	}
}

func TestHeaderFilter_Narrow(t *testing.T) {
	f := newTestFilter("God bless you", "college.edu", 72*time.Hour)
	c := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}

	f.Narrow(c)

	if len(c.Header) != 2 {
		t.Fatalf("Header = %+v, want subject and from", c.Header)
	}
	if c.Header[0].Key != "Subject" || c.Header[0].Value != "God bless you" {
		t.Errorf("Header[0] = %+v", c.Header[0])
	}
	if c.Header[1].Key != "From" || c.Header[1].Value != "college.edu" {
		t.Errorf("Header[1] = %+v", c.Header[1])
	}
	if !c.Since.Equal(fixedNow.Add(-72 * time.Hour)) {
		t.Errorf("Since = %v", c.Since)
	}
	if len(c.NotFlag) != 1 {
		t.Errorf("Narrow must not drop existing criteria, NotFlag = %v", c.NotFlag)
	}
}

func TestHeaderFilter_NarrowEmpty(t *testing.T) {
	f := newTestFilter("", "", 0)
	c := &imap.SearchCriteria{}
	f.Narrow(c)
	if len(c.Header) != 0 || !c.Since.IsZero() {
		t.Errorf("empty filter changed criteria: %+v", c)
	}
}
