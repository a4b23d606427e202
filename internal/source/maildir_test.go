package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amishk599/inboxsheet/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// subjectFilter accepts messages whose subject contains s.
type subjectFilter string

func (f subjectFilter) Match(m model.MessageMeta) bool {
	return strings.Contains(m.Subject, string(f))
}

func newMaildir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, sub := range []string{"new", "cur", "tmp"} {
		if err := os.Mkdir(filepath.Join(root, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func deliver(t *testing.T, root, sub, name, subject string) {
	t.Helper()
	msg := "From: placements@college.edu\r\nSubject: " + subject + "\r\nDate: Mon, 03 Jun 2024 10:00:00 +0000\r\n\r\nbody of " + name + "\r\n"
	if err := os.WriteFile(filepath.Join(root, sub, name), []byte(msg), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ids(hs []model.MessageHandle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.ID
	}
	return out
}

func TestMaildir_ListUnconsumed(t *testing.T) {
	root := newMaildir(t)
	deliver(t, root, "new", "1700000002.a.host", "God bless you")
	deliver(t, root, "new", "1700000001.b.host", "God bless you - week 2")
	deliver(t, root, "new", "1700000003.c.host", "Newsletter")
	deliver(t, root, "cur", "1700000000.d.host:2,", "God bless you - unread in cur")
	deliver(t, root, "cur", "1699999999.e.host:2,S", "God bless you - already seen")

	mb, err := NewMaildir(root, 0, discardLogger()).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mb.Close()

	got, err := mb.ListUnconsumed(context.Background(), subjectFilter("God bless you"))
	if err != nil {
		t.Fatalf("ListUnconsumed: %v", err)
	}
	want := []string{"cur/1700000000.d.host:2,", "new/1700000001.b.host", "new/1700000002.a.host"}
	if strings.Join(ids(got), " ") != strings.Join(want, " ") {
		t.Errorf("ListUnconsumed = %v, want %v", ids(got), want)
	}
	if got[1].Subject != "God bless you - week 2" {
		t.Errorf("Subject = %q", got[1].Subject)
	}
}

func TestMaildir_NilFilterAndCap(t *testing.T) {
	root := newMaildir(t)
	deliver(t, root, "new", "1.a", "one")
	deliver(t, root, "new", "2.b", "two")
	deliver(t, root, "new", "3.c", "three")

	mb, err := NewMaildir(root, 2, discardLogger()).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := mb.ListUnconsumed(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListUnconsumed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new/1.a" {
		t.Errorf("ListUnconsumed = %v, want first two messages", ids(got))
	}
}

func TestMaildir_FetchAndMarkConsumed(t *testing.T) {
	root := newMaildir(t)
	deliver(t, root, "new", "1700000001.a.host", "God bless you")
	deliver(t, root, "cur", "1700000002.b.host:2,F", "God bless you")

	ctx := context.Background()
	mb, err := NewMaildir(root, 0, discardLogger()).Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	handles, err := mb.ListUnconsumed(ctx, nil)
	if err != nil || len(handles) != 2 {
		t.Fatalf("ListUnconsumed = %v, %v", handles, err)
	}

	raw, err := mb.FetchRaw(ctx, handles[0])
	if err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	if !strings.Contains(string(raw), "body of 1700000001.a.host") {
		t.Errorf("FetchRaw returned %q", raw)
	}

	for _, h := range handles {
		if err := mb.MarkConsumed(ctx, h); err != nil {
			t.Fatalf("MarkConsumed(%s): %v", h.ID, err)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "cur", "1700000001.a.host:2,S")); err != nil {
		t.Errorf("new message not moved to cur with S flag: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cur", "1700000002.b.host:2,FS")); err != nil {
		t.Errorf("cur message did not gain S flag: %v", err)
	}

	again, err := mb.ListUnconsumed(ctx, nil)
	if err != nil {
		t.Fatalf("ListUnconsumed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("consumed messages listed again: %v", ids(again))
	}
}

func TestMaildir_RejectsEscapingIDs(t *testing.T) {
	root := newMaildir(t)
	mb, err := NewMaildir(root, 0, discardLogger()).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, id := range []string{"../secret", "tmp/x", "new/../../etc/passwd", "new/"} {
		if _, err := mb.FetchRaw(context.Background(), model.MessageHandle{ID: id}); err == nil {
			t.Errorf("FetchRaw(%q): expected error", id)
		}
	}
}

func TestMaildir_OpenMissing(t *testing.T) {
	_, err := NewMaildir(filepath.Join(t.TempDir(), "nope"), 0, discardLogger()).Open(context.Background())
	if err == nil {
		t.Fatal("Open: expected error for missing maildir")
	}
}

func TestReadOnly_SkipsMarkConsumed(t *testing.T) {
	root := newMaildir(t)
	deliver(t, root, "new", "1.a", "God bless you")

	ctx := context.Background()
	mb, err := ReadOnly(NewMaildir(root, 0, discardLogger()), discardLogger()).Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	handles, _ := mb.ListUnconsumed(ctx, nil)
	if len(handles) != 1 {
		t.Fatalf("ListUnconsumed = %v", ids(handles))
	}
	if err := mb.MarkConsumed(ctx, handles[0]); err != nil {
		t.Fatalf("MarkConsumed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "new", "1.a")); err != nil {
		t.Errorf("read-only source moved the message: %v", err)
	}
}
