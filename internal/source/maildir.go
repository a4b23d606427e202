package source

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure Maildir implements model.Source.
var _ model.Source = (*Maildir)(nil)

// Maildir reads messages from a local Maildir. Unconsumed means the message
// is in new/, or in cur/ without the S (seen) flag. Consuming moves the file
// to cur/ and adds the S flag, which is how mail clients mark a message read.
type Maildir struct {
	root        string
	maxMessages int
	logger      *slog.Logger
}

// NewMaildir returns a source over the Maildir at root.
func NewMaildir(root string, maxMessages int, logger *slog.Logger) *Maildir {
	return &Maildir{root: root, maxMessages: maxMessages, logger: logger}
}

// Open checks that root looks like a Maildir.
func (s *Maildir) Open(_ context.Context) (model.Mailbox, error) {
	for _, sub := range []string{"new", "cur"} {
		fi, err := os.Stat(filepath.Join(s.root, sub))
		if err != nil {
			return nil, fmt.Errorf("opening maildir %s: %w", s.root, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("opening maildir %s: %s is not a directory", s.root, sub)
		}
	}
	return &maildirMailbox{root: s.root, maxMessages: s.maxMessages, logger: s.logger}, nil
}

type maildirMailbox struct {
	root        string
	maxMessages int
	logger      *slog.Logger
}

func (m *maildirMailbox) ListUnconsumed(ctx context.Context, f model.MessageFilter) ([]model.MessageHandle, error) {
	var ids []string
	for _, sub := range []string{"new", "cur"} {
		entries, err := os.ReadDir(filepath.Join(m.root, sub))
		if err != nil {
			return nil, fmt.Errorf("listing maildir %s: %w", sub, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if sub == "cur" && strings.ContainsRune(maildirFlags(e.Name()), 'S') {
				continue
			}
			ids = append(ids, sub+"/"+e.Name())
		}
	}
	// Maildir names start with the delivery timestamp.
	sort.Slice(ids, func(i, j int) bool { return filepath.Base(ids[i]) < filepath.Base(ids[j]) })

	var handles []model.MessageHandle
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := m.readMeta(id)
		if err != nil {
			m.logger.Warn("skipping unreadable maildir message", "message", id, "error", err)
			continue
		}
		if f != nil && !f.Match(meta) {
			continue
		}
		handles = append(handles, model.MessageHandle{ID: id, Subject: meta.Subject})
		if m.maxMessages > 0 && len(handles) == m.maxMessages {
			break
		}
	}
	return handles, nil
}

// readMeta parses only the header block of a message file.
func (m *maildirMailbox) readMeta(id string) (model.MessageMeta, error) {
	file, err := os.Open(filepath.Join(m.root, id))
	if err != nil {
		return model.MessageMeta{}, err
	}
	defer file.Close()

	th, err := textproto.ReadHeader(bufio.NewReader(file))
	if err != nil {
		return model.MessageMeta{}, fmt.Errorf("reading header: %w", err)
	}
	h := mail.Header{Header: message.Header{Header: th}}

	meta := model.MessageMeta{From: h.Get("From")}
	if subject, err := h.Subject(); err == nil {
		meta.Subject = subject
	} else {
		meta.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil {
		meta.Date = date
	}
	return meta, nil
}

func (m *maildirMailbox) FetchRaw(_ context.Context, h model.MessageHandle) ([]byte, error) {
	path, err := m.resolve(h.ID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading maildir message %s: %w", h.ID, err)
	}
	return b, nil
}

func (m *maildirMailbox) MarkConsumed(_ context.Context, h model.MessageHandle) error {
	path, err := m.resolve(h.ID)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	unique, _, _ := strings.Cut(name, ":")
	flags := maildirFlags(name)
	if !strings.ContainsRune(flags, 'S') {
		flags = sortFlags(flags + "S")
	}
	target := filepath.Join(m.root, "cur", unique+":2,"+flags)
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("marking maildir message %s seen: %w", h.ID, err)
	}
	return nil
}

func (m *maildirMailbox) Close() error { return nil }

// resolve maps a handle id back to a file path, refusing anything outside
// new/ and cur/.
func (m *maildirMailbox) resolve(id string) (string, error) {
	sub, name, ok := strings.Cut(id, "/")
	if !ok || (sub != "new" && sub != "cur") || name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("invalid maildir message id %q", id)
	}
	return filepath.Join(m.root, sub, name), nil
}

// maildirFlags returns the flag letters of an info suffix ("...:2,FS").
func maildirFlags(name string) string {
	_, info, ok := strings.Cut(name, ":2,")
	if !ok {
		return ""
	}
	return info
}

func sortFlags(flags string) string {
	b := []byte(flags)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return string(b)
}
