package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/retry"
)

// Ensure IMAP implements model.Source.
var _ model.Source = (*IMAP)(nil)

// IMAPOptions describes one mailbox on an IMAP server reachable over TLS.
type IMAPOptions struct {
	Addr        string // host:port
	Username    string
	Password    string
	Mailbox     string
	Timeout     time.Duration // applies to the dial and to every command
	MaxMessages int           // 0 means no cap
	TLSConfig   *tls.Config   // nil uses a TLS 1.2+ config for the host in Addr
}

// IMAP opens sessions against an IMAP mailbox. Unconsumed means the message
// lacks the \Seen flag; bodies are fetched with BODY.PEEK[] so reading never
// consumes.
type IMAP struct {
	opts    IMAPOptions
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewIMAP returns an IMAP source. Connects are retried with retrier; a
// rejected login is not retried.
func NewIMAP(opts IMAPOptions, retrier *retry.Retrier, logger *slog.Logger) *IMAP {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.TLSConfig == nil {
		host, _, _ := net.SplitHostPort(opts.Addr)
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return &IMAP{opts: opts, retrier: retrier, logger: logger}
}

// Open connects, logs in and selects the mailbox.
func (s *IMAP) Open(ctx context.Context) (model.Mailbox, error) {
	if s.opts.Username == "" || s.opts.Password == "" {
		return nil, errors.New("imap username/password is required")
	}

	var mb *imapMailbox
	err := s.retrier.Do(ctx, "imap connect", func(ctx context.Context) error {
		var err error
		mb, err = s.connect(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("imap session opened", "addr", s.opts.Addr, "mailbox", s.opts.Mailbox)
	return mb, nil
}

func (s *IMAP) connect(ctx context.Context) (*imapMailbox, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.opts.Timeout},
		Config:    s.opts.TLSConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", s.opts.Addr, err)
	}

	mb := &imapMailbox{
		client:      imapclient.New(conn, nil),
		conn:        conn,
		timeout:     s.opts.Timeout,
		maxMessages: s.opts.MaxMessages,
		logger:      s.logger,
	}

	done := mb.bound(ctx)
	defer done()

	if err := mb.client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = mb.client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, retry.Permanent(fmt.Errorf("imap login: %w", err))
		}
		return nil, fmt.Errorf("imap login: %w", err)
	}

	if _, err := mb.client.Select(s.opts.Mailbox, nil).Wait(); err != nil {
		_ = mb.client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, retry.Permanent(fmt.Errorf("imap select %s: %w", s.opts.Mailbox, err))
		}
		return nil, fmt.Errorf("imap select %s: %w", s.opts.Mailbox, err)
	}

	return mb, nil
}

// imapMailbox is one logged-in session with the mailbox selected.
type imapMailbox struct {
	client      *imapclient.Client
	conn        net.Conn
	timeout     time.Duration
	maxMessages int
	logger      *slog.Logger
}

// bound applies the per-command timeout and ctx cancellation to the
// connection until the returned func is called.
func (m *imapMailbox) bound(ctx context.Context) func() {
	if m.timeout > 0 {
		deadline := time.Now().Add(m.timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = m.conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = m.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = m.conn.SetDeadline(time.Time{})
	}
}

// searcher is implemented by filters that can push criteria to the server.
type searcher interface {
	Narrow(c *imap.SearchCriteria)
}

func (m *imapMailbox) ListUnconsumed(ctx context.Context, f model.MessageFilter) ([]model.MessageHandle, error) {
	done := m.bound(ctx)
	defer done()

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	if n, ok := f.(searcher); ok {
		n.Narrow(criteria)
	}

	data, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	msgs, err := m.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:      true,
		Envelope: true,
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch envelopes: %w", err)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })

	var handles []model.MessageHandle
	for _, msg := range msgs {
		var meta model.MessageMeta
		if msg.Envelope != nil {
			meta = model.MessageMeta{
				Subject: msg.Envelope.Subject,
				From:    joinAddrs(msg.Envelope.From),
				Date:    msg.Envelope.Date,
			}
		}
		if f != nil && !f.Match(meta) {
			continue
		}
		handles = append(handles, model.MessageHandle{
			ID:      formatUID(msg.UID),
			Subject: meta.Subject,
		})
		if m.maxMessages > 0 && len(handles) == m.maxMessages {
			break
		}
	}
	return handles, nil
}

func (m *imapMailbox) FetchRaw(ctx context.Context, h model.MessageHandle) ([]byte, error) {
	uid, err := parseUID(h.ID)
	if err != nil {
		return nil, err
	}

	done := m.bound(ctx)
	defer done()

	section := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	msgs, err := m.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch uid %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("imap fetch uid %d: message not found", uid)
	}
	body := msgs[0].FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("imap fetch uid %d: empty body section", uid)
	}
	return body, nil
}

func (m *imapMailbox) MarkConsumed(ctx context.Context, h model.MessageHandle) error {
	uid, err := parseUID(h.ID)
	if err != nil {
		return err
	}

	done := m.bound(ctx)
	defer done()

	flags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := m.client.Store(imap.UIDSetNum(uid), flags, nil).Close(); err != nil {
		return fmt.Errorf("imap store seen uid %d: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection. Logout errors are only logged.
func (m *imapMailbox) Close() error {
	_ = m.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := m.client.Logout().Wait(); err != nil {
		m.logger.Debug("imap logout", "error", err)
	}
	return m.client.Close()
}

func formatUID(uid imap.UID) string {
	return strconv.FormatUint(uint64(uid), 10)
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap message id %q", id)
	}
	return imap.UID(n), nil
}

func joinAddrs(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if a.Name != "" && addr != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, addr))
		} else if addr != "" {
			parts = append(parts, addr)
		} else if a.Name != "" {
			parts = append(parts, a.Name)
		}
	}
	return strings.Join(parts, ", ")
}
