package source

import (
	"context"
	"log/slog"

	"github.com/amishk599/inboxsheet/internal/model"
)

// ReadOnly wraps a source so that MarkConsumed does nothing. Used by dry
// runs: every candidate is seen again on the next run.
func ReadOnly(inner model.Source, logger *slog.Logger) model.Source {
	return &readOnlySource{inner: inner, logger: logger}
}

type readOnlySource struct {
	inner  model.Source
	logger *slog.Logger
}

func (s *readOnlySource) Open(ctx context.Context) (model.Mailbox, error) {
	mb, err := s.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &readOnlyMailbox{Mailbox: mb, logger: s.logger}, nil
}

type readOnlyMailbox struct {
	model.Mailbox
	logger *slog.Logger
}

func (m *readOnlyMailbox) MarkConsumed(_ context.Context, h model.MessageHandle) error {
	m.logger.Debug("dry run: leaving message unconsumed", "message", h.ID)
	return nil
}
