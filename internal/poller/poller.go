package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/inboxsheet/internal/model"
)

// TextExtractor pulls the plain-text body out of a raw message.
type TextExtractor interface {
	ExtractText(raw []byte) string
}

// RecordExtractor turns message text into job records. An error means the
// call could not be made and the message should be retried later.
type RecordExtractor interface {
	Extract(ctx context.Context, text string) ([]model.JobRecord, error)
}

// Sink is where records end up.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	AppendRecords(ctx context.Context, records []model.JobRecord) (int, error)
}

// Options bounds the calls the poller makes itself. Source and sink calls
// are bounded by their own implementations.
type Options struct {
	ExtractTimeout time.Duration
}

// Poller runs the inbox-to-sheet pipeline:
// ensure header → list unconsumed → per message: fetch → text → records →
// append → consume.
//
// A Poller must not run concurrently with another run against the same
// sink; see package runlock.
type Poller struct {
	source   model.Source
	filter   model.MessageFilter
	text     TextExtractor
	records  RecordExtractor
	sink     Sink
	notifier model.Notifier
	opts     Options
	logger   *slog.Logger
}

// New creates a poller wired with all its dependencies. filter and notifier
// may be nil.
func New(
	source model.Source,
	filter model.MessageFilter,
	text TextExtractor,
	records RecordExtractor,
	sink Sink,
	notifier model.Notifier,
	opts Options,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		source:   source,
		filter:   filter,
		text:     text,
		records:  records,
		sink:     sink,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// RunOnce processes every unconsumed candidate message once, strictly one
// at a time, and reports what happened. It never returns an error: fatal
// conditions are reported with Success false.
func (p *Poller) RunOnce(ctx context.Context) model.RunSummary {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := time.Now()

	summary, outcomes := p.run(ctx, logger)
	summary.RunID = runID
	summary.Describe()

	logger.Info("run finished",
		"success", summary.Success,
		"found", summary.Found,
		"processed", summary.Processed,
		"empty", summary.Empty,
		"failed", summary.Failed,
		"records", summary.RecordsAppended,
		"outcomes", len(outcomes),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return summary
}

func (p *Poller) run(ctx context.Context, logger *slog.Logger) (model.RunSummary, []Outcome) {
	if err := p.sink.EnsureSchema(ctx); err != nil {
		logger.Error("sheet not accessible", "error", err)
		return fatal(0, nil, fmt.Errorf("sheet not accessible: %w", err)), nil
	}

	mb, err := p.source.Open(ctx)
	if err != nil {
		logger.Error("opening mailbox failed", "error", err)
		return fatal(0, nil, fmt.Errorf("opening mailbox: %w", err)), nil
	}
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Warn("closing mailbox", "error", err)
		}
	}()

	handles, err := mb.ListUnconsumed(ctx, p.filter)
	if err != nil {
		logger.Error("listing messages failed", "error", err)
		return fatal(0, nil, fmt.Errorf("listing messages: %w", err)), nil
	}
	if len(handles) == 0 {
		logger.Info("no new messages")
		return Summarize(0, nil), nil
	}
	logger.Info("found candidate messages", "count", len(handles))

	outcomes := make([]Outcome, 0, len(handles))
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted", "remaining", len(handles)-len(outcomes), "error", err)
			return fatal(len(handles), outcomes, fmt.Errorf("run interrupted: %w", err)), outcomes
		}
		o := p.processMessage(ctx, mb, h, logger.With("message", h.ID))
		outcomes = append(outcomes, o)
	}

	return Summarize(len(handles), outcomes), outcomes
}

// processMessage never panics; a panic inside any collaborator becomes a
// FailedRetryable outcome.
func (p *Poller) processMessage(ctx context.Context, mb model.Mailbox, h model.MessageHandle, logger *slog.Logger) (out Outcome) {
	out = Outcome{Handle: h}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing message", "panic", r)
			out.Kind = FailedRetryable
			out.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	raw, err := mb.FetchRaw(ctx, h)
	if err != nil {
		return p.failed(out, logger, "fetch", err)
	}

	text := p.text.ExtractText(raw)
	if text == "" {
		logger.Warn("no text body, consuming", "subject", h.Subject)
		return p.consume(ctx, mb, out, ConsumedEmpty, logger)
	}

	records, err := p.extract(ctx, text)
	if err != nil {
		return p.failed(out, logger, "extract", err)
	}
	if len(records) == 0 {
		logger.Info("no job records found", "subject", h.Subject)
		return p.consume(ctx, mb, out, ConsumedNoRecords, logger)
	}

	n, err := p.sink.AppendRecords(ctx, records)
	if err != nil {
		return p.failed(out, logger, "append", err)
	}
	out.Records = n

	out = p.consume(ctx, mb, out, ConsumedWithRecords, logger)
	if out.Kind == ConsumedWithRecords {
		p.notify(records, logger)
	}
	return out
}

// notify runs after the message is consumed, so a slow or failing notifier
// cannot change its outcome.
func (p *Poller) notify(records []model.JobRecord, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notifier", "panic", r)
		}
	}()
	if err := p.notifier.Notify(records); err != nil {
		logger.Warn("notification failed", "error", err)
	}
}

func (p *Poller) extract(ctx context.Context, text string) ([]model.JobRecord, error) {
	if p.opts.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ExtractTimeout)
		defer cancel()
	}
	return p.records.Extract(ctx, text)
}

func (p *Poller) consume(ctx context.Context, mb model.Mailbox, out Outcome, kind OutcomeKind, logger *slog.Logger) Outcome {
	if err := mb.MarkConsumed(ctx, out.Handle); err != nil {
		return p.failed(out, logger, "mark consumed", err)
	}
	out.Kind = kind
	logger.Info("message processed", "outcome", kind, "records", out.Records)
	return out
}

func (p *Poller) failed(out Outcome, logger *slog.Logger, step string, err error) Outcome {
	logger.Error("message left for retry", "step", step, "error", err)
	out.Kind = FailedRetryable
	out.Reason = fmt.Sprintf("%s: %v", step, err)
	return out
}

func fatal(found int, outcomes []Outcome, err error) model.RunSummary {
	s := Summarize(found, outcomes)
	s.Success = false
	s.Error = err.Error()
	return s
}
