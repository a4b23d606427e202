package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/retry"
)

// Writer appends job records to a model.Sheet under the fixed SheetHeader
// layout and numbers them.
//
// Writer is not safe for concurrent runs against the same sheet: both
// EnsureSchema and the numbering in AppendRecords read before they write.
// Callers serialize runs (see package runlock).
type Writer struct {
	sheet   model.Sheet
	retrier *retry.Retrier
	timeout time.Duration
	logger  *slog.Logger
}

// NewWriter returns a Writer. Reads and header writes are retried with
// retrier; appends are not, since a retried append can duplicate rows.
// timeout bounds each individual sheet call; 0 means no bound.
func NewWriter(sheet model.Sheet, retrier *retry.Retrier, timeout time.Duration, logger *slog.Logger) *Writer {
	return &Writer{
		sheet:   sheet,
		retrier: retrier,
		timeout: timeout,
		logger:  logger,
	}
}

// EnsureSchema makes row 1 equal to SheetHeader. A missing header is
// written; a different one is overwritten with a warning. Calling it again
// without intervening writes does nothing.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	header, err := retry.Value(ctx, w.retrier, "sheet read header", func(ctx context.Context) ([]string, error) {
		ctx, cancel := w.bound(ctx)
		defer cancel()
		return w.sheet.Header(ctx)
	})
	if err != nil {
		return fmt.Errorf("reading sheet header: %w", err)
	}

	if headerMatches(header) {
		return nil
	}
	if len(header) == 0 {
		w.logger.Info("writing header to empty sheet")
	} else {
		w.logger.Warn("sheet header does not match, overwriting row 1", "found", header)
	}

	err = w.retrier.Do(ctx, "sheet write header", func(ctx context.Context) error {
		ctx, cancel := w.bound(ctx)
		defer cancel()
		return w.sheet.WriteHeader(ctx, model.SheetHeader)
	})
	if err != nil {
		return fmt.Errorf("writing sheet header: %w", err)
	}
	return nil
}

// NextSequenceBase returns the current row count, header included. The next
// batch is numbered from base+1, which is also the sheet row it lands on.
func (w *Writer) NextSequenceBase(ctx context.Context) (int, error) {
	n, err := retry.Value(ctx, w.retrier, "sheet row count", func(ctx context.Context) (int, error) {
		ctx, cancel := w.bound(ctx)
		defer cancel()
		return w.sheet.RowCount(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("counting sheet rows: %w", err)
	}
	return n, nil
}

// AppendRecords numbers records base+1..base+N and writes them in one
// append. On error nothing is considered appended.
func (w *Writer) AppendRecords(ctx context.Context, records []model.JobRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	base, err := w.NextSequenceBase(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		rows = append(rows, rec.Row(base+1+i))
	}

	appendCtx, cancel := w.bound(ctx)
	defer cancel()
	if err := w.sheet.AppendRows(appendCtx, rows); err != nil {
		return 0, fmt.Errorf("appending %d rows: %w", len(rows), err)
	}

	w.logger.Info("appended records", "count", len(rows), "first_seq", base+1, "last_seq", base+len(rows))
	return len(rows), nil
}

func (w *Writer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.timeout)
}

// headerMatches ignores surrounding whitespace and trailing blank cells.
func headerMatches(header []string) bool {
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	if len(header) != len(model.SheetHeader) {
		return false
	}
	for i, h := range header {
		if strings.TrimSpace(h) != model.SheetHeader[i] {
			return false
		}
	}
	return true
}
