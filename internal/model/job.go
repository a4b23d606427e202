package model

import (
	"context"
	"fmt"
	"time"
)

// SheetHeader is the fixed column layout of the sink. The first column holds
// the sequence number, the rest mirror the JobRecord fields in order.
var SheetHeader = []string{
	"S.No",
	"Date",
	"Company Name",
	"Job Position",
	"Location",
	"Job Description",
	"Details",
	"Role Type",
	"Link/Email",
	"CTC",
	"Deadline",
}

// RecordFields are the JobRecord keys the extraction oracle is asked to emit.
var RecordFields = SheetHeader[1:]

// JobRecord is one job posting extracted from a message. Every field is
// nullable and may hold whatever JSON value the oracle produced (string,
// number, list, object); it is only turned into text when written to a sheet.
type JobRecord struct {
	Date           any `json:"Date"`
	CompanyName    any `json:"Company Name"`
	JobPosition    any `json:"Job Position"`
	Location       any `json:"Location"`
	JobDescription any `json:"Job Description"`
	Details        any `json:"Details"`
	RoleType       any `json:"Role Type"`
	LinkOrEmail    any `json:"Link/Email"`
	CTC            any `json:"CTC"`
	Deadline       any `json:"Deadline"`
}

// Values returns the record fields in RecordFields order.
func (r JobRecord) Values() []any {
	return []any{
		r.Date,
		r.CompanyName,
		r.JobPosition,
		r.Location,
		r.JobDescription,
		r.Details,
		r.RoleType,
		r.LinkOrEmail,
		r.CTC,
		r.Deadline,
	}
}

// Row renders the record as a sheet row prefixed with its sequence number.
func (r JobRecord) Row(seq int) []string {
	row := make([]string, 0, len(SheetHeader))
	row = append(row, fmt.Sprintf("%d", seq))
	for _, v := range r.Values() {
		row = append(row, CellText(v))
	}
	return row
}

// Company and Position are shortcuts used by notifiers and log lines.
func (r JobRecord) Company() string  { return CellText(r.CompanyName) }
func (r JobRecord) Position() string { return CellText(r.JobPosition) }

// RecordFromRow rebuilds a JobRecord from a stored sheet row (S.No first).
// Missing trailing cells are treated as empty.
func RecordFromRow(row []string) JobRecord {
	cell := func(i int) any {
		if i < len(row) && row[i] != "" {
			return row[i]
		}
		return nil
	}
	return JobRecord{
		Date:           cell(1),
		CompanyName:    cell(2),
		JobPosition:    cell(3),
		Location:       cell(4),
		JobDescription: cell(5),
		Details:        cell(6),
		RoleType:       cell(7),
		LinkOrEmail:    cell(8),
		CTC:            cell(9),
		Deadline:       cell(10),
	}
}

// MessageHandle identifies a message in its source store. ID is opaque to
// everything except the source that issued it.
type MessageHandle struct {
	ID      string
	Subject string
}

func (h MessageHandle) String() string { return h.ID }

// MessageMeta is the header subset a MessageFilter can look at.
type MessageMeta struct {
	Subject string
	From    string
	Date    time.Time
}

// MessageFilter decides whether an unconsumed message is a candidate.
// A nil MessageFilter accepts everything.
type MessageFilter interface {
	Match(m MessageMeta) bool
}

// Mailbox is an open session against a message store. It is not safe for
// concurrent use; the orchestrator drives it one handle at a time.
type Mailbox interface {
	ListUnconsumed(ctx context.Context, f MessageFilter) ([]MessageHandle, error)
	FetchRaw(ctx context.Context, h MessageHandle) ([]byte, error)
	MarkConsumed(ctx context.Context, h MessageHandle) error
	Close() error
}

// Source opens mailbox sessions. Open failing is fatal for a run.
type Source interface {
	Open(ctx context.Context) (Mailbox, error)
}

// Sheet is the raw tabular storage behind the sink. Row 1 is the header.
type Sheet interface {
	// Header returns row 1, or nil when the sheet is empty.
	Header(ctx context.Context) ([]string, error)
	// WriteHeader writes row 1, replacing whatever is there.
	WriteHeader(ctx context.Context, header []string) error
	// RowCount returns the number of rows including the header.
	RowCount(ctx context.Context) (int, error)
	// Rows returns every row including the header.
	Rows(ctx context.Context) ([][]string, error)
	// AppendRows appends rows after the last one in a single call.
	AppendRows(ctx context.Context, rows [][]string) error
}

// Notifier announces records that were appended to the sink.
type Notifier interface {
	Notify(records []JobRecord) error
}
