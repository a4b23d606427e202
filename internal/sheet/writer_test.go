package sheet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/retry"
	"github.com/amishk599/inboxsheet/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSheet is an in-memory model.Sheet that counts calls.
type memSheet struct {
	rows         [][]string
	headerWrites int
	appendCalls  int
	appendErr    error
	countErrs    []error // returned by successive RowCount calls before succeeding
}

func (m *memSheet) Header(context.Context) ([]string, error) {
	if len(m.rows) == 0 {
		return nil, nil
	}
	return m.rows[0], nil
}

func (m *memSheet) WriteHeader(_ context.Context, header []string) error {
	m.headerWrites++
	h := append([]string(nil), header...)
	if len(m.rows) == 0 {
		m.rows = [][]string{h}
		return nil
	}
	m.rows[0] = h
	return nil
}

func (m *memSheet) RowCount(context.Context) (int, error) {
	if len(m.countErrs) > 0 {
		err := m.countErrs[0]
		m.countErrs = m.countErrs[1:]
		return 0, err
	}
	return len(m.rows), nil
}

func (m *memSheet) Rows(context.Context) ([][]string, error) { return m.rows, nil }

func (m *memSheet) AppendRows(_ context.Context, rows [][]string) error {
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func newTestWriter(s model.Sheet) *Writer {
	return NewWriter(s, retry.New(2, time.Millisecond, discardLogger()), time.Second, discardLogger())
}

func records(names ...string) []model.JobRecord {
	out := make([]model.JobRecord, 0, len(names))
	for _, n := range names {
		out = append(out, model.JobRecord{CompanyName: n, JobPosition: "Engineer"})
	}
	return out
}

func TestEnsureSchema_WritesMissingHeaderOnce(t *testing.T) {
	s := &memSheet{}
	w := newTestWriter(s)
	ctx := context.Background()

	if err := w.EnsureSchema(ctx); err != nil {
		t.Fatalf("first EnsureSchema: %v", err)
	}
	if err := w.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	if s.headerWrites != 1 {
		t.Errorf("header writes = %d, want 1", s.headerWrites)
	}
	if len(s.rows) != 1 || !reflect.DeepEqual(s.rows[0], model.SheetHeader) {
		t.Errorf("rows = %v, want exactly one header row", s.rows)
	}
}

func TestEnsureSchema_OverwritesMismatchedHeader(t *testing.T) {
	s := &memSheet{rows: [][]string{{"S.No", "Company"}, {"2", "Acme"}}}
	w := newTestWriter(s)

	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if !reflect.DeepEqual(s.rows[0], model.SheetHeader) {
		t.Errorf("header = %v, want SheetHeader", s.rows[0])
	}
	if len(s.rows) != 2 {
		t.Errorf("data rows were touched: %v", s.rows)
	}
}

func TestEnsureSchema_ToleratesPaddedCells(t *testing.T) {
	padded := append([]string(nil), model.SheetHeader...)
	padded[1] = " Date "
	s := &memSheet{rows: [][]string{padded}}

	if err := newTestWriter(s).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if s.headerWrites != 0 {
		t.Errorf("header writes = %d, want 0", s.headerWrites)
	}
}

func TestEnsureSchema_TrimsWideHeader(t *testing.T) {
	x := store.NewXLSXSheet(filepath.Join(t.TempDir(), "jobs.xlsx"), "Jobs")
	ctx := context.Background()
	wide := append(append([]string(nil), model.SheetHeader...), "Notes")
	if err := x.WriteHeader(ctx, wide); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	w := newTestWriter(x)
	for i := 0; i < 2; i++ {
		if err := w.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i+1, err)
		}
		header, err := x.Header(ctx)
		if err != nil {
			t.Fatalf("Header: %v", err)
		}
		if !reflect.DeepEqual(header, model.SheetHeader) {
			t.Errorf("after EnsureSchema #%d header = %v, want the 11 schema columns", i+1, header)
		}
	}
}

func TestEnsureSchema_IgnoresTrailingBlankCells(t *testing.T) {
	padded := append(append([]string(nil), model.SheetHeader...), "", " ")
	s := &memSheet{rows: [][]string{padded}}

	if err := newTestWriter(s).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if s.headerWrites != 0 {
		t.Errorf("header writes = %d, want 0", s.headerWrites)
	}
}

func TestAppendRecords_ConsecutiveSequenceNumbers(t *testing.T) {
	s := &memSheet{}
	w := newTestWriter(s)
	ctx := context.Background()
	if err := w.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	n, err := w.AppendRecords(ctx, records("Acme", "Globex"))
	if err != nil || n != 2 {
		t.Fatalf("first AppendRecords = %d, %v", n, err)
	}
	n, err = w.AppendRecords(ctx, records("Initech"))
	if err != nil || n != 1 {
		t.Fatalf("second AppendRecords = %d, %v", n, err)
	}

	var seqs []string
	for _, row := range s.rows[1:] {
		seqs = append(seqs, row[0])
	}
	if want := []string{"2", "3", "4"}; !reflect.DeepEqual(seqs, want) {
		t.Errorf("sequence numbers = %v, want %v", seqs, want)
	}
	if s.appendCalls != 2 {
		t.Errorf("append calls = %d, want one per batch", s.appendCalls)
	}
	if s.rows[3][2] != "Initech" {
		t.Errorf("row 4 = %v", s.rows[3])
	}
}

func TestAppendRecords_EmptyBatchDoesNothing(t *testing.T) {
	s := &memSheet{}
	n, err := newTestWriter(s).AppendRecords(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("AppendRecords = %d, %v; want 0, nil", n, err)
	}
	if s.appendCalls != 0 {
		t.Errorf("append calls = %d, want 0", s.appendCalls)
	}
}

func TestAppendRecords_FailureIsNotRetried(t *testing.T) {
	s := &memSheet{
		rows:      [][]string{model.SheetHeader},
		appendErr: &model.HTTPError{StatusCode: 503, Err: errors.New("unavailable")},
	}

	n, err := newTestWriter(s).AppendRecords(context.Background(), records("Acme"))
	if err == nil {
		t.Fatal("expected error from failing append")
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 on failure", n)
	}
	if s.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", s.appendCalls)
	}
}

func TestNextSequenceBase_RetriesTransientErrors(t *testing.T) {
	s := &memSheet{
		rows:      [][]string{model.SheetHeader, {"2"}},
		countErrs: []error{&model.HTTPError{StatusCode: 500, Err: errors.New("backend")}},
	}

	base, err := newTestWriter(s).NextSequenceBase(context.Background())
	if err != nil {
		t.Fatalf("NextSequenceBase: %v", err)
	}
	if base != 2 {
		t.Errorf("base = %d, want 2", base)
	}
}
