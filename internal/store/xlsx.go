package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure XLSXSheet implements model.Sheet.
var _ model.Sheet = (*XLSXSheet)(nil)

// XLSXSheet is one tab of a local .xlsx workbook. The workbook is opened
// for every call and rewritten atomically on every write, so it can be
// opened in a spreadsheet application between runs.
type XLSXSheet struct {
	mu   sync.Mutex
	path string
	tab  string
}

func NewXLSXSheet(path, tab string) *XLSXSheet {
	return &XLSXSheet{path: path, tab: tab}
}

func (x *XLSXSheet) Header(ctx context.Context) ([]string, error) {
	rows, err := x.Rows(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// WriteHeader replaces row 1, blanking any cells past the new header.
func (x *XLSXSheet) WriteHeader(ctx context.Context, header []string) error {
	return x.update(ctx, func(f *excelize.File) error {
		rows, err := f.GetRows(x.tab)
		if err != nil {
			return fmt.Errorf("xlsx read %s: %w", x.tab, err)
		}
		if len(rows) > 0 {
			for col := len(header) + 1; col <= len(rows[0]); col++ {
				cell, err := excelize.CoordinatesToCellName(col, 1)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(x.tab, cell, nil); err != nil {
					return fmt.Errorf("xlsx clear %s: %w", cell, err)
				}
			}
		}
		return x.writeRow(f, 1, header)
	})
}

func (x *XLSXSheet) RowCount(ctx context.Context) (int, error) {
	rows, err := x.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Rows returns the rows of the tab, or nil when the workbook does not exist
// yet.
func (x *XLSXSheet) Rows(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := x.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(x.tab); idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(x.tab)
	if err != nil {
		return nil, fmt.Errorf("xlsx read %s: %w", x.tab, err)
	}
	return rows, nil
}

// AppendRows writes rows after the last occupied row and saves once.
func (x *XLSXSheet) AppendRows(ctx context.Context, rows [][]string) error {
	return x.update(ctx, func(f *excelize.File) error {
		existing, err := f.GetRows(x.tab)
		if err != nil {
			return fmt.Errorf("xlsx read %s: %w", x.tab, err)
		}
		next := len(existing) + 1
		for i, row := range rows {
			if err := x.writeRow(f, next+i, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeRow writes row at rowNum. A numeric S.No is stored as a number.
func (x *XLSXSheet) writeRow(f *excelize.File, rowNum int, row []string) error {
	for i, v := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		var value interface{} = v
		if i == 0 {
			if n, err := strconv.Atoi(v); err == nil {
				value = n
			}
		}
		if err := f.SetCellValue(x.tab, cell, value); err != nil {
			return fmt.Errorf("xlsx set %s: %w", cell, err)
		}
	}
	return nil
}

// update opens (or creates) the workbook, makes sure the tab exists, applies
// fn and replaces the file. Nothing is written when fn fails.
func (x *XLSXSheet) update(ctx context.Context, fn func(f *excelize.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := x.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(x.tab); idx == -1 {
		idx, err := f.NewSheet(x.tab)
		if err != nil {
			return fmt.Errorf("xlsx new sheet %s: %w", x.tab, err)
		}
		f.SetActiveSheet(idx)
	}

	if err := fn(f); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(x.path), ".inboxsheet-*.xlsx")
	if err != nil {
		return fmt.Errorf("xlsx temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("xlsx write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("xlsx close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), x.path); err != nil {
		return fmt.Errorf("xlsx replace %s: %w", x.path, err)
	}
	return nil
}

func (x *XLSXSheet) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		f = excelize.NewFile()
		if err := f.SetSheetName("Sheet1", x.tab); err != nil {
			return nil, fmt.Errorf("xlsx name sheet %s: %w", x.tab, err)
		}
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xlsx open %s: %w", x.path, err)
	}
	return f, nil
}
