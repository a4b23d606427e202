package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure GoogleSheet implements model.Sheet.
var _ model.Sheet = (*GoogleSheet)(nil)

// lastColumn is the column letter of the final SheetHeader column.
var lastColumn = string(rune('A' + len(model.SheetHeader) - 1))

// GoogleSheet is one tab of a Google spreadsheet, accessed through the
// Sheets v4 values API with a service account.
type GoogleSheet struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	tab           string
}

// NewGoogleSheet authenticates with the service-account JSON and returns
// the tab of spreadsheetID.
func NewGoogleSheet(ctx context.Context, credentialsJSON []byte, spreadsheetID, tab string) (*GoogleSheet, error) {
	return newGoogleSheet(ctx, spreadsheetID, tab,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func newGoogleSheet(ctx context.Context, spreadsheetID, tab string, opts ...option.ClientOption) (*GoogleSheet, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return &GoogleSheet{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		tab:           tab,
	}, nil
}

func (g *GoogleSheet) Header(ctx context.Context) ([]string, error) {
	resp, err := g.values.Get(g.spreadsheetID, g.a1("1:1")).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("reading header row", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return toStrings(resp.Values[0]), nil
}

// WriteHeader replaces row 1. The row is cleared first so cells past the
// new header do not survive.
func (g *GoogleSheet) WriteHeader(ctx context.Context, header []string) error {
	if _, err := g.values.Clear(g.spreadsheetID, g.a1("1:1"), &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return wrapAPIError("clearing header row", err)
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(header)}}
	_, err := g.values.Update(g.spreadsheetID, g.a1("A1"), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return wrapAPIError("writing header row", err)
	}
	return nil
}

// RowCount returns the number of rows with data. The API trims trailing
// empty rows.
func (g *GoogleSheet) RowCount(ctx context.Context) (int, error) {
	rows, err := g.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (g *GoogleSheet) Rows(ctx context.Context) ([][]string, error) {
	resp, err := g.values.Get(g.spreadsheetID, g.a1("A:"+lastColumn)).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("reading rows", err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		rows = append(rows, toStrings(r))
	}
	return rows, nil
}

// AppendRows sends every row in one values.append request.
func (g *GoogleSheet) AppendRows(ctx context.Context, rows [][]string) error {
	vr := &sheets.ValueRange{Values: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		vr.Values = append(vr.Values, toCells(r))
	}
	_, err := g.values.Append(g.spreadsheetID, g.a1("A:"+lastColumn), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return wrapAPIError("appending rows", err)
	}
	return nil
}

// a1 builds an A1 range on the tab, quoting the tab name.
func (g *GoogleSheet) a1(rng string) string {
	return "'" + strings.ReplaceAll(g.tab, "'", "''") + "'!" + rng
}

// toCells converts a row for the API. The S.No column goes out as a number
// so the sheet stores it as one under RAW input.
func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, c := range row {
		cells[i] = c
	}
	if len(row) > 0 {
		if n, err := strconv.Atoi(row[0]); err == nil {
			cells[0] = n
		}
	}
	return cells
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = model.CellText(c)
	}
	return out
}

// wrapAPIError converts a googleapi.Error into a model.HTTPError so the
// retrier can tell quota and server errors from permission problems.
func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	httpErr := &model.HTTPError{StatusCode: apiErr.Code, Err: err}
	if ra := apiErr.Header.Get("Retry-After"); ra != "" {
		if secs, convErr := strconv.Atoi(ra); convErr == nil {
			httpErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return fmt.Errorf("sheets %s: %w", op, httpErr)
}
