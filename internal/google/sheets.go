package google

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"bookingsync/internal/models"
	"bookingsync/internal/reconcile"
)

// SheetsClient is the tabular storage backend, persisting booking rows in a
// Google Spreadsheet.
type SheetsClient struct {
	service       *sheets.Service
	logger        *slog.Logger
	spreadsheetID string
}

// NewSheetsClient creates a Sheets client using the same token file as the
// calendar client.
func NewSheetsClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, spreadsheetID string) (*SheetsClient, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is not configured")
	}

	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}
	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsClient{service: service, logger: logger, spreadsheetID: spreadsheetID}, nil
}

// EnsureWorksheet creates the worksheet with the given header row when it
// does not exist yet.
func (c *SheetsClient) EnsureWorksheet(ctx context.Context, title string, headers []string) error {
	exists, err := c.worksheetExists(ctx, title)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create worksheet %s: %w", title, err)
	}
	c.logger.Info("Created worksheet", "title", title)
	return c.writeHeaders(ctx, title, headers)
}

// EnsureReducedWorksheet creates the reduced worksheet, or migrates a legacy
// three-column layout by inserting the identity-key column at A.
func (c *SheetsClient) EnsureReducedWorksheet(ctx context.Context, title string) error {
	exists, err := c.worksheetExists(ctx, title)
	if err != nil {
		return err
	}
	if !exists {
		return c.EnsureWorksheet(ctx, title, models.ReducedHeaders)
	}

	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!1:1", title)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read reduced header: %w", err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return c.writeHeaders(ctx, title, models.ReducedHeaders)
	}
	if fmt.Sprint(resp.Values[0][0]) == "event_id" {
		return nil
	}

	// Legacy layout without the identity-key column: shift everything one
	// column to the right and rewrite the header.
	sheetID, err := c.sheetID(ctx, title)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   1,
				},
				InheritFromBefore: false,
			},
		}},
	}
	if _, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to migrate reduced worksheet: %w", err)
	}
	c.logger.Info("Migrated reduced worksheet to four columns", "title", title)
	return c.writeHeaders(ctx, title, models.ReducedHeaders)
}

// Table returns the worksheet as a reconcile.Table.
func (c *SheetsClient) Table(title string) reconcile.Table {
	return &worksheetTable{client: c, title: title}
}

// RowCount reports the number of rows including the header.
func (c *SheetsClient) RowCount(ctx context.Context, title string) (int, error) {
	rows, err := c.Table(title).ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *SheetsClient) writeHeaders(ctx context.Context, title string, headers []string) error {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := c.service.Spreadsheets.Values.
		Update(c.spreadsheetID, fmt.Sprintf("%s!A1", title), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

func (c *SheetsClient) worksheetExists(ctx context.Context, title string) (bool, error) {
	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (c *SheetsClient) sheetID(ctx context.Context, title string) (int64, error) {
	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("worksheet %s not found", title)
}

// worksheetTable adapts one worksheet to the reconcile.Table interface.
type worksheetTable struct {
	client *SheetsClient
	title  string
}

func (t *worksheetTable) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := t.client.service.Spreadsheets.Values.
		Get(t.client.spreadsheetID, t.title).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %s: %w", t.title, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (t *worksheetTable) AppendRow(ctx context.Context, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaceRow(row)}}
	_, err := t.client.service.Spreadsheets.Values.
		Append(t.client.spreadsheetID, t.title, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row to %s: %w", t.title, err)
	}
	return nil
}

func (t *worksheetTable) UpdateRow(ctx context.Context, rowNum int, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaceRow(row)}}
	_, err := t.client.service.Spreadsheets.Values.
		Update(t.client.spreadsheetID, fmt.Sprintf("%s!A%d", t.title, rowNum), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update row %d of %s: %w", rowNum, t.title, err)
	}
	return nil
}

func (t *worksheetTable) DeleteRows(ctx context.Context, start, end int) error {
	sheetID, err := t.client.sheetID(ctx, t.title)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(start - 1),
					EndIndex:   int64(end),
				},
			},
		}},
	}
	if _, err := t.client.service.Spreadsheets.BatchUpdate(t.client.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete rows %d-%d of %s: %w", start, end, t.title, err)
	}
	return nil
}

func toInterfaceRow(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, cell := range row {
		out[i] = cell
	}
	return out
}
