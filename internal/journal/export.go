package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX dumps a slice of audit events into a spreadsheet for offline
// reconciliation. One row per event, payload serialized as JSON.
func WriteXLSX(events []Event, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Audit"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	headers := []string{"Time", "Event ID", "Type", "Intent ID", "Position ID", "Description", "Data"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, ev := range events {
		payload := ""
		if ev.Data != nil {
			if b, err := json.Marshal(ev.Data); err == nil {
				payload = string(b)
			}
		}
		values := []any{
			ev.Time.UTC().Format("2006-01-02 15:04:05.000"),
			ev.ID,
			ev.Type,
			ev.IntentID,
			ev.PositionID,
			ev.Description,
			payload,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return fx.SaveAs(path)
}
