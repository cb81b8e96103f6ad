package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	common_models "go-approval/internal/common/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Audit"

var exportColumns = []string{"Timestamp", "Action", "Module", "Record", "Actor", "Changes"}

func exportToExcel(logs []common_models.AuditLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, col)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for rowIdx, log := range logs {
		row := []any{
			log.Timestamp.Format("2006-01-02 15:04:05"),
			string(log.Action),
			log.Module,
			log.RecordID,
			log.ActorID,
			formatChanges(log.Changes),
		}
		for colIdx, val := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(exportSheet, cell, val)
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(exportSheet, col, col, 20)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func formatChanges(changes map[string]common_models.Change) string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		c := changes[k]
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", k, formatValue(c.Old), formatValue(c.New)))
	}
	return strings.Join(parts, "; ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
