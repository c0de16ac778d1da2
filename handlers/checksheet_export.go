package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/xuri/excelize/v2"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/models"
)

// exportColumn pairs a physical column with its display label.
type exportColumn struct {
	Column string
	Label  string
}

// exportColumns builds the export layout from the active version's fields:
// metadata first, then field columns in position order.
func exportColumns(fields []models.ChecksheetField) []exportColumn {
	cols := []exportColumn{
		{Column: "id", Label: "Submission ID"},
		{Column: "template_version", Label: "Version"},
		{Column: "user_id", Label: "Submitted By"},
		{Column: "submitted_at", Label: "Submitted At"},
	}
	seen := make(map[string]bool)
	for _, f := range fields {
		col := ColumnNameForField(f)
		if col == "" || metadataColumns[col] || seen[col] {
			continue
		}
		seen[col] = true
		label := f.Label
		if label == "" {
			label = f.FieldName
		}
		cols = append(cols, exportColumn{Column: col, Label: label})
	}
	return cols
}

// ExportTemplateSubmissions streams every lineage submission as a download.
// GET /api/v1/checksheet/templates/{id}/export?format=xlsx|csv
func ExportTemplateSubmissions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	lineage, err := lineageTemplates(config.DB, templateID)
	if err != nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	current := activeOf(lineage)
	if current == nil {
		http.Error(w, "lineage has no active version", http.StatusBadRequest)
		return
	}

	var fields []models.ChecksheetField
	if err := config.DB.Where("template_id = ?", current.ID).
		Order("position ASC").Find(&fields).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	columns := exportColumns(fields)

	rows, err := collectLineageRows(lineage)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		writeCSVExport(w, current.Name, columns, rows)
	default:
		writeExcelExport(w, current.Name, columns, rows)
	}
}

// collectLineageRows unions every lineage table into a flat row set,
// newest submissions first.
func collectLineageRows(lineage []models.ChecksheetTemplate) ([]map[string]interface{}, error) {
	tm := NewChecksheetTableManager(config.DB)
	var selects []string
	for _, t := range lineage {
		exists, err := tm.TableExists(t.DBTableName)
		if err != nil || !exists {
			continue
		}
		selects = append(selects, fmt.Sprintf("SELECT to_jsonb(t.*) AS data FROM %s t", pq.QuoteIdentifier(t.DBTableName)))
	}
	if len(selects) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf("SELECT data FROM (%s) all_rows ORDER BY data->>'submitted_at' DESC",
		strings.Join(selects, " UNION ALL "))
	dbRows, err := config.DB.Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var out []map[string]interface{}
	for dbRows.Next() {
		var data []byte
		if err := dbRows.Scan(&data); err != nil {
			continue
		}
		row := make(map[string]interface{})
		if err := json.Unmarshal(data, &row); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func writeExcelExport(w http.ResponseWriter, name string, columns []exportColumn, rows []map[string]interface{}) {
	f := excelize.NewFile()
	sheetName := "Submissions"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	for colIdx, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, 1)
		f.SetCellValue(sheetName, cell, col.Label)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range rows {
		for colIdx, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, exportCellValue(row[col.Column]))
		}
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		http.Error(w, "Failed to write Excel file", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_%s.xlsx", sanitizeFilename(name), time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buffer.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buffer.Bytes())
}

func writeCSVExport(w http.ResponseWriter, name string, columns []exportColumn, rows []map[string]interface{}) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Label
	}
	writer.Write(header)

	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = exportCellValue(row[col.Column])
		}
		writer.Write(record)
	}
	writer.Flush()

	filename := fmt.Sprintf("%s_%s.csv", sanitizeFilename(name), time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func exportCellValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", val), "0"), ".")
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	if s == "" {
		return "export"
	}
	return s
}
