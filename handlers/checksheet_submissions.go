package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

// buildColumnLookup maps lowercase column names to the actual physical
// column names.
func buildColumnLookup(columns []string) map[string]string {
	lookup := make(map[string]string, len(columns))
	for _, c := range columns {
		lookup[strings.ToLower(c)] = c
	}
	return lookup
}

// buildFieldLookup maps every identifier a client might submit a field
// under (field name and instance id, original and lowercased) to the
// sanitized column form derived by the schema translator.
func buildFieldLookup(fields []models.ChecksheetField) map[string]string {
	lookup := make(map[string]string, len(fields)*4)
	for _, f := range fields {
		col := ColumnNameForField(f)
		if col == "" {
			continue
		}
		for _, key := range []string{f.FieldName, strings.ToLower(f.FieldName), f.InstanceID, strings.ToLower(f.InstanceID)} {
			if key != "" {
				lookup[key] = col
			}
		}
	}
	return lookup
}

// resolveSubmissionColumns reconciles client-submitted keys against the
// table's actual columns: direct case-insensitive column match first, then
// indirection through field names and instance ids. Unmatched keys are
// dropped, not an error, but returned for diagnostics. Submitted keys may
// be arbitrary client-side identifiers while physical columns are sanitized
// snake_case; this reconciliation is mandatory, not optional.
func resolveSubmissionColumns(data map[string]interface{}, columns []string, fields []models.ChecksheetField) (map[string]interface{}, []string) {
	colLookup := buildColumnLookup(columns)
	fieldLookup := buildFieldLookup(fields)

	matched := make(map[string]interface{})
	var ignored []string
	for key, val := range data {
		lower := strings.ToLower(key)
		if metadataColumns[lower] {
			ignored = append(ignored, key)
			continue
		}
		if actual, ok := colLookup[lower]; ok {
			matched[actual] = val
			continue
		}
		colForm, ok := fieldLookup[key]
		if !ok {
			colForm, ok = fieldLookup[lower]
		}
		if ok {
			if actual, found := colLookup[colForm]; found {
				matched[actual] = val
				continue
			}
		}
		ignored = append(ignored, key)
	}
	return matched, ignored
}

// coerceValue converts a submitted value per the field's declared type.
// Numeric kinds turn empty or non-numeric input into NULL; date/time kinds
// turn blank input into NULL; everything else passes through.
func coerceValue(fieldType string, val interface{}) interface{} {
	switch fieldType {
	case FieldTypeNumber, FieldTypeCalculation:
		switch v := val.(type) {
		case nil:
			return nil
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				return nil
			}
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			return n
		default:
			return nil
		}
	case FieldTypeDate, FieldTypeDatetime, FieldTypeTime:
		if val == nil {
			return nil
		}
		if s, ok := val.(string); ok && strings.TrimSpace(s) == "" {
			return nil
		}
		return val
	default:
		return val
	}
}

// fieldTypeByColumn maps each physical column to its declared field type.
func fieldTypeByColumn(fields []models.ChecksheetField) map[string]string {
	types := make(map[string]string, len(fields))
	for _, f := range fields {
		if col := ColumnNameForField(f); col != "" {
			types[col] = f.FieldType
		}
	}
	return types
}

type submitRequest struct {
	TemplateID uuid.UUID              `json:"template_id"`
	UserID     string                 `json:"user_id"`
	Data       map[string]interface{} `json:"data"`
}

// SubmitChecksheet accepts a structured submission against a template's
// physical table.
// POST /api/v1/checksheet/templates/{id}/submissions
func SubmitChecksheet(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if pathID, err := uuid.Parse(mux.Vars(r)["id"]); err == nil {
		req.TemplateID = pathID
	}
	if req.TemplateID == uuid.Nil {
		http.Error(w, "template_id is required", http.StatusBadRequest)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = middleware.GetUserID(r)
	}

	var template models.ChecksheetTemplate
	if err := config.DB.First(&template, "id = ?", req.TemplateID).Error; err != nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	if !template.IsActive {
		http.Error(w, "template version is archived and no longer accepts submissions", http.StatusBadRequest)
		return
	}

	var fields []models.ChecksheetField
	if err := config.DB.Where("template_id = ?", template.ID).Find(&fields).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var submissionID uuid.UUID
	var submittedAt time.Time
	var ignored []string

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		tm := NewChecksheetTableManager(tx)
		columns, err := tm.TableColumns(template.DBTableName)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return fmt.Errorf("submission table %s does not exist", template.DBTableName)
		}

		matched, dropped := resolveSubmissionColumns(req.Data, columns, fields)
		ignored = dropped
		if len(matched) == 0 {
			return errZeroMatch{
				submitted: keysOf(req.Data),
				columns:   columns,
				fields:    fields,
			}
		}

		types := fieldTypeByColumn(fields)
		cols := []string{"user_id", "template_version"}
		placeholders := []string{"$1", "$2"}
		values := []interface{}{nullableUUID(userID), template.Version}
		i := 3
		for col, val := range matched {
			cols = append(cols, pq.QuoteIdentifier(col))
			placeholders = append(placeholders, fmt.Sprintf("$%d", i))
			values = append(values, coerceValue(types[strings.ToLower(col)], val))
			i++
		}

		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id, submitted_at",
			pq.QuoteIdentifier(template.DBTableName),
			strings.Join(cols, ", "), strings.Join(placeholders, ", "))

		row := tx.Raw(sql, values...).Row()
		if err := row.Scan(&submissionID, &submittedAt); err != nil {
			return fmt.Errorf("failed to insert submission: %v", err)
		}

		// Legacy-named templates keep their companion report artifacts,
		// built exactly once on first submission.
		if isLegacyTableName(template.DBTableName) {
			if err := tm.CreateReportArtifacts(template.DBTableName, &template, fields); err != nil {
				log.Printf("Report artifact creation for %s failed, continuing: %v", template.DBTableName, err)
			}
		}
		return nil
	})

	if err != nil {
		if zm, ok := err.(errZeroMatch); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":             "no submitted fields could be mapped to the template's columns",
				"submitted_keys":    zm.submitted,
				"available_columns": zm.columns,
				"known_field_names": fieldNames(zm.fields),
			})
			return
		}
		http.Error(w, "submission failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"submission_id":    submissionID,
		"submitted_at":     submittedAt,
		"template_version": template.Version,
		"ignored_keys":     ignored,
	})
}

type errZeroMatch struct {
	submitted []string
	columns   []string
	fields    []models.ChecksheetField
}

func (e errZeroMatch) Error() string { return "no submission fields matched" }

func keysOf(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func fieldNames(fields []models.ChecksheetField) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}
	return names
}

func nullableUUID(s string) interface{} {
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	return nil
}

// isLegacyTableName detects the epoch-millisecond naming of the
// pre-versioning publish path.
func isLegacyTableName(name string) bool {
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return false
	}
	return len(name)-i-1 >= 13
}

// GetAllTemplateSubmissions lists submissions across the whole version
// lineage, newest first, paginated.
// GET /api/v1/checksheet/templates/{id}/submissions?limit&offset
func GetAllTemplateSubmissions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	limit := 50
	offset := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	lineage, err := lineageTemplates(config.DB, templateID)
	if err != nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}

	tm := NewChecksheetTableManager(config.DB)
	var selects []string
	for _, t := range lineage {
		exists, err := tm.TableExists(t.DBTableName)
		if err != nil || !exists {
			continue
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT id, user_id, submitted_at, template_version, to_jsonb(t.*) AS data FROM %s t",
			pq.QuoteIdentifier(t.DBTableName)))
	}
	if len(selects) == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"total": 0, "submissions": []interface{}{}})
		return
	}

	union := strings.Join(selects, " UNION ALL ")

	var total int64
	if err := config.DB.Raw(fmt.Sprintf("SELECT COUNT(*) FROM (%s) all_rows", union)).Scan(&total).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	sql := fmt.Sprintf("%s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", union, limit, offset)
	rows, err := config.DB.Raw(sql).Rows()
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type submissionRow struct {
		ID              uuid.UUID       `json:"id"`
		UserID          *uuid.UUID      `json:"user_id,omitempty"`
		SubmittedAt     time.Time       `json:"submitted_at"`
		TemplateVersion int             `json:"template_version"`
		Data            json.RawMessage `json:"data"`
	}

	submissions := []submissionRow{}
	for rows.Next() {
		var sr submissionRow
		var data []byte
		if err := rows.Scan(&sr.ID, &sr.UserID, &sr.SubmittedAt, &sr.TemplateVersion, &data); err != nil {
			continue
		}
		sr.Data = json.RawMessage(data)
		submissions = append(submissions, sr)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":       total,
		"limit":       limit,
		"offset":      offset,
		"submissions": submissions,
	})
}

// lineageTemplates returns every version of the lineage containing id,
// newest version first.
func lineageTemplates(db *gorm.DB, id uuid.UUID) ([]models.ChecksheetTemplate, error) {
	var t models.ChecksheetTemplate
	if err := db.First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	rootID := t.LineageRootID()

	var lineage []models.ChecksheetTemplate
	if err := db.Where("id = ? OR parent_template_id = ?", rootID, rootID).
		Order("version DESC").Find(&lineage).Error; err != nil {
		return nil, err
	}
	return lineage, nil
}
