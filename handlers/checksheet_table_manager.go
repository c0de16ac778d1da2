package handlers

import (
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"p9e.in/mfgops/models"
)

// ChecksheetTableManager handles the physical tables backing checksheet
// template versions. All identifiers pass through pq.QuoteIdentifier; the
// schema translator is the only source of column names.
type ChecksheetTableManager struct {
	db *gorm.DB
}

// NewChecksheetTableManager creates a table manager bound to db, which is
// usually the surrounding request transaction.
func NewChecksheetTableManager(db *gorm.DB) *ChecksheetTableManager {
	return &ChecksheetTableManager{db: db}
}

// CreateSubmissionTable builds the submission table for a template version:
// fixed metadata columns plus one column per field definition. Returns the
// instance ids of fields whose sanitized column name came out empty and were
// therefore excluded from the physical schema.
func (m *ChecksheetTableManager) CreateSubmissionTable(tableName string, fields []models.ChecksheetField) ([]string, error) {
	columns := []string{
		"id UUID PRIMARY KEY DEFAULT gen_random_uuid()",
		"user_id UUID",
		"submitted_at TIMESTAMP NOT NULL DEFAULT NOW()",
		"template_version INTEGER NOT NULL DEFAULT 1",
		"original_submission_id UUID",
	}

	var dropped []string
	seen := make(map[string]bool)
	for _, f := range fields {
		col := ColumnNameForField(f)
		if col == "" {
			dropped = append(dropped, f.InstanceID)
			continue
		}
		if metadataColumns[col] || seen[col] {
			dropped = append(dropped, f.InstanceID)
			continue
		}
		seen[col] = true
		columns = append(columns, fmt.Sprintf("%s %s", pq.QuoteIdentifier(col), ColumnTypeForFieldType(f.FieldType)))
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		pq.QuoteIdentifier(tableName), strings.Join(columns, ",\n  "))
	if err := m.db.Exec(sql).Error; err != nil {
		return dropped, fmt.Errorf("failed to create table %s: %v", tableName, err)
	}

	indexes := []struct{ suffix, expr string }{
		{"user_id", "(user_id)"},
		{"submitted_at", "(submitted_at DESC)"},
		{"template_version", "(template_version)"},
	}
	for _, idx := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s %s",
			pq.QuoteIdentifier(fmt.Sprintf("idx_%s_%s", tableName, idx.suffix)),
			pq.QuoteIdentifier(tableName), idx.expr)
		if err := m.db.Exec(stmt).Error; err != nil {
			return dropped, fmt.Errorf("failed to create index on %s: %v", tableName, err)
		}
	}

	log.Printf("Created submission table %s (%d field columns, %d dropped)",
		tableName, len(seen), len(dropped))
	return dropped, nil
}

// AddFieldColumn adds a single field column to an existing submission table.
// Used on in-place (non-breaking) updates; the caller tolerates individual
// failures.
func (m *ChecksheetTableManager) AddFieldColumn(tableName string, f models.ChecksheetField) error {
	col := ColumnNameForField(f)
	if col == "" {
		return fmt.Errorf("field %s sanitizes to an empty column name", f.InstanceID)
	}
	if metadataColumns[col] {
		return fmt.Errorf("field %s collides with metadata column %s", f.InstanceID, col)
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col), ColumnTypeForFieldType(f.FieldType))
	return m.db.Exec(stmt).Error
}

// CreateReportArtifacts builds the legacy companion report table and its
// read-only view projecting columns under their human-readable labels. It is
// guarded by an existence check so it runs exactly once per table, on the
// first submission; later submissions never re-create it.
func (m *ChecksheetTableManager) CreateReportArtifacts(tableName string, template *models.ChecksheetTemplate, fields []models.ChecksheetField) error {
	reportTable := tableName + "_report"
	exists, err := m.TableExists(reportTable)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	columns := []string{
		"id UUID PRIMARY KEY DEFAULT gen_random_uuid()",
		"submission_id UUID",
		"template_id UUID",
		"template_name TEXT",
		"user_id UUID",
		"submitted_at TIMESTAMP NOT NULL DEFAULT NOW()",
	}
	type viewCol struct{ col, label string }
	var viewCols []viewCol
	seen := make(map[string]bool)
	for _, f := range fields {
		col := ColumnNameForField(f)
		if col == "" || metadataColumns[col] || seen[col] {
			continue
		}
		seen[col] = true
		columns = append(columns, fmt.Sprintf("%s %s", pq.QuoteIdentifier(col), ColumnTypeForFieldType(f.FieldType)))
		label := f.Label
		if label == "" {
			label = f.FieldName
		}
		viewCols = append(viewCols, viewCol{col: col, label: label})
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		pq.QuoteIdentifier(reportTable), strings.Join(columns, ",\n  "))
	if err := m.db.Exec(sql).Error; err != nil {
		return fmt.Errorf("failed to create report table %s: %v", reportTable, err)
	}

	selects := []string{"submission_id", "template_name", "user_id", "submitted_at"}
	for _, vc := range viewCols {
		selects = append(selects, fmt.Sprintf("%s AS %s", pq.QuoteIdentifier(vc.col), pq.QuoteIdentifier(vc.label)))
	}
	viewSQL := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s",
		pq.QuoteIdentifier(reportTable+"_view"), strings.Join(selects, ", "), pq.QuoteIdentifier(reportTable))
	if err := m.db.Exec(viewSQL).Error; err != nil {
		return fmt.Errorf("failed to create report view for %s: %v", reportTable, err)
	}

	log.Printf("Created report artifacts for %s", tableName)
	return nil
}

// TableExists checks if a table exists in the public schema.
func (m *ChecksheetTableManager) TableExists(tableName string) (bool, error) {
	var exists bool
	sql := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`
	err := m.db.Raw(sql, tableName).Scan(&exists).Error
	return exists, err
}

// TableColumns returns the actual column names of a table in ordinal order.
func (m *ChecksheetTableManager) TableColumns(tableName string) ([]string, error) {
	var columns []string
	sql := `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := m.db.Raw(sql, tableName).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %v", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			continue
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// ColumnTypes returns a map of column name to simplified data type
// (information_schema data_type lowered) for a table.
func (m *ChecksheetTableManager) ColumnTypes(tableName string) (map[string]string, error) {
	types := make(map[string]string)
	sql := `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = $1
	`
	rows, err := m.db.Raw(sql, tableName).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types of %s: %v", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			continue
		}
		types[col] = strings.ToLower(typ)
	}
	return types, nil
}

// DropTemplateTables removes the submission table and any legacy report
// artifacts for a template version.
func (m *ChecksheetTableManager) DropTemplateTables(tableName string) error {
	if tableName == "" {
		return nil
	}
	stmts := []string{
		fmt.Sprintf("DROP VIEW IF EXISTS %s", pq.QuoteIdentifier(tableName+"_report_view")),
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pq.QuoteIdentifier(tableName+"_report")),
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pq.QuoteIdentifier(tableName)),
	}
	for _, stmt := range stmts {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to drop tables for %s: %v", tableName, err)
		}
	}
	log.Printf("Dropped physical tables for %s", tableName)
	return nil
}
