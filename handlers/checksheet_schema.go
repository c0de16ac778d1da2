package handlers

import (
	"regexp"
	"strings"

	"p9e.in/mfgops/models"
)

// Logical field types understood by the checksheet engine. Anything not
// listed here is stored as text.
const (
	FieldTypeText        = "text"
	FieldTypeNumber      = "number"
	FieldTypeCalculation = "calculation"
	FieldTypeDate        = "date"
	FieldTypeDatetime    = "datetime"
	FieldTypeTime        = "time"
	FieldTypeBoolean     = "boolean"
	FieldTypeImage       = "image"
	FieldTypeSignature   = "signature"
)

var (
	invalidColumnChars = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRuns     = regexp.MustCompile(`_+`)
)

// SanitizeColumnName derives a safe physical column identifier from a field
// name: lowercase, anything outside [a-z0-9_] becomes an underscore, runs of
// underscores collapse, leading/trailing underscores are trimmed. The result
// may be empty, in which case the field gets no physical column.
// Deterministic and idempotent.
func SanitizeColumnName(name string) string {
	s := strings.ToLower(name)
	s = invalidColumnChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ColumnNameForField returns the physical column name for a field
// definition, falling back to the instance id when the field name
// sanitizes to nothing.
func ColumnNameForField(f models.ChecksheetField) string {
	if name := SanitizeColumnName(f.FieldName); name != "" {
		return name
	}
	return SanitizeColumnName(f.InstanceID)
}

// ColumnTypeForFieldType maps a declared logical type to its physical
// PostgreSQL column type.
func ColumnTypeForFieldType(fieldType string) string {
	switch fieldType {
	case FieldTypeNumber, FieldTypeCalculation:
		return "DECIMAL(18,6)"
	case FieldTypeDate:
		return "DATE"
	case FieldTypeDatetime:
		return "TIMESTAMP"
	case FieldTypeTime:
		return "TIME"
	case FieldTypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// simplifiedType buckets logical field types into the families the migrator
// compares for copy compatibility.
func simplifiedType(fieldType string) string {
	switch fieldType {
	case FieldTypeNumber, FieldTypeCalculation:
		return "numeric"
	case FieldTypeDate:
		return "date"
	case FieldTypeDatetime:
		return "datetime"
	case FieldTypeTime:
		return "time"
	case FieldTypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// metadataColumns are present on every submission table and are never
// derived from field definitions.
var metadataColumns = map[string]bool{
	"id":                     true,
	"user_id":                true,
	"submitted_at":           true,
	"template_version":       true,
	"original_submission_id": true,
}
