package handlers

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"p9e.in/mfgops/models"
)

func TestSubmissionTableName(t *testing.T) {
	rootID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	got := SubmissionTableName(rootID, 1)
	expected := "checksheet_6ba7b8109dad11d180b400c04fd430c8_1"
	if got != expected {
		t.Errorf("SubmissionTableName = %q, expected %q", got, expected)
	}

	if v2 := SubmissionTableName(rootID, 2); v2 == got {
		t.Error("different versions must yield different table names")
	}
	if strings.Contains(got, "-") {
		t.Error("table name must not contain dashes")
	}
}

func TestLegacySubmissionTableName(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.UnixMilli(1700000000000)
	got := LegacySubmissionTableName(id, at)
	expected := "checksheet_6ba7b8109dad11d180b400c04fd430c8_1700000000000"
	if got != expected {
		t.Errorf("LegacySubmissionTableName = %q, expected %q", got, expected)
	}
}

func TestMigrationCompatible(t *testing.T) {
	tests := []struct {
		oldS, newS string
		expected   bool
	}{
		{"text", "text", true},
		{"numeric", "numeric", true},
		{"date", "text", true},     // anything to text
		{"datetime", "text", true},
		{"boolean", "text", true},
		{"text", "date", true},     // strict-pattern conversion
		{"text", "numeric", false},
		{"text", "boolean", false},
		{"date", "numeric", false},
		{"boolean", "date", false},
		{"numeric", "date", false},
	}
	for _, tt := range tests {
		if got := migrationCompatible(tt.oldS, tt.newS); got != tt.expected {
			t.Errorf("migrationCompatible(%q, %q) = %v, expected %v", tt.oldS, tt.newS, got, tt.expected)
		}
	}
}

func TestConversionExpr(t *testing.T) {
	if expr := conversionExpr("amount", "numeric", "numeric"); expr != `"amount"` {
		t.Errorf("same-family expr = %q", expr)
	}
	if expr := conversionExpr("measured_on", "date", "text"); !strings.Contains(expr, "to_char") || !strings.Contains(expr, "YYYY-MM-DD") {
		t.Errorf("date->text expr = %q", expr)
	}
	if expr := conversionExpr("passed", "boolean", "text"); !strings.Contains(expr, "CASE WHEN") {
		t.Errorf("boolean->text expr = %q", expr)
	}
	expr := conversionExpr("measured_on", "text", "date")
	if !strings.Contains(expr, "~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$'") || !strings.Contains(expr, "ELSE NULL") {
		t.Errorf("text->date expr must be strict-pattern guarded, got %q", expr)
	}
}

func TestSimplifiedSQLType(t *testing.T) {
	tests := []struct{ in, expected string }{
		{"numeric", "numeric"},
		{"integer", "numeric"},
		{"double precision", "numeric"},
		{"date", "date"},
		{"timestamp without time zone", "datetime"},
		{"time without time zone", "time"},
		{"boolean", "boolean"},
		{"text", "text"},
		{"character varying", "text"},
	}
	for _, tt := range tests {
		if got := simplifiedSQLType(tt.in); got != tt.expected {
			t.Errorf("simplifiedSQLType(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestBuildMigrationPlan(t *testing.T) {
	newFields := []models.ChecksheetField{
		{InstanceID: "f1", FieldName: "inspector", FieldType: FieldTypeText},
		{InstanceID: "f2", FieldName: "amount", FieldType: FieldTypeDate},    // breaking-changed
		{InstanceID: "f3", FieldName: "passed", FieldType: FieldTypeText},    // boolean -> text, compatible conversion
		{InstanceID: "f4", FieldName: "brand_new", FieldType: FieldTypeText}, // not in old table
		{InstanceID: "f5", FieldName: "count", FieldType: FieldTypeNumber},   // integer -> decimal
	}
	changes := []FieldChange{
		{FieldID: "f2", OldType: FieldTypeNumber, NewType: FieldTypeDate, Breaking: true},
		{FieldID: "f3", OldType: FieldTypeBoolean, NewType: FieldTypeText, Breaking: true},
	}
	oldColumnTypes := map[string]string{
		"id": "uuid", "user_id": "uuid", "submitted_at": "timestamp without time zone",
		"template_version": "integer",
		"inspector":        "text",
		"amount":           "numeric",
		"passed":           "boolean",
		"count":            "integer",
	}
	newColumns := map[string]bool{
		"id": true, "user_id": true, "submitted_at": true, "template_version": true,
		"original_submission_id": true,
		"inspector":              true, "amount": true, "passed": true, "brand_new": true, "count": true,
	}

	plan := buildMigrationPlan(newFields, changes, oldColumnTypes, newColumns)

	cols := make(map[string]string)
	for _, cc := range plan {
		cols[cc.Column] = cc.Expr
	}

	if _, ok := cols["inspector"]; !ok {
		t.Error("unchanged text column should be copied")
	}
	if _, ok := cols["amount"]; ok {
		t.Error("breaking-changed field must be excluded from migration")
	}
	// boolean->text conversion is compatible in general, but f3 is flagged
	// breaking, so it must still be excluded.
	if _, ok := cols["passed"]; ok {
		t.Error("breaking-changed boolean field must be excluded even though boolean->text converts")
	}
	if _, ok := cols["brand_new"]; ok {
		t.Error("columns absent from the old table cannot be copied")
	}
	if _, ok := cols["count"]; !ok {
		t.Error("integer->decimal numeric column should be copied")
	}
}

func TestBuildMigrationPlanSkipsMetadataCollisions(t *testing.T) {
	newFields := []models.ChecksheetField{
		{InstanceID: "f1", FieldName: "user_id", FieldType: FieldTypeText},
		{InstanceID: "f2", FieldName: "", FieldType: FieldTypeText},
	}
	oldColumnTypes := map[string]string{"user_id": "uuid"}
	newColumns := map[string]bool{"user_id": true}

	plan := buildMigrationPlan(newFields, nil, oldColumnTypes, newColumns)
	if len(plan) != 0 {
		t.Errorf("metadata-colliding or empty-named fields must be dropped, got %+v", plan)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil error is not a violation")
	}
	err := errString(`ERROR: duplicate key value violates unique constraint "uq_checksheet_templates_lineage_version" (SQLSTATE 23505)`)
	if !isUniqueViolation(err) {
		t.Error("postgres duplicate key error should be detected")
	}
	if isUniqueViolation(errString("connection refused")) {
		t.Error("unrelated error must not be treated as a violation")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
