package handlers

import (
	"testing"

	"p9e.in/mfgops/models"
)

func TestResolveSubmissionColumnsDirectMatch(t *testing.T) {
	columns := []string{"id", "user_id", "submitted_at", "name", "count"}
	fields := []models.ChecksheetField{
		{InstanceID: "f1", FieldName: "name", FieldType: FieldTypeText},
		{InstanceID: "f2", FieldName: "count", FieldType: FieldTypeNumber},
	}

	data := map[string]interface{}{
		"Name":  "Widget", // case-insensitive column match
		"count": "42",
	}
	matched, ignored := resolveSubmissionColumns(data, columns, fields)

	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d (%v)", len(matched), matched)
	}
	if matched["name"] != "Widget" {
		t.Errorf("Name should map to column name, got %v", matched)
	}
	if len(ignored) != 0 {
		t.Errorf("no keys should be ignored, got %v", ignored)
	}
}

func TestResolveSubmissionColumnsFieldIndirection(t *testing.T) {
	// physical columns were sanitized by an earlier publish pipeline
	columns := []string{"id", "operator_name", "torque_reading"}
	fields := []models.ChecksheetField{
		{InstanceID: "field-1", FieldName: "Operator Name", FieldType: FieldTypeText},
		{InstanceID: "field-2", FieldName: "Torque Reading", FieldType: FieldTypeNumber},
	}

	data := map[string]interface{}{
		"Operator Name": "akira",  // resolved via field name
		"FIELD-2":       "12.5",   // resolved via lowercased instance id
		"foo_bar":       "junk",   // unknown, dropped
	}
	matched, ignored := resolveSubmissionColumns(data, columns, fields)

	if matched["operator_name"] != "akira" {
		t.Errorf("field-name indirection failed: %v", matched)
	}
	if matched["torque_reading"] != "12.5" {
		t.Errorf("instance-id indirection failed: %v", matched)
	}
	if len(ignored) != 1 || ignored[0] != "foo_bar" {
		t.Errorf("unknown key should be recorded as ignored, got %v", ignored)
	}
}

func TestResolveSubmissionColumnsZeroMatch(t *testing.T) {
	columns := []string{"id", "user_id", "name"}
	fields := []models.ChecksheetField{
		{InstanceID: "f1", FieldName: "name", FieldType: FieldTypeText},
	}
	data := map[string]interface{}{"foo_bar": 1, "baz": 2}

	matched, ignored := resolveSubmissionColumns(data, columns, fields)
	if len(matched) != 0 {
		t.Errorf("expected zero matches, got %v", matched)
	}
	if len(ignored) != 2 {
		t.Errorf("expected both keys ignored, got %v", ignored)
	}
}

func TestResolveSubmissionColumnsRejectsMetadata(t *testing.T) {
	columns := []string{"id", "user_id", "name"}
	fields := []models.ChecksheetField{
		{InstanceID: "f1", FieldName: "name", FieldType: FieldTypeText},
	}
	data := map[string]interface{}{"user_id": "spoofed", "name": "ok"}

	matched, ignored := resolveSubmissionColumns(data, columns, fields)
	if _, ok := matched["user_id"]; ok {
		t.Error("metadata columns must not be writable through submission data")
	}
	if matched["name"] != "ok" {
		t.Errorf("regular field should still match, got %v", matched)
	}
	if len(ignored) != 1 {
		t.Errorf("spoofed metadata key should be ignored, got %v", ignored)
	}
}

func TestCoerceValueNumeric(t *testing.T) {
	tests := []struct {
		name     string
		val      interface{}
		expected interface{}
	}{
		{"numeric string", "42", float64(42)},
		{"decimal string", "10.5", float64(10.5)},
		{"padded string", " 7 ", float64(7)},
		{"empty string", "", nil},
		{"whitespace", "   ", nil},
		{"non-numeric", "abc", nil},
		{"nil", nil, nil},
		{"json number", float64(3.25), float64(3.25)},
		{"bool is not numeric", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerceValue(FieldTypeNumber, tt.val)
			if got != tt.expected {
				t.Errorf("coerceValue(number, %v) = %v, expected %v", tt.val, got, tt.expected)
			}
		})
	}
}

func TestCoerceValueDateKinds(t *testing.T) {
	for _, ft := range []string{FieldTypeDate, FieldTypeDatetime, FieldTypeTime} {
		if got := coerceValue(ft, ""); got != nil {
			t.Errorf("coerceValue(%s, \"\") = %v, expected nil", ft, got)
		}
		if got := coerceValue(ft, "  "); got != nil {
			t.Errorf("coerceValue(%s, blank) = %v, expected nil", ft, got)
		}
		if got := coerceValue(ft, "2024-05-01"); got != "2024-05-01" {
			t.Errorf("coerceValue(%s, date) = %v, expected passthrough", ft, got)
		}
		if got := coerceValue(ft, nil); got != nil {
			t.Errorf("coerceValue(%s, nil) = %v, expected nil", ft, got)
		}
	}
}

func TestCoerceValueTextPassthrough(t *testing.T) {
	if got := coerceValue(FieldTypeText, ""); got != "" {
		t.Errorf("text empty string must pass through, got %v", got)
	}
	if got := coerceValue(FieldTypeSignature, "base64sig"); got != "base64sig" {
		t.Errorf("signature value must pass through, got %v", got)
	}
}

func TestIsLegacyTableName(t *testing.T) {
	if !isLegacyTableName("checksheet_6ba7b8109dad11d180b400c04fd430c8_1700000000000") {
		t.Error("epoch-millis suffix should be detected as legacy")
	}
	if isLegacyTableName("checksheet_6ba7b8109dad11d180b400c04fd430c8_3") {
		t.Error("version suffix is not legacy")
	}
	if isLegacyTableName("plain") {
		t.Error("no suffix is not legacy")
	}
}
