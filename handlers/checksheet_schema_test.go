package handlers

import (
	"testing"

	"p9e.in/mfgops/models"
)

func TestSanitizeColumnName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already clean", "torque_reading", "torque_reading"},
		{"uppercase", "TorqueReading", "torquereading"},
		{"spaces", "Torque Reading", "torque_reading"},
		{"mixed punctuation", "Temp (°C)", "temp_c"},
		{"camelCase with digits", "line3Speed", "line3speed"},
		{"leading digits kept", "3rd_check", "3rd_check"},
		{"repeated separators collapse", "a -- b__c", "a_b_c"},
		{"leading trailing trimmed", "__inspector__", "inspector"},
		{"only punctuation", "!!!", ""},
		{"empty", "", ""},
		{"unicode", "日本語フィールド", ""},
		{"dash and dot", "op.no-1", "op_no_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeColumnName(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeColumnName(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeColumnNameIdempotent(t *testing.T) {
	inputs := []string{
		"Torque Reading", "Temp (°C)", "__x__", "a--b", "already_clean",
		"UPPER", "", "123", "mixed Case-Name.2",
	}
	for _, in := range inputs {
		once := SanitizeColumnName(in)
		twice := SanitizeColumnName(once)
		if once != twice {
			t.Errorf("sanitize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestSanitizeColumnNameAlphabet(t *testing.T) {
	inputs := []string{"Torque Reading", "Temp (°C)", "a--b", "_x_", "Crazy!@#$%Name"}
	for _, in := range inputs {
		out := SanitizeColumnName(in)
		for _, c := range out {
			if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
				t.Errorf("SanitizeColumnName(%q) = %q contains %q", in, out, c)
			}
		}
		if len(out) > 0 && (out[0] == '_' || out[len(out)-1] == '_') {
			t.Errorf("SanitizeColumnName(%q) = %q has leading/trailing underscore", in, out)
		}
	}
}

func TestColumnNameForFieldFallback(t *testing.T) {
	f := models.ChecksheetField{FieldName: "!!!", InstanceID: "field-17"}
	if got := ColumnNameForField(f); got != "field_17" {
		t.Errorf("expected fallback to instance id, got %q", got)
	}

	f = models.ChecksheetField{FieldName: "Weight (kg)", InstanceID: "field-17"}
	if got := ColumnNameForField(f); got != "weight_kg" {
		t.Errorf("expected field name derivation, got %q", got)
	}

	f = models.ChecksheetField{FieldName: "!!!", InstanceID: "###"}
	if got := ColumnNameForField(f); got != "" {
		t.Errorf("expected empty column for unsanitizable field, got %q", got)
	}
}

func TestColumnTypeForFieldType(t *testing.T) {
	tests := []struct {
		fieldType string
		expected  string
	}{
		{FieldTypeNumber, "DECIMAL(18,6)"},
		{FieldTypeCalculation, "DECIMAL(18,6)"},
		{FieldTypeDate, "DATE"},
		{FieldTypeDatetime, "TIMESTAMP"},
		{FieldTypeTime, "TIME"},
		{FieldTypeBoolean, "BOOLEAN"},
		{FieldTypeText, "TEXT"},
		{FieldTypeImage, "TEXT"},
		{FieldTypeSignature, "TEXT"},
		{"select", "TEXT"},
		{"", "TEXT"},
	}
	for _, tt := range tests {
		if got := ColumnTypeForFieldType(tt.fieldType); got != tt.expected {
			t.Errorf("ColumnTypeForFieldType(%q) = %q, expected %q", tt.fieldType, got, tt.expected)
		}
	}
}
