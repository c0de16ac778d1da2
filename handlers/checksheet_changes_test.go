package handlers

import (
	"testing"

	"p9e.in/mfgops/models"
)

func TestIsBreakingTypeChange(t *testing.T) {
	tests := []struct {
		name     string
		oldType  string
		newType  string
		expected bool
	}{
		// both directions are listed explicitly in the table
		{"text to number", FieldTypeText, FieldTypeNumber, true},
		{"number to text", FieldTypeNumber, FieldTypeText, true},
		{"text to date", FieldTypeText, FieldTypeDate, true},
		{"date to text", FieldTypeDate, FieldTypeText, true},
		{"text to datetime", FieldTypeText, FieldTypeDatetime, true},
		{"datetime to text", FieldTypeDatetime, FieldTypeText, true},
		{"text to time", FieldTypeText, FieldTypeTime, true},
		{"time to text", FieldTypeTime, FieldTypeText, true},
		{"text to boolean", FieldTypeText, FieldTypeBoolean, true},
		{"boolean to text", FieldTypeBoolean, FieldTypeText, true},
		{"calculation to text", FieldTypeCalculation, FieldTypeText, true},
		{"text to calculation", FieldTypeText, FieldTypeCalculation, true},

		// compatible pairs must not be in the table
		{"number to calculation", FieldTypeNumber, FieldTypeCalculation, false},
		{"calculation to number", FieldTypeCalculation, FieldTypeNumber, false},
		{"date to datetime", FieldTypeDate, FieldTypeDatetime, false},
		{"same type", FieldTypeNumber, FieldTypeNumber, false},
		{"number to boolean", FieldTypeNumber, FieldTypeBoolean, false},
		{"signature to text", FieldTypeSignature, FieldTypeText, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsBreakingTypeChange(tt.oldType, tt.newType)
			if got != tt.expected {
				t.Errorf("IsBreakingTypeChange(%q, %q) = %v, expected %v",
					tt.oldType, tt.newType, got, tt.expected)
			}
		})
	}
}

func TestDetectFieldChanges(t *testing.T) {
	oldTypes := map[string]string{
		"f1": FieldTypeText,
		"f2": FieldTypeNumber,
		"f3": FieldTypeDate,
		"f5": FieldTypeBoolean, // removed in the new set
	}
	newFields := []models.ChecksheetField{
		{InstanceID: "f1", FieldType: FieldTypeText},        // unchanged
		{InstanceID: "f2", FieldType: FieldTypeCalculation}, // changed, compatible
		{InstanceID: "f3", FieldType: FieldTypeText},        // changed, breaking
		{InstanceID: "f4", FieldType: FieldTypeNumber},      // addition
	}

	changes := DetectFieldChanges(oldTypes, newFields)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}

	byID := make(map[string]FieldChange)
	for _, c := range changes {
		byID[c.FieldID] = c
	}

	if c, ok := byID["f2"]; !ok || c.Breaking {
		t.Errorf("f2 number->calculation should be a non-breaking change, got %+v", c)
	}
	if c, ok := byID["f3"]; !ok || !c.Breaking {
		t.Errorf("f3 date->text should be a breaking change, got %+v", c)
	}
	if _, ok := byID["f4"]; ok {
		t.Error("additions must never be flagged as changes")
	}
	if _, ok := byID["f5"]; ok {
		t.Error("removed fields must not be flagged by the detector")
	}
}

func TestHasBreakingChanges(t *testing.T) {
	if HasBreakingChanges(nil) {
		t.Error("no changes should not be breaking")
	}
	if HasBreakingChanges([]FieldChange{{Breaking: false}, {Breaking: false}}) {
		t.Error("all-compatible change set should not be breaking")
	}
	if !HasBreakingChanges([]FieldChange{{Breaking: false}, {Breaking: true}}) {
		t.Error("one breaking change must flip the gate")
	}
}
