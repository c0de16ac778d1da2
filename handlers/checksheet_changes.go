package handlers

import "p9e.in/mfgops/models"

// FieldChange records one field whose declared type differs between the
// stored version and an incoming update.
type FieldChange struct {
	FieldID  string `json:"field_id"`
	OldType  string `json:"old_type"`
	NewType  string `json:"new_type"`
	Breaking bool   `json:"breaking_change"`
}

// breakingTypePairs is the fixed incompatibility table. It is deliberately
// listed pair by pair rather than derived, because the relation is not
// symmetric as a rule: every breaking direction is spelled out, and
// compatible pairs such as number<->calculation must never appear here.
var breakingTypePairs = map[[2]string]bool{
	// textual <-> numeric
	{FieldTypeText, FieldTypeNumber}: true,
	{FieldTypeNumber, FieldTypeText}: true,
	// textual <-> date/datetime/time
	{FieldTypeText, FieldTypeDate}:     true,
	{FieldTypeDate, FieldTypeText}:     true,
	{FieldTypeText, FieldTypeDatetime}: true,
	{FieldTypeDatetime, FieldTypeText}: true,
	{FieldTypeText, FieldTypeTime}:     true,
	{FieldTypeTime, FieldTypeText}:     true,
	// textual <-> boolean
	{FieldTypeText, FieldTypeBoolean}: true,
	{FieldTypeBoolean, FieldTypeText}: true,
	// calculation <-> text
	{FieldTypeCalculation, FieldTypeText}: true,
	{FieldTypeText, FieldTypeCalculation}: true,
}

// IsBreakingTypeChange reports whether changing a field from oldType to
// newType cannot be represented by the existing physical column.
func IsBreakingTypeChange(oldType, newType string) bool {
	return breakingTypePairs[[2]string{oldType, newType}]
}

// DetectFieldChanges compares the previous version's instance-id -> type
// snapshot against an incoming field set. Fields absent from the old
// snapshot are additions and never flagged; removed fields are not flagged
// either.
func DetectFieldChanges(oldTypes map[string]string, newFields []models.ChecksheetField) []FieldChange {
	var changes []FieldChange
	for _, f := range newFields {
		oldType, ok := oldTypes[f.InstanceID]
		if !ok || oldType == f.FieldType {
			continue
		}
		changes = append(changes, FieldChange{
			FieldID:  f.InstanceID,
			OldType:  oldType,
			NewType:  f.FieldType,
			Breaking: IsBreakingTypeChange(oldType, f.FieldType),
		})
	}
	return changes
}

// HasBreakingChanges is the sole gate deciding in-place update versus a
// forked version.
func HasBreakingChanges(changes []FieldChange) bool {
	for _, c := range changes {
		if c.Breaking {
			return true
		}
	}
	return false
}
