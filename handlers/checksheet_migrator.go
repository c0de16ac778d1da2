package handlers

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"p9e.in/mfgops/models"
)

// SubmissionTableName derives the physical table name for a template
// version. The name is assigned once and never reused.
func SubmissionTableName(rootID uuid.UUID, version int) string {
	return fmt.Sprintf("checksheet_%s_%d", strings.ReplaceAll(rootID.String(), "-", ""), version)
}

// LegacySubmissionTableName is the epoch-millisecond naming used by the
// pre-versioning publish path. Kept for reading tables created before
// versioning existed.
func LegacySubmissionTableName(templateID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("checksheet_%s_%d", strings.ReplaceAll(templateID.String(), "-", ""), at.UnixMilli())
}

// MigrationResult reports what a version fork did, for observability.
type MigrationResult struct {
	NewTemplateID uuid.UUID `json:"new_template_id"`
	RootID        uuid.UUID `json:"root_template_id"`
	NewVersion    int       `json:"new_version"`
	NewTableName  string    `json:"new_table_name"`
	MigratedRows  int64     `json:"migrated_rows"`
	DroppedFields []string  `json:"dropped_fields,omitempty"`
}

// columnCopy is one column of the historical-data migration: the target
// column name and the SELECT expression producing its value from the old
// table.
type columnCopy struct {
	Column string
	Expr   string
}

// simplifiedSQLType buckets an information_schema data_type into the same
// families simplifiedType produces for logical field types.
func simplifiedSQLType(dataType string) string {
	switch strings.ToLower(dataType) {
	case "numeric", "integer", "bigint", "smallint", "decimal", "double precision", "real":
		return "numeric"
	case "date":
		return "date"
	case "timestamp without time zone", "timestamp with time zone", "timestamp":
		return "datetime"
	case "time without time zone", "time with time zone", "time":
		return "time"
	case "boolean":
		return "boolean"
	default:
		return "text"
	}
}

// migrationCompatible reports whether a value of the old column family can
// be carried into the new column family: identical families, anything into
// text, numeric into numeric (integer vs decimal widths), and text into
// date via the strict-pattern conversion.
func migrationCompatible(oldSimple, newSimple string) bool {
	if oldSimple == newSimple {
		return true
	}
	if newSimple == "text" {
		return true
	}
	if oldSimple == "numeric" && newSimple == "numeric" {
		return true
	}
	if oldSimple == "text" && newSimple == "date" {
		return true
	}
	return false
}

// conversionExpr renders the SQL expression converting column col from the
// old family to the new one. Callers must have checked migrationCompatible
// first.
func conversionExpr(col, oldSimple, newSimple string) string {
	q := pq.QuoteIdentifier(col)
	if oldSimple == newSimple {
		return q
	}
	switch {
	case newSimple == "text":
		switch oldSimple {
		case "date":
			return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD')", q)
		case "datetime":
			return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS')", q)
		case "time":
			return fmt.Sprintf("to_char(%s, 'HH24:MI:SS')", q)
		case "boolean":
			return fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL WHEN %s THEN 'true' ELSE 'false' END", q, q)
		default:
			return fmt.Sprintf("%s::text", q)
		}
	case oldSimple == "text" && newSimple == "date":
		// strict YYYY-MM-DD only; anything else becomes NULL
		return fmt.Sprintf("CASE WHEN %s ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$' THEN %s::date ELSE NULL END", q, q)
	case oldSimple == "numeric" && newSimple == "numeric":
		return q
	}
	return q
}

// buildMigrationPlan decides which columns of the old table are carried
// into the new one. A column is copied when the field was not flagged as a
// breaking change, the column exists by name in both tables, and the type
// mapping is compatible. Anything failing a check is silently dropped from
// the plan.
func buildMigrationPlan(newFields []models.ChecksheetField, changes []FieldChange, oldColumnTypes map[string]string, newColumns map[string]bool) []columnCopy {
	breaking := make(map[string]bool)
	for _, c := range changes {
		if c.Breaking {
			breaking[c.FieldID] = true
		}
	}

	var plan []columnCopy
	seen := make(map[string]bool)
	for _, f := range newFields {
		if breaking[f.InstanceID] {
			continue
		}
		col := ColumnNameForField(f)
		if col == "" || metadataColumns[col] || seen[col] {
			continue
		}
		oldType, inOld := oldColumnTypes[col]
		if !inOld || !newColumns[col] {
			continue
		}
		oldSimple := simplifiedSQLType(oldType)
		newSimple := simplifiedType(f.FieldType)
		if !migrationCompatible(oldSimple, newSimple) {
			continue
		}
		seen[col] = true
		plan = append(plan, columnCopy{Column: col, Expr: conversionExpr(col, oldSimple, newSimple)})
	}
	return plan
}

// ChecksheetMigrator forks a new template version when a breaking field
// type change is detected, creates its physical table and carries
// compatible historical data forward.
type ChecksheetMigrator struct {
	db *gorm.DB
}

func NewChecksheetMigrator(db *gorm.DB) *ChecksheetMigrator {
	return &ChecksheetMigrator{db: db}
}

// ForkVersion runs inside the caller's update transaction. old is the
// currently active version; updated carries the incoming markup and
// configuration; newFields is the incoming field set (template id still
// unset). On success the new version is active and the old one archived.
func (m *ChecksheetMigrator) ForkVersion(old *models.ChecksheetTemplate, updated *models.ChecksheetTemplate, newFields []models.ChecksheetField, changes []FieldChange) (*MigrationResult, error) {
	rootID := old.LineageRootID()

	newTemplate, newVersion, err := m.insertForkedRow(rootID, old, updated)
	if err != nil {
		// Two concurrent breaking updates can race to the same version
		// number; the unique index on (parent_template_id, version) makes
		// the loser fail here. Retry once with a recomputed version.
		if !isUniqueViolation(err) {
			return nil, err
		}
		log.Printf("Version collision on lineage %s, retrying allocation", rootID)
		newTemplate, newVersion, err = m.insertForkedRow(rootID, old, updated)
		if err != nil {
			return nil, err
		}
	}

	// Archive every previously active version of the lineage.
	now := time.Now()
	if err := m.db.Model(&models.ChecksheetTemplate{}).
		Where("(id = ? OR parent_template_id = ?) AND is_active = ? AND id <> ?", rootID, rootID, true, newTemplate.ID).
		Updates(map[string]interface{}{"is_active": false, "archived_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to archive previous version: %v", err)
	}

	// Physical table for the new version.
	tm := NewChecksheetTableManager(m.db)
	for i := range newFields {
		newFields[i].TemplateID = newTemplate.ID
	}
	dropped, err := tm.CreateSubmissionTable(newTemplate.DBTableName, newFields)
	if err != nil {
		return nil, err
	}

	// Copy images from the old version verbatim.
	if err := m.copyImages(old.ID, newTemplate.ID); err != nil {
		return nil, err
	}

	// The new field definitions replace the copied-over configuration.
	if len(newFields) > 0 {
		if err := m.db.Create(&newFields).Error; err != nil {
			return nil, fmt.Errorf("failed to save field definitions: %v", err)
		}
	}

	// Historical data: best effort. A failed copy is logged and reported
	// as zero rows; the new empty table is still usable going forward.
	migrated, err := m.migrateData(old, newTemplate, newFields, changes, newVersion)
	if err != nil {
		log.Printf("Data migration from %s to %s failed, continuing with empty table: %v",
			old.DBTableName, newTemplate.DBTableName, err)
		migrated = 0
	}

	return &MigrationResult{
		NewTemplateID: newTemplate.ID,
		RootID:        rootID,
		NewVersion:    newVersion,
		NewTableName:  newTemplate.DBTableName,
		MigratedRows:  migrated,
		DroppedFields: dropped,
	}, nil
}

// insertForkedRow computes the next version number for the lineage and
// inserts the new template row in a savepoint, so a unique violation does
// not poison the surrounding transaction.
func (m *ChecksheetMigrator) insertForkedRow(rootID uuid.UUID, old, updated *models.ChecksheetTemplate) (*models.ChecksheetTemplate, int, error) {
	var maxVersion int
	if err := m.db.Model(&models.ChecksheetTemplate{}).
		Where("id = ? OR parent_template_id = ?", rootID, rootID).
		Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to resolve lineage version: %v", err)
	}
	newVersion := maxVersion + 1
	parentID := rootID

	newTemplate := models.ChecksheetTemplate{
		ID:                  uuid.New(),
		Name:                updated.Name,
		HTMLContent:         updated.HTMLContent,
		ProcessedHTML:       updated.ProcessedHTML,
		FieldConfigurations: updated.FieldConfigurations,
		FieldPositions:      updated.FieldPositions,
		Sheets:              updated.Sheets,
		CSSContent:          updated.CSSContent,
		AccessControl:       updated.AccessControl,
		DBTableName:         SubmissionTableName(rootID, newVersion),
		Version:             newVersion,
		ParentTemplateID:    &parentID,
		IsActive:            true,
		FolderID:            old.FolderID,
		CreatedBy:           updated.CreatedBy,
	}

	err := m.db.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&newTemplate).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return &newTemplate, newVersion, nil
}

func (m *ChecksheetMigrator) copyImages(fromID, toID uuid.UUID) error {
	var images []models.ChecksheetImage
	if err := m.db.Where("template_id = ?", fromID).Find(&images).Error; err != nil {
		return fmt.Errorf("failed to load images for copy: %v", err)
	}
	for i := range images {
		images[i].ID = uuid.New()
		images[i].TemplateID = toID
	}
	if len(images) == 0 {
		return nil
	}
	if err := m.db.Create(&images).Error; err != nil {
		return fmt.Errorf("failed to copy images: %v", err)
	}
	return nil
}

// migrateData copies up to the 1000 most recent compatible rows from the
// old version's table into the new one.
func (m *ChecksheetMigrator) migrateData(old, newTemplate *models.ChecksheetTemplate, newFields []models.ChecksheetField, changes []FieldChange, newVersion int) (int64, error) {
	tm := NewChecksheetTableManager(m.db)

	oldColumnTypes, err := tm.ColumnTypes(old.DBTableName)
	if err != nil {
		return 0, err
	}
	newColumnList, err := tm.TableColumns(newTemplate.DBTableName)
	if err != nil {
		return 0, err
	}
	newColumns := make(map[string]bool, len(newColumnList))
	for _, c := range newColumnList {
		newColumns[c] = true
	}

	plan := buildMigrationPlan(newFields, changes, oldColumnTypes, newColumns)

	targets := []string{"user_id", "submitted_at", "template_version", "original_submission_id"}
	exprs := []string{"user_id", "submitted_at", fmt.Sprintf("%d", newVersion), "id"}
	for _, cc := range plan {
		targets = append(targets, pq.QuoteIdentifier(cc.Column))
		exprs = append(exprs, cc.Expr)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s)
		SELECT %s FROM %s
		ORDER BY submitted_at DESC
		LIMIT 1000`,
		pq.QuoteIdentifier(newTemplate.DBTableName), strings.Join(targets, ", "),
		strings.Join(exprs, ", "), pq.QuoteIdentifier(old.DBTableName))

	// Savepoint keeps a failed copy from aborting the whole fork.
	var rows int64
	err = m.db.Transaction(func(sp *gorm.DB) error {
		res := sp.Exec(sql)
		if res.Error != nil {
			return res.Error
		}
		rows = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("Migrated %d rows from %s to %s (%d columns)",
		rows, old.DBTableName, newTemplate.DBTableName, len(plan))
	return rows, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "SQLSTATE 23505")
}
