package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

// FieldConfig is the client-side shape of one field definition.
type FieldConfig struct {
	InstanceID string          `json:"instance_id"`
	FieldName  string          `json:"field_name"`
	Label      string          `json:"label,omitempty"`
	FieldType  string          `json:"type"`
	Required   bool            `json:"required,omitempty"`
	Disabled   bool            `json:"disabled,omitempty"`
	Position   int             `json:"position,omitempty"`
	SheetIndex int             `json:"sheet_index,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

func (fc FieldConfig) toModel(templateID uuid.UUID) models.ChecksheetField {
	instanceID := fc.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	cfg := fc.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	return models.ChecksheetField{
		ID:         uuid.New(),
		TemplateID: templateID,
		InstanceID: instanceID,
		FieldName:  fc.FieldName,
		Label:      fc.Label,
		FieldType:  fc.FieldType,
		Required:   fc.Required,
		Disabled:   fc.Disabled,
		Position:   fc.Position,
		SheetIndex: fc.SheetIndex,
		Config:     []byte(cfg),
	}
}

type templatePayload struct {
	Name                string          `json:"name"`
	HTMLContent         string          `json:"html_content"`
	FieldConfigurations []FieldConfig   `json:"field_configurations"`
	FieldPositions      json.RawMessage `json:"field_positions,omitempty"`
	Sheets              json.RawMessage `json:"sheets,omitempty"`
	CSSContent          string          `json:"css_content,omitempty"`
	Images              []ImageUpload   `json:"images,omitempty"`
	AccessControl       json.RawMessage `json:"access_control,omitempty"`
	FolderID            *uuid.UUID      `json:"folder_id,omitempty"`
	UseLegacyNaming     bool            `json:"use_legacy_naming,omitempty"`

	// update-only fields, accepted and ignored on publish
	IsUpdate           bool       `json:"is_update,omitempty"`
	OriginalTemplateID *uuid.UUID `json:"original_template_id,omitempty"`
}

func (p *templatePayload) toTemplate() models.ChecksheetTemplate {
	configsJSON, _ := json.Marshal(p.FieldConfigurations)
	t := models.ChecksheetTemplate{
		Name:                p.Name,
		HTMLContent:         p.HTMLContent,
		FieldConfigurations: configsJSON,
		CSSContent:          p.CSSContent,
	}
	if len(p.FieldPositions) > 0 {
		t.FieldPositions = []byte(p.FieldPositions)
	}
	if len(p.Sheets) > 0 {
		t.Sheets = []byte(p.Sheets)
	}
	if len(p.AccessControl) > 0 {
		t.AccessControl = []byte(p.AccessControl)
	}
	t.FolderID = p.FolderID
	return t
}

func droppedFieldWarnings(dropped []string) []string {
	var warnings []string
	for _, id := range dropped {
		warnings = append(warnings,
			fmt.Sprintf("field %s has no usable column name and was excluded from the physical table; it can never receive submissions", id))
	}
	return warnings
}

// PublishChecksheetTemplate publishes a new template as version 1 and
// creates its physical submission table.
// POST /api/v1/checksheet/templates
func PublishChecksheetTemplate(w http.ResponseWriter, r *http.Request) {
	var payload templatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if payload.Name == "" {
		http.Error(w, "template name is required", http.StatusBadRequest)
		return
	}

	template := payload.toTemplate()
	template.ID = uuid.New()
	template.Version = 1
	template.IsActive = true
	template.CreatedBy = middleware.GetUserID(r)
	if payload.UseLegacyNaming {
		template.DBTableName = LegacySubmissionTableName(template.ID, time.Now())
	} else {
		template.DBTableName = SubmissionTableName(template.ID, 1)
	}

	var warnings []string
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&template).Error; err != nil {
			return fmt.Errorf("failed to save template: %v", err)
		}

		fields := make([]models.ChecksheetField, 0, len(payload.FieldConfigurations))
		for _, fc := range payload.FieldConfigurations {
			fields = append(fields, fc.toModel(template.ID))
		}
		if len(fields) > 0 {
			if err := tx.Create(&fields).Error; err != nil {
				return fmt.Errorf("failed to save field definitions: %v", err)
			}
		}

		tm := NewChecksheetTableManager(tx)
		dropped, err := tm.CreateSubmissionTable(template.DBTableName, fields)
		if err != nil {
			return err
		}
		warnings = droppedFieldWarnings(dropped)

		template.ProcessedHTML = SaveTemplateImages(tx, &template, payload.Images)
		return tx.Model(&models.ChecksheetTemplate{}).
			Where("id = ?", template.ID).
			Update("processed_html", template.ProcessedHTML).Error
	})
	if err != nil {
		http.Error(w, "publish failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("Published checksheet template %s (%s) as %s", template.Name, template.ID, template.DBTableName)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"template_id": template.ID,
		"version":     template.Version,
		"table_name":  template.DBTableName,
		"warnings":    warnings,
	})
}

// UpdateChecksheetTemplate applies an update to a template. Non-breaking
// field changes update the active version in place; a breaking type change
// forks a new version through the migrator.
// PUT /api/v1/checksheet/templates/{id}
func UpdateChecksheetTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var payload templatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if payload.Name == "" {
		http.Error(w, "template name is required", http.StatusBadRequest)
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

	var oldFields []models.ChecksheetField
	if err := config.DB.Where("template_id = ?", current.ID).Find(&oldFields).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	oldTypes := make(map[string]string, len(oldFields))
	for _, f := range oldFields {
		oldTypes[f.InstanceID] = f.FieldType
	}

	newFields := make([]models.ChecksheetField, 0, len(payload.FieldConfigurations))
	for _, fc := range payload.FieldConfigurations {
		newFields = append(newFields, fc.toModel(uuid.Nil))
	}
	changes := DetectFieldChanges(oldTypes, newFields)

	if changes == nil {
		changes = []FieldChange{}
	}

	if HasBreakingChanges(changes) {
		forkTemplateVersion(w, r, current, &payload, newFields, changes)
		return
	}
	updateTemplateInPlace(w, r, current, &payload, newFields, changes)
}

func activeOf(lineage []models.ChecksheetTemplate) *models.ChecksheetTemplate {
	for i := range lineage {
		if lineage[i].IsActive {
			return &lineage[i]
		}
	}
	return nil
}

func forkTemplateVersion(w http.ResponseWriter, r *http.Request, current *models.ChecksheetTemplate, payload *templatePayload, newFields []models.ChecksheetField, changes []FieldChange) {
	updated := payload.toTemplate()
	updated.CreatedBy = middleware.GetUserID(r)

	var result *MigrationResult
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		migrator := NewChecksheetMigrator(tx)
		res, err := migrator.ForkVersion(current, &updated, newFields, changes)
		if err != nil {
			return err
		}
		result = res

		newTemplate := models.ChecksheetTemplate{ID: res.NewTemplateID, HTMLContent: payload.HTMLContent}
		processed := SaveTemplateImages(tx, &newTemplate, payload.Images)
		return tx.Model(&models.ChecksheetTemplate{}).
			Where("id = ?", res.NewTemplateID).
			Update("processed_html", processed).Error
	})
	if err != nil {
		http.Error(w, "update failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("Forked template %s to version %d (%s), migrated %d rows",
		result.RootID, result.NewVersion, result.NewTableName, result.MigratedRows)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"is_new_version": true,
		"template_id":    result.NewTemplateID,
		"root_id":        result.RootID,
		"version":        result.NewVersion,
		"table_name":     result.NewTableName,
		"changes":        changes,
		"migrated_rows":  result.MigratedRows,
		"warnings":       droppedFieldWarnings(result.DroppedFields),
	})
}

func updateTemplateInPlace(w http.ResponseWriter, r *http.Request, current *models.ChecksheetTemplate, payload *templatePayload, newFields []models.ChecksheetField, changes []FieldChange) {
	var warnings []string
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		updated := payload.toTemplate()
		updates := map[string]interface{}{
			"name":                 updated.Name,
			"html_content":         updated.HTMLContent,
			"field_configurations": updated.FieldConfigurations,
			"css_content":          updated.CSSContent,
		}
		if len(updated.FieldPositions) > 0 {
			updates["field_positions"] = updated.FieldPositions
		}
		if len(updated.Sheets) > 0 {
			updates["sheets"] = updated.Sheets
		}
		if len(updated.AccessControl) > 0 {
			updates["access_control"] = updated.AccessControl
		}
		if updated.FolderID != nil {
			updates["folder_id"] = updated.FolderID
		}
		if err := tx.Model(&models.ChecksheetTemplate{}).
			Where("id = ?", current.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update template: %v", err)
		}

		if err := tx.Where("template_id = ?", current.ID).
			Delete(&models.ChecksheetField{}).Error; err != nil {
			return fmt.Errorf("failed to replace field definitions: %v", err)
		}
		for i := range newFields {
			newFields[i].TemplateID = current.ID
		}
		if len(newFields) > 0 {
			if err := tx.Create(&newFields).Error; err != nil {
				return fmt.Errorf("failed to save field definitions: %v", err)
			}
		}

		// New fields get their columns added individually; a single failed
		// ALTER is logged and skipped, not fatal.
		tm := NewChecksheetTableManager(tx)
		columns, err := tm.TableColumns(current.DBTableName)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(columns))
		for _, c := range columns {
			have[c] = true
		}
		for _, f := range newFields {
			col := ColumnNameForField(f)
			if col == "" {
				warnings = append(warnings, droppedFieldWarnings([]string{f.InstanceID})...)
				continue
			}
			if have[col] {
				continue
			}
			if err := tm.AddFieldColumn(current.DBTableName, f); err != nil {
				log.Printf("Failed to add column for field %s on %s, skipping: %v", f.InstanceID, current.DBTableName, err)
				warnings = append(warnings, fmt.Sprintf("column for field %s could not be added", f.InstanceID))
			}
		}

		refreshed := *current
		refreshed.HTMLContent = payload.HTMLContent
		processed := SaveTemplateImages(tx, &refreshed, payload.Images)
		return tx.Model(&models.ChecksheetTemplate{}).
			Where("id = ?", current.ID).
			Update("processed_html", processed).Error
	})
	if err != nil {
		http.Error(w, "update failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"is_new_version": false,
		"template_id":    current.ID,
		"version":        current.Version,
		"table_name":     current.DBTableName,
		"changes":        changes,
		"warnings":       warnings,
	})
}

// ListChecksheetTemplates lists active templates, optionally by folder.
// GET /api/v1/checksheet/templates?folder_id=
func ListChecksheetTemplates(w http.ResponseWriter, r *http.Request) {
	query := config.DB.Where("is_active = ?", true).Order("created_at DESC")
	if folder := r.URL.Query().Get("folder_id"); folder != "" {
		folderID, err := uuid.Parse(folder)
		if err != nil {
			http.Error(w, "invalid folder id", http.StatusBadRequest)
			return
		}
		query = query.Where("folder_id = ?", folderID)
	}

	var templates []models.ChecksheetTemplate
	if err := query.Find(&templates).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(templates)
}

// GetChecksheetTemplate returns a single template row.
// GET /api/v1/checksheet/templates/{id}
func GetChecksheetTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var template models.ChecksheetTemplate
	if err := config.DB.First(&template, "id = ?", templateID).Error; err != nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(template)
}

// GetChecksheetTemplateFull returns a template with its field definitions
// and image metadata.
// GET /api/v1/checksheet/templates/{id}/full
func GetChecksheetTemplateFull(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	templateID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var template models.ChecksheetTemplate
	if err := config.DB.
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position_index ASC") }).
		First(&template, "id = ?", templateID).Error; err != nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(template)
}

// GetChecksheetTemplateVersions lists every version of a lineage.
// GET /api/v1/checksheet/templates/{id}/versions
func GetChecksheetTemplateVersions(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lineage)
}

// DeleteChecksheetTemplate deletes the entire version lineage a template
// belongs to: every physical table, every field definition, every image and
// every template row. Nothing is orphaned.
// DELETE /api/v1/checksheet/templates/{id}
func DeleteChecksheetTemplate(w http.ResponseWriter, r *http.Request) {
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

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		tm := NewChecksheetTableManager(tx)
		ids := make([]uuid.UUID, 0, len(lineage))
		for _, t := range lineage {
			if err := tm.DropTemplateTables(t.DBTableName); err != nil {
				return err
			}
			ids = append(ids, t.ID)
		}
		if err := tx.Where("template_id IN ?", ids).Delete(&models.ChecksheetImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete images: %v", err)
		}
		if err := tx.Where("template_id IN ?", ids).Delete(&models.ChecksheetField{}).Error; err != nil {
			return fmt.Errorf("failed to delete field definitions: %v", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.ChecksheetTemplate{}).Error; err != nil {
			return fmt.Errorf("failed to delete templates: %v", err)
		}
		return nil
	})
	if err != nil {
		http.Error(w, "delete failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("Deleted checksheet lineage of %s (%d versions)", templateID, len(lineage))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"deleted_versions": len(lineage),
	})
}
