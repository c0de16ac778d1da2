package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChecksheetTemplate is one published version of a checksheet form design.
// Version 1 rows have a nil ParentTemplateID; forked versions point back at
// the lineage root. Exactly one version per lineage is active at a time.
type ChecksheetTemplate struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name                string         `gorm:"size:255;not null" json:"name"`
	HTMLContent         string         `gorm:"type:text" json:"html_content"`
	ProcessedHTML       string         `gorm:"type:text" json:"processed_html,omitempty"`
	FieldConfigurations datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"field_configurations,omitempty"`
	FieldPositions      datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"field_positions,omitempty"`
	Sheets              datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"sheets,omitempty"`
	CSSContent          string         `gorm:"type:text" json:"css_content,omitempty"`
	AccessControl       datatypes.JSON `gorm:"type:jsonb" json:"access_control,omitempty"`

	// DBTableName is assigned exactly once at publish time and never reused.
	DBTableName string `gorm:"column:table_name;size:255;uniqueIndex;not null" json:"table_name"`

	Version          int        `gorm:"not null;default:1" json:"version"`
	ParentTemplateID *uuid.UUID `gorm:"type:uuid;index" json:"parent_template_id,omitempty"`
	IsActive         bool       `gorm:"not null;default:true" json:"is_active"`
	FolderID         *uuid.UUID `gorm:"type:uuid;index" json:"folder_id,omitempty"`
	CreatedBy        string     `gorm:"size:255" json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`

	Fields []ChecksheetField `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"fields,omitempty"`
	Images []ChecksheetImage `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

func (ChecksheetTemplate) TableName() string {
	return "checksheet_templates"
}

func (t *ChecksheetTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// LineageRootID returns the id of version 1 of this template's lineage.
func (t *ChecksheetTemplate) LineageRootID() uuid.UUID {
	if t.ParentTemplateID != nil {
		return *t.ParentTemplateID
	}
	return t.ID
}

// ChecksheetField is one form field of one template version. InstanceID is
// stable across edits; FieldName drives physical column derivation.
type ChecksheetField struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	TemplateID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_checksheet_fields_instance" json:"template_id"`
	InstanceID string         `gorm:"size:255;not null;uniqueIndex:uq_checksheet_fields_instance" json:"instance_id"`
	FieldName  string         `gorm:"size:255;not null" json:"field_name"`
	Label      string         `gorm:"size:255" json:"label,omitempty"`
	FieldType  string         `gorm:"size:50;not null" json:"field_type"`
	Required   bool           `gorm:"default:false" json:"required"`
	Disabled   bool           `gorm:"default:false" json:"disabled"`
	Position   int            `gorm:"default:0" json:"position"`
	SheetIndex int            `gorm:"default:0" json:"sheet_index"`
	Config     datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"config,omitempty"`
}

func (ChecksheetField) TableName() string {
	return "checksheet_fields"
}

func (f *ChecksheetField) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}

// ChecksheetImage is an embedded template image. Content holds the binary
// base64-encoded. PositionIndex establishes document order and is unique
// within a template; collisions advance to the next free slot at save time.
type ChecksheetImage struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TemplateID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_checksheet_images_position" json:"template_id"`
	Filename      string    `gorm:"size:255;not null" json:"filename"`
	MimeType      string    `gorm:"size:100" json:"mime_type"`
	Content       string    `gorm:"type:text" json:"-"`
	ByteSize      int       `gorm:"default:0" json:"byte_size"`
	PositionIndex int       `gorm:"not null;uniqueIndex:uq_checksheet_images_position" json:"position_index"`
	OriginalSrc   string    `gorm:"type:text" json:"original_src,omitempty"`
	ElementID     string    `gorm:"size:100" json:"element_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ChecksheetImage) TableName() string {
	return "checksheet_images"
}

func (i *ChecksheetImage) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}

// ChecksheetFolder organizes templates in a self-referencing hierarchy.
// Item counts are computed recursively at read time, not stored.
type ChecksheetFolder struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	CreatedBy string     `gorm:"size:255" json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (ChecksheetFolder) TableName() string {
	return "checksheet_folders"
}

func (f *ChecksheetFolder) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}
