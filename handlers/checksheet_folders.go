package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

type folderPayload struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

// CreateChecksheetFolder creates a folder. Sibling names must be unique.
// POST /api/v1/checksheet/folders
func CreateChecksheetFolder(w http.ResponseWriter, r *http.Request) {
	var payload folderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "folder name is required", http.StatusBadRequest)
		return
	}

	folder := models.ChecksheetFolder{
		Name:      strings.TrimSpace(payload.Name),
		ParentID:  payload.ParentID,
		CreatedBy: middleware.GetUserID(r),
	}

	var count int64
	q := config.DB.Model(&models.ChecksheetFolder{}).Where("name = ?", folder.Name)
	if folder.ParentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", folder.ParentID)
	}
	if err := q.Count(&count).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if count > 0 {
		http.Error(w, "a folder with this name already exists here", http.StatusBadRequest)
		return
	}

	if err := config.DB.Create(&folder).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(folder)
}

type folderOut struct {
	models.ChecksheetFolder
	TemplateCount int `json:"template_count"`
	FolderCount   int `json:"folder_count"`
}

// ListChecksheetFolders lists folders (optionally children of parent_id)
// with recursively computed item counts.
// GET /api/v1/checksheet/folders?parent_id=
func ListChecksheetFolders(w http.ResponseWriter, r *http.Request) {
	query := config.DB.Order("name ASC")
	if parent := r.URL.Query().Get("parent_id"); parent != "" {
		parentID, err := uuid.Parse(parent)
		if err != nil {
			http.Error(w, "invalid parent id", http.StatusBadRequest)
			return
		}
		query = query.Where("parent_id = ?", parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var folders []models.ChecksheetFolder
	if err := query.Find(&folders).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]folderOut, 0, len(folders))
	for _, f := range folders {
		templates, subfolders := countFolderItems(config.DB, f.ID)
		out = append(out, folderOut{ChecksheetFolder: f, TemplateCount: templates, FolderCount: subfolders})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// countFolderItems walks the subtree rooted at folderID and counts
// templates and folders. Counts are computed at read time, never stored.
func countFolderItems(db *gorm.DB, folderID uuid.UUID) (templates int, folders int) {
	var templateCount int64
	db.Model(&models.ChecksheetTemplate{}).
		Where("folder_id = ? AND is_active = ?", folderID, true).
		Count(&templateCount)
	templates = int(templateCount)

	var children []models.ChecksheetFolder
	if err := db.Where("parent_id = ?", folderID).Find(&children).Error; err != nil {
		return templates, folders
	}
	folders = len(children)
	for _, c := range children {
		t, f := countFolderItems(db, c.ID)
		templates += t
		folders += f
	}
	return templates, folders
}

// UpdateChecksheetFolder renames or reparents a folder.
// PUT /api/v1/checksheet/folders/{id}
func UpdateChecksheetFolder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	folderID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid folder id", http.StatusBadRequest)
		return
	}

	var folder models.ChecksheetFolder
	if err := config.DB.First(&folder, "id = ?", folderID).Error; err != nil {
		http.Error(w, "folder not found", http.StatusNotFound)
		return
	}

	var payload folderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) != "" {
		folder.Name = strings.TrimSpace(payload.Name)
	}
	if payload.ParentID != nil {
		if *payload.ParentID == folder.ID {
			http.Error(w, "folder cannot be its own parent", http.StatusBadRequest)
			return
		}
		folder.ParentID = payload.ParentID
	}

	if err := config.DB.Save(&folder).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(folder)
}

// DeleteChecksheetFolder deletes an empty folder. Deleting a folder that
// still contains templates or subfolders is rejected.
// DELETE /api/v1/checksheet/folders/{id}
func DeleteChecksheetFolder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	folderID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid folder id", http.StatusBadRequest)
		return
	}

	templates, folders := countFolderItems(config.DB, folderID)
	if templates > 0 || folders > 0 {
		http.Error(w, fmt.Sprintf("folder is not empty (%d templates, %d folders)", templates, folders), http.StatusBadRequest)
		return
	}

	res := config.DB.Where("id = ?", folderID).Delete(&models.ChecksheetFolder{})
	if res.Error != nil {
		http.Error(w, "db error: "+res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "folder not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type bulkMovePayload struct {
	TemplateIDs []uuid.UUID `json:"template_ids"`
}

// MoveTemplatesToFolder moves a batch of templates into a folder, or back
// to the root when {id} is the literal "root".
// PUT /api/v1/checksheet/folders/{id}/templates
func MoveTemplatesToFolder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var target *uuid.UUID
	if vars["id"] != "root" {
		folderID, err := uuid.Parse(vars["id"])
		if err != nil {
			http.Error(w, "invalid folder id", http.StatusBadRequest)
			return
		}
		var folder models.ChecksheetFolder
		if err := config.DB.First(&folder, "id = ?", folderID).Error; err != nil {
			http.Error(w, "folder not found", http.StatusNotFound)
			return
		}
		target = &folderID
	}

	var payload bulkMovePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if len(payload.TemplateIDs) == 0 {
		http.Error(w, "template_ids is required", http.StatusBadRequest)
		return
	}

	res := config.DB.Model(&models.ChecksheetTemplate{}).
		Where("id IN ?", payload.TemplateIDs).
		Update("folder_id", target)
	if res.Error != nil {
		http.Error(w, "db error: "+res.Error.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"moved": res.RowsAffected,
	})
}
