// handlers/user_management.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

// GetAllUsers returns a paginated listing for the admin console.
func GetAllUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	q := config.DB.Model(&models.User{})
	if role := r.URL.Query().Get("role"); role != "" {
		q = q.Where("role = ?", role)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		q = q.Where("name ILIKE ? OR email ILIKE ? OR phone ILIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var users []models.User
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]interface{}{
			"id":         u.ID,
			"name":       u.Name,
			"email":      u.Email,
			"phone":      u.Phone,
			"role":       u.Role,
			"is_active":  u.IsActive,
			"created_at": u.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"users": out,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func GetUserByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var u models.User
	if err := config.DB.First(&u, "id = ?", id).Error; err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userPayload{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Role:  u.Role,
	})
}

type roleUpdateReq struct {
	Role string `json:"role"`
}

// UpdateUserRole changes a user's role. Admins cannot demote themselves,
// which keeps at least one admin reachable.
func UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req roleUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	switch req.Role {
	case models.RoleAdmin, models.RoleSupervisor, models.RoleOperator:
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if claims := middleware.GetClaims(r); claims != nil && claims.UserID == id && req.Role != models.RoleAdmin {
		http.Error(w, "cannot change your own role", http.StatusBadRequest)
		return
	}

	res := config.DB.Model(&models.User{}).Where("id = ?", id).Update("role", req.Role)
	if res.Error != nil {
		http.Error(w, "db error: "+res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "role updated"})
}

type activeUpdateReq struct {
	IsActive bool `json:"is_active"`
}

// SetUserActive activates or deactivates an account. Deactivated users
// can no longer log in; existing tokens expire on their own.
func SetUserActive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req activeUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if claims := middleware.GetClaims(r); claims != nil && claims.UserID == id && !req.IsActive {
		http.Error(w, "cannot deactivate your own account", http.StatusBadRequest)
		return
	}

	res := config.DB.Model(&models.User{}).Where("id = ?", id).Update("is_active", req.IsActive)
	if res.Error != nil {
		http.Error(w, "db error: "+res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "is_active": req.IsActive})
}
