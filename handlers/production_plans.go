// handlers/production_plans.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"p9e.in/mfgops/config"
	"p9e.in/mfgops/middleware"
	"p9e.in/mfgops/models"
)

type productionPlanReq struct {
	Code            string     `json:"code"`
	ProductName     string     `json:"product_name"`
	Line            string     `json:"line"`
	PlannedQuantity int        `json:"planned_quantity"`
	PlannedStart    *time.Time `json:"planned_start"`
	PlannedEnd      *time.Time `json:"planned_end"`
	Notes           string     `json:"notes"`
}

func CreateProductionPlan(w http.ResponseWriter, r *http.Request) {
	var req productionPlanReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.ProductName == "" {
		http.Error(w, "code and product_name are required", http.StatusBadRequest)
		return
	}
	if req.PlannedQuantity < 0 {
		http.Error(w, "planned_quantity cannot be negative", http.StatusBadRequest)
		return
	}
	if req.PlannedStart != nil && req.PlannedEnd != nil && req.PlannedEnd.Before(*req.PlannedStart) {
		http.Error(w, "planned_end is before planned_start", http.StatusBadRequest)
		return
	}

	plan := models.ProductionPlan{
		Code:            req.Code,
		ProductName:     req.ProductName,
		Line:            req.Line,
		PlannedQuantity: req.PlannedQuantity,
		PlannedStart:    req.PlannedStart,
		PlannedEnd:      req.PlannedEnd,
		Status:          models.PlanStatusDraft,
		Notes:           req.Notes,
	}
	if claims := middleware.GetClaims(r); claims != nil {
		plan.CreatedBy = claims.UserID
	}

	if err := config.DB.Create(&plan).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "plan code already exists", http.StatusConflict)
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(plan)
}

func ListProductionPlans(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	q := config.DB.Model(&models.ProductionPlan{})
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if line := r.URL.Query().Get("line"); line != "" {
		q = q.Where("line = ?", line)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		q = q.Where("code ILIKE ? OR product_name ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var plans []models.ProductionPlan
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&plans).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"plans": plans,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func GetProductionPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var plan models.ProductionPlan
	if err := config.DB.First(&plan, "id = ?", id).Error; err != nil {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// UpdateProductionPlan edits plan fields. Quantities and schedule stay
// editable through in_progress; terminal plans are read-only.
func UpdateProductionPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var plan models.ProductionPlan
	if err := config.DB.First(&plan, "id = ?", id).Error; err != nil {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	if plan.Status == models.PlanStatusCompleted || plan.Status == models.PlanStatusCancelled {
		http.Error(w, "plan is "+plan.Status+" and cannot be edited", http.StatusBadRequest)
		return
	}

	var req struct {
		productionPlanReq
		ProducedQuantity *int `json:"produced_quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.PlannedQuantity < 0 {
		http.Error(w, "planned_quantity cannot be negative", http.StatusBadRequest)
		return
	}
	if req.ProducedQuantity != nil && *req.ProducedQuantity < 0 {
		http.Error(w, "produced_quantity cannot be negative", http.StatusBadRequest)
		return
	}

	if req.Code != "" {
		plan.Code = req.Code
	}
	if req.ProductName != "" {
		plan.ProductName = req.ProductName
	}
	plan.Line = req.Line
	plan.PlannedQuantity = req.PlannedQuantity
	plan.PlannedStart = req.PlannedStart
	plan.PlannedEnd = req.PlannedEnd
	plan.Notes = req.Notes
	if req.ProducedQuantity != nil {
		plan.ProducedQuantity = *req.ProducedQuantity
	}
	if plan.PlannedStart != nil && plan.PlannedEnd != nil && plan.PlannedEnd.Before(*plan.PlannedStart) {
		http.Error(w, "planned_end is before planned_start", http.StatusBadRequest)
		return
	}

	if err := config.DB.Save(&plan).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

type planStatusReq struct {
	Status string `json:"status"`
}

// UpdateProductionPlanStatus advances the plan through its lifecycle.
func UpdateProductionPlanStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req planStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	var plan models.ProductionPlan
	if err := config.DB.First(&plan, "id = ?", id).Error; err != nil {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	if !plan.CanTransitionTo(req.Status) {
		http.Error(w, "cannot move plan from "+plan.Status+" to "+req.Status, http.StatusBadRequest)
		return
	}

	if err := config.DB.Model(&plan).Update("status", req.Status).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	plan.Status = req.Status
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

func DeleteProductionPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var plan models.ProductionPlan
	if err := config.DB.First(&plan, "id = ?", id).Error; err != nil {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	if plan.Status != models.PlanStatusDraft && plan.Status != models.PlanStatusCancelled {
		http.Error(w, "only draft or cancelled plans can be deleted", http.StatusBadRequest)
		return
	}
	if err := config.DB.Delete(&plan).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
