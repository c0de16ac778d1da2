package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Production plan statuses.
const (
	PlanStatusDraft      = "draft"
	PlanStatusReleased   = "released"
	PlanStatusInProgress = "in_progress"
	PlanStatusCompleted  = "completed"
	PlanStatusCancelled  = "cancelled"
)

type ProductionPlan struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code            string     `gorm:"size:50;uniqueIndex;not null" json:"code"`
	ProductName     string     `gorm:"size:255;not null" json:"product_name"`
	Line            string     `gorm:"size:100" json:"line,omitempty"`
	PlannedQuantity int        `gorm:"not null;default:0" json:"planned_quantity"`
	ProducedQuantity int       `gorm:"not null;default:0" json:"produced_quantity"`
	PlannedStart    *time.Time `json:"planned_start,omitempty"`
	PlannedEnd      *time.Time `json:"planned_end,omitempty"`
	Status          string     `gorm:"size:50;not null;default:'draft';index" json:"status"`
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy       string     `gorm:"size:255" json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (ProductionPlan) TableName() string {
	return "production_plans"
}

func (p *ProductionPlan) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

// CanTransitionTo reports whether moving the plan to newStatus is legal.
// Cancellation is allowed from any non-terminal status.
func (p *ProductionPlan) CanTransitionTo(newStatus string) bool {
	if newStatus == PlanStatusCancelled {
		return p.Status != PlanStatusCompleted && p.Status != PlanStatusCancelled
	}
	switch p.Status {
	case PlanStatusDraft:
		return newStatus == PlanStatusReleased
	case PlanStatusReleased:
		return newStatus == PlanStatusInProgress
	case PlanStatusInProgress:
		return newStatus == PlanStatusCompleted
	}
	return false
}
