package models

import "testing"

func TestPlanTransitions(t *testing.T) {
	tests := []struct {
		from string
		to   string
		ok   bool
	}{
		{PlanStatusDraft, PlanStatusReleased, true},
		{PlanStatusReleased, PlanStatusInProgress, true},
		{PlanStatusInProgress, PlanStatusCompleted, true},
		{PlanStatusDraft, PlanStatusInProgress, false},
		{PlanStatusDraft, PlanStatusCompleted, false},
		{PlanStatusReleased, PlanStatusCompleted, false},
		{PlanStatusCompleted, PlanStatusInProgress, false},
		{PlanStatusDraft, PlanStatusCancelled, true},
		{PlanStatusReleased, PlanStatusCancelled, true},
		{PlanStatusInProgress, PlanStatusCancelled, true},
		{PlanStatusCompleted, PlanStatusCancelled, false},
		{PlanStatusCancelled, PlanStatusCancelled, false},
		{PlanStatusCancelled, PlanStatusReleased, false},
	}
	for _, tt := range tests {
		p := ProductionPlan{Status: tt.from}
		if got := p.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
