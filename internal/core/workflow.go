package core

import "time"

// WorkflowStatus represents the state of a correlation record.
type WorkflowStatus string

const (
	WorkflowStatusPending  WorkflowStatus = "PENDING"
	WorkflowStatusResolved WorkflowStatus = "RESOLVED"
)

// DefaultWorkflowTTL bounds how long an unresolved call is kept.
const DefaultWorkflowTTL = 300 * time.Second

// Workflow correlates a cross-actor call with its eventual result.
type Workflow struct {
	WorkflowID string         `json:"workflowId"`
	Status     WorkflowStatus `json:"status"`
	Output     Payload        `json:"output,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

// IsResolved reports whether the record has transitioned to RESOLVED.
func (w *Workflow) IsResolved() bool {
	return w.Status == WorkflowStatusResolved
}

// Expired reports whether the record is past its expiry at now.
func (w *Workflow) Expired(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && w.ExpiresAt.Before(now)
}
