package reports

import (
	"time"

	"github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// Status enum
type Status string

const (
	StatusSubmitted    Status = "Submitted"
	StatusAcknowledged Status = "Acknowledged"
	StatusInProgress   Status = "In Progress"
	StatusResolved     Status = "Resolved"
	StatusRejected     Status = "Rejected"
)

// Priority enum
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Unassigned is the department used when routing finds no match.
const Unassigned = "Unassigned"

// MLAnalysis is the image analysis block stored on a report.
type MLAnalysis struct {
	Label      string          `json:"label"`
	Severity   float64         `json:"severity"`
	Confidence float64         `json:"confidence"`
	Source     analysis.Source `json:"source"`
	Category   string          `json:"category,omitempty"` // mapped category, empty when no match
	AnalyzedAt time.Time       `json:"analyzed_at"`
}

// Report is the citizen-submitted issue. Only the analysis-related fields
// are written by this service.
type Report struct {
	ID                 string      `json:"id"`
	OwnerID            string      `json:"owner_id"`
	Title              string      `json:"title"`
	Category           string      `json:"category"`
	Status             Status      `json:"status"`
	Priority           Priority    `json:"priority"`
	AssignedDepartment string      `json:"assigned_department,omitempty"`
	PhotoURL           string      `json:"photo_url,omitempty"`
	PhotoPublicID      string      `json:"photo_public_id,omitempty"`
	S3Key              string      `json:"s3_key,omitempty"`
	S3Bucket           string      `json:"s3_bucket,omitempty"`
	AITags             []string    `json:"ai_tags,omitempty"`
	ML                 *MLAnalysis `json:"ml,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Route is the routing table entry for a category.
type Route struct {
	Department string   `json:"department" yaml:"department"`
	Priority   Priority `json:"priority" yaml:"priority"`
}

// Notification is the "report updated" event addressed to the report owner.
type Notification struct {
	OwnerID  string  `json:"-"`
	ReportID string  `json:"reportId"`
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	Report   *Report `json:"report"`
}
