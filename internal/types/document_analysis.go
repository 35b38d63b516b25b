package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentAnalysis is the analyze stage's verdict on one ingested file:
// what it covers and how much it matters for course construction.
type DocumentAnalysis struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	RepoFileID *uuid.UUID     `gorm:"type:uuid;index" json:"repo_file_id,omitempty"`
	Title      string         `gorm:"column:title" json:"title"`
	Summary    string         `gorm:"column:summary" json:"summary"`
	Topics     datatypes.JSON `gorm:"type:jsonb;column:topics" json:"topics"`
	Importance int            `gorm:"column:importance;not null;default:0" json:"importance"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentAnalysis) TableName() string { return "document_analysis" }
