package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pathway is one learning track synthesized from the analyzed documents.
// The pathways stage writes the tree; the generate stage fills module
// content in place.
type Pathway struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Index       int            `gorm:"column:index;not null;default:0" json:"index"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Pathway) TableName() string { return "pathway" }

// PathwayModule is one unit inside a pathway. ContentMD stays empty until
// the generate stage augments the row.
type PathwayModule struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PathwayID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"pathway_id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Index       int            `gorm:"column:index;not null;default:0" json:"index"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Summary     string         `gorm:"column:summary" json:"summary"`
	SourcePaths datatypes.JSON `gorm:"type:jsonb;column:source_paths" json:"source_paths"`
	ContentMD   string         `gorm:"column:content_md" json:"content_md"`
	GeneratedAt *time.Time     `gorm:"column:generated_at" json:"generated_at,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PathwayModule) TableName() string { return "pathway_module" }
