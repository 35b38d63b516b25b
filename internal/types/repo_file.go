package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RepoFile is one discovered file from the ingest stage.
type RepoFile struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Path      string         `gorm:"column:path;not null" json:"path"`
	Language  string         `gorm:"column:language" json:"language"`
	Kind      string         `gorm:"column:kind" json:"kind"` // code|doc|config|other
	SizeBytes int64          `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	SHA       string         `gorm:"column:sha" json:"sha"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RepoFile) TableName() string { return "repo_file" }
