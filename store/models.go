package store

import (
	"time"
)

// Project is one visual workflow project.
type Project struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsDeleted   bool      `gorm:"index" json:"is_deleted"`
}

// GraphVersion is one stored revision of a project's graph. The draft
// version of a tag is overwritten in place; published versions are
// immutable.
type GraphVersion struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ProjectID    string    `gorm:"size:36;index;not null" json:"project_id"`
	VersionTag   string    `gorm:"size:100;index;default:main" json:"version_tag"`
	GraphJSON    string    `gorm:"type:text" json:"graph_json"`
	RenderedCode string    `gorm:"type:text" json:"rendered_code"`
	IsDraft      bool      `gorm:"index" json:"is_draft"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
