package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/flowforge/flowforge/types"
)

// Store wraps the project database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the database named by driver ("sqlite", "mysql",
// "postgres") and migrates the schema.
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unsupported database driver %q", driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "open database").WithCause(err)
	}
	if err := db.AutoMigrate(&Project{}, &GraphVersion{}); err != nil {
		return nil, types.NewError(types.ErrInternalError, "migrate schema").WithCause(err)
	}

	logger.Info("store opened", zap.String("driver", driver))
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateProject inserts a new project with a fresh draft version.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "project name is required")
	}
	project := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		draft := &GraphVersion{
			ID:         uuid.NewString(),
			ProjectID:  project.ID,
			VersionTag: "main",
			GraphJSON:  "{}",
			IsDraft:    true,
		}
		return tx.Create(draft).Error
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "create project").WithCause(err)
	}
	return project, nil
}

// GetProject returns a live project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("project %s not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "load project").WithCause(err)
	}
	return &project, nil
}

// ListProjects returns all live projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "list projects").WithCause(err)
	}
	return projects, nil
}

// UpdateProject changes a project's name and description.
func (s *Store) UpdateProject(ctx context.Context, id, name, description string) (*Project, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Name = name
	project.Description = description
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "update project").WithCause(err)
	}
	return project, nil
}

// DeleteProject soft-deletes a project.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	project.IsDeleted = true
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return types.NewError(types.ErrInternalError, "delete project").WithCause(err)
	}
	return nil
}

// SaveDraft upserts the draft version of a project's tag with the given
// graph JSON and rendered code.
func (s *Store) SaveDraft(ctx context.Context, projectID, versionTag, graphJSON, renderedCode string) (*GraphVersion, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if versionTag == "" {
		versionTag = "main"
	}

	var version GraphVersion
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND version_tag = ? AND is_draft = ?", projectID, versionTag, true).
		First(&version).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		version = GraphVersion{
			ID:         uuid.NewString(),
			ProjectID:  projectID,
			VersionTag: versionTag,
			IsDraft:    true,
		}
	case err != nil:
		return nil, types.NewError(types.ErrInternalError, "load draft").WithCause(err)
	}

	version.GraphJSON = graphJSON
	version.RenderedCode = renderedCode
	version.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&version).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "save draft").WithCause(err)
	}
	return &version, nil
}

// PublishDraft freezes the current draft of a tag as an immutable version
// and starts a fresh draft carrying the same content.
func (s *Store) PublishDraft(ctx context.Context, projectID, versionTag string) (*GraphVersion, error) {
	if versionTag == "" {
		versionTag = "main"
	}
	var draft GraphVersion
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND version_tag = ? AND is_draft = ?", projectID, versionTag, true).
		First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("no draft for project %s tag %s", projectID, versionTag))
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "load draft").WithCause(err)
	}

	published := draft
	published.ID = uuid.NewString()
	published.IsDraft = false
	published.CreatedAt = time.Time{}
	published.UpdatedAt = time.Time{}
	if err := s.db.WithContext(ctx).Create(&published).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "publish draft").WithCause(err)
	}
	return &published, nil
}

// GetVersion returns a version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (*GraphVersion, error) {
	var version GraphVersion
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("version %s not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "load version").WithCause(err)
	}
	return &version, nil
}

// ListVersions returns all versions of a project, drafts first, newest
// first within each group.
func (s *Store) ListVersions(ctx context.Context, projectID string) ([]GraphVersion, error) {
	var versions []GraphVersion
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("is_draft DESC, created_at DESC").
		Find(&versions).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "list versions").WithCause(err)
	}
	return versions, nil
}
