// Package meta loads and caches table metadata.
//
// The store hands out snapshots: a Model is loaded together with its
// columns in a single read, so a request never observes a half-applied
// schema change. Mutating handlers call Invalidate after committing.
package meta

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Store is the metadata access layer
type Store struct {
	db    *gorm.DB
	cache *cache.Cache
	log   zerolog.Logger
}

// NewStore creates a metadata store backed by the platform database
func NewStore(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{
		db:    db,
		cache: cache.New(cacheTTL, cacheCleanup),
		log:   log.With().Str("component", "meta").Logger(),
	}
}

// GetModel returns a model with its columns loaded, ordered by column order.
func (s *Store) GetModel(id uuid.UUID) (*models.Model, error) {
	key := "model:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.Model), nil
	}

	var model models.Model
	err := s.db.
		Preload("Columns", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC, created_at ASC`)
		}).
		Where("id = ? AND is_active = ?", id, true).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("table")
		}
		s.log.Error().Err(err).Str("model_id", id.String()).Msg("failed to load model")
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &model, cache.DefaultExpiration)
	return &model, nil
}

// GetModelByTitle resolves a model within a project by its title.
func (s *Store) GetModelByTitle(projectID uuid.UUID, title string) (*models.Model, error) {
	key := fmt.Sprintf("model:%s:%s", projectID, title)
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.Model), nil
	}

	var model models.Model
	err := s.db.
		Preload("Columns", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC, created_at ASC`)
		}).
		Where("project_id = ? AND title = ? AND is_active = ?", projectID, title, true).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("table")
		}
		s.log.Error().Err(err).Str("title", title).Msg("failed to load model by title")
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &model, cache.DefaultExpiration)
	return &model, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(id uuid.UUID) (*models.Project, error) {
	key := "project:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.Project), nil
	}

	var project models.Project
	err := s.db.Where("id = ? AND is_active = ?", id, true).First(&project).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("project")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &project, cache.DefaultExpiration)
	return &project, nil
}

// GetView resolves a view of a model by title, with its per-view
// columns, filters and sorts loaded.
func (s *Store) GetView(modelID uuid.UUID, title string) (*models.View, error) {
	key := fmt.Sprintf("view:%s:%s", modelID, title)
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.View), nil
	}

	var view models.View
	err := s.db.
		Preload("Columns", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC`)
		}).
		Preload("Filters").
		Preload("Sorts", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC`)
		}).
		Where("model_id = ? AND title = ?", modelID, title).
		First(&view).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("view")
		}
		s.log.Error().Err(err).Str("view", title).Msg("failed to load view")
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &view, cache.DefaultExpiration)
	return &view, nil
}

// GetLinkOption returns the link options of a LinkToAnotherRecord column.
func (s *Store) GetLinkOption(columnID uuid.UUID) (*models.LinkColumnOption, error) {
	key := "linkopt:" + columnID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.LinkColumnOption), nil
	}

	var opt models.LinkColumnOption
	if err := s.db.Where("column_id = ?", columnID).First(&opt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewConfigurationError("link column has no relation options")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &opt, cache.DefaultExpiration)
	return &opt, nil
}

// GetLookupOption returns the options of a Lookup column.
func (s *Store) GetLookupOption(columnID uuid.UUID) (*models.LookupColumnOption, error) {
	key := "lookupopt:" + columnID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.LookupColumnOption), nil
	}

	var opt models.LookupColumnOption
	if err := s.db.Where("column_id = ?", columnID).First(&opt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewConfigurationError("lookup column has no options")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &opt, cache.DefaultExpiration)
	return &opt, nil
}

// GetRollupOption returns the options of a Rollup column.
func (s *Store) GetRollupOption(columnID uuid.UUID) (*models.RollupColumnOption, error) {
	key := "rollupopt:" + columnID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.RollupColumnOption), nil
	}

	var opt models.RollupColumnOption
	if err := s.db.Where("column_id = ?", columnID).First(&opt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewConfigurationError("rollup column has no options")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &opt, cache.DefaultExpiration)
	return &opt, nil
}

// GetColumn returns a single column by id.
func (s *Store) GetColumn(id uuid.UUID) (*models.Column, error) {
	key := "column:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.Column), nil
	}

	var col models.Column
	if err := s.db.Where("id = ?", id).First(&col).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("column")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, &col, cache.DefaultExpiration)
	return &col, nil
}

// LinksInto returns the link columns of other models pointing at the
// given model, used by the delete dependency check.
func (s *Store) LinksInto(modelID uuid.UUID) ([]models.LinkColumnOption, error) {
	key := "linksinto:" + modelID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.([]models.LinkColumnOption), nil
	}

	var opts []models.LinkColumnOption
	if err := s.db.Where("related_model_id = ?", modelID).Find(&opts).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Set(key, opts, cache.DefaultExpiration)
	return opts, nil
}

// Invalidate drops every cached snapshot. Called after any schema
// mutation; per-key invalidation is not worth the bookkeeping at the
// cache's scale.
func (s *Store) Invalidate() {
	s.cache.Flush()
}

// DB exposes the underlying handle for meta management handlers.
func (s *Store) DB() *gorm.DB {
	return s.db
}
