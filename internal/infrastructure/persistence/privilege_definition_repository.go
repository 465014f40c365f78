package persistence

import (
	"context"
	"errors"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDefinitionRepository implements privilege.DefinitionRepository using GORM
type GormDefinitionRepository struct {
	db *gorm.DB
}

// NewGormDefinitionRepository creates a new GormDefinitionRepository
func NewGormDefinitionRepository(db *gorm.DB) *GormDefinitionRepository {
	return &GormDefinitionRepository{db: db}
}

// Save persists a new privilege definition
func (r *GormDefinitionRepository) Save(ctx context.Context, def *privilege.Definition) error {
	return r.db.WithContext(ctx).Create(def).Error
}

// Update updates an existing privilege definition
func (r *GormDefinitionRepository) Update(ctx context.Context, def *privilege.Definition) error {
	result := r.db.WithContext(ctx).Save(def)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a definition by its ID
func (r *GormDefinitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*privilege.Definition, error) {
	var def privilege.Definition
	if err := r.db.WithContext(ctx).First(&def, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &def, nil
}

// FindByName finds a definition by its stable name (exact match)
func (r *GormDefinitionRepository) FindByName(ctx context.Context, name string) (*privilege.Definition, error) {
	var def privilege.Definition
	if err := r.db.WithContext(ctx).First(&def, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &def, nil
}

// List retrieves definitions matching the filter, with total count
func (r *GormDefinitionRepository) List(ctx context.Context, filter shared.Filter) ([]*privilege.Definition, int64, error) {
	query := r.db.WithContext(ctx).Model(&privilege.Definition{})

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR display_name LIKE ?", pattern, pattern)
	}
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := filter.OrderDir
	if orderDir != "asc" && orderDir != "desc" {
		orderDir = "desc"
	}
	query = query.Order(orderBy + " " + orderDir)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var defs []*privilege.Definition
	if err := query.Find(&defs).Error; err != nil {
		return nil, 0, err
	}
	return defs, total, nil
}
