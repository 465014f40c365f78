package persistence

import (
	"context"
	"errors"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormGrantRepository implements privilege.GrantRepository using GORM
type GormGrantRepository struct {
	db *gorm.DB
}

// NewGormGrantRepository creates a new GormGrantRepository
func NewGormGrantRepository(db *gorm.DB) *GormGrantRepository {
	return &GormGrantRepository{db: db}
}

// Save creates or replaces the grant for (plan, privilege name). An
// upsert keeps exactly one grant per pair under concurrent admin writes.
func (r *GormGrantRepository) Save(ctx context.Context, grant *privilege.Grant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "plan_id"}, {Name: "privilege_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"privilege_id", "allowed_value", "period_length",
				"daily_limit", "weekly_limit", "monthly_limit", "updated_at",
			}),
		}).
		Create(grant).Error
}

// FindByID finds a grant by its ID
func (r *GormGrantRepository) FindByID(ctx context.Context, id uuid.UUID) (*privilege.Grant, error) {
	var grant privilege.Grant
	if err := r.db.WithContext(ctx).First(&grant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// FindByPlan finds all grants for a plan
func (r *GormGrantRepository) FindByPlan(ctx context.Context, planID string) ([]*privilege.Grant, error) {
	var grants []*privilege.Grant
	if err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("privilege_name ASC").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// FindByPlanAndName finds the grant for a plan and privilege name
func (r *GormGrantRepository) FindByPlanAndName(ctx context.Context, planID, privilegeName string) (*privilege.Grant, error) {
	var grant privilege.Grant
	if err := r.db.WithContext(ctx).
		Where("plan_id = ? AND privilege_name = ?", planID, privilegeName).
		First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// Delete removes a grant
func (r *GormGrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&privilege.Grant{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
