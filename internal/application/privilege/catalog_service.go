package privilege

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateDefinitionInput contains input for creating a privilege definition
type CreateDefinitionInput struct {
	Name        string
	DisplayName string
	Description string
}

// UpdateDefinitionInput contains input for updating a privilege definition.
// The stable name is immutable and therefore absent here.
type UpdateDefinitionInput struct {
	DisplayName string
	Description string
}

// ListDefinitionsQuery contains filter options for catalog listings
type ListDefinitionsQuery struct {
	Page     int
	PageSize int
	Search   string
	Status   string
}

// UpsertGrantInput contains input for attaching a privilege to a plan.
// A zero PeriodLength keeps the default calendar-month ledger period.
type UpsertGrantInput struct {
	PlanID        string
	PrivilegeName string
	AllowedValue  int64
	PeriodLength  time.Duration
	DailyLimit    *int64
	WeeklyLimit   *int64
	MonthlyLimit  *int64
}

// CatalogService manages the privilege catalog and the per-plan grants
// built on it. Grant changes invalidate the plan's cached grants so the
// usage path observes them promptly.
type CatalogService struct {
	definitionRepo privilege.DefinitionRepository
	grantRepo      privilege.GrantRepository
	cache          GrantCache
	logger         *zap.Logger
}

// NewCatalogService creates a new CatalogService. cache may be nil.
func NewCatalogService(
	definitionRepo privilege.DefinitionRepository,
	grantRepo privilege.GrantRepository,
	cache GrantCache,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		definitionRepo: definitionRepo,
		grantRepo:      grantRepo,
		cache:          cache,
		logger:         logger,
	}
}

// CreateDefinition adds a new privilege to the catalog
func (s *CatalogService) CreateDefinition(ctx context.Context, input CreateDefinitionInput) (*privilege.Definition, error) {
	def, err := privilege.NewDefinition(input.Name, input.DisplayName)
	if err != nil {
		return nil, err
	}
	def.WithDescription(input.Description)

	existing, err := s.definitionRepo.FindByName(ctx, def.Name)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing definition: %w", err)
	}
	if existing != nil {
		return nil, shared.NewDomainError("PRIVILEGE_EXISTS", "A privilege with this name already exists")
	}

	if err := s.definitionRepo.Save(ctx, def); err != nil {
		s.logger.Error("Failed to save privilege definition",
			zap.String("name", def.Name),
			zap.Error(err))
		return nil, fmt.Errorf("save definition: %w", err)
	}

	s.logger.Info("Privilege definition created",
		zap.String("definition_id", def.ID.String()),
		zap.String("name", def.Name))
	return def, nil
}

// UpdateDefinition changes a definition's display name and description
func (s *CatalogService) UpdateDefinition(ctx context.Context, id uuid.UUID, input UpdateDefinitionInput) (*privilege.Definition, error) {
	def, err := s.definitionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PRIVILEGE_NOT_FOUND", "Privilege definition not found")
		}
		return nil, fmt.Errorf("find definition: %w", err)
	}

	if err := def.Update(input.DisplayName, input.Description); err != nil {
		return nil, err
	}

	if err := s.definitionRepo.Update(ctx, def); err != nil {
		return nil, fmt.Errorf("update definition: %w", err)
	}
	return def, nil
}

// ArchiveDefinition soft-deletes a definition. Existing grants keep
// working; the definition only disappears from active catalog listings
// and can no longer be attached to plans.
func (s *CatalogService) ArchiveDefinition(ctx context.Context, id uuid.UUID) error {
	def, err := s.definitionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("PRIVILEGE_NOT_FOUND", "Privilege definition not found")
		}
		return fmt.Errorf("find definition: %w", err)
	}

	def.Archive()
	if err := s.definitionRepo.Update(ctx, def); err != nil {
		return fmt.Errorf("archive definition: %w", err)
	}

	s.logger.Info("Privilege definition archived",
		zap.String("definition_id", id.String()),
		zap.String("name", def.Name))
	return nil
}

// RestoreDefinition brings an archived definition back into the catalog
func (s *CatalogService) RestoreDefinition(ctx context.Context, id uuid.UUID) error {
	def, err := s.definitionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("PRIVILEGE_NOT_FOUND", "Privilege definition not found")
		}
		return fmt.Errorf("find definition: %w", err)
	}

	def.Restore()
	if err := s.definitionRepo.Update(ctx, def); err != nil {
		return fmt.Errorf("restore definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID
func (s *CatalogService) GetDefinition(ctx context.Context, id uuid.UUID) (*privilege.Definition, error) {
	def, err := s.definitionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PRIVILEGE_NOT_FOUND", "Privilege definition not found")
		}
		return nil, fmt.Errorf("find definition: %w", err)
	}
	return def, nil
}

// ListDefinitions returns a page of the catalog, optionally filtered by
// a search term over name and display name and by status.
func (s *CatalogService) ListDefinitions(ctx context.Context, query ListDefinitionsQuery) (shared.Paginated[*privilege.Definition], error) {
	filter := shared.DefaultFilter()
	if query.Page > 0 {
		filter.Page = query.Page
	}
	if query.PageSize > 0 {
		filter.PageSize = query.PageSize
	}
	filter.Search = query.Search
	if query.Status != "" {
		filter.Filters["status"] = query.Status
	}

	defs, total, err := s.definitionRepo.List(ctx, filter)
	if err != nil {
		return shared.Paginated[*privilege.Definition]{}, fmt.Errorf("list definitions: %w", err)
	}
	return shared.NewPaginated(defs, total, filter.Page, filter.PageSize), nil
}

// UpsertGrant creates or replaces the grant attaching a privilege to a
// plan. The target privilege must exist and not be archived.
func (s *CatalogService) UpsertGrant(ctx context.Context, input UpsertGrantInput) (*privilege.Grant, error) {
	def, err := s.definitionRepo.FindByName(ctx, input.PrivilegeName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PRIVILEGE_NOT_FOUND", "Privilege definition not found")
		}
		return nil, fmt.Errorf("find definition: %w", err)
	}
	if def.IsArchived() {
		return nil, shared.NewDomainError("PRIVILEGE_ARCHIVED", "Cannot grant an archived privilege")
	}

	grant, err := privilege.NewGrant(input.PlanID, def, input.AllowedValue)
	if err != nil {
		return nil, err
	}
	grant.WithPeriodLength(input.PeriodLength)
	if input.DailyLimit != nil {
		grant.WithDailyLimit(*input.DailyLimit)
	}
	if input.WeeklyLimit != nil {
		grant.WithWeeklyLimit(*input.WeeklyLimit)
	}
	if input.MonthlyLimit != nil {
		grant.WithMonthlyLimit(*input.MonthlyLimit)
	}

	if err := s.grantRepo.Save(ctx, grant); err != nil {
		s.logger.Error("Failed to save grant",
			zap.String("plan_id", input.PlanID),
			zap.String("privilege_name", input.PrivilegeName),
			zap.Error(err))
		return nil, fmt.Errorf("save grant: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidatePlan(ctx, input.PlanID)
	}

	s.logger.Info("Plan grant upserted",
		zap.String("plan_id", input.PlanID),
		zap.String("privilege_name", input.PrivilegeName),
		zap.Int64("allowed_value", input.AllowedValue))
	return grant, nil
}

// ListGrants returns every grant configured for a plan
func (s *CatalogService) ListGrants(ctx context.Context, planID string) ([]*privilege.Grant, error) {
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	grants, err := s.grantRepo.FindByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// DeleteGrant detaches a privilege from its plan. Existing ledger
// entries and history records are kept for audit.
func (s *CatalogService) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	grant, err := s.grantRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("GRANT_NOT_FOUND", "Grant not found")
		}
		return fmt.Errorf("find grant: %w", err)
	}

	if err := s.grantRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidatePlan(ctx, grant.PlanID)
	}

	s.logger.Info("Plan grant deleted",
		zap.String("grant_id", id.String()),
		zap.String("plan_id", grant.PlanID))
	return nil
}
