package handler

import (
	"context"
	"time"

	apppriv "github.com/careloop/backend/internal/application/privilege"
	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/careloop/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CatalogManager is the administrative surface the catalog endpoints need
type CatalogManager interface {
	CreateDefinition(ctx context.Context, input apppriv.CreateDefinitionInput) (*privilege.Definition, error)
	UpdateDefinition(ctx context.Context, id uuid.UUID, input apppriv.UpdateDefinitionInput) (*privilege.Definition, error)
	ArchiveDefinition(ctx context.Context, id uuid.UUID) error
	RestoreDefinition(ctx context.Context, id uuid.UUID) error
	GetDefinition(ctx context.Context, id uuid.UUID) (*privilege.Definition, error)
	ListDefinitions(ctx context.Context, query apppriv.ListDefinitionsQuery) (shared.Paginated[*privilege.Definition], error)
	UpsertGrant(ctx context.Context, input apppriv.UpsertGrantInput) (*privilege.Grant, error)
	ListGrants(ctx context.Context, planID string) ([]*privilege.Grant, error)
	DeleteGrant(ctx context.Context, id uuid.UUID) error
}

// CatalogHandler handles privilege catalog administration HTTP requests
type CatalogHandler struct {
	BaseHandler
	catalog CatalogManager
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog CatalogManager) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// CreateDefinitionRequest creates a new privilege in the catalog
//
//	@Description	New privilege definition
type CreateDefinitionRequest struct {
	Name        string `json:"name" binding:"required,max=100" example:"video_consultation"`
	DisplayName string `json:"display_name" binding:"required,max=200" example:"Video Consultation"`
	Description string `json:"description,omitempty" binding:"omitempty,max=2000" example:"Live video visit with a clinician"`
}

// UpdateDefinitionRequest changes a definition's presentation fields.
// The stable name is immutable.
//
//	@Description	Updated display name and description
type UpdateDefinitionRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=200" example:"Video Consultation"`
	Description string `json:"description,omitempty" binding:"omitempty,max=2000"`
}

// DefinitionResponse is a privilege catalog entry
//
//	@Description	Privilege definition with catalog status
type DefinitionResponse struct {
	ID          string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string `json:"name" example:"video_consultation"`
	DisplayName string `json:"display_name" example:"Video Consultation"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" example:"active"`
	CreatedAt   string `json:"created_at" example:"2026-08-01T00:00:00Z"`
	UpdatedAt   string `json:"updated_at" example:"2026-08-28T12:00:00Z"`
}

// UpsertGrantRequest attaches a privilege to a plan with its quota
//
//	@Description	Quota configuration for a plan's privilege
type UpsertGrantRequest struct {
	// AllowedValue is -1 for unlimited, 0 for disabled, or a positive
	// per-period quota.
	AllowedValue *int64 `json:"allowed_value" binding:"required" example:"10"`
	// PeriodDays overrides the default calendar-month ledger period.
	PeriodDays   int    `json:"period_days,omitempty" binding:"omitempty,min=1,max=366" example:"30"`
	DailyLimit   *int64 `json:"daily_limit,omitempty" example:"2"`
	WeeklyLimit  *int64 `json:"weekly_limit,omitempty" example:"5"`
	MonthlyLimit *int64 `json:"monthly_limit,omitempty" example:"10"`
}

// GrantResponse is a plan's configured privilege grant
//
//	@Description	Grant attaching a privilege to a plan
type GrantResponse struct {
	ID            string `json:"id" example:"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`
	PlanID        string `json:"plan_id" example:"family-plus"`
	PrivilegeID   string `json:"privilege_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	PrivilegeName string `json:"privilege_name" example:"video_consultation"`
	AllowedValue  int64  `json:"allowed_value" example:"10"`
	PeriodDays    int    `json:"period_days,omitempty" example:"30"`
	DailyLimit    *int64 `json:"daily_limit,omitempty" example:"2"`
	WeeklyLimit   *int64 `json:"weekly_limit,omitempty" example:"5"`
	MonthlyLimit  *int64 `json:"monthly_limit,omitempty" example:"10"`
}

func newDefinitionResponse(def *privilege.Definition) DefinitionResponse {
	return DefinitionResponse{
		ID:          def.ID.String(),
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Description: def.Description,
		Status:      def.Status.String(),
		CreatedAt:   def.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   def.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func newGrantResponse(grant *privilege.Grant) GrantResponse {
	return GrantResponse{
		ID:            grant.ID.String(),
		PlanID:        grant.PlanID,
		PrivilegeID:   grant.PrivilegeID.String(),
		PrivilegeName: grant.PrivilegeName,
		AllowedValue:  grant.AllowedValue,
		PeriodDays:    int(grant.PeriodLength / (24 * time.Hour)),
		DailyLimit:    grant.DailyLimit,
		WeeklyLimit:   grant.WeeklyLimit,
		MonthlyLimit:  grant.MonthlyLimit,
	}
}

// ============================================================================
// Definition handlers
// ============================================================================

// ListDefinitions godoc
//
//	@ID				listPrivilegeDefinitions
//	@Summary		List privilege definitions
//	@Description	Page through the privilege catalog, optionally filtered by a search term and status
//	@Tags			catalog
//	@Produce		json
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			page_size	query		int		false	"Page size"		default(20)
//	@Param			search		query		string	false	"Search over name and display name"
//	@Param			status		query		string	false	"Catalog status"	Enums(active, archived)
//	@Success		200			{object}	APIResponse[[]DefinitionResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges [get]
func (h *CatalogHandler) ListDefinitions(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	page, err := h.catalog.ListDefinitions(c.Request.Context(), apppriv.ListDefinitionsQuery{
		Page:     req.Page,
		PageSize: req.PageSize,
		Search:   req.Search,
		Status:   req.Status,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	defs := make([]DefinitionResponse, 0, len(page.Items))
	for _, def := range page.Items {
		defs = append(defs, newDefinitionResponse(def))
	}
	h.SuccessWithMeta(c, defs, page.Total, page.Page, page.PageSize)
}

// CreateDefinition godoc
//
//	@ID				createPrivilegeDefinition
//	@Summary		Create a privilege definition
//	@Description	Add a new privilege to the catalog. Names are stable identifiers and must be unique.
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateDefinitionRequest	true	"Definition to create"
//	@Success		201		{object}	APIResponse[DefinitionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges [post]
func (h *CatalogHandler) CreateDefinition(c *gin.Context) {
	var req CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	def, err := h.catalog.CreateDefinition(c.Request.Context(), apppriv.CreateDefinitionInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, newDefinitionResponse(def))
}

// GetDefinition godoc
//
//	@ID				getPrivilegeDefinition
//	@Summary		Get a privilege definition
//	@Tags			catalog
//	@Produce		json
//	@Param			id	path		string	true	"Definition ID"
//	@Success		200	{object}	APIResponse[DefinitionResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges/{id} [get]
func (h *CatalogHandler) GetDefinition(c *gin.Context) {
	id, ok := h.definitionID(c)
	if !ok {
		return
	}

	def, err := h.catalog.GetDefinition(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, newDefinitionResponse(def))
}

// UpdateDefinition godoc
//
//	@ID				updatePrivilegeDefinition
//	@Summary		Update a privilege definition
//	@Description	Change a definition's display name and description. The stable name cannot change.
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Definition ID"
//	@Param			request	body		UpdateDefinitionRequest	true	"Fields to update"
//	@Success		200		{object}	APIResponse[DefinitionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges/{id} [put]
func (h *CatalogHandler) UpdateDefinition(c *gin.Context) {
	id, ok := h.definitionID(c)
	if !ok {
		return
	}

	var req UpdateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	def, err := h.catalog.UpdateDefinition(c.Request.Context(), id, apppriv.UpdateDefinitionInput{
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, newDefinitionResponse(def))
}

// ArchiveDefinition godoc
//
//	@ID				archivePrivilegeDefinition
//	@Summary		Archive a privilege definition
//	@Description	Soft-delete a definition. Existing grants keep working; the definition leaves active listings and cannot be attached to new plans.
//	@Tags			catalog
//	@Produce		json
//	@Param			id	path	string	true	"Definition ID"
//	@Success		204
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges/{id} [delete]
func (h *CatalogHandler) ArchiveDefinition(c *gin.Context) {
	id, ok := h.definitionID(c)
	if !ok {
		return
	}

	if err := h.catalog.ArchiveDefinition(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RestoreDefinition godoc
//
//	@ID				restorePrivilegeDefinition
//	@Summary		Restore an archived privilege definition
//	@Tags			catalog
//	@Produce		json
//	@Param			id	path		string	true	"Definition ID"
//	@Success		200	{object}	SuccessResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/privileges/{id}/restore [post]
func (h *CatalogHandler) RestoreDefinition(c *gin.Context) {
	id, ok := h.definitionID(c)
	if !ok {
		return
	}

	if err := h.catalog.RestoreDefinition(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"restored": true})
}

// ============================================================================
// Grant handlers
// ============================================================================

// UpsertGrant godoc
//
//	@ID				upsertPlanGrant
//	@Summary		Attach a privilege to a plan
//	@Description	Create or replace the grant giving a plan access to a privilege, with its quota, reset period and sub-ceilings
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			planId	path		string				true	"Plan ID"
//	@Param			name	path		string				true	"Privilege name"
//	@Param			request	body		UpsertGrantRequest	true	"Quota configuration"
//	@Success		200		{object}	APIResponse[GrantResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/plans/{planId}/privileges/{name} [put]
func (h *CatalogHandler) UpsertGrant(c *gin.Context) {
	planID := c.Param("planId")
	privilegeName := c.Param("name")
	if planID == "" || privilegeName == "" {
		h.BadRequest(c, "Plan ID and privilege name are required")
		return
	}

	var req UpsertGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	grant, err := h.catalog.UpsertGrant(c.Request.Context(), apppriv.UpsertGrantInput{
		PlanID:        planID,
		PrivilegeName: privilegeName,
		AllowedValue:  *req.AllowedValue,
		PeriodLength:  time.Duration(req.PeriodDays) * 24 * time.Hour,
		DailyLimit:    req.DailyLimit,
		WeeklyLimit:   req.WeeklyLimit,
		MonthlyLimit:  req.MonthlyLimit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, newGrantResponse(grant))
}

// ListGrants godoc
//
//	@ID				listPlanGrants
//	@Summary		List a plan's privilege grants
//	@Tags			catalog
//	@Produce		json
//	@Param			planId	path		string	true	"Plan ID"
//	@Success		200		{object}	APIResponse[[]GrantResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/plans/{planId}/privileges [get]
func (h *CatalogHandler) ListGrants(c *gin.Context) {
	planID := c.Param("planId")
	if planID == "" {
		h.BadRequest(c, "Plan ID is required")
		return
	}

	grants, err := h.catalog.ListGrants(c.Request.Context(), planID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]GrantResponse, 0, len(grants))
	for _, grant := range grants {
		resp = append(resp, newGrantResponse(grant))
	}
	h.Success(c, resp)
}

// DeleteGrant godoc
//
//	@ID				deletePlanGrant
//	@Summary		Detach a privilege from a plan
//	@Description	Remove a plan's grant for a privilege. Ledger entries and usage history are kept for audit.
//	@Tags			catalog
//	@Produce		json
//	@Param			planId	path	string	true	"Plan ID"
//	@Param			name	path	string	true	"Privilege name"
//	@Success		204
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/plans/{planId}/privileges/{name} [delete]
func (h *CatalogHandler) DeleteGrant(c *gin.Context) {
	planID := c.Param("planId")
	privilegeName := c.Param("name")
	if planID == "" || privilegeName == "" {
		h.BadRequest(c, "Plan ID and privilege name are required")
		return
	}

	grants, err := h.catalog.ListGrants(c.Request.Context(), planID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	for _, grant := range grants {
		if grant.PrivilegeName == privilegeName {
			if err := h.catalog.DeleteGrant(c.Request.Context(), grant.ID); err != nil {
				h.HandleError(c, err)
				return
			}
			h.NoContent(c)
			return
		}
	}

	h.NotFound(c, "Plan does not grant this privilege")
}

// ============================================================================
// Helper functions
// ============================================================================

func (h *CatalogHandler) definitionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid definition ID format")
		return uuid.Nil, false
	}
	return id, true
}
