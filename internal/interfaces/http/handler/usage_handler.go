package handler

import (
	"context"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/careloop/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UsageManager is the consumption-side surface the usage endpoints need
type UsageManager interface {
	GetRemaining(ctx context.Context, subscriptionID uuid.UUID, privilegeName string) (int64, error)
	CanUse(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, amount int64) (privilege.Decision, error)
	Use(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, amount int64, note string) (privilege.Decision, error)
	ListHistory(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, filter privilege.UsageRecordFilter) (shared.Paginated[*privilege.UsageRecord], error)
}

// UsageHandler handles privilege usage HTTP requests
type UsageHandler struct {
	BaseHandler
	usage UsageManager
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(usage UsageManager) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// UsageRequest carries the amount for a check or consumption call
//
//	@Description	Requested consumption amount with an optional audit note
type UsageRequest struct {
	Amount int64  `json:"amount" example:"1"`
	Note   string `json:"note,omitempty" binding:"omitempty,max=500" example:"video visit with Dr. Chen"`
}

// RemainingResponse reports the quota left in the current period
//
//	@Description	Remaining quota for a subscription's privilege
type RemainingResponse struct {
	SubscriptionID string `json:"subscription_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Privilege      string `json:"privilege" example:"video_consultation"`
	Remaining      int64  `json:"remaining" example:"7"`
	Unlimited      bool   `json:"unlimited" example:"false"`
}

// DecisionResponse is the outcome of a check or consumption call.
// Denials are ordinary 200 responses; only storage failures become 5xx.
//
//	@Description	Usage decision with denial reason and remaining quota
type DecisionResponse struct {
	Allowed   bool   `json:"allowed" example:"true"`
	Reason    string `json:"reason,omitempty" example:"quota_exhausted"`
	Message   string `json:"message,omitempty" example:"No uses remaining in your plan for this benefit"`
	Remaining int64  `json:"remaining" example:"6"`
	Unlimited bool   `json:"unlimited" example:"false"`
}

// UsageRecordResponse is one entry of the usage history trail
//
//	@Description	Single privilege consumption record
type UsageRecordResponse struct {
	ID     string `json:"id" example:"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`
	Amount int64  `json:"amount" example:"1"`
	UsedAt string `json:"used_at" example:"2026-08-28T12:00:00Z"`
	Note   string `json:"note,omitempty" example:"video visit with Dr. Chen"`
}

func newDecisionResponse(decision privilege.Decision) DecisionResponse {
	resp := DecisionResponse{
		Allowed:   decision.Allowed,
		Reason:    decision.Reason.String(),
		Remaining: decision.Remaining,
	}
	if !decision.Allowed {
		resp.Message = decision.Reason.Message()
	}
	if decision.Remaining == privilege.UnlimitedRemaining {
		resp.Remaining = -1
		resp.Unlimited = true
	}
	return resp
}

// ============================================================================
// Handlers
// ============================================================================

// GetRemaining godoc
//
//	@ID				getRemainingPrivilege
//	@Summary		Get remaining privilege quota
//	@Description	Get the units of a privilege still consumable by a subscription in the current period
//	@Tags			usage
//	@Produce		json
//	@Param			id		path		string	true	"Subscription ID"
//	@Param			name	path		string	true	"Privilege name"
//	@Success		200		{object}	APIResponse[RemainingResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/subscriptions/{id}/privileges/{name}/remaining [get]
func (h *UsageHandler) GetRemaining(c *gin.Context) {
	subscriptionID, privilegeName, ok := h.usagePathParams(c)
	if !ok {
		return
	}

	remaining, err := h.usage.GetRemaining(c.Request.Context(), subscriptionID, privilegeName)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to get remaining quota",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("privilege_name", privilegeName),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	resp := RemainingResponse{
		SubscriptionID: subscriptionID.String(),
		Privilege:      privilegeName,
		Remaining:      remaining,
	}
	if remaining == privilege.UnlimitedRemaining {
		resp.Remaining = -1
		resp.Unlimited = true
	}
	h.Success(c, resp)
}

// Check godoc
//
//	@ID				checkPrivilegeUsage
//	@Summary		Check whether a consumption would be allowed
//	@Description	Evaluate all quota rules for the requested amount without consuming anything
//	@Tags			usage
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Subscription ID"
//	@Param			name	path		string			true	"Privilege name"
//	@Param			request	body		UsageRequest	true	"Amount to check"
//	@Success		200		{object}	APIResponse[DecisionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/subscriptions/{id}/privileges/{name}/check [post]
func (h *UsageHandler) Check(c *gin.Context) {
	subscriptionID, privilegeName, ok := h.usagePathParams(c)
	if !ok {
		return
	}

	var req UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	decision, err := h.usage.CanUse(c.Request.Context(), subscriptionID, privilegeName, req.Amount)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Usage check failed",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("privilege_name", privilegeName),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, newDecisionResponse(decision))
}

// Use godoc
//
//	@ID				usePrivilege
//	@Summary		Consume privilege quota
//	@Description	Atomically consume the requested amount. A denial is a 200 response with allowed=false; 5xx is reserved for storage failures.
//	@Tags			usage
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Subscription ID"
//	@Param			name	path		string			true	"Privilege name"
//	@Param			request	body		UsageRequest	true	"Amount to consume"
//	@Success		200		{object}	APIResponse[DecisionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/subscriptions/{id}/privileges/{name}/use [post]
func (h *UsageHandler) Use(c *gin.Context) {
	subscriptionID, privilegeName, ok := h.usagePathParams(c)
	if !ok {
		return
	}

	var req UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	decision, err := h.usage.Use(c.Request.Context(), subscriptionID, privilegeName, req.Amount, req.Note)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Usage consumption failed",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("privilege_name", privilegeName),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, newDecisionResponse(decision))
}

// GetHistory godoc
//
//	@ID				getPrivilegeUsageHistory
//	@Summary		Get privilege usage history
//	@Description	List the consumption trail for a subscription's privilege, newest first
//	@Tags			usage
//	@Produce		json
//	@Param			id			path		string	true	"Subscription ID"
//	@Param			name		path		string	true	"Privilege name"
//	@Param			start_date	query		string	false	"Start date (YYYY-MM-DD)"	example(2026-08-01)
//	@Param			end_date	query		string	false	"End date (YYYY-MM-DD)"		example(2026-08-28)
//	@Param			page		query		int		false	"Page number"				default(1)
//	@Param			page_size	query		int		false	"Page size"					default(50)
//	@Success		200			{object}	APIResponse[[]UsageRecordResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/subscriptions/{id}/privileges/{name}/history [get]
func (h *UsageHandler) GetHistory(c *gin.Context) {
	subscriptionID, privilegeName, ok := h.usagePathParams(c)
	if !ok {
		return
	}

	filter, ok := h.historyFilter(c)
	if !ok {
		return
	}

	page, err := h.usage.ListHistory(c.Request.Context(), subscriptionID, privilegeName, filter)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to list usage history",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("privilege_name", privilegeName),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	records := make([]UsageRecordResponse, 0, len(page.Items))
	for _, record := range page.Items {
		records = append(records, UsageRecordResponse{
			ID:     record.ID.String(),
			Amount: record.Amount,
			UsedAt: record.UsedAt.UTC().Format(time.RFC3339),
			Note:   record.Note,
		})
	}

	h.SuccessWithMeta(c, records, page.Total, page.Page, page.PageSize)
}

// ============================================================================
// Helper functions
// ============================================================================

func (h *UsageHandler) usagePathParams(c *gin.Context) (uuid.UUID, string, bool) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID format")
		return uuid.Nil, "", false
	}

	privilegeName := c.Param("name")
	if privilegeName == "" {
		h.BadRequest(c, "Privilege name is required")
		return uuid.Nil, "", false
	}

	return subscriptionID, privilegeName, true
}

func (h *UsageHandler) historyFilter(c *gin.Context) (privilege.UsageRecordFilter, bool) {
	filter := privilege.DefaultUsageRecordFilter()

	if startDateStr := c.Query("start_date"); startDateStr != "" {
		parsed, err := time.Parse("2006-01-02", startDateStr)
		if err != nil {
			h.BadRequest(c, "Invalid start_date format. Use YYYY-MM-DD")
			return filter, false
		}
		filter.StartTime = &parsed
	}

	if endDateStr := c.Query("end_date"); endDateStr != "" {
		parsed, err := time.Parse("2006-01-02", endDateStr)
		if err != nil {
			h.BadRequest(c, "Invalid end_date format. Use YYYY-MM-DD")
			return filter, false
		}
		// The range is half-open, so the end date itself stays included.
		end := parsed.AddDate(0, 0, 1)
		filter.EndTime = &end
	}

	if filter.StartTime != nil && filter.EndTime != nil && filter.StartTime.After(*filter.EndTime) {
		h.BadRequest(c, "start_date must be before end_date")
		return filter, false
	}

	var pagination struct {
		Page     int `form:"page"`
		PageSize int `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return filter, false
	}
	if pagination.Page > 0 {
		filter.Page = pagination.Page
	}
	if pagination.PageSize > 0 && pagination.PageSize <= 100 {
		filter.PageSize = pagination.PageSize
	}

	return filter, true
}
