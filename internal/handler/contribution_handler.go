package handler

import (
	"net/http"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/dafibh/cooplend/cooplend-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// ContributionHandler handles member contribution HTTP requests
type ContributionHandler struct {
	contributionService *service.ContributionService
}

// NewContributionHandler creates a new ContributionHandler
func NewContributionHandler(contributionService *service.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributionService: contributionService}
}

// CreateContributionRequest represents the contribution request body
type CreateContributionRequest struct {
	Amount string  `json:"amount"`
	Note   *string `json:"note,omitempty"`
}

// AdminCreateContributionRequest represents a contribution entered by an admin
type AdminCreateContributionRequest struct {
	CreateContributionRequest
	MemberID int32 `json:"memberId"`
}

// ContributionDecisionRequest represents an admin decision on a contribution
type ContributionDecisionRequest struct {
	Decision string `json:"decision"`
}

// ContributionResponse represents a contribution in API responses
type ContributionResponse struct {
	ID            int32   `json:"id"`
	ReceiptNumber string  `json:"receiptNumber"`
	MemberID      int32   `json:"memberId"`
	Amount        string  `json:"amount"`
	Note          *string `json:"note,omitempty"`
	Status        string  `json:"status"`
	RecordedBy    *int32  `json:"recordedBy,omitempty"`
	DecidedBy     *int32  `json:"decidedBy,omitempty"`
	DecidedAt     *string `json:"decidedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// ContributionTotalResponse carries a member's confirmed contribution total
type ContributionTotalResponse struct {
	MemberID int32  `json:"memberId"`
	Total    string `json:"total"`
}

// CreateContribution godoc
// @Summary Record a contribution
// @Description Record a contribution to the pool. It stays pending until an admin confirms it.
// @Tags contributions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateContributionRequest true "Contribution"
// @Success 201 {object} ContributionResponse
// @Failure 400 {object} ProblemDetails
// @Router /contributions [post]
func (h *ContributionHandler) CreateContribution(c echo.Context) error {
	var req CreateContributionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "amount", Message: "Invalid amount format"},
		})
	}

	contribution, err := h.contributionService.Record(c.Request().Context(), service.RecordContributionInput{
		MemberID: middleware.GetMemberID(c),
		Amount:   amount,
		Note:     req.Note,
	})
	if err != nil {
		return respondError(c, err, "record contribution")
	}
	return c.JSON(http.StatusCreated, toContributionResponse(contribution))
}

// AdminCreateContribution godoc
// @Summary Record a contribution for a member
// @Description Admin-entered contributions are confirmed immediately
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AdminCreateContributionRequest true "Contribution"
// @Success 201 {object} ContributionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /admin/contributions [post]
func (h *ContributionHandler) AdminCreateContribution(c echo.Context) error {
	var req AdminCreateContributionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var validationErrors []ValidationError
	if req.MemberID <= 0 {
		validationErrors = append(validationErrors, ValidationError{Field: "memberId", Message: "Member is required"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "amount", Message: "Invalid amount format"})
	}
	if len(validationErrors) > 0 {
		return NewValidationError(c, "Validation failed", validationErrors)
	}

	adminID := middleware.GetMemberID(c)
	contribution, err := h.contributionService.Record(c.Request().Context(), service.RecordContributionInput{
		MemberID:         req.MemberID,
		Amount:           amount,
		Note:             req.Note,
		ImmediateConfirm: true,
		RecordedBy:       &adminID,
	})
	if err != nil {
		return respondError(c, err, "record contribution")
	}
	return c.JSON(http.StatusCreated, toContributionResponse(contribution))
}

// GetContributions handles GET /api/v1/contributions
func (h *ContributionHandler) GetContributions(c echo.Context) error {
	contributions, err := h.contributionService.GetMemberContributions(c.Request().Context(), middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "get contributions")
	}
	return c.JSON(http.StatusOK, toContributionResponses(contributions))
}

// GetTotal godoc
// @Summary Get confirmed contribution total
// @Tags contributions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ContributionTotalResponse
// @Router /contributions/total [get]
func (h *ContributionHandler) GetTotal(c echo.Context) error {
	memberID := middleware.GetMemberID(c)
	total, err := h.contributionService.ConfirmedTotal(c.Request().Context(), memberID)
	if err != nil {
		return respondError(c, err, "get contribution total")
	}
	return c.JSON(http.StatusOK, ContributionTotalResponse{MemberID: memberID, Total: total.StringFixed(2)})
}

// GetPendingContributions handles GET /api/v1/admin/contributions/pending
func (h *ContributionHandler) GetPendingContributions(c echo.Context) error {
	contributions, err := h.contributionService.GetPendingContributions(c.Request().Context())
	if err != nil {
		return respondError(c, err, "get pending contributions")
	}
	return c.JSON(http.StatusOK, toContributionResponses(contributions))
}

// DecideContribution godoc
// @Summary Confirm or reject a contribution
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contribution ID"
// @Param request body ContributionDecisionRequest true "Decision"
// @Success 200 {object} ContributionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /admin/contributions/{id}/decision [post]
func (h *ContributionHandler) DecideContribution(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid contribution ID", nil)
	}

	var req ContributionDecisionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	decision := domain.ContributionDecision(req.Decision)
	if !decision.IsValid() {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "decision", Message: "Decision must be 'confirm' or 'reject'"},
		})
	}

	contribution, err := h.contributionService.Decide(c.Request().Context(), id, decision, middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "decide contribution")
	}
	return c.JSON(http.StatusOK, toContributionResponse(contribution))
}

func toContributionResponse(contribution *domain.Contribution) ContributionResponse {
	return ContributionResponse{
		ID:            contribution.ID,
		ReceiptNumber: contribution.ReceiptNumber,
		MemberID:      contribution.MemberID,
		Amount:        contribution.Amount.StringFixed(2),
		Note:          contribution.Note,
		Status:        string(contribution.Status),
		RecordedBy:    contribution.RecordedBy,
		DecidedBy:     contribution.DecidedBy,
		DecidedAt:     formatTimePtr(contribution.DecidedAt),
		CreatedAt:     contribution.CreatedAt.Format(time.RFC3339),
	}
}

func toContributionResponses(contributions []*domain.Contribution) []ContributionResponse {
	response := make([]ContributionResponse, len(contributions))
	for i, contribution := range contributions {
		response[i] = toContributionResponse(contribution)
	}
	return response
}
