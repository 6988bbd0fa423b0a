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

// LoanHandler handles loan-related HTTP requests
type LoanHandler struct {
	loanService    *service.LoanService
	paymentService *service.PaymentService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService, paymentService *service.PaymentService) *LoanHandler {
	return &LoanHandler{loanService: loanService, paymentService: paymentService}
}

// SubmitLoanRequest represents the loan application body
type SubmitLoanRequest struct {
	Principal      string `json:"principal"`
	TermMonths     int32  `json:"termMonths"`
	Purpose        string `json:"purpose"`
	PaymentMethod  string `json:"paymentMethod"`
	AccountDetails string `json:"accountDetails"`
	AccountName    string `json:"accountName"`
}

// AdminCreateLoanRequest represents a loan entered by an admin for a member
type AdminCreateLoanRequest struct {
	SubmitLoanRequest
	MemberID int32 `json:"memberId"`
}

// PreviewLoanRequest represents the preview loan request body
type PreviewLoanRequest struct {
	Principal  string `json:"principal"`
	TermMonths int32  `json:"termMonths"`
}

// LoanDecisionRequest represents an admin decision on a loan
type LoanDecisionRequest struct {
	Decision        string  `json:"decision"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
}

// LoanResponse represents a loan in API responses
type LoanResponse struct {
	ID               int32   `json:"id"`
	LoanNumber       string  `json:"loanNumber"`
	MemberID         int32   `json:"memberId"`
	Principal        string  `json:"principal"`
	TermMonths       int32   `json:"termMonths"`
	InterestRate     string  `json:"interestRate"`
	TotalInterest    string  `json:"totalInterest"`
	TotalAmount      string  `json:"totalAmount"`
	MonthlyPayment   string  `json:"monthlyPayment"`
	RemainingBalance string  `json:"remainingBalance"`
	Status           string  `json:"status"`
	Purpose          string  `json:"purpose"`
	PaymentMethod    string  `json:"paymentMethod"`
	AccountDetails   string  `json:"accountDetails"`
	AccountName      string  `json:"accountName"`
	ApprovedBy       *int32  `json:"approvedBy,omitempty"`
	ApprovedAt       *string `json:"approvedAt,omitempty"`
	RejectionReason  *string `json:"rejectionReason,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

// InstallmentResponse represents one row of a repayment schedule
type InstallmentResponse struct {
	Index            int32  `json:"index"`
	DueDate          string `json:"dueDate"`
	AmountDue        string `json:"amountDue"`
	RemainingBalance string `json:"remainingBalance"`
}

// ScheduleResponse represents a full repayment schedule
type ScheduleResponse struct {
	Principal      string                `json:"principal"`
	InterestRate   string                `json:"interestRate"`
	TermMonths     int32                 `json:"termMonths"`
	TotalInterest  string                `json:"totalInterest"`
	TotalAmount    string                `json:"totalAmount"`
	MonthlyPayment string                `json:"monthlyPayment"`
	Installments   []InstallmentResponse `json:"installments"`
}

// ProgressResponse represents repayment progress for a loan
type ProgressResponse struct {
	LoanID           int32  `json:"loanId"`
	Paid             int32  `json:"paid"`
	Expected         int32  `json:"expected"`
	Remaining        int32  `json:"remaining"`
	PaidAmount       string `json:"paidAmount"`
	RemainingBalance string `json:"remainingBalance"`
	TotalAmount      string `json:"totalAmount"`
}

// SubmitLoan godoc
// @Summary Apply for a loan
// @Description Submit a loan application. The amortization is frozen at submission time.
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitLoanRequest true "Loan application"
// @Success 201 {object} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /loans [post]
func (h *LoanHandler) SubmitLoan(c echo.Context) error {
	var req SubmitLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input, ok := req.toInput(c, middleware.GetMemberID(c))
	if !ok {
		return nil
	}

	loan, err := h.loanService.Submit(c.Request().Context(), input)
	if err != nil {
		return respondError(c, err, "submit loan")
	}

	return c.JSON(http.StatusCreated, toLoanResponse(loan))
}

// AdminCreateLoan godoc
// @Summary Enter a loan for a member
// @Description Record a loan on behalf of a member. Admin-entered loans are approved immediately.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AdminCreateLoanRequest true "Loan details"
// @Success 201 {object} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /admin/loans [post]
func (h *LoanHandler) AdminCreateLoan(c echo.Context) error {
	var req AdminCreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.MemberID <= 0 {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "memberId", Message: "Member is required"},
		})
	}

	input, ok := req.toInput(c, req.MemberID)
	if !ok {
		return nil
	}
	adminID := middleware.GetMemberID(c)
	input.AdminID = &adminID

	loan, err := h.loanService.Submit(c.Request().Context(), input)
	if err != nil {
		return respondError(c, err, "create loan")
	}

	return c.JSON(http.StatusCreated, toLoanResponse(loan))
}

// toInput converts the request into service input, writing a validation
// response and returning false when the principal is malformed
func (r SubmitLoanRequest) toInput(c echo.Context, memberID int32) (service.SubmitLoanInput, bool) {
	principal, err := decimal.NewFromString(r.Principal)
	if err != nil {
		_ = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "principal", Message: "Invalid principal format"},
		})
		return service.SubmitLoanInput{}, false
	}

	return service.SubmitLoanInput{
		MemberID:       memberID,
		Principal:      principal,
		TermMonths:     r.TermMonths,
		Purpose:        r.Purpose,
		PaymentMethod:  r.PaymentMethod,
		AccountDetails: r.AccountDetails,
		AccountName:    r.AccountName,
	}, true
}

// GetLoans godoc
// @Summary List own loans
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Success 200 {array} LoanResponse
// @Failure 401 {object} ProblemDetails
// @Router /loans [get]
func (h *LoanHandler) GetLoans(c echo.Context) error {
	loans, err := h.loanService.GetMemberLoans(c.Request().Context(), middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "get loans")
	}
	return c.JSON(http.StatusOK, toLoanResponses(loans))
}

// GetLoan handles GET /api/v1/loans/:id
func (h *LoanHandler) GetLoan(c echo.Context) error {
	loan, ok := h.loadLoan(c)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// GetSchedule godoc
// @Summary Get a loan's repayment schedule
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} ScheduleResponse
// @Failure 404 {object} ProblemDetails
// @Router /loans/{id}/schedule [get]
func (h *LoanHandler) GetSchedule(c echo.Context) error {
	loan, ok := h.loadLoan(c)
	if !ok {
		return nil
	}

	schedule, err := h.loanService.GetSchedule(c.Request().Context(), loan.ID)
	if err != nil {
		return respondError(c, err, "get schedule")
	}
	return c.JSON(http.StatusOK, toScheduleResponse(schedule))
}

// GetProgress handles GET /api/v1/loans/:id/progress
func (h *LoanHandler) GetProgress(c echo.Context) error {
	loan, ok := h.loadLoan(c)
	if !ok {
		return nil
	}

	progress, err := h.paymentService.Progress(c.Request().Context(), loan.ID)
	if err != nil {
		return respondError(c, err, "get progress")
	}
	return c.JSON(http.StatusOK, ProgressResponse{
		LoanID:           progress.LoanID,
		Paid:             progress.Paid,
		Expected:         progress.Expected,
		Remaining:        progress.Remaining,
		PaidAmount:       progress.PaidAmount.StringFixed(2),
		RemainingBalance: progress.RemainingBalance.StringFixed(2),
		TotalAmount:      progress.TotalAmount.StringFixed(2),
	})
}

// PreviewLoan godoc
// @Summary Preview a loan schedule
// @Description Compute the amortization a loan would get under the current settings without storing it
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PreviewLoanRequest true "Principal and term"
// @Success 200 {object} ScheduleResponse
// @Failure 400 {object} ProblemDetails
// @Router /loans/preview [post]
func (h *LoanHandler) PreviewLoan(c echo.Context) error {
	var req PreviewLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "principal", Message: "Invalid principal format"},
		})
	}

	schedule, err := h.loanService.PreviewLoan(c.Request().Context(), principal, req.TermMonths)
	if err != nil {
		return respondError(c, err, "preview loan")
	}
	return c.JSON(http.StatusOK, toScheduleResponse(schedule))
}

// DecideLoan godoc
// @Summary Approve or reject a loan
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body LoanDecisionRequest true "Decision"
// @Success 200 {object} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /admin/loans/{id}/decision [post]
func (h *LoanHandler) DecideLoan(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req LoanDecisionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	decision := domain.LoanDecision(req.Decision)
	if !decision.IsValid() {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "decision", Message: "Decision must be 'approve' or 'reject'"},
		})
	}

	loan, err := h.loanService.Decide(c.Request().Context(), id, decision, middleware.GetMemberID(c), req.RejectionReason)
	if err != nil {
		return respondError(c, err, "decide loan")
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// ReactivateLoan handles POST /api/v1/admin/loans/:id/reactivate
func (h *LoanHandler) ReactivateLoan(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.Reactivate(c.Request().Context(), id, middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "reactivate loan")
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// AdminListLoans godoc
// @Summary List loans by status
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Loan status filter"
// @Success 200 {array} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Router /admin/loans [get]
func (h *LoanHandler) AdminListLoans(c echo.Context) error {
	var status *domain.LoanStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := domain.LoanStatus(raw)
		if !s.IsValid() {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "status", Message: "Unknown loan status"},
			})
		}
		status = &s
	}

	loans, err := h.loanService.GetLoansByStatus(c.Request().Context(), status)
	if err != nil {
		return respondError(c, err, "list loans")
	}
	return c.JSON(http.StatusOK, toLoanResponses(loans))
}

// loadLoan resolves the :id loan visible to the caller. Admins see every loan,
// members only their own. On failure the error response has been written.
func (h *LoanHandler) loadLoan(c echo.Context) (*domain.Loan, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		_ = NewValidationError(c, "Invalid loan ID", nil)
		return nil, false
	}

	ctx := c.Request().Context()
	var (
		loan *domain.Loan
		err  error
	)
	if middleware.IsAdmin(c) {
		loan, err = h.loanService.GetLoan(ctx, id)
	} else {
		loan, err = h.loanService.GetMemberLoan(ctx, middleware.GetMemberID(c), id)
	}
	if err != nil {
		_ = respondError(c, err, "get loan")
		return nil, false
	}
	return loan, true
}

func toLoanResponse(loan *domain.Loan) LoanResponse {
	return LoanResponse{
		ID:               loan.ID,
		LoanNumber:       loan.LoanNumber,
		MemberID:         loan.MemberID,
		Principal:        loan.Principal.StringFixed(2),
		TermMonths:       loan.TermMonths,
		InterestRate:     loan.InterestRate.String(),
		TotalInterest:    loan.TotalInterest.StringFixed(2),
		TotalAmount:      loan.TotalAmount.StringFixed(2),
		MonthlyPayment:   loan.MonthlyPayment.StringFixed(2),
		RemainingBalance: loan.RemainingBalance.StringFixed(2),
		Status:           string(loan.Status),
		Purpose:          loan.Purpose,
		PaymentMethod:    loan.PaymentMethod,
		AccountDetails:   loan.AccountDetails,
		AccountName:      loan.AccountName,
		ApprovedBy:       loan.ApprovedBy,
		ApprovedAt:       formatTimePtr(loan.ApprovedAt),
		RejectionReason:  loan.RejectionReason,
		CreatedAt:        loan.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        loan.UpdatedAt.Format(time.RFC3339),
	}
}

func toLoanResponses(loans []*domain.Loan) []LoanResponse {
	response := make([]LoanResponse, len(loans))
	for i, loan := range loans {
		response[i] = toLoanResponse(loan)
	}
	return response
}

func toScheduleResponse(schedule *domain.Schedule) ScheduleResponse {
	installments := make([]InstallmentResponse, len(schedule.Installments))
	for i, inst := range schedule.Installments {
		installments[i] = InstallmentResponse{
			Index:            inst.Index,
			DueDate:          inst.DueDate.Format("2006-01-02"),
			AmountDue:        inst.AmountDue.StringFixed(2),
			RemainingBalance: inst.RemainingBalance.StringFixed(2),
		}
	}

	return ScheduleResponse{
		Principal:      schedule.Principal.StringFixed(2),
		InterestRate:   schedule.InterestRate.String(),
		TermMonths:     schedule.TermMonths,
		TotalInterest:  schedule.TotalInterest.StringFixed(2),
		TotalAmount:    schedule.TotalAmount.StringFixed(2),
		MonthlyPayment: schedule.MonthlyPayment.StringFixed(2),
		Installments:   installments,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
