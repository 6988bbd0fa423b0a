package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/dafibh/cooplend/cooplend-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles loan repayment HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
	loanService    *service.LoanService
	receiptService *service.ReceiptService
}

// NewPaymentHandler creates a new PaymentHandler. receiptService may report
// itself disabled, in which case receipt endpoints answer 503.
func NewPaymentHandler(paymentService *service.PaymentService, loanService *service.LoanService, receiptService *service.ReceiptService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		loanService:    loanService,
		receiptService: receiptService,
	}
}

// CreatePaymentRequest represents the payment request body
type CreatePaymentRequest struct {
	Amount        string `json:"amount"`
	PaymentDate   string `json:"paymentDate,omitempty"` // YYYY-MM-DD, defaults to today
	PaymentMethod string `json:"paymentMethod"`
}

// PaymentDecisionRequest represents an admin decision on a payment
type PaymentDecisionRequest struct {
	Decision string `json:"decision"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID            int32   `json:"id"`
	ReceiptNumber string  `json:"receiptNumber"`
	LoanID        int32   `json:"loanId"`
	MemberID      int32   `json:"memberId"`
	Amount        string  `json:"amount"`
	PaymentDate   string  `json:"paymentDate"`
	PaymentMethod string  `json:"paymentMethod"`
	Status        string  `json:"status"`
	HasReceipt    bool    `json:"hasReceipt"`
	RecordedBy    *int32  `json:"recordedBy,omitempty"`
	VerifiedBy    *int32  `json:"verifiedBy,omitempty"`
	VerifiedAt    *string `json:"verifiedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// ReceiptURLResponse carries a short-lived receipt download URL
type ReceiptURLResponse struct {
	URL string `json:"url"`
}

// CreatePayment godoc
// @Summary Submit a loan repayment
// @Description Record a payment against one of the caller's loans. It stays pending until an admin verifies it.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body CreatePaymentRequest true "Payment details"
// @Success 201 {object} PaymentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Router /loans/{id}/payments [post]
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	return h.createPayment(c, false)
}

// AdminCreatePayment godoc
// @Summary Record a cash repayment
// @Description Record a payment received in person. It is verified and deducted from the balance immediately.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body CreatePaymentRequest true "Payment details"
// @Success 201 {object} PaymentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Router /admin/loans/{id}/payments [post]
func (h *PaymentHandler) AdminCreatePayment(c echo.Context) error {
	return h.createPayment(c, true)
}

func (h *PaymentHandler) createPayment(c echo.Context, immediate bool) error {
	loanID, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var validationErrors []ValidationError
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "amount", Message: "Invalid amount format"})
	}
	var paymentDate time.Time
	if req.PaymentDate != "" {
		paymentDate, err = time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: "paymentDate", Message: "Invalid date format. Use YYYY-MM-DD"})
		}
	}
	if len(validationErrors) > 0 {
		return NewValidationError(c, "Validation failed", validationErrors)
	}

	payment, err := h.paymentService.ApplyPayment(c.Request().Context(), service.ApplyPaymentInput{
		LoanID:           loanID,
		Amount:           amount,
		PaymentDate:      paymentDate,
		PaymentMethod:    req.PaymentMethod,
		ImmediateConfirm: immediate,
		RequestedBy:      middleware.GetMemberID(c),
	})
	if err != nil {
		return respondError(c, err, "record payment")
	}

	return c.JSON(http.StatusCreated, toPaymentResponse(payment))
}

// GetLoanPayments godoc
// @Summary List payments of a loan
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {array} PaymentResponse
// @Failure 404 {object} ProblemDetails
// @Router /loans/{id}/payments [get]
func (h *PaymentHandler) GetLoanPayments(c echo.Context) error {
	loanID, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	ctx := c.Request().Context()
	if !middleware.IsAdmin(c) {
		if _, err := h.loanService.GetMemberLoan(ctx, middleware.GetMemberID(c), loanID); err != nil {
			return respondError(c, err, "get payments")
		}
	}

	payments, err := h.paymentService.GetPaymentsByLoan(ctx, loanID)
	if err != nil {
		return respondError(c, err, "get payments")
	}
	return c.JSON(http.StatusOK, toPaymentResponses(payments))
}

// UploadReceipt godoc
// @Summary Upload a payment receipt
// @Description Attach a proof-of-payment image (JPEG or PNG, max 5MB) to a pending payment
// @Tags payments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payment ID"
// @Param file formData file true "Receipt image"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /payments/{id}/receipt [post]
func (h *PaymentHandler) UploadReceipt(c echo.Context) error {
	if !h.receiptService.IsEnabled() {
		return respondError(c, service.ErrReceiptStoreDisabled, "upload receipt")
	}

	paymentID, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid payment ID", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > service.MaxReceiptSize {
		return respondError(c, service.ErrReceiptTooLarge, "upload receipt")
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, service.MaxReceiptSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}

	payment, err := h.receiptService.AttachReceipt(c.Request().Context(), middleware.GetMemberID(c), paymentID, data, file.Filename)
	if err != nil {
		return respondError(c, err, "upload receipt")
	}

	log.Info().
		Int32("member_id", payment.MemberID).
		Int32("payment_id", payment.ID).
		Msg("Receipt uploaded")

	return c.JSON(http.StatusOK, toPaymentResponse(payment))
}

// GetReceiptURL handles GET /api/v1/payments/:id/receipt
func (h *PaymentHandler) GetReceiptURL(c echo.Context) error {
	paymentID, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid payment ID", nil)
	}

	url, err := h.receiptService.ReceiptURL(c.Request().Context(), middleware.GetMemberID(c), middleware.IsAdmin(c), paymentID)
	if err != nil {
		return respondError(c, err, "get receipt")
	}
	return c.JSON(http.StatusOK, ReceiptURLResponse{URL: url})
}

// GetPendingPayments godoc
// @Summary List payments awaiting verification
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} PaymentResponse
// @Failure 403 {object} ProblemDetails
// @Router /admin/payments/pending [get]
func (h *PaymentHandler) GetPendingPayments(c echo.Context) error {
	payments, err := h.paymentService.GetPendingPayments(c.Request().Context())
	if err != nil {
		return respondError(c, err, "get pending payments")
	}
	return c.JSON(http.StatusOK, toPaymentResponses(payments))
}

// DecidePayment godoc
// @Summary Verify or reject a payment
// @Description Verifying a payment deducts it from the loan balance
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payment ID"
// @Param request body PaymentDecisionRequest true "Decision"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Router /admin/payments/{id}/decision [post]
func (h *PaymentHandler) DecidePayment(c echo.Context) error {
	paymentID, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid payment ID", nil)
	}

	var req PaymentDecisionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	decision := domain.PaymentDecision(req.Decision)
	if !decision.IsValid() {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "decision", Message: "Decision must be 'verify' or 'reject'"},
		})
	}

	payment, err := h.paymentService.Verify(c.Request().Context(), paymentID, decision, middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "decide payment")
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		ReceiptNumber: p.ReceiptNumber,
		LoanID:        p.LoanID,
		MemberID:      p.MemberID,
		Amount:        p.Amount.StringFixed(2),
		PaymentDate:   p.PaymentDate.Format("2006-01-02"),
		PaymentMethod: p.PaymentMethod,
		Status:        string(p.Status),
		HasReceipt:    p.ReceiptPath != nil,
		RecordedBy:    p.RecordedBy,
		VerifiedBy:    p.VerifiedBy,
		VerifiedAt:    formatTimePtr(p.VerifiedAt),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentResponses(payments []*domain.Payment) []PaymentResponse {
	response := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		response[i] = toPaymentResponse(p)
	}
	return response
}
