package handler

import (
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Handlers groups the HTTP handlers registered by RegisterRoutes
type Handlers struct {
	Auth         *AuthHandler
	Loan         *LoanHandler
	Payment      *PaymentHandler
	Contribution *ContributionHandler
	Notification *NotificationHandler
	WebSocket    *WebSocketHandler
}

// RegisterRoutes sets up all API routes. Ledger submissions go through
// rateLimiter; pass nil to disable throttling.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, h Handlers) {
	// API documentation
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", NewOpenAPI3Handler(nil))

	// WebSocket authenticates with a token query parameter
	if h.WebSocket != nil {
		e.GET("/ws", h.WebSocket.HandleWS)
	}

	// API version 1
	api := e.Group("/api/v1")

	throttle := func(kind string) echo.MiddlewareFunc {
		if rateLimiter == nil {
			return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
		}
		return rateLimiter.Throttle(kind)
	}

	// Auth routes. The callback runs before the member exists.
	auth := api.Group("/auth")
	auth.Use(authMiddleware.Authenticate())
	auth.POST("/callback", h.Auth.Callback)
	auth.GET("/me", h.Auth.Me, authMiddleware.RequireMember())

	// Member routes
	member := api.Group("")
	member.Use(authMiddleware.Authenticate(), authMiddleware.RequireMember())

	member.POST("/loans", h.Loan.SubmitLoan, throttle(middleware.SubmitLoan))
	member.GET("/loans", h.Loan.GetLoans)
	member.POST("/loans/preview", h.Loan.PreviewLoan)
	member.GET("/loans/:id", h.Loan.GetLoan)
	member.GET("/loans/:id/schedule", h.Loan.GetSchedule)
	member.GET("/loans/:id/progress", h.Loan.GetProgress)

	member.POST("/loans/:id/payments", h.Payment.CreatePayment, throttle(middleware.SubmitPayment))
	member.GET("/loans/:id/payments", h.Payment.GetLoanPayments)
	member.POST("/payments/:id/receipt", h.Payment.UploadReceipt, throttle(middleware.SubmitReceipt))
	member.GET("/payments/:id/receipt", h.Payment.GetReceiptURL)

	member.POST("/contributions", h.Contribution.CreateContribution, throttle(middleware.SubmitContribution))
	member.GET("/contributions", h.Contribution.GetContributions)
	member.GET("/contributions/total", h.Contribution.GetTotal)

	member.GET("/notifications", h.Notification.GetNotifications)
	member.PATCH("/notifications/:id/read", h.Notification.MarkRead)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(authMiddleware.Authenticate(), authMiddleware.RequireMember(), authMiddleware.RequireAdmin())

	admin.GET("/loans", h.Loan.AdminListLoans)
	admin.POST("/loans", h.Loan.AdminCreateLoan)
	admin.POST("/loans/:id/decision", h.Loan.DecideLoan)
	admin.POST("/loans/:id/reactivate", h.Loan.ReactivateLoan)
	admin.POST("/loans/:id/payments", h.Payment.AdminCreatePayment)

	admin.GET("/payments/pending", h.Payment.GetPendingPayments)
	admin.POST("/payments/:id/decision", h.Payment.DecidePayment)

	admin.POST("/contributions", h.Contribution.AdminCreateContribution)
	admin.GET("/contributions/pending", h.Contribution.GetPendingContributions)
	admin.POST("/contributions/:id/decision", h.Contribution.DecideContribution)
}
