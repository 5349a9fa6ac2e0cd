package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudi-pay/kudi_pay/internal/payments"
)

// RegisterPaymentRoutes wires transfer and transaction endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Get("/transactions/:transactionId", h.Get)
	r.Post("/transactions/:transactionId/refund", h.Refund)
	r.Post("/transactions/:transactionId/cancel", h.Cancel)
	r.Get("/wallets/:walletId/transactions", h.List)
}
