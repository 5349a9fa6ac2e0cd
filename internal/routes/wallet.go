package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

// RegisterWalletRoutes wires wallet lifecycle endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/me", h.GetByOwner)
	r.Get("/wallets/:walletId", h.Get)
	r.Put("/wallets/:walletId/pin", h.SetPIN)
	r.Put("/wallets/:walletId/status", h.SetStatus)
}
