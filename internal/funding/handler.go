package funding

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/kudi-pay/kudi_pay/internal/authz"
	"github.com/kudi-pay/kudi_pay/internal/ledger"
	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

// Handler exposes HTTP endpoints for external deposits and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// DepositRequest captures user-provided data for an inbound settlement.
type DepositRequest struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Reference  string `json:"reference"`
	MessageRef string `json:"message_ref"`
}

// WithdrawRequest captures user-provided data for an outbound settlement.
type WithdrawRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	MessageRef  string `json:"message_ref"`
	PIN         string `json:"pin"`
	Destination string `json:"destination"`
}

// FundingResponse represents the API response for funding actions.
type FundingResponse struct {
	TransactionID     string     `json:"transaction_id"`
	Status            string     `json:"status"`
	Balance           string     `json:"balance,omitempty"`
	Reference         string     `json:"reference"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	Replayed          bool       `json:"replayed"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Deposit credits a wallet from the settlement rail.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal")
	}

	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID:   c.Params("walletId"),
		Amount:     amount,
		Currency:   req.Currency,
		Reference:  req.Reference,
		MessageRef: req.MessageRef,
	})
	if err != nil {
		return mapFundingError(err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toResponse(result))
}

// Withdraw debits a wallet toward the settlement rail.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal")
	}

	result, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		WalletID:    c.Params("walletId"),
		Amount:      amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		MessageRef:  req.MessageRef,
		PIN:         req.PIN,
		Destination: req.Destination,
	})
	if err != nil {
		return mapFundingError(err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toResponse(result))
}

func mapFundingError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, authz.ErrInvalidPin), errors.Is(err, authz.ErrPinNotConfigured),
		errors.Is(err, authz.ErrWalletNotActive):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrWalletNotActive):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrProviderDeclined):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "try again later")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toResponse(result Result) FundingResponse {
	resp := FundingResponse{
		TransactionID:     result.Transaction.ID,
		Status:            string(result.Transaction.Status),
		Reference:         result.Transaction.Reference,
		ProviderReference: result.ProviderReference,
		Replayed:          result.Replayed,
		CompletedAt:       result.Transaction.CompletedAt,
	}
	if !result.Balance.IsZero() {
		resp.Balance = result.Balance.StringFixed(2)
	}
	return resp
}
