package payments

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

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	SenderWalletID   string `json:"sender_wallet_id"`
	ReceiverWalletID string `json:"receiver_wallet_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference"`
	PIN              string `json:"pin"`
	MessageRef       string `json:"message_ref"`
}

type refundRequest struct {
	PIN       string `json:"pin"`
	Reference string `json:"reference"`
}

type transactionResponse struct {
	ID               string     `json:"id"`
	SenderWalletID   string     `json:"sender_wallet_id,omitempty"`
	ReceiverWalletID string     `json:"receiver_wallet_id,omitempty"`
	Kind             string     `json:"kind"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Reference        string     `json:"reference"`
	MessageRef       string     `json:"message_ref,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type outcomeResponse struct {
	Transaction     transactionResponse `json:"transaction"`
	SenderBalance   string              `json:"sender_balance,omitempty"`
	ReceiverBalance string              `json:"receiver_balance,omitempty"`
	Replayed        bool                `json:"replayed"`
}

// Transfer processes a wallet-to-wallet transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal")
	}
	ownerID, _ := c.Locals("owner_id").(string)

	outcome, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderWalletID:   req.SenderWalletID,
		ReceiverWalletID: req.ReceiverWalletID,
		Amount:           amount,
		Currency:         req.Currency,
		Reference:        req.Reference,
		PIN:              req.PIN,
		MessageRef:       req.MessageRef,
		RequestorOwnerID: ownerID,
	})
	if err != nil {
		return mapTransferError(err)
	}

	status := http.StatusCreated
	if outcome.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toOutcomeResponse(outcome))
}

// Refund reverses a completed transfer.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ownerID, _ := c.Locals("owner_id").(string)

	outcome, err := h.service.Refund(c.UserContext(), RefundInput{
		TransactionID:    c.Params("transactionId"),
		PIN:              req.PIN,
		Reference:        req.Reference,
		RequestorOwnerID: ownerID,
	})
	if err != nil {
		return mapTransferError(err)
	}

	status := http.StatusCreated
	if outcome.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toOutcomeResponse(outcome))
}

// Cancel rejects a pending transaction.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	txn, err := h.service.Cancel(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		case errors.Is(err, ledger.ErrTerminalState):
			return fiber.NewError(http.StatusConflict, "transaction already in a terminal state")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toTransactionResponse(txn))
}

// Get returns a single transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	txn, err := h.service.GetTransaction(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toTransactionResponse(txn))
}

// List returns a wallet's transaction history, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	page, next, err := h.service.ListTransactions(c.UserContext(),
		c.Params("walletId"), c.Query("cursor"), c.QueryInt("limit"))
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	items := make([]transactionResponse, 0, len(page))
	for _, txn := range page {
		items = append(items, toTransactionResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": items,
		"next_cursor":  next,
	})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, ledger.ErrInvalidAmount
	}
	return amount, nil
}

func mapTransferError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, authz.ErrInvalidPin), errors.Is(err, authz.ErrPinNotConfigured),
		errors.Is(err, authz.ErrWalletNotActive), errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrWalletNotActive), errors.Is(err, ErrSameWallet),
		errors.Is(err, ErrNotRefundable):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "try again later")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toOutcomeResponse(outcome Outcome) outcomeResponse {
	resp := outcomeResponse{
		Transaction: toTransactionResponse(outcome.Transaction),
		Replayed:    outcome.Replayed,
	}
	if !outcome.SenderBalance.IsZero() || !outcome.ReceiverBalance.IsZero() {
		resp.SenderBalance = outcome.SenderBalance.StringFixed(2)
		resp.ReceiverBalance = outcome.ReceiverBalance.StringFixed(2)
	}
	return resp
}

func toTransactionResponse(txn ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:               txn.ID,
		SenderWalletID:   txn.SenderWalletID,
		ReceiverWalletID: txn.ReceiverWalletID,
		Kind:             string(txn.Kind),
		Amount:           txn.Amount.StringFixed(2),
		Currency:         txn.Currency,
		Status:           string(txn.Status),
		Reference:        txn.Reference,
		MessageRef:       txn.MessageRef,
		FailureReason:    txn.FailureReason,
		CreatedAt:        txn.CreatedAt,
		CompletedAt:      txn.CompletedAt,
	}
}
