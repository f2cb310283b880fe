package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/streamvault/internal/services/auth"
	"github.com/streamvault/streamvault/internal/services/custody"
)

type AccountsHandler struct {
	custodyService *custody.Service
}

func NewAccountsHandler(custodyService *custody.Service) *AccountsHandler {
	return &AccountsHandler{
		custodyService: custodyService,
	}
}

// GetAccountResponse represents the response for account queries
type GetAccountResponse struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// GetAccount returns the custody balance for an address
func (h *AccountsHandler) GetAccount(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	account, err := h.custodyService.GetAccount(c.Context(), address)
	if errors.Is(err, custody.ErrAccountNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "account not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get account",
		})
	}

	return c.JSON(GetAccountResponse{
		Address: account.Address,
		Asset:   account.Asset,
		Balance: account.Balance,
	})
}

// DepositRequest represents the request body for funding a party account
type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// Deposit credits the caller's own custody account with external funds
func (h *AccountsHandler) Deposit(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	address := c.Params("address")
	if address != caller {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "can only deposit into your own account",
		})
	}

	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	account, err := h.custodyService.Fund(c.Context(), address, req.Asset, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, custody.ErrInvalidAmount), errors.Is(err, custody.ErrAssetMismatch):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to fund account",
			})
		}
	}

	return c.JSON(GetAccountResponse{
		Address: account.Address,
		Asset:   account.Asset,
		Balance: account.Balance,
	})
}
