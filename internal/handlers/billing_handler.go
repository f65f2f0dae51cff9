package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/billing"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type BillingHandler struct {
	billing *billing.Service
}

func NewBillingHandler(svc *billing.Service) *BillingHandler {
	return &BillingHandler{billing: svc}
}

func (h *BillingHandler) CreateCheckout(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.billing.CreateSubscriptionCheckout(c.UserContext(), userID, session.GetEmail(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *BillingHandler) PurchaseWords(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.PurchaseWordsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.billing.CreateWordPurchase(c.UserContext(), userID, session.GetEmail(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Verify returns the verify-<gateway>-payment handler.
func (h *BillingHandler) Verify(gateway string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := currentUser(c)
		if !ok {
			return unauthorized(c)
		}

		var req dto.VerifyPaymentRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		resp, err := h.billing.Verify(c.UserContext(), userID, gateway, billing.ConfirmationFor(gateway, &req))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	}
}

func (h *BillingHandler) Payments(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	payments, orders, err := h.billing.History(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "payments": payments, "orders": orders})
}

func (h *BillingHandler) Invoice(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid payment id")
	}

	data, err := h.billing.Invoice(c.UserContext(), userID, paymentID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// StripeWebhook is authenticated by the Stripe-Signature header, not a JWT.
func (h *BillingHandler) StripeWebhook(c *fiber.Ctx) error {
	err := h.billing.HandleStripeWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, apperr.ErrPaymentVerificationFailed) || errors.Is(err, apperr.ErrInvalidInput) {
			slog.Warn("stripe webhook rejected", "error", err)
			return badRequest(c, "Invalid webhook")
		}
		slog.Error("stripe webhook processing failed", "action", "stripe_webhook", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Success: false, Error: "Failed to process webhook event",
		})
	}
	return c.JSON(fiber.Map{"received": true})
}
