package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

var ErrWebhookSignature = errors.New("stripe webhook signature verification failed")

type StripeGateway struct {
	frontendURL   string
	webhookSecret string

	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeGateway sets the global stripe.Key and uses the checkout session API.
func NewStripeGateway(secretKey, webhookSecret, frontendURL string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		webhookSecret: webhookSecret,
		newSession:    session.New,
		getSession:    session.Get,
	}
}

func (g *StripeGateway) Name() string { return models.GatewayStripe }

func (g *StripeGateway) Supports(currency string) bool {
	switch strings.ToLower(currency) {
	case "usd", "inr":
		return true
	}
	return false
}

func (g *StripeGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.UserID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(g.frontendURL + "/payment/success?gateway=stripe&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.frontendURL + "/payment/cancel"),
		Metadata:   map[string]string{"order_id": req.OrderID.String()},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := g.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session failed: %w", err)
	}
	return &CheckoutSession{Reference: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) Confirm(_ context.Context, c Confirmation) (*Settlement, error) {
	sess, err := g.getSession(c.Reference, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe session lookup failed: %w", err)
	}
	return settlementFromSession(sess), nil
}

func settlementFromSession(sess *stripe.CheckoutSession) *Settlement {
	s := &Settlement{
		Paid:     sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:   sess.AmountTotal,
		Currency: string(sess.Currency),
	}
	if sess.PaymentIntent != nil {
		s.PaymentID = sess.PaymentIntent.ID
	}
	return s
}

// ParseWebhook verifies the Stripe-Signature header and returns the checkout
// session of a checkout.session.completed event. Other event types yield nil.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*stripe.CheckoutSession, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	return &sess, nil
}
