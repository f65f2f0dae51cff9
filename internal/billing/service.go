package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/storage"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

type Service struct {
	store    Store
	catalog  *plans.Catalog
	ledger   *ledger.Ledger
	invoices storage.BlobStore
	gateways map[string]Gateway
	now      func() time.Time
}

func NewService(store Store, catalog *plans.Catalog, l *ledger.Ledger, invoices storage.BlobStore, gateways ...Gateway) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		ledger:   l,
		invoices: invoices,
		gateways: make(map[string]Gateway),
		now:      time.Now,
	}
	for _, g := range gateways {
		s.gateways[g.Name()] = g
	}
	return s
}

func (s *Service) gateway(name string) (Gateway, error) {
	g, ok := s.gateways[strings.ToLower(name)]
	if !ok {
		return nil, apperr.Invalid(fmt.Sprintf("payment gateway %q is not available", name))
	}
	return g, nil
}

func (s *Service) CreateSubscriptionCheckout(ctx context.Context, userID uuid.UUID, email string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	plan := s.catalog.Get(req.Plan)
	if plan == nil || plan.ID == plans.Free {
		return nil, apperr.Invalid("unknown or non-billable plan")
	}
	g, currency, err := s.resolve(req.Gateway, req.Currency)
	if err != nil {
		return nil, err
	}
	price, err := s.catalog.PlanPrice(plan.ID, currency)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	amount, coupon, err := s.discount(ctx, userID, price, req.CouponCode)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       models.OrderKindSubscription,
		Gateway:    g.Name(),
		Plan:       plan.ID,
		Amount:     amount,
		Currency:   currency,
		CouponCode: couponCode(coupon),
		Status:     models.OrderStatusPending,
	}
	return s.checkout(ctx, g, order, email, plan.Name+" plan (1 month)")
}

func (s *Service) CreateWordPurchase(ctx context.Context, userID uuid.UUID, email string, req *dto.PurchaseWordsRequest) (*dto.CheckoutResponse, error) {
	g, currency, err := s.resolve(req.Gateway, req.Currency)
	if err != nil {
		return nil, err
	}
	price, err := s.catalog.WordPrice(req.WordCount, currency)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	amount, coupon, err := s.discount(ctx, userID, price, req.CouponCode)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       models.OrderKindWords,
		Gateway:    g.Name(),
		WordCount:  req.WordCount,
		Amount:     amount,
		Currency:   currency,
		CouponCode: couponCode(coupon),
		Status:     models.OrderStatusPending,
	}
	return s.checkout(ctx, g, order, email, fmt.Sprintf("%d words", req.WordCount))
}

// discount applies a coupon to price. A code the user can no longer redeem
// is refused here; Fulfil repeats the check under a lock.
func (s *Service) discount(ctx context.Context, userID uuid.UUID, price int64, code string) (int64, *plans.Coupon, error) {
	coupon, err := s.catalog.Coupon(code)
	if err != nil {
		return 0, nil, apperr.Invalid(err.Error())
	}
	if coupon == nil {
		return price, nil, nil
	}
	if coupon.Limited() {
		total, byUser, err := s.store.CountRedemptions(ctx, coupon.Code, userID)
		if err != nil {
			return 0, nil, err
		}
		if err := CheckRedemption(coupon, total, byUser); err != nil {
			return 0, nil, err
		}
	}
	return coupon.Apply(price), coupon, nil
}

func couponCode(c *plans.Coupon) string {
	if c == nil {
		return ""
	}
	return c.Code
}

func (s *Service) resolve(gatewayName, currency string) (Gateway, string, error) {
	g, err := s.gateway(gatewayName)
	if err != nil {
		return nil, "", err
	}
	currency = strings.ToLower(currency)
	if currency == "" {
		currency = "usd"
		if g.Name() != models.GatewayStripe {
			currency = "inr"
		}
	}
	if !g.Supports(currency) {
		return nil, "", apperr.Invalid(fmt.Sprintf("%s does not accept %s", g.Name(), currency))
	}
	return g, currency, nil
}

// checkout stores the pending order and opens a gateway session for it. An
// order discounted to zero skips the gateway and is fulfilled at once.
func (s *Service) checkout(ctx context.Context, g Gateway, order *models.Order, email, description string) (*dto.CheckoutResponse, error) {
	if order.Amount == 0 {
		order.Gateway = models.GatewayNone
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return nil, err
		}
		if _, err := s.fulfil(ctx, order, &Settlement{Paid: true, PaymentID: "coupon:" + order.CouponCode}); err != nil {
			return nil, err
		}
		return &dto.CheckoutResponse{
			Success: true, OrderID: order.ID, Gateway: models.GatewayNone,
			Currency: order.Currency, Completed: true,
		}, nil
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	sess, err := g.CreateCheckout(ctx, CheckoutRequest{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Email:       email,
		Description: description,
		Amount:      order.Amount,
		Currency:    order.Currency,
	})
	if err != nil {
		return nil, apperr.Upstream(g.Name(), err)
	}
	if err := s.store.SetGatewayRef(ctx, order.ID, sess.Reference); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	return &dto.CheckoutResponse{
		Success:     true,
		OrderID:     order.ID,
		Gateway:     g.Name(),
		Reference:   sess.Reference,
		CheckoutURL: sess.URL,
		Amount:      order.Amount,
		Currency:    order.Currency,
	}, nil
}

// ConfirmationFor picks the gateway-specific fields out of a verify request.
func ConfirmationFor(gateway string, req *dto.VerifyPaymentRequest) Confirmation {
	c := Confirmation{PaymentID: req.PaymentID, Signature: req.Signature}
	switch gateway {
	case models.GatewayStripe:
		c.Reference = req.SessionID
	case models.GatewayInstamojo:
		c.Reference = req.PaymentRequestID
	case models.GatewayRazorpay:
		c.Reference = req.OrderID
	}
	return c
}

// Verify confirms a payment with its gateway and applies it. A user may
// only verify their own orders; uuid.Nil skips that check for webhooks.
// Verifying an already completed order succeeds with Replayed set and
// changes nothing.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, gatewayName string, c Confirmation) (*dto.VerifyPaymentResponse, error) {
	g, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	if c.Reference == "" {
		return nil, apperr.Invalid("payment reference is required")
	}

	order, err := s.store.FindOrder(ctx, g.Name(), c.Reference)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	if order.Status == models.OrderStatusCompleted {
		metrics.PaymentsReconciledTotal.WithLabelValues(g.Name(), "replayed").Inc()
		return verifyResponse(order, true), nil
	}

	settlement, err := g.Confirm(ctx, c)
	if err != nil {
		metrics.PaymentsReconciledTotal.WithLabelValues(g.Name(), "failed").Inc()
		slog.Warn("payment verification failed", "gateway", g.Name(), "order_id", order.ID.String(), "error", err)
		if errors.Is(err, apperr.ErrPaymentVerificationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrPaymentVerificationFailed, err)
	}
	if !settlement.Paid {
		metrics.PaymentsReconciledTotal.WithLabelValues(g.Name(), "not_paid").Inc()
		return nil, apperr.ErrPaymentNotCompleted
	}
	if settlement.Amount <= 0 || settlement.Amount < order.Amount {
		metrics.PaymentsReconciledTotal.WithLabelValues(g.Name(), "failed").Inc()
		slog.Warn("settled amount below order amount", "gateway", g.Name(), "order_id", order.ID.String(),
			"paid", settlement.Amount, "expected", order.Amount)
		return nil, apperr.New(apperr.ErrPaymentVerificationFailed, "paid amount is lower than the order amount")
	}

	applied, err := s.fulfil(ctx, order, settlement)
	if err != nil {
		return nil, err
	}
	outcome := "completed"
	if !applied {
		outcome = "replayed"
	}
	metrics.PaymentsReconciledTotal.WithLabelValues(g.Name(), outcome).Inc()
	return verifyResponse(order, !applied), nil
}

func verifyResponse(o *models.Order, replayed bool) *dto.VerifyPaymentResponse {
	return &dto.VerifyPaymentResponse{
		Success:  true,
		OrderID:  o.ID,
		Kind:     o.Kind,
		Replayed: replayed,
		Plan:     o.Plan,
		Words:    o.WordCount,
	}
}

func (s *Service) fulfil(ctx context.Context, order *models.Order, settlement *Settlement) (bool, error) {
	now := s.now()
	f := Fulfilment{
		Order: order,
		Payment: &models.Payment{
			ID:               uuid.New(),
			OrderID:          order.ID,
			UserID:           order.UserID,
			Gateway:          order.Gateway,
			GatewayPaymentID: settlement.PaymentID,
			Amount:           order.Amount,
			Currency:         order.Currency,
			Status:           models.OrderStatusCompleted,
			CreatedAt:        now,
		},
	}

	switch order.Kind {
	case models.OrderKindSubscription:
		plan := s.catalog.Get(order.Plan)
		if plan == nil {
			return false, fmt.Errorf("order %s references unknown plan %q", order.ID, order.Plan)
		}
		f.Apply = func(p *models.Profile) error {
			ledger.GrantPlan(p, plan, now)
			return nil
		}
	case models.OrderKindWords:
		f.Purchase = &models.WordPurchase{
			ID:        uuid.New(),
			OrderID:   order.ID,
			UserID:    order.UserID,
			WordCount: order.WordCount,
			Amount:    order.Amount,
			Currency:  order.Currency,
			CreatedAt: now,
		}
		f.Apply = func(p *models.Profile) error {
			ledger.AddPurchased(p, order.WordCount)
			return nil
		}
	default:
		return false, fmt.Errorf("order %s has unknown kind %q", order.ID, order.Kind)
	}

	if order.CouponCode != "" {
		coupon, err := s.catalog.Coupon(order.CouponCode)
		if err != nil {
			// Retired after checkout; the paid order still books its use.
			coupon = &plans.Coupon{Code: order.CouponCode}
		}
		f.Redemption = &Redemption{
			Coupon: coupon,
			Strict: order.Amount == 0,
			Record: &models.CouponRedemption{
				ID:        uuid.New(),
				Code:      coupon.Code,
				UserID:    order.UserID,
				OrderID:   order.ID,
				CreatedAt: now,
			},
		}
	}

	applied, err := s.store.Fulfil(ctx, f, now)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	s.ledger.Invalidate(ctx, order.UserID)
	s.storeInvoice(ctx, order, f.Payment)

	slog.Info("order fulfilled", "user_id", order.UserID.String(), "action", "payment_completed",
		"order_id", order.ID.String(), "gateway", order.Gateway, "kind", order.Kind)
	return true, nil
}

type invoice struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	Gateway   string    `json:"gateway"`
	PaymentID string    `json:"payment_id"`
	Kind      string    `json:"kind"`
	Plan      string    `json:"plan,omitempty"`
	Words     int64     `json:"words,omitempty"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Coupon    string    `json:"coupon,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

// storeInvoice writes a JSON invoice next to the payment. Failures are
// reported and never undo the payment.
func (s *Service) storeInvoice(ctx context.Context, o *models.Order, p *models.Payment) {
	if s.invoices == nil {
		return
	}
	data, err := json.Marshal(invoice{
		InvoiceID: p.ID,
		OrderID:   o.ID,
		UserID:    o.UserID,
		Gateway:   o.Gateway,
		PaymentID: p.GatewayPaymentID,
		Kind:      o.Kind,
		Plan:      o.Plan,
		Words:     o.WordCount,
		Amount:    formatMajor(o.Amount),
		Currency:  strings.ToUpper(o.Currency),
		Coupon:    o.CouponCode,
		PaidAt:    p.CreatedAt,
	})
	if err != nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s/%s.json", o.UserID, o.ID)
	if err := s.invoices.Upload(ctx, key, data); err != nil {
		slog.Error("invoice upload failed", "user_id", o.UserID.String(), "action", "invoice_upload",
			"order_id", o.ID.String(), "error", err)
		sentry.CaptureException(err)
		return
	}
	if err := s.store.SetInvoiceKey(ctx, p.ID, key); err != nil {
		slog.Warn("failed to link invoice", "payment_id", p.ID.String(), "error", err)
	}
}

// Invoice returns the stored invoice JSON for one of the user's payments.
func (s *Service) Invoice(ctx context.Context, userID, paymentID uuid.UUID) ([]byte, error) {
	payments, err := s.store.ListPayments(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.ID != paymentID {
			continue
		}
		if p.InvoiceKey == "" || s.invoices == nil {
			return nil, apperr.ErrNotFound
		}
		data, err := s.invoices.Download(ctx, p.InvoiceKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apperr.ErrNotFound
		}
		return data, err
	}
	return nil, apperr.ErrNotFound
}

// HandleStripeWebhook reconciles checkout.session.completed events. The
// event is authoritative so no user scoping applies.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	g, ok := s.gateways[models.GatewayStripe].(*StripeGateway)
	if !ok {
		return apperr.Invalid("stripe is not configured")
	}
	sess, err := g.ParseWebhook(payload, signature)
	if err != nil {
		return apperr.New(apperr.ErrPaymentVerificationFailed, err.Error())
	}
	if sess == nil {
		return nil
	}

	_, err = s.Verify(ctx, uuid.Nil, models.GatewayStripe, Confirmation{Reference: sess.ID})
	if errors.Is(err, apperr.ErrNotFound) {
		slog.Warn("stripe webhook for unknown session", "session_id", sess.ID)
		return nil
	}
	return err
}

// History lists the user's payments and orders, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]models.Payment, []models.Order, error) {
	payments, err := s.store.ListPayments(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.store.ListOrders(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return payments, orders, nil
}
