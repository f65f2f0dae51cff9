package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	payments  []models.Payment
	purchases []models.WordPurchase
	redeemed  []models.CouponRedemption
	profiles  map[uuid.UUID]models.Profile
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[uuid.UUID]*models.Order),
		profiles: make(map[uuid.UUID]models.Profile),
	}
}

func (m *memStore) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) SetGatewayRef(_ context.Context, orderID uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].GatewayRef = &ref
	return nil
}

func (m *memStore) FindOrder(_ context.Context, gateway, ref string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Gateway == gateway && o.GatewayRef != nil && *o.GatewayRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *memStore) CountRedemptions(_ context.Context, code string, userID uuid.UUID) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, byUser := m.countLocked(code, userID)
	return total, byUser, nil
}

func (m *memStore) countLocked(code string, userID uuid.UUID) (total, byUser int64) {
	for _, r := range m.redeemed {
		if r.Code != code {
			continue
		}
		total++
		if r.UserID == userID {
			byUser++
		}
	}
	return total, byUser
}

func (m *memStore) Fulfil(_ context.Context, f Fulfilment, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[f.Order.ID]
	if o.Status != models.OrderStatusPending {
		return false, nil
	}
	if r := f.Redemption; r != nil {
		total, byUser := m.countLocked(r.Record.Code, r.Record.UserID)
		if err := CheckRedemption(r.Coupon, total, byUser); err != nil && r.Strict {
			return false, err
		}
	}
	p := m.profiles[o.UserID]
	if err := f.Apply(&p); err != nil {
		return false, err
	}
	o.Status = models.OrderStatusCompleted
	o.CompletedAt = &now
	m.profiles[o.UserID] = p
	if f.Purchase != nil {
		m.purchases = append(m.purchases, *f.Purchase)
	}
	m.payments = append(m.payments, *f.Payment)
	if f.Redemption != nil {
		m.redeemed = append(m.redeemed, *f.Redemption.Record)
	}
	return true, nil
}

func (m *memStore) SetInvoiceKey(_ context.Context, paymentID uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.payments {
		if m.payments[i].ID == paymentID {
			m.payments[i].InvoiceKey = key
		}
	}
	return nil
}

func (m *memStore) ListPayments(_ context.Context, userID uuid.UUID) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListOrders(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

// ledger.Store over the same profiles.
func (m *memStore) Get(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) UpdateLocked(_ context.Context, userID uuid.UUID, fn func(p *models.Profile) error) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	if err := fn(&p); err != nil {
		return nil, err
	}
	m.profiles[userID] = p
	return &p, nil
}

// fakeGateway settles every checkout for the amount it was created with,
// unless exact is set, in which case settlement is returned as is.
type fakeGateway struct {
	mu         sync.Mutex
	name       string
	settlement Settlement
	exact      bool
	charged    map[string]int64
	confirmErr error
	confirms   int
}

func (g *fakeGateway) Name() string                 { return g.name }
func (g *fakeGateway) Supports(currency string) bool { return currency == "usd" || currency == "inr" }

func (g *fakeGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ref := "ref-" + req.OrderID.String()
	g.mu.Lock()
	if g.charged == nil {
		g.charged = make(map[string]int64)
	}
	g.charged[ref] = req.Amount
	g.mu.Unlock()
	return &CheckoutSession{Reference: ref, URL: "https://pay.example/" + req.OrderID.String()}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, c Confirmation) (*Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	s := g.settlement
	if !g.exact {
		s.Amount = g.charged[c.Reference]
	}
	return &s, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memBlobs) Upload(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *memBlobs) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

type harness struct {
	store   *memStore
	gateway *fakeGateway
	blobs   *memBlobs
	svc     *Service
	userID  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		gateway: &fakeGateway{name: models.GatewayStripe, settlement: Settlement{Paid: true, PaymentID: "pi_123"}},
		blobs:   &memBlobs{objects: make(map[string][]byte)},
		userID:  uuid.New(),
	}
	h.store.profiles[h.userID] = models.Profile{
		UserID: h.userID, Plan: plans.Free, WordsLimit: 1000, PlanWordsUsed: 400, WordBalance: 50,
	}
	h.svc = NewService(h.store, plans.Default(), ledger.New(h.store, nil), h.blobs, h.gateway)
	return h
}

func (h *harness) wordOrder(t *testing.T, words int64) *dto.CheckoutResponse {
	t.Helper()
	resp, err := h.svc.CreateWordPurchase(context.Background(), h.userID, "u@example.com", &dto.PurchaseWordsRequest{
		WordCount: words, Currency: "usd", Gateway: models.GatewayStripe,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateWordPurchase(t *testing.T) {
	h := newHarness(t)
	resp := h.wordOrder(t, 2000)

	assert.Equal(t, int64(400), resp.Amount)
	assert.Equal(t, "ref-"+resp.OrderID.String(), resp.Reference)
	assert.NotEmpty(t, resp.CheckoutURL)
	assert.False(t, resp.Completed)

	o := h.store.orders[resp.OrderID]
	assert.Equal(t, models.OrderStatusPending, o.Status)
	require.NotNil(t, o.GatewayRef)
	assert.Equal(t, resp.Reference, *o.GatewayRef)
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateWordPurchase(ctx, h.userID, "", &dto.PurchaseWordsRequest{WordCount: 10, Gateway: "stripe"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.svc.CreateSubscriptionCheckout(ctx, h.userID, "", &dto.CheckoutRequest{Plan: plans.Free, Gateway: "stripe"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.svc.CreateSubscriptionCheckout(ctx, h.userID, "", &dto.CheckoutRequest{Plan: plans.Pro, Gateway: "paypal"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.svc.CreateSubscriptionCheckout(ctx, h.userID, "", &dto.CheckoutRequest{Plan: plans.Pro, Gateway: "stripe", CouponCode: "BOGUS"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestVerifyWordPurchaseAppliesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp := h.wordOrder(t, 2000)
	conf := Confirmation{Reference: resp.Reference}

	first, err := h.svc.Verify(ctx, h.userID, models.GatewayStripe, conf)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := h.svc.Verify(ctx, h.userID, models.GatewayStripe, conf)
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	p := h.store.profiles[h.userID]
	assert.Equal(t, int64(2050), p.WordBalance)
	assert.Equal(t, int64(400), p.PlanWordsUsed)
	assert.Len(t, h.store.payments, 1)
	assert.Len(t, h.store.purchases, 1)
	assert.Equal(t, 1, h.gateway.confirms)
}

func TestConcurrentVerifyAppliesOnce(t *testing.T) {
	h := newHarness(t)
	resp := h.wordOrder(t, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
			if assert.NoError(t, err) && !out.Replayed {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1050), h.store.profiles[h.userID].WordBalance)
	assert.Len(t, h.store.payments, 1)
}

func TestVerifySubscriptionGrantsPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.svc.CreateSubscriptionCheckout(ctx, h.userID, "", &dto.CheckoutRequest{
		Plan: plans.Pro, Currency: "usd", Gateway: models.GatewayStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999), resp.Amount)

	out, err := h.svc.Verify(ctx, h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	require.NoError(t, err)
	assert.Equal(t, plans.Pro, out.Plan)

	p := h.store.profiles[h.userID]
	assert.Equal(t, plans.Pro, p.Plan)
	assert.Equal(t, int64(10000), p.WordsLimit)
	assert.Zero(t, p.PlanWordsUsed)
	assert.Equal(t, int64(50), p.WordBalance)
	require.NotNil(t, p.PlanExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), *p.PlanExpiresAt, time.Minute)
}

func TestVerifyNotPaid(t *testing.T) {
	h := newHarness(t)
	h.gateway.settlement = Settlement{Paid: false}
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	assert.ErrorIs(t, err, apperr.ErrPaymentNotCompleted)
	assert.Equal(t, models.OrderStatusPending, h.store.orders[resp.OrderID].Status)
	assert.Equal(t, int64(50), h.store.profiles[h.userID].WordBalance)
}

func TestVerifyGatewayError(t *testing.T) {
	h := newHarness(t)
	h.gateway.confirmErr = errors.New("connection refused")
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	assert.ErrorIs(t, err, apperr.ErrPaymentVerificationFailed)
	assert.Empty(t, h.store.payments)
}

func TestVerifyUnderpaid(t *testing.T) {
	h := newHarness(t)
	h.gateway.settlement = Settlement{Paid: true, Amount: 1}
	h.gateway.exact = true
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	assert.ErrorIs(t, err, apperr.ErrPaymentVerificationFailed)
}

func TestVerifyRejectsMissingSettledAmount(t *testing.T) {
	h := newHarness(t)
	h.gateway.settlement = Settlement{Paid: true, PaymentID: "pi_zero"}
	h.gateway.exact = true
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	assert.ErrorIs(t, err, apperr.ErrPaymentVerificationFailed)
	assert.Equal(t, models.OrderStatusPending, h.store.orders[resp.OrderID].Status)
	assert.Equal(t, int64(50), h.store.profiles[h.userID].WordBalance)
	assert.Empty(t, h.store.payments)
}

func TestVerifyIsScopedToOwner(t *testing.T) {
	h := newHarness(t)
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(context.Background(), uuid.New(), models.GatewayStripe, Confirmation{Reference: resp.Reference})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: "unknown"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFullDiscountSkipsGateway(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.catalog.RegisterCoupon(plans.Coupon{Code: "launch", PercentOff: 100, OncePerUser: true}))

	resp, err := h.svc.CreateWordPurchase(context.Background(), h.userID, "", &dto.PurchaseWordsRequest{
		WordCount: 1000, Currency: "usd", Gateway: models.GatewayStripe, CouponCode: "launch",
	})
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.Equal(t, models.GatewayNone, resp.Gateway)
	assert.Equal(t, int64(1050), h.store.profiles[h.userID].WordBalance)
	assert.Zero(t, h.gateway.confirms)
	require.Len(t, h.store.redeemed, 1)
	assert.Equal(t, "LAUNCH", h.store.redeemed[0].Code)
}

func TestCouponSecondRedemptionRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.catalog.RegisterCoupon(plans.Coupon{Code: "launch", PercentOff: 100, OncePerUser: true}))
	req := &dto.PurchaseWordsRequest{
		WordCount: 1000000, Currency: "usd", Gateway: models.GatewayStripe, CouponCode: "LAUNCH",
	}

	_, err := h.svc.CreateWordPurchase(context.Background(), h.userID, "", req)
	require.NoError(t, err)
	balance := h.store.profiles[h.userID].WordBalance

	for range 4 {
		_, err = h.svc.CreateWordPurchase(context.Background(), h.userID, "", req)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, balance, h.store.profiles[h.userID].WordBalance)
	assert.Len(t, h.store.redeemed, 1)
	assert.Zero(t, h.gateway.confirms)
}

func TestCouponRedemptionCap(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.catalog.RegisterCoupon(plans.Coupon{Code: "first2", PercentOff: 100, MaxRedemptions: 2}))
	req := &dto.PurchaseWordsRequest{WordCount: 1000, Currency: "usd", Gateway: models.GatewayStripe, CouponCode: "first2"}

	for range 2 {
		other := uuid.New()
		h.store.profiles[other] = models.Profile{UserID: other, Plan: plans.Free}
		_, err := h.svc.CreateWordPurchase(context.Background(), other, "", req)
		require.NoError(t, err)
	}
	_, err := h.svc.CreateWordPurchase(context.Background(), h.userID, "", req)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, int64(50), h.store.profiles[h.userID].WordBalance)
}

func TestFulfilRejectsExhaustedFreeOrder(t *testing.T) {
	h := newHarness(t)
	coupon := plans.Coupon{Code: "ONCE", PercentOff: 100, OncePerUser: true}
	require.NoError(t, h.svc.catalog.RegisterCoupon(coupon))
	h.store.redeemed = append(h.store.redeemed, models.CouponRedemption{
		ID: uuid.New(), Code: "ONCE", UserID: h.userID, OrderID: uuid.New(),
	})

	// Skips the checkout pre-check, as a concurrent request would.
	order := &models.Order{
		ID: uuid.New(), UserID: h.userID, Kind: models.OrderKindWords, Gateway: models.GatewayNone,
		WordCount: 1000, Currency: "usd", CouponCode: "ONCE", Status: models.OrderStatusPending,
	}
	require.NoError(t, h.store.CreateOrder(context.Background(), order))
	_, err := h.svc.fulfil(context.Background(), order, &Settlement{Paid: true, PaymentID: "coupon:ONCE"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, models.OrderStatusPending, h.store.orders[order.ID].Status)
	assert.Equal(t, int64(50), h.store.profiles[h.userID].WordBalance)
}

func TestPaidCouponOrderRecordsRedemption(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.catalog.RegisterCoupon(plans.Coupon{Code: "half", PercentOff: 50, OncePerUser: true}))

	resp, err := h.svc.CreateWordPurchase(context.Background(), h.userID, "", &dto.PurchaseWordsRequest{
		WordCount: 2000, Currency: "usd", Gateway: models.GatewayStripe, CouponCode: "half",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), resp.Amount)
	assert.Empty(t, h.store.redeemed)

	_, err = h.svc.Verify(context.Background(), h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	require.NoError(t, err)
	require.Len(t, h.store.redeemed, 1)

	_, err = h.svc.CreateWordPurchase(context.Background(), h.userID, "", &dto.PurchaseWordsRequest{
		WordCount: 2000, Currency: "usd", Gateway: models.GatewayStripe, CouponCode: "half",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestInvoiceStored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp := h.wordOrder(t, 1000)

	_, err := h.svc.Verify(ctx, h.userID, models.GatewayStripe, Confirmation{Reference: resp.Reference})
	require.NoError(t, err)

	require.Len(t, h.store.payments, 1)
	pay := h.store.payments[0]
	assert.Equal(t, h.userID.String()+"/"+resp.OrderID.String()+".json", pay.InvoiceKey)

	data, err := h.svc.Invoice(ctx, h.userID, pay.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payment_id":"pi_123"`)
	assert.Contains(t, string(data), `"amount":"2.00"`)

	_, err = h.svc.Invoice(ctx, uuid.New(), pay.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	payments, orders, err := h.svc.History(ctx, h.userID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Len(t, orders, 1)
}

func TestConfirmationFor(t *testing.T) {
	req := &dto.VerifyPaymentRequest{
		SessionID: "cs_1", PaymentRequestID: "pr_1", OrderID: "order_1", PaymentID: "pay_1", Signature: "sig",
	}
	assert.Equal(t, "cs_1", ConfirmationFor(models.GatewayStripe, req).Reference)
	assert.Equal(t, "pr_1", ConfirmationFor(models.GatewayInstamojo, req).Reference)

	rz := ConfirmationFor(models.GatewayRazorpay, req)
	assert.Equal(t, "order_1", rz.Reference)
	assert.Equal(t, "pay_1", rz.PaymentID)
	assert.Equal(t, "sig", rz.Signature)
}
