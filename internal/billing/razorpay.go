package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
)

var errBadSignature = apperr.New(apperr.ErrPaymentVerificationFailed, "razorpay signature mismatch")

type RazorpayGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewRazorpayGateway(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayGateway {
	return &RazorpayGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *RazorpayGateway) Name() string { return models.GatewayRazorpay }

func (g *RazorpayGateway) Supports(currency string) bool {
	return strings.EqualFold(currency, "inr")
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateCheckout creates a Razorpay order. The client opens Razorpay
// Checkout with the returned order id, so there is no redirect URL.
func (g *RazorpayGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.OrderID.String(),
		"notes":    map[string]string{"order_id": req.OrderID.String(), "purpose": req.Description},
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var order razorpayOrder
	if err := g.do(httpReq, &order); err != nil {
		return nil, err
	}
	return &CheckoutSession{Reference: order.ID}, nil
}

// Confirm checks the checkout signature and then that the payment was
// captured against the same order.
func (g *RazorpayGateway) Confirm(ctx context.Context, c Confirmation) (*Settlement, error) {
	if !g.validSignature(c.Reference, c.PaymentID, c.Signature) {
		return nil, errBadSignature
	}

	endpoint := g.baseURL + "/payments/" + url.PathEscape(c.PaymentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var p razorpayPayment
	if err := g.do(httpReq, &p); err != nil {
		return nil, err
	}
	if p.OrderID != c.Reference {
		return nil, apperr.New(apperr.ErrPaymentVerificationFailed, "razorpay payment belongs to another order")
	}
	return &Settlement{
		Paid:      p.Status == "captured",
		PaymentID: p.ID,
		Amount:    p.Amount,
		Currency:  strings.ToLower(p.Currency),
	}, nil
}

// validSignature compares hex(HMAC-SHA256(order_id|payment_id)) in constant time.
func (g *RazorpayGateway) validSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(g.keySecret, orderID, paymentID)), []byte(signature))
}

// Sign returns the checkout signature Razorpay issues for a payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *RazorpayGateway) do(req *http.Request, out interface{}) error {
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read razorpay response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode razorpay response: %w", err)
	}
	return nil
}
