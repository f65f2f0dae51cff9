package dto

import "github.com/google/uuid"

type CheckoutRequest struct {
	Plan       string `json:"plan"`
	Currency   string `json:"currency"`
	Gateway    string `json:"gateway"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type PurchaseWordsRequest struct {
	WordCount  int64  `json:"wordCount"`
	Currency   string `json:"currency"`
	Gateway    string `json:"gateway"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type CheckoutResponse struct {
	Success     bool      `json:"success"`
	OrderID     uuid.UUID `json:"order_id"`
	Gateway     string    `json:"gateway"`
	Reference   string    `json:"reference,omitempty"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Completed   bool      `json:"completed"`
}

// VerifyPaymentRequest covers all gateways. Stripe sends session_id,
// Instamojo payment_request_id and payment_id, Razorpay order_id,
// payment_id and signature.
type VerifyPaymentRequest struct {
	SessionID        string `json:"session_id"`
	PaymentRequestID string `json:"payment_request_id"`
	OrderID          string `json:"order_id"`
	PaymentID        string `json:"payment_id"`
	Signature        string `json:"signature"`
}

type VerifyPaymentResponse struct {
	Success  bool      `json:"success"`
	OrderID  uuid.UUID `json:"order_id"`
	Kind     string    `json:"kind"`
	Replayed bool      `json:"replayed"`
	Plan     string    `json:"plan,omitempty"`
	Words    int64     `json:"words,omitempty"`
}
