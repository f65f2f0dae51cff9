// Package billing creates checkouts with the payment gateways and turns a
// confirmed payment into plan or word entitlements exactly once.
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CheckoutRequest describes what a gateway should charge for.
type CheckoutRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	Email       string
	Description string
	Amount      int64 // minor units
	Currency    string
}

// CheckoutSession is the gateway's handle for a pending payment.
type CheckoutSession struct {
	Reference string
	URL       string
}

// Confirmation carries what the client got back from the gateway.
type Confirmation struct {
	Reference string
	PaymentID string
	Signature string
}

// Settlement is the gateway's view of a payment.
type Settlement struct {
	Paid      bool
	PaymentID string
	Amount    int64
	Currency  string
}

type Gateway interface {
	Name() string
	Supports(currency string) bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Confirm(ctx context.Context, c Confirmation) (*Settlement, error)
}

// formatMajor renders minor units as a decimal string, 79900 → "799.00".
func formatMajor(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
