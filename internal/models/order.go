package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderKindSubscription = "subscription"
	OrderKindWords        = "words"

	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"

	GatewayStripe    = "stripe"
	GatewayInstamojo = "instamojo"
	GatewayRazorpay  = "razorpay"
	GatewayNone      = "none"
)

// Order is a payment intent. It moves from pending to completed at most once.
type Order struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind        string     `gorm:"size:20;not null" json:"kind"`
	Gateway     string     `gorm:"size:20;not null;uniqueIndex:idx_orders_gateway_ref,priority:1" json:"gateway"`
	GatewayRef  *string    `gorm:"size:255;uniqueIndex:idx_orders_gateway_ref,priority:2" json:"gateway_ref"`
	Plan        string     `gorm:"size:20" json:"plan,omitempty"`
	WordCount   int64      `gorm:"not null;default:0" json:"word_count,omitempty"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Currency    string     `gorm:"size:3;not null" json:"currency"`
	CouponCode  string     `gorm:"size:50" json:"coupon_code,omitempty"`
	Status      string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
