package models

import (
	"time"

	"github.com/google/uuid"
)

type Payment struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Gateway          string    `gorm:"size:20;not null" json:"gateway"`
	GatewayPaymentID string    `gorm:"size:255" json:"gateway_payment_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	Currency         string    `gorm:"size:3;not null" json:"currency"`
	Status           string    `gorm:"size:20;not null" json:"status"`
	InvoiceKey       string    `gorm:"size:255" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

type WordPurchase struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	WordCount int64     `gorm:"not null" json:"word_count"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Currency  string    `gorm:"size:3;not null" json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// CouponRedemption records one completed order that used a coupon.
type CouponRedemption struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code      string    `gorm:"size:50;not null;index:idx_coupon_redemptions_code_user,priority:1" json:"code"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_coupon_redemptions_code_user,priority:2" json:"user_id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
