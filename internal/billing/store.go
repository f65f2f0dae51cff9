package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fulfilment is everything written when an order completes.
type Fulfilment struct {
	Order      *models.Order
	Payment    *models.Payment
	Purchase   *models.WordPurchase // word orders only
	Redemption *Redemption          // coupon orders only
	Apply      func(p *models.Profile) error
}

// Redemption books a coupon use. With Strict set an exhausted coupon fails
// the fulfilment; otherwise the overrun is logged and recorded, since the
// customer already paid the discounted price.
type Redemption struct {
	Coupon *plans.Coupon
	Record *models.CouponRedemption
	Strict bool
}

// CheckRedemption reports whether one more use of c fits its limits given
// the redemptions already recorded overall and by the user.
func CheckRedemption(c *plans.Coupon, total, byUser int64) error {
	if c.OncePerUser && byUser > 0 {
		return apperr.New(apperr.ErrConflict, fmt.Sprintf("coupon %s was already redeemed", c.Code))
	}
	if c.MaxRedemptions > 0 && total >= c.MaxRedemptions {
		return apperr.New(apperr.ErrConflict, fmt.Sprintf("coupon %s is exhausted", c.Code))
	}
	return nil
}

// Store persists orders and payments. Fulfil must, in one transaction,
// flip the order from pending to completed (reporting applied=false and
// writing nothing when it was not pending), book the coupon redemption
// under a per-code lock, apply the entitlement to the locked profile, and
// insert the payment and purchase rows.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	CountRedemptions(ctx context.Context, code string, userID uuid.UUID) (total, byUser int64, err error)
	SetGatewayRef(ctx context.Context, orderID uuid.UUID, ref string) error
	FindOrder(ctx context.Context, gateway, ref string) (*models.Order, error)
	Fulfil(ctx context.Context, f Fulfilment, now time.Time) (applied bool, err error)
	SetInvoiceKey(ctx context.Context, paymentID uuid.UUID, key string) error
	ListPayments(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

var errAlreadyCompleted = errors.New("order already completed")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateOrder(ctx context.Context, o *models.Order) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *GormStore) SetGatewayRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	return s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("gateway_ref", ref).Error
}

func (s *GormStore) FindOrder(ctx context.Context, gateway, ref string) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).Where("gateway = ? AND gateway_ref = ?", gateway, ref).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &o, nil
}

func (s *GormStore) CountRedemptions(ctx context.Context, code string, userID uuid.UUID) (int64, int64, error) {
	return countRedemptions(s.db.WithContext(ctx), code, userID)
}

func countRedemptions(db *gorm.DB, code string, userID uuid.UUID) (int64, int64, error) {
	var counts struct {
		Total  int64
		ByUser int64
	}
	err := db.Model(&models.CouponRedemption{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE user_id = ?) AS by_user", userID).
		Where("code = ?", code).
		Scan(&counts).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count coupon redemptions: %w", err)
	}
	return counts.Total, counts.ByUser, nil
}

// redeem serializes redemptions of one code with a transaction-scoped
// advisory lock so concurrent orders cannot both pass the limit check.
func redeem(tx *gorm.DB, r *Redemption) error {
	code := r.Record.Code
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", code).Error; err != nil {
		return fmt.Errorf("failed to lock coupon %s: %w", code, err)
	}
	total, byUser, err := countRedemptions(tx, code, r.Record.UserID)
	if err != nil {
		return err
	}
	if err := CheckRedemption(r.Coupon, total, byUser); err != nil {
		if r.Strict {
			return err
		}
		slog.Warn("coupon limit overrun by a paid order", "code", code,
			"order_id", r.Record.OrderID.String(), "redemptions", total)
	}
	if err := tx.Create(r.Record).Error; err != nil {
		return fmt.Errorf("failed to record coupon redemption: %w", err)
	}
	return nil
}

func (s *GormStore) Fulfil(ctx context.Context, f Fulfilment, now time.Time) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", f.Order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusCompleted,
				"completed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errAlreadyCompleted
		}
		if f.Redemption != nil {
			if err := redeem(tx, f.Redemption); err != nil {
				return err
			}
		}

		p, err := ledger.LockProfile(tx, f.Order.UserID)
		if err != nil {
			return err
		}
		if err := f.Apply(p); err != nil {
			return err
		}
		if err := ledger.SaveProfile(tx, p); err != nil {
			return err
		}
		if f.Purchase != nil {
			if err := tx.Create(f.Purchase).Error; err != nil {
				return fmt.Errorf("failed to record word purchase: %w", err)
			}
		}
		if err := tx.Create(f.Payment).Error; err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return nil
	})
	if errors.Is(err, errAlreadyCompleted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) SetInvoiceKey(ctx context.Context, paymentID uuid.UUID, key string) error {
	return s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("invoice_key", key).Error
}

func (s *GormStore) ListPayments(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).Scopes(session.ForUser(userID)).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (s *GormStore) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).Scopes(session.ForUser(userID)).
		Order("created_at DESC").
		Limit(100).
		Find(&orders).Error
	return orders, err
}
