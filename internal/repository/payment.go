package repository

import (
	"context"
	"storefront-checkout/internal/model"
	"time"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	Delete(ctx context.Context, paymentID uint) error
	ExistsForOrder(ctx context.Context, orderID uint) (bool, error)
	FindByID(ctx context.Context, paymentID uint, userID *uint) (*model.Payment, error)
	FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Payment, error)
	List(ctx context.Context, userID *uint) ([]*model.Payment, error)
	MarkSuccess(ctx context.Context, tx *gorm.DB, reference, providerPaymentID, channel string) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, reference string) (bool, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

// Create relies on the unique indexes on order_id and reference; a second
// payment for the same order fails with gorm.ErrDuplicatedKey.
func (r *paymentRepoImpl) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Omit("Order").Create(payment).Error
}

func (r *paymentRepoImpl) Delete(ctx context.Context, paymentID uint) error {
	return r.db.WithContext(ctx).
		Where("id = ?", paymentID).
		Delete(&model.Payment{}).Error
}

func (r *paymentRepoImpl) ExistsForOrder(ctx context.Context, orderID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ?", orderID).
		Count(&count).Error

	return count > 0, err
}

func (r *paymentRepoImpl) FindByID(ctx context.Context, paymentID uint, userID *uint) (*model.Payment, error) {
	query := r.db.WithContext(ctx).
		Preload("Order.Items.Product").
		Where("id = ?", paymentID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var payment model.Payment
	if err := query.First(&payment).Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Payment, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	var payment model.Payment
	err := conn.WithContext(ctx).
		Preload("Order.Items.Product").
		Where("reference = ?", reference).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) List(ctx context.Context, userID *uint) ([]*model.Payment, error) {
	query := r.db.WithContext(ctx).Preload("Order.Items.Product")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var payments []*model.Payment
	if err := query.Order("id").Find(&payments).Error; err != nil {
		return nil, err
	}

	return payments, nil
}

// MarkSuccess reports false when the payment was already successful.
func (r *paymentRepoImpl) MarkSuccess(ctx context.Context, tx *gorm.DB, reference, providerPaymentID, channel string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("reference = ? AND status <> ?", reference, model.PaymentStatusSuccess).
		Updates(map[string]interface{}{
			"status":              model.PaymentStatusSuccess,
			"provider_payment_id": providerPaymentID,
			"payment_method":      channel,
			"updated_at":          time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// MarkFailed only moves pending payments; a success is never downgraded.
func (r *paymentRepoImpl) MarkFailed(ctx context.Context, tx *gorm.DB, reference string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("reference = ? AND status = ?", reference, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":     model.PaymentStatusFailed,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
