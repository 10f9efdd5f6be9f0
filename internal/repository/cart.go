package repository

import (
	"context"
	"storefront-checkout/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*model.Cart, error)
	FindByUserID(ctx context.Context, tx *gorm.DB, userID uint) (*model.Cart, error)
	FindItem(ctx context.Context, cartID, itemID uint) (*model.CartItem, error)
	FindItemByProduct(ctx context.Context, cartID, productID uint) (*model.CartItem, error)
	AddQuantity(ctx context.Context, cartID, productID uint, quantity int) error
	SetItemQuantity(ctx context.Context, itemID uint, quantity int) error
	DeleteItem(ctx context.Context, itemID uint) error
	ClearByUserID(ctx context.Context, tx *gorm.DB, userID uint) (int64, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

// GetOrCreate is safe under concurrent first access: the unique user_id
// index makes the losing insert a no-op.
func (r *cartRepoImpl) GetOrCreate(ctx context.Context, userID uint) (*model.Cart, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.Cart{UserID: userID}).Error
	if err != nil {
		return nil, err
	}

	return r.FindByUserID(ctx, nil, userID)
}

func (r *cartRepoImpl) FindByUserID(ctx context.Context, tx *gorm.DB, userID uint) (*model.Cart, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	var cart model.Cart
	err := conn.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_items.id")
		}).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error

	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) FindItem(ctx context.Context, cartID, itemID uint) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error

	if err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *cartRepoImpl) FindItemByProduct(ctx context.Context, cartID, productID uint) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error

	if err != nil {
		return nil, err
	}

	return &item, nil
}

// AddQuantity merges into an existing line for the product or inserts one.
func (r *cartRepoImpl) AddQuantity(ctx context.Context, cartID, productID uint, quantity int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity": gorm.Expr("cart_items.quantity + ?", quantity),
			}),
		}).Create(&model.CartItem{
			CartID:    cartID,
			ProductID: productID,
			Quantity:  quantity,
		}).Error
		if err != nil {
			return err
		}

		return r.touch(tx, cartID)
	})
}

func (r *cartRepoImpl) SetItemQuantity(ctx context.Context, itemID uint, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *cartRepoImpl) DeleteItem(ctx context.Context, itemID uint) error {
	return r.db.WithContext(ctx).
		Where("id = ?", itemID).
		Delete(&model.CartItem{}).Error
}

// ClearByUserID deletes every line of the user's cart. A missing or empty
// cart is not an error.
func (r *cartRepoImpl) ClearByUserID(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	result := conn.WithContext(ctx).
		Where("cart_id IN (?)", conn.Model(&model.Cart{}).Select("id").Where("user_id = ?", userID)).
		Delete(&model.CartItem{})

	return result.RowsAffected, result.Error
}

func (r *cartRepoImpl) touch(tx *gorm.DB, cartID uint) error {
	return tx.Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now()).Error
}
