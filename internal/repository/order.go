package repository

import (
	"context"
	"storefront-checkout/internal/model"
	"time"

	"gorm.io/gorm"
)

// OrderFilter scopes order and order-item queries. A nil UserID means the
// caller is staff and sees everything.
type OrderFilter struct {
	UserID   *uint
	Status   string
	Ordering string
}

var orderings = map[string]string{
	"created_at":   "created_at ASC",
	"-created_at":  "created_at DESC",
	"total_price":  "total_price ASC",
	"-total_price": "total_price DESC",
}

// ValidOrdering reports whether the ordering key is accepted by List.
func ValidOrdering(ordering string) bool {
	if ordering == "" {
		return true
	}
	_, ok := orderings[ordering]
	return ok
}

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByID(ctx context.Context, tx *gorm.DB, orderID uint, filter OrderFilter) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*model.Order, error)
	Update(ctx context.Context, orderID uint, fields map[string]interface{}) error
	Delete(ctx context.Context, orderID uint) error
	MarkProcessing(ctx context.Context, tx *gorm.DB, orderID uint) (bool, error)
	GetOrderItem(ctx context.Context, itemID uint, filter OrderFilter) (*model.OrderItem, error)
	ListOrderItems(ctx context.Context, filter OrderFilter) ([]*model.OrderItem, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Omit("Product").Create(&items).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, orderID uint, filter OrderFilter) (*model.Order, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	query := conn.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.id")
		}).
		Preload("Items.Product").
		Where("id = ?", orderID)
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var order model.Order
	if err := query.First(&order).Error; err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) List(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.id")
		}).
		Preload("Items.Product")

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if order, ok := orderings[filter.Ordering]; ok {
		query = query.Order(order)
	}

	var orders []*model.Order
	if err := query.Order("id").Find(&orders).Error; err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) Update(ctx context.Context, orderID uint, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(fields)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// Delete removes the order with its items and payment.
func (r *orderRepoImpl) Delete(ctx context.Context, orderID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&model.OrderItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&model.Payment{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", orderID).Delete(&model.Order{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// MarkProcessing moves a pending order to processing. It reports false when
// the order was not pending, which makes repeated calls no-ops.
func (r *orderRepoImpl) MarkProcessing(ctx context.Context, tx *gorm.DB, orderID uint) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":     model.OrderStatusProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *orderRepoImpl) GetOrderItem(ctx context.Context, itemID uint, filter OrderFilter) (*model.OrderItem, error) {
	query := r.db.WithContext(ctx).
		Preload("Product").
		Where("order_items.id = ?", itemID)
	if filter.UserID != nil {
		query = query.
			Select("order_items.*").
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("orders.user_id = ?", *filter.UserID)
	}

	var item model.OrderItem
	if err := query.First(&item).Error; err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *orderRepoImpl) ListOrderItems(ctx context.Context, filter OrderFilter) ([]*model.OrderItem, error) {
	query := r.db.WithContext(ctx).Preload("Product")
	if filter.UserID != nil {
		query = query.
			Select("order_items.*").
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("orders.user_id = ?", *filter.UserID)
	}

	var items []*model.OrderItem
	if err := query.Order("order_items.id").Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}
