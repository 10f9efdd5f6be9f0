package repository

import (
	"context"
	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, tx *gorm.DB, productID uint) (*model.Product, error)
	FindMany(ctx context.Context, tx *gorm.DB, productIDs []uint) ([]*model.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) (bool, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: 1, Name: "Espresso Beans 1kg", Price: decimal.RequireFromString("24.50"), Stock: 40},
		{ID: 2, Name: "Pour Over Kettle", Price: decimal.RequireFromString("59.00"), Stock: 12},
		{ID: 3, Name: "Paper Filters x100", Price: decimal.RequireFromString("6.75"), Stock: 200},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, productID uint) (*model.Product, error) {
	var product model.Product
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *productRepoImpl) FindMany(ctx context.Context, tx *gorm.DB, productIDs []uint) ([]*model.Product, error) {
	var products []*model.Product
	err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&products).
		Error

	if err != nil {
		return nil, err
	}

	return products, nil
}

// DecrementStock takes quantity off the product only if enough is left.
// It reports false when the guard failed, so check and write happen in a
// single statement.
func (r *productRepoImpl) DecrementStock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *productRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
