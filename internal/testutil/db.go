package testutil

import (
	"context"
	"fmt"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB returns a migrated in-memory SQLite database private to the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, username string, staff bool) *model.User {
	t.Helper()

	user := &model.User{Username: username, Email: username + "@example.com", IsStaff: staff}
	require.NoError(t, db.WithContext(context.Background()).Create(user).Error)
	return user
}

func CreateProduct(t *testing.T, db *gorm.DB, name, price string, stock int) *model.Product {
	t.Helper()

	product := &model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, db.WithContext(context.Background()).Create(product).Error)
	return product
}

func ReloadProduct(t *testing.T, db *gorm.DB, productID uint) *model.Product {
	t.Helper()

	var product model.Product
	require.NoError(t, db.First(&product, productID).Error)
	return &product
}

func CountRows(t *testing.T, db *gorm.DB, value interface{}) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(value).Count(&count).Error)
	return count
}
