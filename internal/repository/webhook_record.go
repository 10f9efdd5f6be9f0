package repository

import (
	"context"
	"storefront-checkout/internal/model"

	"gorm.io/gorm"
)

type WebhookRecordRepository interface {
	Create(ctx context.Context, record *model.WebhookRecord) error
	MarkProcessed(ctx context.Context, recordID uint) error
	FindByID(ctx context.Context, recordID uint) (*model.WebhookRecord, error)
}

type webhookRecordRepoImpl struct {
	db *gorm.DB
}

func NewWebhookRecordRepository(db *gorm.DB) WebhookRecordRepository {
	return &webhookRecordRepoImpl{db: db}
}

func (r *webhookRecordRepoImpl) Create(ctx context.Context, record *model.WebhookRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *webhookRecordRepoImpl) MarkProcessed(ctx context.Context, recordID uint) error {
	return r.db.WithContext(ctx).
		Model(&model.WebhookRecord{}).
		Where("id = ?", recordID).
		Update("processed", true).Error
}

func (r *webhookRecordRepoImpl) FindByID(ctx context.Context, recordID uint) (*model.WebhookRecord, error) {
	var record model.WebhookRecord
	err := r.db.WithContext(ctx).
		Where("id = ?", recordID).
		First(&record).Error
	if err != nil {
		return nil, err
	}

	return &record, nil
}
