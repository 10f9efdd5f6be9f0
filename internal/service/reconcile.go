package service

import (
	"context"
	"errors"
	"fmt"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/event"
	"storefront-checkout/internal/lock"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
)

// Outcome is a provider-reported result for one transaction reference.
type Outcome struct {
	Reference         string
	Status            string
	ProviderPaymentID string
	Channel           string
	Source            string
}

func (o Outcome) Succeeded() bool {
	return o.Status == string(model.PaymentStatusSuccess)
}

type ReconcileResult struct {
	Payment *model.Payment
	// Changed is false when the outcome had already been applied.
	Changed bool
}

// Reconciler applies payment outcomes to payment, order and cart state.
// Verify and webhook both go through it, so whichever arrives second for a
// reference finds nothing left to do.
type Reconciler interface {
	Reconcile(ctx context.Context, outcome Outcome) (*ReconcileResult, error)
}

type reconcilerImpl struct {
	db          *gorm.DB
	logger      *zap.Logger
	locker      lock.Locker
	publisher   event.Publisher
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
}

func NewReconciler(
	db *gorm.DB,
	logger *zap.Logger,
	locker lock.Locker,
	publisher event.Publisher,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
) Reconciler {
	return &reconcilerImpl{
		db:          db,
		logger:      logger,
		locker:      locker,
		publisher:   publisher,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
	}
}

func (r *reconcilerImpl) Reconcile(ctx context.Context, outcome Outcome) (*ReconcileResult, error) {
	if outcome.Reference == "" {
		return nil, apperror.ErrPaymentNotFound
	}

	release, err := r.locker.Lock(ctx, "payment:"+outcome.Reference)
	if err != nil {
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer release()

	result := &ReconcileResult{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := r.paymentRepo.FindByReference(ctx, tx, outcome.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrPaymentNotFound
			}
			return fmt.Errorf("find payment: %w", err)
		}

		if outcome.Succeeded() {
			changed, err := r.paymentRepo.MarkSuccess(ctx, tx, outcome.Reference, outcome.ProviderPaymentID, outcome.Channel)
			if err != nil {
				return fmt.Errorf("mark payment success: %w", err)
			}
			result.Changed = changed

			if changed {
				if _, err := r.orderRepo.MarkProcessing(ctx, tx, payment.OrderID); err != nil {
					return fmt.Errorf("mark order processing: %w", err)
				}
				// the purchase is final, drop what the user had in the cart
				if _, err := r.cartRepo.ClearByUserID(ctx, tx, payment.UserID); err != nil {
					return fmt.Errorf("clear cart: %w", err)
				}
			}
		} else {
			changed, err := r.paymentRepo.MarkFailed(ctx, tx, outcome.Reference)
			if err != nil {
				return fmt.Errorf("mark payment failed: %w", err)
			}
			result.Changed = changed
		}

		result.Payment, err = r.paymentRepo.FindByReference(ctx, tx, outcome.Reference)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payment := result.Payment
	metrics.RecordReconciled(outcome.Source, string(payment.Status), result.Changed)
	r.logger.Info("payment reconciled",
		zap.String("reference", payment.Reference),
		zap.String("source", outcome.Source),
		zap.String("provider_status", outcome.Status),
		zap.String("status", string(payment.Status)),
		zap.Bool("changed", result.Changed),
		zap.Uint("order_id", payment.OrderID),
	)

	if result.Changed {
		r.publish(ctx, outcome, payment)
	}

	return result, nil
}

func (r *reconcilerImpl) publish(ctx context.Context, outcome Outcome, payment *model.Payment) {
	err := r.publisher.PublishPaymentReconciled(ctx, &event.PaymentReconciled{
		Reference:         payment.Reference,
		PaymentID:         payment.ID,
		OrderID:           payment.OrderID,
		UserID:            payment.UserID,
		Status:            string(payment.Status),
		Amount:            payment.Amount.StringFixed(2),
		ProviderPaymentID: payment.ProviderPaymentID,
		Source:            outcome.Source,
		OccurredAt:        time.Now().UTC(),
	})
	if err != nil {
		// state is already committed; consumers can resync from the payments table
		r.logger.Warn("publish payment event", zap.String("reference", payment.Reference), zap.Error(err))
	}
}
