package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const EventChargeSuccess = "charge.success"

type InitializeInput struct {
	OrderID     uint
	Email       string
	CallbackURL string
}

type InitializeResult struct {
	Payment          *model.Payment
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type PaymentService interface {
	Initialize(ctx context.Context, actor model.Actor, in *InitializeInput) (*InitializeResult, error)
	Verify(ctx context.Context, actor model.Actor, reference string) (*ReconcileResult, error)
	HandleWebhook(ctx context.Context, signature string, body []byte) error
	GetPayment(ctx context.Context, actor model.Actor, paymentID uint) (*model.Payment, error)
	ListPayments(ctx context.Context, actor model.Actor) ([]*model.Payment, error)
}

type paymentServiceImpl struct {
	logger            *zap.Logger
	providerClient    client.ProviderClient
	reconciler        Reconciler
	orderRepo         repository.OrderRepository
	paymentRepo       repository.PaymentRepository
	webhookRecordRepo repository.WebhookRecordRepository
}

func NewPaymentService(
	logger *zap.Logger,
	providerClient client.ProviderClient,
	reconciler Reconciler,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	webhookRecordRepo repository.WebhookRecordRepository,
) PaymentService {
	return &paymentServiceImpl{
		logger:            logger,
		providerClient:    providerClient,
		reconciler:        reconciler,
		orderRepo:         orderRepo,
		paymentRepo:       paymentRepo,
		webhookRecordRepo: webhookRecordRepo,
	}
}

// newReference returns an opaque provider reference.
var newReference = func() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Initialize reserves a reference with a pending payment row and then asks
// the provider for a checkout session. If the provider call does not succeed
// the row is deleted again.
func (s *paymentServiceImpl) Initialize(ctx context.Context, actor model.Actor, in *InitializeInput) (*InitializeResult, error) {
	if in.OrderID == 0 || strings.TrimSpace(in.Email) == "" {
		return nil, apperror.ErrInvalidRequest.WithMessage("order_id and email are required")
	}

	order, err := s.orderRepo.FindByID(ctx, nil, in.OrderID, repository.OrderFilter{UserID: &actor.UserID})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}

	exists, err := s.paymentRepo.ExistsForOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}
	if exists {
		return nil, apperror.ErrPaymentAlreadyExists
	}

	payment := &model.Payment{
		UserID:    actor.UserID,
		OrderID:   order.ID,
		Amount:    order.TotalPrice,
		Reference: newReference(),
		Status:    model.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		// lost a race with a concurrent initialize for the same order
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.ErrPaymentAlreadyExists
		}
		return nil, fmt.Errorf("store payment in db: %w", err)
	}

	auth, err := s.providerClient.InitializeTransaction(ctx, &model.ProviderInitializeRequest{
		Email:       in.Email,
		Amount:      toMinorUnits(order.TotalPrice),
		Reference:   payment.Reference,
		CallbackURL: in.CallbackURL,
		Metadata: model.ProviderMetadata{
			OrderID: order.ID,
			UserID:  actor.UserID,
		},
	})
	if err != nil {
		s.rollbackPayment(ctx, payment)

		var rejected *client.RejectedError
		if errors.As(err, &rejected) {
			return nil, apperror.ErrPaymentInitFailed.WithMessage("failed to initialize payment: %s", rejected.Message).Wrap(err)
		}
		return nil, apperror.ErrPaymentGateway.Wrap(err)
	}

	s.logger.Info("payment initialized",
		zap.String("reference", payment.Reference),
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", actor.UserID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	payment.Order = order
	return &InitializeResult{
		Payment:          payment,
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        payment.Reference,
	}, nil
}

func (s *paymentServiceImpl) rollbackPayment(ctx context.Context, payment *model.Payment) {
	// the request context may already be cancelled by the time we get here
	if err := s.paymentRepo.Delete(context.WithoutCancel(ctx), payment.ID); err != nil {
		s.logger.Error("rollback pending payment",
			zap.String("reference", payment.Reference),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("pending payment rolled back", zap.String("reference", payment.Reference))
}

// Verify asks the provider for the transaction state and reconciles it.
func (s *paymentServiceImpl) Verify(ctx context.Context, actor model.Actor, reference string) (*ReconcileResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperror.ErrInvalidRequest.WithMessage("reference is required")
	}

	payment, err := s.paymentRepo.FindByReference(ctx, nil, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if !actor.IsStaff && payment.UserID != actor.UserID {
		return nil, apperror.ErrPaymentNotFound
	}

	tx, err := s.providerClient.VerifyTransaction(ctx, reference)
	if err != nil {
		var rejected *client.RejectedError
		if errors.As(err, &rejected) {
			return nil, apperror.ErrPaymentVerifyFailed.WithMessage("failed to verify payment: %s", rejected.Message).Wrap(err)
		}
		return nil, apperror.ErrPaymentGateway.Wrap(err)
	}

	return s.reconciler.Reconcile(ctx, Outcome{
		Reference:         reference,
		Status:            tx.Status,
		ProviderPaymentID: tx.ID.String(),
		Channel:           tx.Channel,
		Source:            SourceVerify,
	})
}

// HandleWebhook authenticates a provider callback, records it and applies
// charge.success events. The record is marked processed only after the
// outcome has been reconciled.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	if signature == "" {
		metrics.RecordWebhook("unknown", "missing_signature")
		return apperror.ErrMissingSignature
	}
	if err := s.providerClient.VerifyWebhookSignature(body, signature); err != nil {
		metrics.RecordWebhook("unknown", "invalid_signature")
		s.logger.Warn("webhook signature rejected", zap.Int("body_bytes", len(body)))
		return apperror.ErrInvalidSignature.Wrap(err)
	}

	// anything correctly signed is recorded, even if it cannot be decoded
	var evt model.ProviderWebhookEvent
	decodeErr := json.Unmarshal(body, &evt)

	record := &model.WebhookRecord{
		Payload: string(body),
		Event:   evt.Event,
	}
	if err := s.webhookRecordRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("store webhook record: %w", err)
	}

	logger := s.logger.With(
		zap.Uint("webhook_record_id", record.ID),
		zap.String("event", evt.Event),
	)

	if decodeErr != nil {
		metrics.RecordWebhook("unknown", "invalid_payload")
		logger.Warn("undecodable webhook payload", zap.Error(decodeErr))
		return apperror.ErrInvalidRequest.WithMessage("invalid webhook payload").Wrap(decodeErr)
	}

	if evt.Event != EventChargeSuccess {
		metrics.RecordWebhook(evt.Event, "ignored")
		logger.Info("webhook received")
		return nil
	}

	var charge model.ProviderTransaction
	if len(evt.Data) > 0 {
		if err := json.Unmarshal(evt.Data, &charge); err != nil {
			metrics.RecordWebhook(evt.Event, "invalid_payload")
			logger.Warn("undecodable charge data", zap.Error(err))
			return apperror.ErrInvalidRequest.WithMessage("invalid charge data").Wrap(err)
		}
	}

	logger = logger.With(zap.String("reference", charge.Reference))
	logger.Info("webhook received")

	if charge.Reference == "" {
		metrics.RecordWebhook(evt.Event, "missing_reference")
		logger.Warn("charge event without reference")
		return nil
	}

	_, err := s.reconciler.Reconcile(ctx, Outcome{
		Reference:         charge.Reference,
		Status:            string(model.PaymentStatusSuccess),
		ProviderPaymentID: charge.ID.String(),
		Channel:           charge.Channel,
		Source:            SourceWebhook,
	})
	if err != nil {
		metrics.RecordWebhook(evt.Event, "failed")
		logger.Error("reconcile webhook", zap.Error(err))
		return err
	}

	if err := s.webhookRecordRepo.MarkProcessed(ctx, record.ID); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}

	metrics.RecordWebhook(evt.Event, "processed")
	return nil
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, actor model.Actor, paymentID uint) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID, actor.Scope())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return payment, nil
}

func (s *paymentServiceImpl) ListPayments(ctx context.Context, actor model.Actor) ([]*model.Payment, error) {
	payments, err := s.paymentRepo.List(ctx, actor.Scope())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// toMinorUnits converts an amount to the provider's smallest currency unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
