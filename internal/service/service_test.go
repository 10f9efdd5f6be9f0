package service

import (
	"context"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/event"
	"storefront-checkout/internal/lock"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/testutil"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testSecretKey = "sk_test_secret"

type fakeProvider struct {
	mu sync.Mutex

	initErr   error
	verifyTx  *model.ProviderTransaction
	verifyErr error

	initCalls   int
	lastInit    *model.ProviderInitializeRequest
	verifyCalls int
}

func (f *fakeProvider) InitializeTransaction(_ context.Context, req *model.ProviderInitializeRequest) (*model.ProviderAuthorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.initCalls++
	f.lastInit = req
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &model.ProviderAuthorization{
		AuthorizationURL: "https://checkout.example.com/" + req.Reference,
		AccessCode:       "access_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (f *fakeProvider) VerifyTransaction(_ context.Context, reference string) (*model.ProviderTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	tx := *f.verifyTx
	tx.Reference = reference
	return &tx, nil
}

func (f *fakeProvider) VerifyWebhookSignature(body []byte, signature string) error {
	if client.SignPayload(testSecretKey, body) != signature {
		return client.ErrInvalidSignature
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.PaymentReconciled
}

func (p *recordingPublisher) PublishPaymentReconciled(_ context.Context, evt *event.PaymentReconciled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	db        *gorm.DB
	provider  *fakeProvider
	publisher *recordingPublisher

	carts    CartService
	orders   OrderService
	payments PaymentService

	webhookRecords repository.WebhookRecordRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := zaptest.NewLogger(t)

	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookRecordRepo := repository.NewWebhookRecordRepository(db)

	provider := &fakeProvider{
		verifyTx: &model.ProviderTransaction{ID: "4099", Status: "success", Channel: "card"},
	}
	publisher := &recordingPublisher{}
	reconciler := NewReconciler(db, logger, lock.NewMemoryLocker(), publisher, paymentRepo, orderRepo, cartRepo)

	return &testEnv{
		db:        db,
		provider:  provider,
		publisher: publisher,
		carts:     NewCartService(cartRepo, productRepo),
		orders:    NewOrderService(db, logger, cartRepo, productRepo, orderRepo),
		payments:  NewPaymentService(logger, provider, reconciler, orderRepo, paymentRepo, webhookRecordRepo),

		webhookRecords: webhookRecordRepo,
	}
}

// checkout fills the user's cart with quantity units of product and places
// an order from it.
func (e *testEnv) checkout(t *testing.T, user *model.User, product *model.Product, quantity int) *model.Order {
	t.Helper()
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, user.ID, product.ID, quantity)
	require.NoError(t, err)

	order, err := e.orders.CheckoutFromCart(ctx, user.ID, "12 Harbour Road", "+2348000000000")
	require.NoError(t, err)
	return order
}

func ownerOf(user *model.User) model.Actor {
	return model.Actor{UserID: user.ID, IsStaff: user.IsStaff}
}
