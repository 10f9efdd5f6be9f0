package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/event"
	"storefront-checkout/internal/handler"
	"storefront-checkout/internal/lock"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/testutil"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	jwtSecret      = "jwt-test-secret"
	providerSecret = "sk_test_secret"
)

// stubProvider plays the payment provider. verifyStatus is what the verify
// endpoint reports for every reference.
type stubProvider struct {
	mu           sync.Mutex
	verifyStatus string
}

func (p *stubProvider) setVerifyStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyStatus = status
}

func (p *stubProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/transaction/initialize":
		var req model.ProviderInitializeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":false,"message":"bad body"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.example.com/" + req.Reference,
				"access_code":       "code_" + req.Reference,
				"reference":         req.Reference,
			},
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		p.mu.Lock()
		status := p.verifyStatus
		p.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"id":        4099,
				"status":    status,
				"reference": strings.TrimPrefix(r.URL.Path, "/transaction/verify/"),
				"channel":   "card",
			},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":false,"message":"not found"}`))
	}
}

type testApp struct {
	db       *gorm.DB
	handler  http.Handler
	provider *stubProvider
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := zaptest.NewLogger(t)

	stub := &stubProvider{verifyStatus: "success"}
	providerSrv := httptest.NewServer(stub)
	t.Cleanup(providerSrv.Close)

	providerClient := client.NewProviderClient(&config.Provider{
		BaseURL:   providerSrv.URL,
		SecretKey: providerSecret,
		Timeout:   2 * time.Second,
	})

	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookRecordRepo := repository.NewWebhookRecordRepository(db)

	reconciler := service.NewReconciler(db, logger, lock.NewMemoryLocker(), event.NopPublisher{}, paymentRepo, orderRepo, cartRepo)

	srv := NewServer(
		logger,
		jwtSecret,
		service.NewCartService(cartRepo, productRepo),
		service.NewOrderService(db, logger, cartRepo, productRepo, orderRepo),
		service.NewPaymentService(logger, providerClient, reconciler, orderRepo, paymentRepo, webhookRecordRepo),
	)

	return &testApp{db: db, handler: srv.Handler(), provider: stub}
}

func (a *testApp) do(t *testing.T, user *model.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := middleware.IssueToken(jwtSecret, user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) webhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(handler.SignatureHeader, signature)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	assert.Equal(t, status, rec.Code, rec.Body.String())
	var body dto.ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, nil, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = app.do(t, nil, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RequiresAuthentication(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/api/cart/", "/api/orders/", "/api/payments/", "/api/order-items/"} {
		rec := app.do(t, nil, http.MethodGet, path, nil)
		assertError(t, rec, http.StatusUnauthorized, "Unauthenticated")
	}
}

func TestServer_CartEndpoints(t *testing.T) {
	app := newTestApp(t)
	user := testutil.CreateUser(t, app.db, "alice", false)
	product := testutil.CreateProduct(t, app.db, "Coffee Beans", "10.00", 5)

	rec := app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// quantity may arrive as a string
	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID, "quantity": "2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cart struct {
		Items []struct {
			ID       uint `json:"id"`
			Quantity int  `json:"quantity"`
		} `json:"items"`
		TotalPrice decimal.Decimal `json:"total_price"`
		TotalItems int             `json:"total_items"`
	}
	decode(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 3, cart.TotalItems)
	assert.True(t, cart.TotalPrice.Equal(decimal.RequireFromString("30.00")))

	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"quantity": 1})
	assertError(t, rec, http.StatusBadRequest, "InvalidRequest")

	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": 9999})
	assertError(t, rec, http.StatusNotFound, "ProductNotFound")

	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID, "quantity": "lots"})
	assertError(t, rec, http.StatusBadRequest, "InvalidQuantity")

	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID, "quantity": 3})
	assertError(t, rec, http.StatusBadRequest, "InsufficientStock")

	rec = app.do(t, user, http.MethodPost, "/api/cart/update/", map[string]interface{}{"item_id": cart.Items[0].ID})
	assertError(t, rec, http.StatusBadRequest, "InvalidRequest")

	rec = app.do(t, user, http.MethodPost, "/api/cart/update/", map[string]interface{}{"item_id": cart.Items[0].ID, "quantity": 5})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, user, http.MethodPost, "/api/cart/remove/", map[string]interface{}{"item_id": 9999})
	assertError(t, rec, http.StatusNotFound, "CartItemNotFound")

	rec = app.do(t, user, http.MethodPost, "/api/cart/clear/", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &cart)
	assert.Empty(t, cart.Items)
}

func TestServer_CheckoutAndPayByVerify(t *testing.T) {
	app := newTestApp(t)
	user := testutil.CreateUser(t, app.db, "alice", false)
	product := testutil.CreateProduct(t, app.db, "Coffee Beans", "10.00", 5)

	rec := app.do(t, user, http.MethodPost, "/api/orders/checkout-from-cart/", map[string]string{
		"shipping_address": "12 Harbour Road",
		"phone":            "+2348000000000",
	})
	assertError(t, rec, http.StatusBadRequest, "EmptyCart")

	rec = app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, user, http.MethodPost, "/api/orders/checkout-from-cart/", map[string]string{"phone": "+2348000000000"})
	assertError(t, rec, http.StatusBadRequest, "MissingShippingInfo")

	rec = app.do(t, user, http.MethodPost, "/api/orders/checkout-from-cart/", map[string]string{
		"shipping_address": "12 Harbour Road",
		"phone":            "+2348000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var checkout struct {
		Message string      `json:"message"`
		Order   model.Order `json:"order"`
	}
	decode(t, rec, &checkout)
	assert.Equal(t, "Order created successfully", checkout.Message)
	assert.Equal(t, model.OrderStatusPending, checkout.Order.Status)
	assert.True(t, checkout.Order.TotalPrice.Equal(decimal.RequireFromString("20.00")))

	rec = app.do(t, user, http.MethodPost, "/api/payments/initialize/", map[string]interface{}{
		"order_id": checkout.Order.ID,
		"email":    user.Email,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var initRes dto.InitializePaymentResponse
	decode(t, rec, &initRes)
	assert.Equal(t, "success", initRes.Status)
	assert.Equal(t, "https://checkout.example.com/"+initRes.Reference, initRes.AuthorizationURL)

	rec = app.do(t, user, http.MethodPost, "/api/payments/initialize/", map[string]interface{}{
		"order_id": checkout.Order.ID,
		"email":    user.Email,
	})
	assertError(t, rec, http.StatusBadRequest, "PaymentAlreadyExists")

	rec = app.do(t, user, http.MethodPost, "/api/payments/verify/", map[string]string{"reference": initRes.Reference})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var verifyRes dto.VerifyPaymentResponse
	decode(t, rec, &verifyRes)
	assert.Equal(t, "success", verifyRes.Status)
	assert.Equal(t, model.PaymentStatusSuccess, verifyRes.Payment.Status)
	assert.Equal(t, "4099", verifyRes.Payment.ProviderPaymentID)

	rec = app.do(t, user, http.MethodGet, "/api/cart/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = app.do(t, user, http.MethodGet, "/api/orders/?status=processing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []model.Order
	decode(t, rec, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, checkout.Order.ID, orders[0].ID)
}

func TestServer_VerifyFailedOutcome(t *testing.T) {
	app := newTestApp(t)
	user := testutil.CreateUser(t, app.db, "alice", false)
	product := testutil.CreateProduct(t, app.db, "Coffee Beans", "10.00", 5)

	app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID})
	rec := app.do(t, user, http.MethodPost, "/api/orders/checkout-from-cart/", map[string]string{
		"shipping_address": "12 Harbour Road",
		"phone":            "+2348000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout dto.CheckoutResponse
	decode(t, rec, &checkout)

	rec = app.do(t, user, http.MethodPost, "/api/payments/initialize/", map[string]interface{}{
		"order_id": checkout.Order.ID,
		"email":    user.Email,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var initRes dto.InitializePaymentResponse
	decode(t, rec, &initRes)

	app.provider.setVerifyStatus("failed")
	rec = app.do(t, user, http.MethodPost, "/api/payments/verify/", map[string]string{"reference": initRes.Reference})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var verifyRes dto.VerifyPaymentResponse
	decode(t, rec, &verifyRes)
	assert.Equal(t, "failed", verifyRes.Status)
	assert.Equal(t, model.PaymentStatusFailed, verifyRes.Payment.Status)

	rec = app.do(t, user, http.MethodPost, "/api/payments/verify/", map[string]string{"reference": "pay_unknown"})
	assertError(t, rec, http.StatusNotFound, "PaymentNotFound")
}

func TestServer_Webhook(t *testing.T) {
	app := newTestApp(t)
	user := testutil.CreateUser(t, app.db, "alice", false)
	product := testutil.CreateProduct(t, app.db, "Coffee Beans", "10.00", 5)

	app.do(t, user, http.MethodPost, "/api/cart/add/", map[string]interface{}{"product": product.ID})
	rec := app.do(t, user, http.MethodPost, "/api/orders/checkout-from-cart/", map[string]string{
		"shipping_address": "12 Harbour Road",
		"phone":            "+2348000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout dto.CheckoutResponse
	decode(t, rec, &checkout)

	rec = app.do(t, user, http.MethodPost, "/api/payments/initialize/", map[string]interface{}{
		"order_id": checkout.Order.ID,
		"email":    user.Email,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var initRes dto.InitializePaymentResponse
	decode(t, rec, &initRes)

	body := []byte(`{"event":"charge.success","data":{"id":5120,"status":"success","reference":"` + initRes.Reference + `","channel":"ussd"}}`)

	rec = app.webhook(t, body, "")
	assertError(t, rec, http.StatusBadRequest, "MissingSignature")

	rec = app.webhook(t, body, client.SignPayload("wrong-secret", body))
	assertError(t, rec, http.StatusUnauthorized, "InvalidSignature")
	assert.Equal(t, int64(0), testutil.CountRows(t, app.db, &model.WebhookRecord{}))

	oversized := bytes.Repeat([]byte("a"), 1<<20+1)
	rec = app.webhook(t, oversized, client.SignPayload(providerSecret, oversized))
	assertError(t, rec, http.StatusRequestEntityTooLarge, "PayloadTooLarge")
	assert.Equal(t, int64(0), testutil.CountRows(t, app.db, &model.WebhookRecord{}))

	garbage := []byte(`{"event":`)
	rec = app.webhook(t, garbage, client.SignPayload(providerSecret, garbage))
	assertError(t, rec, http.StatusBadRequest, "InvalidRequest")

	unknown := []byte(`{"event":"charge.success","data":{"id":1,"reference":"pay_ffffffffffff"}}`)
	rec = app.webhook(t, unknown, client.SignPayload(providerSecret, unknown))
	assertError(t, rec, http.StatusNotFound, "PaymentNotFound")

	rec = app.webhook(t, body, client.SignPayload(providerSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, user, http.MethodGet, "/api/payments/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []model.Payment
	decode(t, rec, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentStatusSuccess, payments[0].Status)
	assert.Equal(t, "ussd", payments[0].PaymentMethod)
	// garbage, unknown reference and the charge
	assert.Equal(t, int64(3), testutil.CountRows(t, app.db, &model.WebhookRecord{}))
}

func TestServer_OrderCRUD(t *testing.T) {
	app := newTestApp(t)
	alice := testutil.CreateUser(t, app.db, "alice", false)
	bob := testutil.CreateUser(t, app.db, "bob", false)
	staff := testutil.CreateUser(t, app.db, "staff", true)
	product := testutil.CreateProduct(t, app.db, "Coffee Beans", "10.00", 5)

	rec := app.do(t, alice, http.MethodPost, "/api/orders/", map[string]interface{}{
		"shipping_address": "12 Harbour Road",
		"phone":            "+2348000000000",
		"items":            []map[string]interface{}{{"product": product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order model.Order
	decode(t, rec, &order)
	path := "/api/orders/" + strconv.FormatUint(uint64(order.ID), 10) + "/"

	rec = app.do(t, bob, http.MethodGet, path, nil)
	assertError(t, rec, http.StatusNotFound, "OrderNotFound")

	rec = app.do(t, staff, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, alice, http.MethodPatch, path, map[string]string{"phone": "+2348111111111"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &order)
	assert.Equal(t, "+2348111111111", order.Phone)
	assert.Equal(t, "12 Harbour Road", order.ShippingAddress)

	rec = app.do(t, alice, http.MethodGet, "/api/orders/?ordering=price", nil)
	assertError(t, rec, http.StatusBadRequest, "InvalidRequest")

	rec = app.do(t, alice, http.MethodGet, "/api/order-items/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []model.OrderItem
	decode(t, rec, &items)
	require.Len(t, items, 1)

	rec = app.do(t, bob, http.MethodGet, "/api/order-items/"+strconv.FormatUint(uint64(items[0].ID), 10)+"/", nil)
	assertError(t, rec, http.StatusNotFound, "OrderItemNotFound")

	rec = app.do(t, alice, http.MethodGet, "/api/orders/abc/", nil)
	assertError(t, rec, http.StatusBadRequest, "InvalidRequest")

	rec = app.do(t, alice, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, alice, http.MethodGet, path, nil)
	assertError(t, rec, http.StatusNotFound, "OrderNotFound")
}
