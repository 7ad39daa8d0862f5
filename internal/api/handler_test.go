package api

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "merchant-key"
	testSalt   = "merchant-salt"
	testSecret = "admin-secret"
)

var testRetry = store.RetryPolicy{Attempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}

type fixture struct {
	router *gin.Engine
	store  *store.MemStore
	orders *service.OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.PutProduct(ctx, &models.Product{
		ID:    1,
		Name:  "Face Serum",
		Price: decimal.NewFromInt(500),
		Stock: 10,
	}))

	orders := service.NewOrderService(s, nil, nil, service.NewDiscountValidator(s), decimal.NewFromFloat(0.05), testRetry)
	payments := service.NewPaymentService(s, nil, nil, testKey, testSalt, testRetry)

	router := gin.New()
	NewHandler(orders, payments, testSecret).SetupRoutes(router)
	return &fixture{router: router, store: s, orders: orders}
}

func (f *fixture) placeDeferredOrder(t *testing.T) string {
	t.Helper()
	resp, err := f.orders.PlaceOrder(context.Background(), &service.PlaceOrderRequest{
		Items:       []service.CartLine{{ProductID: 1, Quantity: 2}},
		Email:       "a@example.com",
		Phone:       "9999999999",
		PaymentMode: service.PaymentModeDeferred,
	})
	require.NoError(t, err)
	return resp.OrderID
}

func signedWebhookForm(orderID string) url.Values {
	form := url.Values{}
	form.Set("status", models.GatewayStatusSuccess)
	form.Set("txnid", orderID)
	form.Set("email", "a@example.com")
	form.Set("firstname", "Asha")
	form.Set("productinfo", "Face Serum x2")
	form.Set("amount", "1050.00")

	payload := fmt.Sprintf("%s|%s|||||||||||%s|%s|%s|%s|%s|%s",
		testSalt, form.Get("status"), form.Get("email"), form.Get("firstname"),
		form.Get("productinfo"), form.Get("amount"), form.Get("txnid"), testKey)
	sum := sha512.Sum512([]byte(payload))
	form.Set("hash", hex.EncodeToString(sum[:]))
	return form
}

func postWebhook(router *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsNonPost(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/webhook", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestWebhookPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments/webhook", nil)
	req.Header.Set("Origin", "https://gateway.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookMissingFields(t *testing.T) {
	f := newFixture(t)

	w := postWebhook(f.router, url.Values{"status": {"success"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing fields")
}

func TestWebhookBadHash(t *testing.T) {
	f := newFixture(t)
	orderID := f.placeDeferredOrder(t)

	form := signedWebhookForm(orderID)
	form.Set("amount", "1.00")
	w := postWebhook(f.router, form)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Hash verification failed")

	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
}

func TestWebhookUnknownOrder(t *testing.T) {
	f := newFixture(t)

	w := postWebhook(f.router, signedWebhookForm("no-such-order"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Order not found")
}

func TestWebhookSuccessAndReplay(t *testing.T) {
	f := newFixture(t)
	orderID := f.placeDeferredOrder(t)
	form := signedWebhookForm(orderID)

	w := postWebhook(f.router, form)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "processed successfully")

	// Gateways redeliver; the second delivery must also report success.
	w = postWebhook(f.router, form)
	assert.Equal(t, http.StatusOK, w.Code)

	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, order.Status)
}

func TestPlaceOrderEndpoint(t *testing.T) {
	f := newFixture(t)

	body, err := json.Marshal(map[string]any{
		"items":        []map[string]any{{"product_id": 1, "quantity": 2}},
		"email":        "a@example.com",
		"phone":        "9999999999",
		"payment_mode": "immediate",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp service.PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, models.StatusProcessing, resp.Status)
	assert.Equal(t, "1050.00", resp.Total)
}

func TestPlaceOrderEndpointRejectsBadBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items": []}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAcceptsSignedToken(t *testing.T) {
	f := newFixture(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
