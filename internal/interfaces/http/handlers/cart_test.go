package handlers_test

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/domain/cart/carttest"
	"github.com/your-org/storefront-cart/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-cart/internal/interfaces/http/routes"
	"github.com/your-org/storefront-cart/internal/pkg/auth"
	"github.com/your-org/storefront-cart/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	kv     *carttest.MemoryStore
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		App:  config.AppConfig{Name: "storefront-test"},
		JWT:  config.JWTConfig{Secret: "0123456789abcdef0123456789abcdef", AccessTokenExpiry: time.Hour},
		Cart: config.CartConfig{TTL: 7 * 24 * time.Hour, KeyPrefix: "cart:", EventsChan: "cart-events:"},
	}
	kv := carttest.NewMemoryStore(time.Now())
	broker := carttest.NewBroker()
	log := logger.Discard()

	svc := cart.NewService(kv, broker, cfg, log)
	router := gin.New()
	routes.SetupCartRoutes(router.Group("/api/v1"), handlers.NewCartHandler(svc, broker, log), cfg)

	return &fixture{router: router, kv: kv, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) cart.CartResponse {
	t.Helper()
	var resp cart.CartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func teeBody(qty int) gin.H {
	return gin.H{"product_id": 42, "name": "Tee", "unit_price": "20.00", "quantity": qty}
}

func TestMissingSessionRejectedBeforeStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// Any store access would turn into a 500
	f.kv.SetFail(true)

	requests := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodGet, "/api/v1/cart/count"},
		{http.MethodPost, "/api/v1/cart/items"},
		{http.MethodPut, "/api/v1/cart/items/42"},
		{http.MethodDelete, "/api/v1/cart/items/42"},
		{http.MethodDelete, "/api/v1/cart"},
		{http.MethodGet, "/api/v1/cart?session_id=bad%20id"},
	}

	for _, r := range requests {
		w := f.do(t, r.method, r.path, teeBody(1))
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", r.method, r.path)
	}
}

func TestGetEmptyCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/cart?session_id=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":"0.00","item_count":0,"line_count":0}`, w.Body.String())
}

func TestSessionHeaderFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/cart/items", teeBody(2), handlers.SessionHeader, "hdr-session")
	require.Equal(t, http.StatusOK, w.Code)

	_, stored := f.kv.Raw("cart:hdr-session")
	assert.True(t, stored)
}

func TestAddItemValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	bodies := []gin.H{
		{"name": "Tee", "unit_price": "20.00", "quantity": 1},
		{"product_id": 42, "unit_price": "20.00", "quantity": 1},
		{"product_id": 42, "name": "Tee", "quantity": 1},
		{"product_id": 42, "name": "Tee", "unit_price": "twenty", "quantity": 1},
		{"product_id": 42, "name": "Tee", "unit_price": "20.00", "quantity": 0},
		{"product_id": 42, "name": "Tee", "unit_price": "20.00", "quantity": -2},
	}

	for _, body := range bodies {
		w := f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}

	_, stored := f.kv.Raw("cart:s1")
	assert.False(t, stored)
}

func TestAddItemQuantityLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(math.MaxInt))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(cart.MaxQuantity))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(1))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/cart/items/42?session_id=s1", gin.H{"quantity": cart.MaxQuantity + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeCart(t, f.do(t, http.MethodGet, "/api/v1/cart?session_id=s1", nil))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, cart.MaxQuantity, resp.Items[0].Quantity)
	assert.Equal(t, cart.MaxQuantity, resp.ItemCount)
	assert.Equal(t, "199980.00", resp.Total)
}

func TestZeroVariationMergesWithNone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(1))
	body := teeBody(2)
	body["variation_id"] = 0
	w := f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", body)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeCart(t, w)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)
	assert.Nil(t, resp.Items[0].VariationID)
}

func TestAggregates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", gin.H{"product_id": 1, "name": "Socks", "unit_price": "10.00", "quantity": 2})
	w := f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", gin.H{"product_id": 2, "name": "Pin", "unit_price": "5.50", "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeCart(t, w)
	assert.Equal(t, "25.50", resp.Total)
	assert.Equal(t, 3, resp.ItemCount)
	assert.Equal(t, 2, resp.LineCount)

	w = f.do(t, http.MethodGet, "/api/v1/cart/count?session_id=s1", nil)
	assert.JSONEq(t, `{"item_count":3}`, w.Body.String())
}

func TestUpdateQuantityResponses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(1))

	w := f.do(t, http.MethodPut, "/api/v1/cart/items/42?session_id=s1", gin.H{"quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "80.00", decodeCart(t, w).Total)

	w = f.do(t, http.MethodPut, "/api/v1/cart/items/7?session_id=s1", gin.H{"quantity": 4})
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, qty := range []int{0, -1} {
		w = f.do(t, http.MethodPut, "/api/v1/cart/items/42?session_id=s1", gin.H{"quantity": qty})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w = f.do(t, http.MethodPut, "/api/v1/cart/items/abc?session_id=s1", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/cart?session_id=s1", nil)
	assert.Equal(t, 4, decodeCart(t, w).ItemCount)
}

func TestRemoveAndClearAreIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=s1", teeBody(1))

	w := f.do(t, http.MethodDelete, "/api/v1/cart/items/999?session_id=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeCart(t, w).Items, 1)

	for i := 0; i < 2; i++ {
		w = f.do(t, http.MethodDelete, "/api/v1/cart?session_id=s1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"items":[],"total":"0.00","item_count":0,"line_count":0}`, w.Body.String())
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.kv.SetFail(true)

	w := f.do(t, http.MethodGet, "/api/v1/cart?session_id=s1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), carttest.ErrUnavailable.Error())

	w = f.do(t, http.MethodDelete, "/api/v1/cart?session_id=s1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	base := "/api/v1/cart?session_id=e2e"

	resp := decodeCart(t, f.do(t, http.MethodGet, base, nil))
	assert.Empty(t, resp.Items)

	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=e2e", teeBody(1))
	resp = decodeCart(t, f.do(t, http.MethodGet, base, nil))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "20.00", resp.Total)
	assert.Equal(t, 1, resp.ItemCount)

	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=e2e", teeBody(2))
	resp = decodeCart(t, f.do(t, http.MethodGet, base, nil))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)
	assert.Equal(t, "60.00", resp.Total)

	f.do(t, http.MethodDelete, "/api/v1/cart/items/42?session_id=e2e", nil)
	resp = decodeCart(t, f.do(t, http.MethodGet, base, nil))
	assert.Empty(t, resp.Items)
	assert.Equal(t, "0.00", resp.Total)
	assert.Equal(t, 0, resp.ItemCount)
}

func TestAuthenticatedCartAndMerge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	token, err := auth.NewJWTManager(f.cfg).GenerateAccessToken(8, "shopper@example.com")
	require.NoError(t, err)
	bearer := "Bearer " + token

	// Guest fills a session cart, then signs in with a cart of their own
	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=guest", teeBody(2))
	w := f.do(t, http.MethodPost, "/api/v1/cart/items", teeBody(1), "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)

	_, stored := f.kv.Raw("cart:user:8")
	require.True(t, stored)

	w = f.do(t, http.MethodPost, "/api/v1/cart/merge?session_id=guest", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/cart/merge?session_id=guest", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeCart(t, w)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)

	_, stored = f.kv.Raw("cart:guest")
	assert.False(t, stored)
}

func TestCartWebSocket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/cart/ws?session_id=live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	type message struct {
		Type string `json:"type"`
		cart.CartResponse
	}
	read := func() message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Items)

	f.do(t, http.MethodPost, "/api/v1/cart/items?session_id=live", teeBody(2))
	updated := read()
	assert.Equal(t, "cart_updated", updated.Type)
	assert.Equal(t, "40.00", updated.Total)

	f.do(t, http.MethodDelete, "/api/v1/cart?session_id=live", nil)
	cleared := read()
	assert.Equal(t, "cart_cleared", cleared.Type)
	assert.Empty(t, cleared.Items)
}
