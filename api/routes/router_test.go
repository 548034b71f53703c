package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giftbasket/giftcart/api/controllers"
	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/catalog"
	"github.com/giftbasket/giftcart/internal/checkout"
	"github.com/giftbasket/giftcart/internal/delivery"
	"github.com/giftbasket/giftcart/internal/sessions"
	pkgAuth "github.com/giftbasket/giftcart/pkg/auth"
	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/config"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/metrics"
	"github.com/giftbasket/giftcart/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (m *memStorage) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, cart.ErrSnapshotNotFound
	}
	return v, nil
}

func (m *memStorage) Save(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = payload
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type stubCatalog struct{}

func (stubCatalog) GetProduct(ctx context.Context, id string) (*backend.Product, error) {
	if id == "missing" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &backend.Product{ID: id, Name: "Cesta " + id, Price: decimal.NewFromInt(50)}, nil
}

func (stubCatalog) GetAdditional(ctx context.Context, id string) (*backend.Additional, error) {
	return &backend.Additional{ID: id, Name: "Balão", Price: decimal.NewFromInt(5)}, nil
}

type stubOrders struct {
	mu        sync.Mutex
	submitted []backend.SubmitOrderRequest
}

func (s *stubOrders) CreateDraftOrder(ctx context.Context, req backend.DraftOrderRequest) (*backend.Order, error) {
	return &backend.Order{ID: "D1", IsDraft: true}, nil
}

func (s *stubOrders) ReplaceDraftOrderItems(ctx context.Context, id string, items []backend.OrderItem) error {
	return nil
}

func (s *stubOrders) UpdateDraftOrderMetadata(ctx context.Context, id string, meta backend.DraftMetadata) error {
	return nil
}

func (s *stubOrders) DeleteOrder(ctx context.Context, id string) error { return nil }

func (s *stubOrders) FetchOrder(ctx context.Context, id string) (*backend.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "missing")
}

func (s *stubOrders) SubmitOrder(ctx context.Context, req backend.SubmitOrderRequest) (*backend.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, req)
	return &backend.Order{ID: "O1", Status: "pending"}, nil
}

type testServer struct {
	handler http.Handler
	orders  *stubOrders
	cfg     *config.Config
}

func newTestServer(t *testing.T, deps ...controllers.Dependency) *testServer {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "giftcart", ExpirationMinutes: 60},
	}
	reg := prometheus.NewRegistry()
	orders := &stubOrders{}

	manager, err := sessions.NewManager(sessions.ManagerParams{
		Storage:  &memStorage{values: map[string][]byte{}},
		Catalog:  stubCatalog{},
		Orders:   orders,
		Keys:     redis.Keys{},
		Metrics:  metrics.NewCartMetrics(reg),
		Debounce: time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(manager.Close)

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	engine, err := delivery.NewEngine(delivery.WithLocation(time.UTC), delivery.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	finalizer, err := checkout.NewFinalizer(checkout.FinalizerParams{Orders: orders, Delivery: engine})
	if err != nil {
		t.Fatalf("new finalizer: %v", err)
	}
	cache, err := catalog.NewCache(catalog.CacheParams{Source: stubCatalog{}})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	return &testServer{
		handler: NewRouter(cfg, nil, manager, engine, finalizer, cache, reg, deps...),
		orders:  orders,
		cfg:     cfg,
	}
}

func (s *testServer) do(t *testing.T, method, path, session, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if session != "" {
		req.Header.Set(sessions.HeaderName, session)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type cartEnvelope struct {
	Data struct {
		SessionID string         `json:"session_id"`
		UserID    string         `json:"user_id"`
		Cart      cart.CartState `json:"cart"`
	} `json:"data"`
}

func decodeCart(t *testing.T, resp *httptest.ResponseRecorder) cartEnvelope {
	t.Helper()
	var env cartEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	return env
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t, controllers.Dependency{Name: "redis", Pinger: stubPinger{}})

	resp := srv.do(t, http.MethodGet, "/health/live", "", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 live, got %d", resp.Code)
	}
	resp = srv.do(t, http.MethodGet, "/health/ready", "", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 ready, got %d", resp.Code)
	}

	down := newTestServer(t, controllers.Dependency{Name: "db", Pinger: stubPinger{err: errors.New("refused")}})
	resp = down.do(t, http.MethodGet, "/health/ready", "", "", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when a dependency is down, got %d", resp.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/metrics", "", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.Code)
	}
}

func TestCartSessionIsMintedAndReused(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/v1/cart", "", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	session := resp.Header().Get(sessions.HeaderName)
	if session == "" {
		t.Fatalf("expected minted session header")
	}
	env := decodeCart(t, resp)
	if env.Data.SessionID != session || env.Data.Cart.ItemCount != 0 {
		t.Fatalf("unexpected empty cart %+v", env.Data)
	}

	resp = srv.do(t, http.MethodPost, "/api/v1/cart/items", session, "", `{"product_id":"P1","quantity":2,"addon_ids":["A1"]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("add item: %d body=%s", resp.Code, resp.Body.String())
	}

	resp = srv.do(t, http.MethodGet, "/api/v1/cart", session, "", "")
	env = decodeCart(t, resp)
	if env.Data.Cart.ItemCount != 2 {
		t.Fatalf("expected 2 units, got %d", env.Data.Cart.ItemCount)
	}
	if !env.Data.Cart.Total.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected total 110, got %s", env.Data.Cart.Total)
	}
}

func TestInvalidCartSessionRejected(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/api/v1/cart", "not-a-uuid", "", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCartMutations(t *testing.T) {
	srv := newTestServer(t)
	session := "0b5f4c8e-8f7a-4f39-9a57-7d9f5c1d2e3a"

	body := `{"product_id":"P1","quantity":1,"customizations":[{"customization_id":"c1","type":"text","text":"Feliz aniversário","price_adjustment":"10"}]}`
	if resp := srv.do(t, http.MethodPost, "/api/v1/cart/items", session, "", body); resp.Code != http.StatusOK {
		t.Fatalf("add: %d body=%s", resp.Code, resp.Body.String())
	}

	resp := srv.do(t, http.MethodPatch, "/api/v1/cart/items/quantity", session, "",
		`{"product_id":"P1","quantity":3,"customizations":[{"customization_id":"c1","type":"text","text":"Feliz aniversário","price_adjustment":"10"}]}`)
	env := decodeCart(t, resp)
	if env.Data.Cart.ItemCount != 3 || !env.Data.Cart.Total.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("unexpected cart after quantity update: count=%d total=%s", env.Data.Cart.ItemCount, env.Data.Cart.Total)
	}

	resp = srv.do(t, http.MethodPatch, "/api/v1/cart/items/customizations", session, "",
		`{"product_id":"P1","old_customizations":[{"customization_id":"other","price_adjustment":"0"}],"new_customizations":[]}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for identity mismatch, got %d", resp.Code)
	}

	resp = srv.do(t, http.MethodPut, "/api/v1/cart/metadata", session, "", `{"anonymous":true,"complement":"  apto 12  "}`)
	env = decodeCart(t, resp)
	if !env.Data.Cart.Anonymous || env.Data.Cart.Complement != "apto 12" {
		t.Fatalf("unexpected metadata %+v", env.Data.Cart.Metadata)
	}

	resp = srv.do(t, http.MethodDelete, "/api/v1/cart/items", session, "",
		`{"product_id":"P1","customizations":[{"customization_id":"c1","type":"text","text":"Feliz aniversário","price_adjustment":"10"}]}`)
	env = decodeCart(t, resp)
	if env.Data.Cart.ItemCount != 0 {
		t.Fatalf("expected line removed, got %d units", env.Data.Cart.ItemCount)
	}
}

func TestAddItemValidationAndCatalogErrors(t *testing.T) {
	srv := newTestServer(t)
	session := "0b5f4c8e-8f7a-4f39-9a57-7d9f5c1d2e3b"

	if resp := srv.do(t, http.MethodPost, "/api/v1/cart/items", session, "", `{"quantity":1}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing product, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodPost, "/api/v1/cart/items", session, "", `{"product_id":"missing","quantity":1}`); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", resp.Code)
	}
}

func TestOptionalAuth(t *testing.T) {
	srv := newTestServer(t)
	session := "0b5f4c8e-8f7a-4f39-9a57-7d9f5c1d2e3c"

	resp := srv.do(t, http.MethodGet, "/api/v1/cart", session, "garbage", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.Code)
	}

	resp = srv.do(t, http.MethodGet, "/api/v1/cart", session, srv.token(t, "user-1"), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", resp.Code)
	}
	if env := decodeCart(t, resp); env.Data.UserID != "user-1" {
		t.Fatalf("expected cart bound to user-1, got %q", env.Data.UserID)
	}
}

func TestDeliveryRoutes(t *testing.T) {
	srv := newTestServer(t)
	session := "0b5f4c8e-8f7a-4f39-9a57-7d9f5c1d2e3d"

	if resp := srv.do(t, http.MethodGet, "/api/v1/delivery/windows", "", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("windows: %d", resp.Code)
	}

	resp := srv.do(t, http.MethodGet, "/api/v1/delivery/slots?date=2026-03-03", session, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("slots: %d body=%s", resp.Code, resp.Body.String())
	}
	var slots struct {
		Data struct {
			Date  string              `json:"date"`
			Slots []delivery.TimeSlot `json:"slots"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if slots.Data.Date != "2026-03-03" || len(slots.Data.Slots) == 0 {
		t.Fatalf("unexpected slots %+v", slots.Data)
	}

	if resp := srv.do(t, http.MethodGet, "/api/v1/delivery/slots", session, "", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", resp.Code)
	}

	resp = srv.do(t, http.MethodGet, "/api/v1/delivery/bounds", session, "", "")
	var bounds struct {
		Data struct {
			MinDate             string `json:"min_date"`
			MaxDate             string `json:"max_date"`
			MinPreparationHours int    `json:"min_preparation_hours"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bounds); err != nil {
		t.Fatalf("decode bounds: %v", err)
	}
	if bounds.Data.MinDate != "2026-03-02" || bounds.Data.MaxDate != "2027-03-02" || bounds.Data.MinPreparationHours != 1 {
		t.Fatalf("unexpected bounds %+v", bounds.Data)
	}

	if resp := srv.do(t, http.MethodGet, "/api/v1/delivery/dates", session, "", ""); resp.Code != http.StatusOK {
		t.Fatalf("dates: %d", resp.Code)
	}
}

func TestCheckoutSubmitsAndClearsCart(t *testing.T) {
	srv := newTestServer(t)
	session := "0b5f4c8e-8f7a-4f39-9a57-7d9f5c1d2e3e"

	if resp := srv.do(t, http.MethodPost, "/api/v1/cart/items", session, "", `{"product_id":"P1","quantity":1}`); resp.Code != http.StatusOK {
		t.Fatalf("add: %d", resp.Code)
	}

	resp := srv.do(t, http.MethodPost, "/api/v1/checkout", session, "", `{"delivery_date":"2026-03-03","payment_method":"pix"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete form, got %d", resp.Code)
	}

	body := `{"delivery_address":"Rua A, 10","delivery_city":"Recife","delivery_state":"pe","delivery_date":"2026-03-03","delivery_time":"14:00","payment_method":"pix","recipient_phone":"81999990000"}`
	resp = srv.do(t, http.MethodPost, "/api/v1/checkout", session, "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resp.Code, resp.Body.String())
	}

	var out struct {
		Data struct {
			Order backend.Order `json:"order"`
			Cart  struct {
				Cart cart.CartState `json:"cart"`
			} `json:"cart"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if out.Data.Order.ID != "O1" {
		t.Fatalf("unexpected order %+v", out.Data.Order)
	}
	if out.Data.Cart.Cart.ItemCount != 0 {
		t.Fatalf("expected cart cleared after checkout")
	}

	srv.orders.mu.Lock()
	defer srv.orders.mu.Unlock()
	if len(srv.orders.submitted) != 1 || srv.orders.submitted[0].DeliveryState != "PE" {
		t.Fatalf("unexpected submissions %+v", srv.orders.submitted)
	}
}

func TestCatalogInvalidateRequiresUser(t *testing.T) {
	srv := newTestServer(t)

	body := `{"kind":"product","id":"P1"}`
	if resp := srv.do(t, http.MethodPost, "/api/v1/catalog/invalidate", "", "", body); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous invalidate, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodPost, "/api/v1/catalog/invalidate", "", srv.token(t, "admin"), body); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodPost, "/api/v1/catalog/invalidate", "", srv.token(t, "admin"), `{"kind":"basket","id":"P1"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.Code)
	}
}
