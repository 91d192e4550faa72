package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)
	return New(svc, auth, "*")
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("login %s expected 200, got %d: %s", username, res.Code, res.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return payload.AccessToken
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("csrf token expected 200, got %d", res.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return payload["csrf_token"]
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestLoginStartsWorkSession(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.AccessToken == "" || payload.Role != "cashier" {
		t.Fatalf("unexpected login payload %+v", payload)
	}
	if payload.WorkSession == nil || payload.WorkSession.Status != domain.WorkSessionActive {
		t.Fatalf("expected an active work session, got %+v", payload.WorkSession)
	}

	active := doJSON(t, api, http.MethodGet, "/api/v1/work-sessions/active", payload.AccessToken, "", nil)
	if active.Code != http.StatusOK {
		t.Fatalf("active session expected 200, got %d", active.Code)
	}

	csrf := fetchCSRFToken(t, api)
	logout := doJSON(t, api, http.MethodPost, "/api/v1/auth/logout", payload.AccessToken, csrf, nil)
	if logout.Code != http.StatusOK {
		t.Fatalf("logout expected 200, got %d", logout.Code)
	}
	again := doJSON(t, api, http.MethodPost, "/api/v1/auth/logout", payload.AccessToken, csrf, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("second logout expected 200, got %d", again.Code)
	}
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: "salah"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestBarcodeLogin(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/barcode-login", "", "", domain.BarcodeLoginRequest{Barcode: "EMP-0002"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Username != "cashier" {
		t.Fatalf("expected cashier badge, got %s", payload.Username)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodGet, "/api/v1/products", "", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	token := login(t, api, "cashier", "cashier123")
	res = doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}
	var payload struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Products) != 8 {
		t.Fatalf("expected 8 seeded products, got %d", len(payload.Products))
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/barcode/8991001000042", token, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("barcode lookup expected 200, got %d", res.Code)
	}
}

func TestSaleAndReturnFlow(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "cashier", "cashier123")
	admin := login(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	sale := domain.SaleRequest{
		IdempotencyKey:  "pos-1-0001",
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 10000,
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-mie-goreng", Quantity: 2, UnitPriceCents: 3500, OriginalPriceCents: 3500},
		},
	}
	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", cashier, csrf, sale)
	if res.Code != http.StatusCreated {
		t.Fatalf("sale expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var created domain.SaleResponse
	if err := json.Unmarshal(res.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Receipt.ChangeGivenCents != 3000 || len(created.Receipt.Sales) != 1 {
		t.Fatalf("unexpected receipt %+v", created.Receipt)
	}
	saleID := created.Receipt.Sales[0].ID

	replay := doJSON(t, api, http.MethodPost, "/api/v1/sales", cashier, csrf, sale)
	if replay.Code != http.StatusOK {
		t.Fatalf("replayed sale expected 200, got %d", replay.Code)
	}

	receipt := doJSON(t, api, http.MethodGet, "/api/v1/sales/"+created.Receipt.ID, cashier, "", nil)
	if receipt.Code != http.StatusOK {
		t.Fatalf("receipt lookup expected 200, got %d", receipt.Code)
	}

	ret := domain.ReturnRequest{SaleID: saleID, ProductID: "prd-mie-goreng", QuantityReturned: 1, Reason: "rusak", Restock: true}
	res = doJSON(t, api, http.MethodPost, "/api/v1/returns", cashier, csrf, ret)
	if res.Code != http.StatusForbidden {
		t.Fatalf("return without pin expected 403, got %d", res.Code)
	}

	ret.ManagerPIN = "123456"
	res = doJSON(t, api, http.MethodPost, "/api/v1/returns", cashier, csrf, ret)
	if res.Code != http.StatusCreated {
		t.Fatalf("return with pin expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var returned domain.ReturnResponse
	if err := json.Unmarshal(res.Body.Bytes(), &returned); err != nil {
		t.Fatalf("decode return: %v", err)
	}
	if returned.Return.RefundAmountCents != 3500 || returned.RemainingQuantity != 1 {
		t.Fatalf("unexpected return %+v", returned)
	}

	eligibility := doJSON(t, api, http.MethodGet, "/api/v1/returns/eligibility?sale_id="+saleID+"&product_id=prd-mie-goreng", cashier, "", nil)
	if eligibility.Code != http.StatusOK {
		t.Fatalf("eligibility expected 200, got %d", eligibility.Code)
	}

	report := doJSON(t, api, http.MethodGet, "/api/v1/reports/daily", admin, "", nil)
	if report.Code != http.StatusOK {
		t.Fatalf("daily report expected 200, got %d", report.Code)
	}
	var daily domain.DailyReport
	if err := json.Unmarshal(report.Body.Bytes(), &daily); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if daily.Receipts != 1 || daily.RefundCents != 3500 {
		t.Fatalf("unexpected report %+v", daily)
	}
}

func TestSaleErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{PaymentMethod: "barter"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 1_000_000,
		Items: []domain.SaleLineRequest{
			{ProductID: "prd-roti-tawar", Quantity: 31, UnitPriceCents: 17800, OriginalPriceCents: 17800},
		},
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d: %s", res.Code, res.Body.String())
	}
}
