package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/middleware"
	"github.com/mmeshcher/cardspend-system/internal/model"
	"github.com/mmeshcher/cardspend-system/internal/repository"
	"github.com/mmeshcher/cardspend-system/internal/reward"
	"github.com/mmeshcher/cardspend-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	methodID int64

	addTxResp *model.Transaction
	addTxErr  error

	listResp []model.Transaction
	listErr  error

	simulateResp *reward.SimulationResult
	simulateErr  error

	recalcN   int
	recalcErr error

	summaryResp *service.MonthlySummary
	summaryErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) CreateMerchant(ctx context.Context, m *model.Merchant) (int64, error) {
	return 1, nil
}

func (s *stubService) ListMerchants(ctx context.Context, userID int64) ([]model.Merchant, error) {
	return nil, nil
}

func (s *stubService) CreatePaymentMethod(ctx context.Context, m *model.PaymentMethod) (int64, error) {
	return s.methodID, nil
}

func (s *stubService) ListPaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethod, error) {
	return nil, nil
}

func (s *stubService) AddTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	return s.addTxResp, s.addTxErr
}

func (s *stubService) UpdateTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	return s.addTxResp, s.addTxErr
}

func (s *stubService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	return nil
}

func (s *stubService) GetTransaction(ctx context.Context, userID, id int64) (*model.Transaction, error) {
	return s.addTxResp, s.addTxErr
}

func (s *stubService) ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]model.Transaction, error) {
	return s.listResp, s.listErr
}

func (s *stubService) Simulate(ctx context.Context, userID, methodID int64, in reward.SimulationInput) (*reward.SimulationResult, error) {
	return s.simulateResp, s.simulateErr
}

func (s *stubService) Recalculate(ctx context.Context, userID, methodID int64) (int, error) {
	return s.recalcN, s.recalcErr
}

func (s *stubService) RecalculateAll(ctx context.Context, userID int64) (int, error) {
	return s.recalcN, s.recalcErr
}

func (s *stubService) GetMonthlySummary(ctx context.Context, userID int64, year int, month time.Month, base string) (*service.MonthlySummary, error) {
	return s.summaryResp, s.summaryErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie was not set")
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "wrong"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateMethod_InvalidCardNumber(t *testing.T) {
	h := newTestHandler(t, &stubService{methodID: 1})

	body, _ := json.Marshal(methodRequest{
		Type:       "card",
		Name:       "main card",
		Currency:   "SGD",
		CardNumber: "4561261212345464",
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/methods", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.CreateMethod)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateMethod_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{methodID: 7})

	body, _ := json.Marshal(methodRequest{
		Type:       "card",
		Name:       "main card",
		Currency:   "SGD",
		CardNumber: "4561261212345467",
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/methods", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.CreateMethod)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp methodResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 7 || resp.LastFour != "5467" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateTransaction_Success(t *testing.T) {
	reward42 := &model.RewardBreakdown{Base: 8, Bonus: 72, Total: 80}
	svc := &stubService{
		addTxResp: &model.Transaction{
			ID:         42,
			MethodID:   7,
			MCC:        "5812",
			Amount:     decimal.RequireFromString("23.00"),
			Currency:   "SGD",
			OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			Category:   model.CategoryDining,
			Confidence: 0.9,
			Reward:     reward42,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(transactionRequest{
		MethodID:   7,
		MCC:        "5812",
		Amount:     decimal.RequireFromString("23.00"),
		Currency:   "SGD",
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/transactions", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.CreateTransaction)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp transactionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 || resp.Category != model.CategoryDining {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Reward == nil || resp.Reward.Total != 80 {
		t.Fatalf("unexpected reward: %+v", resp.Reward)
	}
}

func TestCreateTransaction_InvalidMCC(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(transactionRequest{
		MethodID:   7,
		MCC:        "58",
		Amount:     decimal.RequireFromString("10.00"),
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/transactions", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.CreateTransaction)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateTransaction_MethodNotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{addTxErr: repository.ErrMethodNotFound})

	body, _ := json.Marshal(transactionRequest{
		MethodID:   99,
		Amount:     decimal.RequireFromString("10.00"),
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/transactions", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.CreateTransaction)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestGetTransactions_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{listResp: []model.Transaction{}})

	req := authedRequest(t, h, http.MethodGet, "/api/user/transactions", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetTransactions)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestGetTransactions_BadFilter(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := authedRequest(t, h, http.MethodGet, "/api/user/transactions?from=yesterday", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetTransactions)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestSimulate_JSONResponse(t *testing.T) {
	remaining := int64(3928)
	h := newTestHandler(t, &stubService{
		simulateResp: &reward.SimulationResult{
			Base: 8, Bonus: 72, Total: 80,
			RemainingMonthlyBonus: &remaining,
		},
	})

	body, _ := json.Marshal(simulateRequest{
		MethodID:    7,
		Amount:      decimal.RequireFromString("23.00"),
		Currency:    "SGD",
		MCC:         "5812",
		Contactless: true,
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/rewards/simulate", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.Simulate)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp reward.SimulationResult
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 80 || resp.RemainingMonthlyBonus == nil || *resp.RemainingMonthlyBonus != 3928 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRecalculate_WholeUser(t *testing.T) {
	h := newTestHandler(t, &stubService{recalcN: 5})

	req := authedRequest(t, h, http.MethodPost, "/api/user/rewards/recalculate", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.Recalculate)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp recalculateResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Recalculated != 5 {
		t.Fatalf("recalculated = %d, want 5", resp.Recalculated)
	}
}

func TestGetSummary_RequiresCurrency(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := authedRequest(t, h, http.MethodGet, "/api/user/summary", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetSummary)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestProtectedRoutes_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/transactions", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
