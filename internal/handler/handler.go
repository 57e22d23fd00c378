// Package handler содержит HTTP-обработчики API сервиса cardspend.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/middleware"
	"github.com/mmeshcher/cardspend-system/internal/model"
	"github.com/mmeshcher/cardspend-system/internal/repository"
	"github.com/mmeshcher/cardspend-system/internal/reward"
	"github.com/mmeshcher/cardspend-system/internal/service"
	"github.com/mmeshcher/cardspend-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateMerchant(ctx context.Context, m *model.Merchant) (int64, error)
	ListMerchants(ctx context.Context, userID int64) ([]model.Merchant, error)
	CreatePaymentMethod(ctx context.Context, m *model.PaymentMethod) (int64, error)
	ListPaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethod, error)
	AddTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) error
	GetTransaction(ctx context.Context, userID, id int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]model.Transaction, error)
	Simulate(ctx context.Context, userID, methodID int64, in reward.SimulationInput) (*reward.SimulationResult, error)
	Recalculate(ctx context.Context, userID, methodID int64) (int, error)
	RecalculateAll(ctx context.Context, userID int64) (int, error)
	GetMonthlySummary(ctx context.Context, userID int64, year int, month time.Month, base string) (*service.MonthlySummary, error)
}

// Handler реализует HTTP-обработчики API сервиса cardspend.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type methodRequest struct {
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Currency     string             `json:"currency"`
	Issuer       string             `json:"issuer,omitempty"`
	Product      string             `json:"product,omitempty"`
	CardNumber   string             `json:"card_number,omitempty"`
	StatementDay int                `json:"statement_day,omitempty"`
	Rules        []model.RewardRule `json:"rules,omitempty"`
}

type methodResponse struct {
	ID           int64              `json:"id"`
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Currency     string             `json:"currency"`
	Issuer       string             `json:"issuer,omitempty"`
	Product      string             `json:"product,omitempty"`
	LastFour     string             `json:"last_four,omitempty"`
	StatementDay int                `json:"statement_day,omitempty"`
	Rules        []model.RewardRule `json:"rules,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
}

// CreateMethod регистрирует способ оплаты текущего пользователя.
func (h *Handler) CreateMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req methodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Currency == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lastFour := ""
	if req.CardNumber != "" {
		if !validation.IsValidCardNumber(req.CardNumber) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		lastFour = req.CardNumber[len(req.CardNumber)-4:]
	}

	m := &model.PaymentMethod{
		UserID:       userID,
		Type:         model.MethodType(req.Type),
		Name:         req.Name,
		Currency:     req.Currency,
		Issuer:       req.Issuer,
		Product:      req.Product,
		LastFour:     lastFour,
		StatementDay: req.StatementDay,
		Rules:        req.Rules,
	}

	id, err := h.service.CreatePaymentMethod(r.Context(), m)
	if err != nil {
		h.logger.Error("create method error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	m.ID = id

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(methodToResponse(m)); err != nil {
		h.logger.Error("encode method error", zap.Error(err))
	}
}

// GetMethods возвращает способы оплаты текущего пользователя.
func (h *Handler) GetMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	methods, err := h.service.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		h.logger.Error("get methods error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(methods) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]methodResponse, 0, len(methods))
	for i := range methods {
		resp = append(resp, methodToResponse(&methods[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func methodToResponse(m *model.PaymentMethod) methodResponse {
	resp := methodResponse{
		ID:           m.ID,
		Type:         string(m.Type),
		Name:         m.Name,
		Currency:     m.Currency,
		Issuer:       m.Issuer,
		Product:      m.Product,
		LastFour:     m.LastFour,
		StatementDay: m.StatementDay,
		Rules:        m.Rules,
	}
	if !m.CreatedAt.IsZero() {
		resp.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

type merchantRequest struct {
	Name   string `json:"name"`
	MCC    string `json:"mcc,omitempty"`
	Online bool   `json:"online,omitempty"`
}

type merchantResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	MCC    string `json:"mcc,omitempty"`
	Online bool   `json:"online,omitempty"`
}

// CreateMerchant регистрирует мерчанта текущего пользователя.
func (h *Handler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req merchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.MCC != "" && !validation.IsValidMCC(req.MCC) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	m := &model.Merchant{
		UserID: userID,
		Name:   req.Name,
		MCC:    req.MCC,
		Online: req.Online,
	}

	id, err := h.service.CreateMerchant(r.Context(), m)
	if err != nil {
		h.logger.Error("create merchant error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(merchantResponse{ID: id, Name: m.Name, MCC: m.MCC, Online: m.Online}); err != nil {
		h.logger.Error("encode merchant error", zap.Error(err))
	}
}

// GetMerchants возвращает мерчантов текущего пользователя.
func (h *Handler) GetMerchants(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	merchants, err := h.service.ListMerchants(r.Context(), userID)
	if err != nil {
		h.logger.Error("get merchants error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(merchants) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]merchantResponse, 0, len(merchants))
	for _, m := range merchants {
		resp = append(resp, merchantResponse{ID: m.ID, Name: m.Name, MCC: m.MCC, Online: m.Online})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type transactionRequest struct {
	MethodID         int64           `json:"method_id"`
	MerchantID       *int64          `json:"merchant_id,omitempty"`
	MerchantName     string          `json:"merchant_name,omitempty"`
	MCC              string          `json:"mcc,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	Online           bool            `json:"online,omitempty"`
	Contactless      bool            `json:"contactless,omitempty"`
	CategoryOverride *model.Category `json:"category_override,omitempty"`
}

type transactionResponse struct {
	ID               int64                  `json:"id"`
	MethodID         int64                  `json:"method_id"`
	MerchantID       *int64                 `json:"merchant_id,omitempty"`
	MerchantName     string                 `json:"merchant_name,omitempty"`
	MCC              string                 `json:"mcc,omitempty"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	OccurredAt       string                 `json:"occurred_at"`
	Online           bool                   `json:"online,omitempty"`
	Contactless      bool                   `json:"contactless,omitempty"`
	Category         model.Category         `json:"category"`
	CategoryOverride *model.Category        `json:"category_override,omitempty"`
	Effective        model.Category         `json:"effective_category"`
	Confidence       float64                `json:"confidence"`
	NeedsReview      bool                   `json:"needs_review"`
	Suggested        []model.Category       `json:"suggested,omitempty"`
	Reward           *model.RewardBreakdown `json:"reward,omitempty"`
}

func (req *transactionRequest) validate() bool {
	if req.MethodID <= 0 || req.OccurredAt.IsZero() {
		return false
	}
	if req.MCC != "" && !validation.IsValidMCC(req.MCC) {
		return false
	}
	return true
}

func (req *transactionRequest) toModel(userID int64) *model.Transaction {
	return &model.Transaction{
		UserID:           userID,
		MethodID:         req.MethodID,
		MerchantID:       req.MerchantID,
		MerchantName:     req.MerchantName,
		MCC:              req.MCC,
		Amount:           req.Amount,
		Currency:         req.Currency,
		OccurredAt:       req.OccurredAt,
		Online:           req.Online,
		Contactless:      req.Contactless,
		CategoryOverride: req.CategoryOverride,
	}
}

func transactionToResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		MethodID:         t.MethodID,
		MerchantID:       t.MerchantID,
		MerchantName:     t.MerchantName,
		MCC:              t.MCC,
		Amount:           t.Amount,
		Currency:         t.Currency,
		OccurredAt:       t.OccurredAt.Format(time.RFC3339),
		Online:           t.Online,
		Contactless:      t.Contactless,
		Category:         t.Category,
		CategoryOverride: t.CategoryOverride,
		Effective:        t.EffectiveCategory(),
		Confidence:       t.Confidence,
		NeedsReview:      t.NeedsReview,
		Suggested:        t.Suggested,
		Reward:           t.Reward,
	}
}

// CreateTransaction принимает новую операцию текущего пользователя.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !req.validate() {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	t, err := h.service.AddTransaction(r.Context(), req.toModel(userID))
	if err != nil {
		h.writeTransactionError(w, err, userID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(transactionToResponse(t)); err != nil {
		h.logger.Error("encode transaction error", zap.Error(err))
	}
}

// UpdateTransaction применяет правки операции текущего пользователя.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !req.validate() {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	t := req.toModel(userID)
	t.ID = id

	updated, err := h.service.UpdateTransaction(r.Context(), t)
	if err != nil {
		h.writeTransactionError(w, err, userID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactionToResponse(updated)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// DeleteTransaction помечает операцию текущего пользователя удалённой.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), userID, id); err != nil {
		h.writeTransactionError(w, err, userID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTransaction возвращает одну операцию текущего пользователя.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, err := h.service.GetTransaction(r.Context(), userID, id)
	if err != nil {
		h.writeTransactionError(w, err, userID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactionToResponse(t)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetTransactions возвращает операции текущего пользователя по фильтру.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	filter, ok := parseTransactionFilter(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		resp = append(resp, transactionToResponse(&txs[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func parseTransactionFilter(r *http.Request) (repository.TransactionFilter, bool) {
	var f repository.TransactionFilter
	q := r.URL.Query()

	if v := q.Get("method_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, false
		}
		f.MethodID = &id
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, false
		}
		f.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, false
		}
		f.To = &ts
	}

	return f, true
}

func (h *Handler) writeTransactionError(w http.ResponseWriter, err error, userID int64) {
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrMethodNotFound),
		errors.Is(err, repository.ErrMerchantNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	default:
		h.logger.Error("transaction error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type simulateRequest struct {
	MethodID     int64           `json:"method_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	MCC          string          `json:"mcc,omitempty"`
	MerchantName string          `json:"merchant_name,omitempty"`
	Online       bool            `json:"online,omitempty"`
	Contactless  bool            `json:"contactless,omitempty"`
	AsOf         time.Time       `json:"as_of,omitempty"`
}

// Simulate рассчитывает баллы гипотетической операции без её записи.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.MethodID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.MCC != "" && !validation.IsValidMCC(req.MCC) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	res, err := h.service.Simulate(r.Context(), userID, req.MethodID, reward.SimulationInput{
		Amount:       req.Amount,
		Currency:     req.Currency,
		MCC:          req.MCC,
		MerchantName: req.MerchantName,
		Online:       req.Online,
		Contactless:  req.Contactless,
		AsOf:         asOf,
	})
	if err != nil {
		if errors.Is(err, repository.ErrMethodNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("simulate error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type recalculateRequest struct {
	MethodID *int64 `json:"method_id,omitempty"`
}

type recalculateResponse struct {
	Recalculated int `json:"recalculated"`
}

// Recalculate заново классифицирует операции и пересчитывает баллы. Без
// method_id пересчитываются все способы оплаты пользователя.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req recalculateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	var (
		n   int
		err error
	)
	if req.MethodID != nil {
		n, err = h.service.Recalculate(r.Context(), userID, *req.MethodID)
	} else {
		n, err = h.service.RecalculateAll(r.Context(), userID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrMethodNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("recalculate error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recalculateResponse{Recalculated: n}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetSummary возвращает месячные итоги трат по категориям в базовой валюте.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()

	now := time.Now()
	year, month := now.Year(), now.Month()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		month = time.Month(m)
	}

	base := q.Get("currency")
	if base == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	summary, err := h.service.GetMonthlySummary(r.Context(), userID, year, month, base)
	if err != nil {
		h.logger.Error("summary error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
