// Package service реализует бизнес-логику сервиса cardspend.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/category"
	"github.com/mmeshcher/cardspend-system/internal/model"
	"github.com/mmeshcher/cardspend-system/internal/rates"
	"github.com/mmeshcher/cardspend-system/internal/repository"
	"github.com/mmeshcher/cardspend-system/internal/reward"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateMerchant(ctx context.Context, m *model.Merchant) (int64, error)
	GetMerchant(ctx context.Context, userID, id int64) (*model.Merchant, error)
	ListMerchants(ctx context.Context, userID int64) ([]model.Merchant, error)
	CreatePaymentMethod(ctx context.Context, m *model.PaymentMethod) (int64, error)
	GetPaymentMethod(ctx context.Context, userID, id int64) (*model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethod, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) (int64, error)
	UpdateTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransactionDerived(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, userID, id int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]model.Transaction, error)
	ListMethodTransactions(ctx context.Context, methodID int64) ([]model.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, userID, id int64) error
	Reverse(ctx context.Context, txID int64) error
	CategoryTotals(ctx context.Context, userID int64, from, to time.Time) ([]repository.CategoryTotal, error)
}

// Service содержит бизнес-логику сервиса cardspend.
type Service struct {
	repo        Repository
	classifier  *category.Classifier
	calculator  *reward.Calculator
	ratesClient *rates.Client
	logger      *zap.Logger

	mu        sync.RWMutex
	rateCache map[string]decimal.Decimal
}

// NewService создаёт новый сервис с явно переданными зависимостями. Клиент
// курсов может быть nil — тогда итоги считаются только в валютах операций.
func NewService(repo Repository, classifier *category.Classifier, calculator *reward.Calculator, ratesClient *rates.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		classifier:  classifier,
		calculator:  calculator,
		ratesClient: ratesClient,
		logger:      logger,
		rateCache:   make(map[string]decimal.Decimal),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateMerchant сохраняет мерчанта пользователя.
func (s *Service) CreateMerchant(ctx context.Context, m *model.Merchant) (int64, error) {
	return s.repo.CreateMerchant(ctx, m)
}

// ListMerchants возвращает мерчантов пользователя.
func (s *Service) ListMerchants(ctx context.Context, userID int64) ([]model.Merchant, error) {
	return s.repo.ListMerchants(ctx, userID)
}

// CreatePaymentMethod сохраняет способ оплаты пользователя.
func (s *Service) CreatePaymentMethod(ctx context.Context, m *model.PaymentMethod) (int64, error) {
	if m.Type != model.MethodTypeCash && m.Type != model.MethodTypeCard {
		return 0, fmt.Errorf("unknown method type: %q", m.Type)
	}
	return s.repo.CreatePaymentMethod(ctx, m)
}

// ListPaymentMethods возвращает способы оплаты пользователя.
func (s *Service) ListPaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, userID)
}

// AddTransaction сохраняет операцию, классифицирует её и начисляет баллы.
// Операция записывается всегда: сбои категоризации и журнала бонусов
// деградируют до предварительного результата.
func (s *Service) AddTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	method, err := s.repo.GetPaymentMethod(ctx, t.UserID, t.MethodID)
	if err != nil {
		return nil, err
	}

	if err := s.fillMerchant(ctx, t); err != nil {
		return nil, err
	}
	if t.Currency == "" {
		t.Currency = method.Currency
	}

	id, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	s.derive(ctx, t, method, false)

	return t, nil
}

// UpdateTransaction применяет правки пользователя и пересчитывает
// категоризацию и баллы. Прежние бонусы операции сторнируются компенсирующей
// записью журнала до нового расчёта.
func (s *Service) UpdateTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	method, err := s.repo.GetPaymentMethod(ctx, t.UserID, t.MethodID)
	if err != nil {
		return nil, err
	}

	if err := s.fillMerchant(ctx, t); err != nil {
		return nil, err
	}
	if t.Currency == "" {
		t.Currency = method.Currency
	}

	if err := s.repo.Reverse(ctx, t.ID); err != nil {
		s.logger.Warn("reverse before update failed", zap.Int64("transaction", t.ID), zap.Error(err))
	}

	if err := s.repo.UpdateTransaction(ctx, t); err != nil {
		return nil, err
	}

	s.derive(ctx, t, method, false)

	return t, nil
}

// DeleteTransaction сторнирует бонусы операции и помечает её удалённой.
func (s *Service) DeleteTransaction(ctx context.Context, userID, id int64) error {
	if _, err := s.repo.GetTransaction(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.Reverse(ctx, id); err != nil {
		return fmt.Errorf("reverse bonus: %w", err)
	}

	return s.repo.SoftDeleteTransaction(ctx, userID, id)
}

// GetTransaction возвращает операцию пользователя.
func (s *Service) GetTransaction(ctx context.Context, userID, id int64) (*model.Transaction, error) {
	return s.repo.GetTransaction(ctx, userID, id)
}

// ListTransactions возвращает операции пользователя по фильтру.
func (s *Service) ListTransactions(ctx context.Context, userID int64, f repository.TransactionFilter) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, f)
}

// Simulate рассчитывает баллы гипотетической операции без записи в журнал.
func (s *Service) Simulate(ctx context.Context, userID, methodID int64, in reward.SimulationInput) (*reward.SimulationResult, error) {
	method, err := s.repo.GetPaymentMethod(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}

	res := s.calculator.Simulate(ctx, in, method)
	return &res, nil
}

// Recalculate заново классифицирует и пересчитывает все операции способа
// оплаты в хронологическом порядке. Бонусы каждой операции сторнируются перед
// новым расчётом, поэтому месячные лимиты заполняются от старых операций к
// новым. Возвращает число пересчитанных операций.
func (s *Service) Recalculate(ctx context.Context, userID, methodID int64) (int, error) {
	method, err := s.repo.GetPaymentMethod(ctx, userID, methodID)
	if err != nil {
		return 0, err
	}

	txs, err := s.repo.ListMethodTransactions(ctx, method.ID)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range txs {
		t := &txs[i]
		if err := s.repo.Reverse(ctx, t.ID); err != nil {
			s.logger.Warn("reverse during recalculate failed",
				zap.Int64("transaction", t.ID), zap.Error(err))
			continue
		}
		s.derive(ctx, t, method, true)
		count++
	}

	return count, nil
}

// RecalculateAll пересчитывает операции всех способов оплаты пользователя.
func (s *Service) RecalculateAll(ctx context.Context, userID int64) (int, error) {
	methods, err := s.repo.ListPaymentMethods(ctx, userID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, m := range methods {
		n, err := s.Recalculate(ctx, userID, m.ID)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

// derive выполняет категоризацию и расчёт баллов и сохраняет производные
// поля операции. Ошибка сохранения логируется, но наружу не отдаётся:
// сама операция к этому моменту уже записана.
func (s *Service) derive(ctx context.Context, t *model.Transaction, method *model.PaymentMethod, useTimeSignals bool) {
	res := s.classifier.Classify(category.Input{
		MCC:            t.MCC,
		MerchantName:   t.MerchantName,
		Amount:         t.Amount,
		OccurredAt:     t.OccurredAt,
		UseTimeSignals: useTimeSignals,
	})
	t.Category = res.Category
	t.Confidence = res.Confidence
	t.NeedsReview = res.NeedsReview
	t.Suggested = res.Suggested

	breakdown := s.calculator.Calculate(ctx, t, method)
	t.Reward = &breakdown

	if err := s.repo.UpdateTransactionDerived(ctx, t); err != nil {
		s.logger.Error("save derived fields failed",
			zap.Int64("transaction", t.ID), zap.Error(err))
	}
}

// fillMerchant подставляет снимок данных мерчанта в операцию, если указан
// merchant_id, а явные поля не заполнены.
func (s *Service) fillMerchant(ctx context.Context, t *model.Transaction) error {
	if t.MerchantID == nil {
		return nil
	}

	m, err := s.repo.GetMerchant(ctx, t.UserID, *t.MerchantID)
	if err != nil {
		return err
	}

	if t.MerchantName == "" {
		t.MerchantName = m.Name
	}
	if t.MCC == "" {
		t.MCC = m.MCC
	}
	if m.Online {
		t.Online = true
	}

	return nil
}
