// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrMethodNotFound возвращается, если способ оплаты не найден или принадлежит другому пользователю.
	ErrMethodNotFound = errors.New("payment method not found")
	// ErrMerchantNotFound возвращается, если мерчант не найден или принадлежит другому пользователю.
	ErrMerchantNotFound = errors.New("merchant not found")
	// ErrTransactionNotFound возвращается, если операция не найдена или удалена.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlock — они
		// возможны при конкурентном резервировании бонусов.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateMerchant сохраняет мерчанта пользователя.
func (r *PostgresRepository) CreateMerchant(ctx context.Context, m *model.Merchant) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO merchants (user_id, name, mcc, online) VALUES ($1, $2, $3, $4) RETURNING id`,
		m.UserID, m.Name, m.MCC, m.Online,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create merchant: %w", err)
	}
	return id, nil
}

// GetMerchant возвращает мерчанта пользователя по идентификатору.
func (r *PostgresRepository) GetMerchant(ctx context.Context, userID, id int64) (*model.Merchant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, mcc, online, created_at
		 FROM merchants
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	var m model.Merchant
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.MCC, &m.Online, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("get merchant: %w", err)
	}

	return &m, nil
}

// ListMerchants возвращает мерчантов пользователя.
func (r *PostgresRepository) ListMerchants(ctx context.Context, userID int64) ([]model.Merchant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, mcc, online, created_at
		 FROM merchants
		 WHERE user_id = $1
		 ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select merchants: %w", err)
	}
	defer rows.Close()

	var res []model.Merchant
	for rows.Next() {
		var m model.Merchant
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.MCC, &m.Online, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreatePaymentMethod сохраняет способ оплаты вместе с правилами начисления.
func (r *PostgresRepository) CreatePaymentMethod(ctx context.Context, m *model.PaymentMethod) (int64, error) {
	rules, err := json.Marshal(m.Rules)
	if err != nil {
		return 0, fmt.Errorf("marshal rules: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO payment_methods (user_id, type, name, currency, issuer, product, last_four, statement_day, rules)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		m.UserID, string(m.Type), m.Name, m.Currency, m.Issuer, m.Product, m.LastFour, m.StatementDay, rules,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create payment method: %w", err)
	}
	return id, nil
}

// GetPaymentMethod возвращает способ оплаты пользователя по идентификатору.
func (r *PostgresRepository) GetPaymentMethod(ctx context.Context, userID, id int64) (*model.PaymentMethod, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, type, name, currency, issuer, product, last_four, statement_day, rules, created_at
		 FROM payment_methods
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	m, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}

	return m, nil
}

// ListPaymentMethods возвращает способы оплаты пользователя.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, name, currency, issuer, product, last_four, statement_day, rules, created_at
		 FROM payment_methods
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		res = append(res, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentMethod(row rowScanner) (*model.PaymentMethod, error) {
	var (
		m        model.PaymentMethod
		typeStr  string
		rulesRaw []byte
	)

	err := row.Scan(&m.ID, &m.UserID, &typeStr, &m.Name, &m.Currency, &m.Issuer,
		&m.Product, &m.LastFour, &m.StatementDay, &rulesRaw, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Type = model.MethodType(typeStr)
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &m.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules: %w", err)
		}
	}

	return &m, nil
}
