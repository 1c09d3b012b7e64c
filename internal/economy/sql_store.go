package economy

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect диалект SQL для хранилища балансов
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

type dialectQueries struct {
	createTable string
	credit      string
}

var queries = map[Dialect]dialectQueries{
	DialectMySQL: {
		createTable: `
		CREATE TABLE IF NOT EXISTS shard_balances (
			user_id    BIGINT UNSIGNED PRIMARY KEY,
			balance    BIGINT          NOT NULL DEFAULT 0,
			updated_at TIMESTAMP       DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE       CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
		credit: `
		INSERT INTO shard_balances (user_id, balance)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance)`,
	},
	DialectSQLite: {
		createTable: `
		CREATE TABLE IF NOT EXISTS shard_balances (
			user_id    INTEGER PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		credit: `
		INSERT INTO shard_balances (user_id, balance)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance`,
	},
}

// SQLStore хранит балансы в таблице shard_balances (MariaDB/MySQL или SQLite).
// Списание выполняется одним условным UPDATE, поэтому баланс не уходит в минус
// даже при конкурентных запросах.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	q       dialectQueries
}

// NewSQLStore открывает подключение и создаёт таблицу при необходимости.
//
// Параметры:
//
//	dialect - DialectMySQL или DialectSQLite
//	dsn - строка подключения (user:pass@tcp(host:port)/db или file:ledger.db)
func NewSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	if _, ok := queries[dialect]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к %s: %w", dialect, err)
	}

	store, err := OpenSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenSQLStore использует уже открытое подключение
func OpenSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	q, ok := queries[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, dialect)
	}

	if dialect == DialectSQLite {
		// SQLite: одно соединение, иначе :memory: база у каждого соединения своя
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("не удалось проверить соединение с %s: %w", dialect, err)
	}

	if _, err := db.Exec(q.createTable); err != nil {
		return nil, fmt.Errorf("ошибка создания таблицы shard_balances: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect, q: q}, nil
}

func (s *SQLStore) Balance(ctx context.Context, userID uint64) (int64, error) {
	return balanceOf(ctx, s.db, userID)
}

func (s *SQLStore) Credit(ctx context.Context, userID uint64, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.credit, int64(userID), amount); err != nil {
		return 0, fmt.Errorf("ошибка начисления пользователю %d: %w", userID, err)
	}

	balance, err := balanceOf(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации начисления: %w", err)
	}
	return balance, nil
}

func (s *SQLStore) DebitIfSufficient(ctx context.Context, userID uint64, amount int64) (int64, bool, error) {
	if amount == 0 {
		balance, err := s.Balance(ctx, userID)
		return balance, err == nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE shard_balances SET balance = balance - ? WHERE user_id = ? AND balance >= ?`,
		amount, int64(userID), amount)
	if err != nil {
		return 0, false, fmt.Errorf("ошибка списания у пользователя %d: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("ошибка получения количества строк: %w", err)
	}

	balance, err := balanceOf(ctx, tx, userID)
	if err != nil {
		return 0, false, err
	}

	if affected == 0 {
		return balance, false, nil
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("ошибка фиксации списания: %w", err)
	}
	return balance, true, nil
}

// DB подключение хранилища; им пользуются соседние таблицы (инвентарь)
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect диалект подключения
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Close закрывает подключение к БД
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balanceOf(ctx context.Context, q queryRower, userID uint64) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM shard_balances WHERE user_id = ?`, int64(userID)).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения баланса пользователя %d: %w", userID, err)
	}
	return balance, nil
}
