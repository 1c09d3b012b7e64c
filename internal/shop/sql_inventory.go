package shop

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/annel0/shard-realms/internal/economy"
)

var inventoryTables = map[economy.Dialect]string{
	economy.DialectMySQL: `
	CREATE TABLE IF NOT EXISTS user_items (
		user_id     BIGINT UNSIGNED NOT NULL,
		item_id     VARCHAR(64)     NOT NULL,
		acquired_at TIMESTAMP       DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, item_id)
	) ENGINE=InnoDB`,
	economy.DialectSQLite: `
	CREATE TABLE IF NOT EXISTS user_items (
		user_id     INTEGER NOT NULL,
		item_id     TEXT    NOT NULL,
		acquired_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, item_id)
	)`,
}

var inventoryInserts = map[economy.Dialect]string{
	economy.DialectMySQL:  `INSERT IGNORE INTO user_items (user_id, item_id) VALUES (?, ?)`,
	economy.DialectSQLite: `INSERT OR IGNORE INTO user_items (user_id, item_id) VALUES (?, ?)`,
}

// SQLInventory таблица user_items в той же базе, что и балансы.
// Подключением владеет ledger, поэтому Close его не закрывает.
type SQLInventory struct {
	db     *sql.DB
	insert string
}

// OpenSQLInventory создаёт таблицу user_items на открытом подключении
func OpenSQLInventory(ctx context.Context, db *sql.DB, dialect economy.Dialect) (*SQLInventory, error) {
	ddl, ok := inventoryTables[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, dialect)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ошибка создания таблицы user_items: %w", err)
	}
	return &SQLInventory{db: db, insert: inventoryInserts[dialect]}, nil
}

func (s *SQLInventory) Owned(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM user_items WHERE user_id = ?`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения инвентаря user %d: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLInventory) Add(ctx context.Context, userID uint64, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.insert, int64(userID), itemID)
	if err != nil {
		return false, fmt.Errorf("ошибка добавления %s user %d: %w", itemID, userID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SQLInventory) Remove(ctx context.Context, userID uint64, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_items WHERE user_id = ? AND item_id = ?`, int64(userID), itemID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления %s user %d: %w", itemID, userID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SQLInventory) Close() error {
	return nil
}
