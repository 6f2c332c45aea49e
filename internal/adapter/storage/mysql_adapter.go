package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             BIGINT AUTO_INCREMENT PRIMARY KEY,
	guild_id       VARCHAR(32) NOT NULL,
	user_id        VARCHAR(32) NOT NULL,
	balance        BIGINT NOT NULL DEFAULT 0,
	bank_money     BIGINT NOT NULL DEFAULT 0,
	bank_interest  DOUBLE NOT NULL DEFAULT 0.01,
	bank_last_seen BIGINT NOT NULL DEFAULT 0,
	reward_daily   BIGINT NOT NULL DEFAULT 0,
	reward_hourly  BIGINT NOT NULL DEFAULT 0,
	prestige       BIGINT NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uq_accounts_guild_user (guild_id, user_id),
	CONSTRAINT chk_accounts_balance CHECK (balance >= 0)
)`

const accountColumns = `guild_id, user_id, balance, bank_money, bank_interest, bank_last_seen,
	reward_daily, reward_hourly, prestige, created_at, updated_at`

// MySQLAdapter stores guild member accounts.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, accountsSchema); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var acct domain.Account
	err := row.Scan(
		&acct.GuildID, &acct.UserID, &acct.Balance,
		&acct.Bank.Money, &acct.Bank.Interest, &acct.Bank.LastSeen,
		&acct.Rewards.Daily, &acct.Rewards.Hourly, &acct.Prestige,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	return acct, err
}

func (m *MySQLAdapter) FindUser(ctx context.Context, guildID, userID string) (*domain.Account, error) {
	acct, err := scanAccount(m.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acct, nil
}

func (m *MySQLAdapter) FindUsers(ctx context.Context, guildID string) ([]domain.Account, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE guild_id = ? ORDER BY id`, guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpdateUserBalance sets the balance. MySQL reports zero affected rows both for
// a missing account and for an unchanged value, so a zero count is resolved
// with an existence check.
func (m *MySQLAdapter) UpdateUserBalance(ctx context.Context, guildID, userID string, newBalance int64) (domain.Confirmation, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, updated_at = NOW()
		WHERE guild_id = ? AND user_id = ? AND balance <> ?`,
		newBalance, guildID, userID, newBalance,
	)
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return domain.Confirmation{Matched: true, Modified: true}, nil
	}

	var exists bool
	err = m.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM accounts WHERE guild_id = ? AND user_id = ?)`,
		guildID, userID,
	).Scan(&exists)
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("check account: %w", err)
	}
	return domain.Confirmation{Matched: exists}, nil
}

func (m *MySQLAdapter) CreateAccount(ctx context.Context, guildID, userID string) (*domain.Account, error) {
	acct := domain.NewAccount(guildID, userID)

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO accounts (guild_id, user_id, balance, bank_money, bank_interest, reward_daily, reward_hourly, prestige)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.GuildID, acct.UserID, acct.Balance, acct.Bank.Money, acct.Bank.Interest,
		acct.Rewards.Daily, acct.Rewards.Hourly, acct.Prestige,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountExists, acct.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return m.FindUser(ctx, guildID, userID)
}
