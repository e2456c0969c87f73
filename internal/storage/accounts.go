package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

const accountColumns = `id, phone, api_id, api_hash, session_string, status,
	first_name, last_name, username, error_message, created_at, last_active`

func (db *DB) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	if account.Status == "" {
		account.Status = domain.AccountDisconnected
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO accounts (id, phone, api_id, api_hash, session_string, status,
			first_name, last_name, username)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, toUUID(account.ID), account.Phone, account.APIID, account.APIHash,
		toText(account.SessionString), string(account.Status),
		toText(account.FirstName), toText(account.LastName), toText(account.Username))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (db *DB) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, toUUID(id))

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("account by id: %w", err)
	}

	return account, nil
}

func (db *DB) AccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE phone = $1
	`, phone)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("account by phone: %w", err)
	}

	return account, nil
}

func (db *DB) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}

		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}

// UpdateAccountStatus records a connection state transition. The error
// message is cleared on non-error states.
func (db *DB) UpdateAccountStatus(ctx context.Context, id string, status domain.AccountStatus, errorMessage string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE accounts
		SET status = $2,
			error_message = $3,
			last_active = CASE WHEN $2 = 'connected' THEN NOW() ELSE last_active END
		WHERE id = $1
	`, toUUID(id), string(status), toText(errorMessage))
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}

	return nil
}

// UpdateAccountSession persists the serialized MTProto session together with
// the profile fields learned during login.
func (db *DB) UpdateAccountSession(ctx context.Context, id, session, firstName, lastName, username string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE accounts
		SET session_string = $2,
			first_name = $3,
			last_name = $4,
			username = $5
		WHERE id = $1
	`, toUUID(id), session, toText(firstName), toText(lastName), toText(username))
	if err != nil {
		return fmt.Errorf("update account session: %w", err)
	}

	return nil
}

func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, toUUID(id))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account      domain.Account
		id           = toUUID("")
		session      = toText("")
		firstName    = toText("")
		lastName     = toText("")
		username     = toText("")
		errorMessage = toText("")
		lastActive   = toTimestamptzPtr(nil)
		status       string
	)

	if err := row.Scan(&id, &account.Phone, &account.APIID, &account.APIHash,
		&session, &status, &firstName, &lastName, &username, &errorMessage,
		&account.CreatedAt, &lastActive); err != nil {
		return nil, err
	}

	account.ID = fromUUID(id)
	account.SessionString = session.String
	account.Status = domain.AccountStatus(status)
	account.FirstName = firstName.String
	account.LastName = lastName.String
	account.Username = username.String
	account.ErrorMessage = errorMessage.String
	account.LastActive = fromTimestamptzPtr(lastActive)

	return &account, nil
}
