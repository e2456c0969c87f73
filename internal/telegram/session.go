// Package telegram runs MTProto user sessions with gotd and bridges their
// updates into the engine. It owns the connection pool, the per-account
// transport, and the login flow.
package telegram

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gotd/td/session"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// AccountStore is the slice of the persistence layer the pool needs.
type AccountStore interface {
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccountStatus(ctx context.Context, id string, status domain.AccountStatus, errorMessage string) error
	UpdateAccountSession(ctx context.Context, id, sessionString, firstName, lastName, username string) error
}

// dbSessionStorage persists the gotd session in the account row, so a
// restarted process reconnects without re-login.
type dbSessionStorage struct {
	store     AccountStore
	accountID string
}

func (s *dbSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	account, err := s.store.AccountByID(ctx, s.accountID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if account.SessionString == "" {
		return nil, session.ErrNotFound
	}

	data, err := base64.StdEncoding.DecodeString(account.SessionString)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return data, nil
}

func (s *dbSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	account, err := s.store.AccountByID(ctx, s.accountID)
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	if err := s.store.UpdateAccountSession(ctx, s.accountID, encoded,
		account.FirstName, account.LastName, account.Username); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	return nil
}
