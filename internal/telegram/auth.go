package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/storage"
)

// ErrSignupNotSupported indicates that signup is not supported.
var ErrSignupNotSupported = errors.New("signup not supported")

// LoginStore extends the pool's account access with the writes the login
// flow needs.
type LoginStore interface {
	AccountStore
	AccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
}

// Login performs the interactive authentication for one account and leaves a
// reusable session in the database.
type Login struct {
	store       LoginStore
	phone       string
	password2FA string
	apiID       int
	apiHash     string
	logger      *zerolog.Logger
}

func NewLogin(store LoginStore, phone, password2FA string, apiID int, apiHash string, logger *zerolog.Logger) *Login {
	return &Login{
		store:       store,
		phone:       phone,
		password2FA: password2FA,
		apiID:       apiID,
		apiHash:     apiHash,
		logger:      logger,
	}
}

// Run authenticates the account, creating its row on first login, and stores
// the session and profile.
func (l *Login) Run(ctx context.Context) error {
	phone, err := l.Phone(ctx)
	if err != nil {
		return err
	}

	l.phone = phone

	account, err := l.ensureAccount(ctx, phone)
	if err != nil {
		return err
	}

	client := telegram.NewClient(account.APIID, account.APIHash, telegram.Options{
		SessionStorage: &dbSessionStorage{store: l.store, accountID: account.ID},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, auth.NewFlow(l, auth.SendCodeOptions{})); err != nil {
			return fmt.Errorf("auth: %w", err)
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch self: %w", err)
		}

		// Re-read to keep the session the auth flow just stored.
		fresh, err := l.store.AccountByID(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}

		if err := l.store.UpdateAccountSession(ctx, account.ID, fresh.SessionString,
			self.FirstName, self.LastName, self.Username); err != nil {
			return fmt.Errorf("store profile: %w", err)
		}

		if err := l.store.UpdateAccountStatus(ctx, account.ID, domain.AccountDisconnected, ""); err != nil {
			return fmt.Errorf("reset account status: %w", err)
		}

		l.logger.Info().Str("username", self.Username).Msg("Successfully authenticated as user")

		return nil
	})
}

func (l *Login) ensureAccount(ctx context.Context, phone string) (*domain.Account, error) {
	account, err := l.store.AccountByPhone(ctx, phone)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	account = &domain.Account{
		Phone:   phone,
		APIID:   l.apiID,
		APIHash: l.apiHash,
	}

	if err := l.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	l.logger.Info().Str("phone", maskPhone(phone)).Msg("created account record")

	return account, nil
}

func (l *Login) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter code: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(code), nil
}

func (l *Login) Phone(ctx context.Context) (string, error) {
	var phone string

	var err error

	if l.phone != "" {
		phone = l.phone
	} else {
		fmt.Print("Enter phone: ")

		phone, err = bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
	}

	phone = sanitizePhone(phone)
	l.logger.Info().Str("phone", maskPhone(phone)).Msg("Using phone number")

	if len(phone) < 10 {
		l.logger.Warn().Int("length", len(phone)).Msg("Phone number seems too short, it might be invalid. Ensure it includes country code (e.g. +1...)")
	}

	return phone, nil
}

func (l *Login) Password(ctx context.Context) (string, error) {
	var password string

	var err error

	if l.password2FA != "" {
		password = l.password2FA
	} else {
		fmt.Print("Enter 2FA password: ")

		password, err = bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
	}

	return strings.TrimSpace(password), nil
}

func (l *Login) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (l *Login) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignupNotSupported
}

func sanitizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")

	return phone
}

func maskPhone(phone string) string {
	if len(phone) < 5 {
		return "***"
	}

	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}
