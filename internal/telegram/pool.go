package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
)

// ErrNotConnectable indicates the account has no stored session or is in a
// failed state and cannot be started.
var ErrNotConnectable = errors.New("account is not connectable")

// ErrNotAuthorized indicates the stored session is no longer valid.
var ErrNotAuthorized = errors.New("session not authorized")

// SettingsStore is the slice of the persistence layer the pool needs for the
// aggregate bot status.
type SettingsStore interface {
	Settings(ctx context.Context) (domain.BotSettings, error)
	UpdateBotStatus(ctx context.Context, settingsID string, status domain.BotStatus) error
}

// Pool supervises one MTProto client per started account. Connections run
// until stopped or until their context dies; every lifecycle transition is
// mirrored to the account row.
type Pool struct {
	accounts AccountStore
	settings SettingsStore
	handler  Handler
	sendRPS  float64
	logger   *zerolog.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

type connection struct {
	cancel    context.CancelFunc
	done      chan struct{}
	selfID    atomic.Int64
	transport atomic.Pointer[Transport]
}

func NewPool(accounts AccountStore, settings SettingsStore, handler Handler, sendRPS float64, logger *zerolog.Logger) *Pool {
	return &Pool{
		accounts: accounts,
		settings: settings,
		handler:  handler,
		sendRPS:  sendRPS,
		logger:   logger,
		conns:    make(map[string]*connection),
	}
}

// Start connects the account. Starting an already-running account is a
// no-op, not an error, so retried start requests stay idempotent.
func (p *Pool) Start(ctx context.Context, accountID string) error {
	// The connection is fully initialized before it is published: a Stop
	// racing this Start always finds a usable cancel and a done channel that
	// is closed on every exit path.
	runCtx, cancel := context.WithCancel(ctx)
	conn := &connection{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if _, running := p.conns[accountID]; running {
		p.mu.Unlock()
		cancel()

		return nil
	}

	p.conns[accountID] = conn
	p.mu.Unlock()

	account, err := p.accounts.AccountByID(ctx, accountID)
	if err != nil {
		p.release(accountID, conn)

		return fmt.Errorf("load account: %w", err)
	}

	if !account.Connectable() {
		p.release(accountID, conn)

		return fmt.Errorf("%w: %s", ErrNotConnectable, account.Phone)
	}

	if err := p.accounts.UpdateAccountStatus(ctx, accountID, domain.AccountConnecting, ""); err != nil {
		p.logger.Error().Err(err).Str("account_id", accountID).Msg("status update failed")
	}

	go p.run(runCtx, conn, account)

	return nil
}

// release unwinds a published connection that never got a run goroutine.
// Closing done here keeps a concurrent Stop from waiting forever.
func (p *Pool) release(accountID string, conn *connection) {
	p.remove(accountID)
	conn.cancel()
	close(conn.done)
}

func (p *Pool) run(ctx context.Context, conn *connection, account *domain.Account) {
	defer close(conn.done)
	defer p.remove(account.ID)

	logger := p.logger.With().Str("account_id", account.ID).Str("phone", account.Phone).Logger()

	client := telegram.NewClient(account.APIID, account.APIHash, telegram.Options{
		SessionStorage: &dbSessionStorage{store: p.accounts, accountID: account.ID},
		UpdateHandler:  newDispatcher(account.ID, conn.selfID.Load, conn.transport.Load, p.handler, &logger),
	})

	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}

		if !status.Authorized {
			return fmt.Errorf("%w: %s", ErrNotAuthorized, account.Phone)
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch self: %w", err)
		}

		conn.selfID.Store(self.ID)
		conn.transport.Store(NewTransport(tg.NewClient(client), p.sendRPS, &logger))

		if err := p.accounts.UpdateAccountStatus(ctx, account.ID, domain.AccountConnected, ""); err != nil {
			logger.Error().Err(err).Msg("status update failed")
		}

		observability.ActiveConnections.Inc()
		observability.ConnectionAttempts.WithLabelValues(observability.StatusOK).Inc()
		logger.Info().Str("username", self.Username).Msg("account connected")

		defer observability.ActiveConnections.Dec()

		<-ctx.Done()

		return ctx.Err()
	})

	// Context cancellation is the normal stop path; anything else is a
	// connection failure worth persisting on the account row.
	statusCtx := context.WithoutCancel(ctx)

	if err != nil && !errors.Is(err, context.Canceled) {
		observability.ConnectionAttempts.WithLabelValues(observability.StatusError).Inc()
		logger.Error().Err(err).Msg("connection failed")

		if uerr := p.accounts.UpdateAccountStatus(statusCtx, account.ID, domain.AccountError, err.Error()); uerr != nil {
			logger.Error().Err(uerr).Msg("status update failed")
		}

		return
	}

	if uerr := p.accounts.UpdateAccountStatus(statusCtx, account.ID, domain.AccountDisconnected, ""); uerr != nil {
		logger.Error().Err(uerr).Msg("status update failed")
	}

	logger.Info().Msg("account disconnected")
}

// Stop disconnects the account and waits for its client loop to exit.
// Stopping an unknown account is a no-op.
func (p *Pool) Stop(accountID string) {
	p.mu.Lock()
	conn, ok := p.conns[accountID]
	p.mu.Unlock()

	if !ok {
		return
	}

	conn.cancel()
	<-conn.done
}

// StartAll connects every connectable account and records the aggregate
// outcome as the bot status: running when at least one account started,
// error when none did. Individual start failures are logged but do not take
// the bot down while other accounts are live.
func (p *Pool) StartAll(ctx context.Context) error {
	settings, err := p.settings.Settings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err := p.settings.UpdateBotStatus(ctx, settings.ID, domain.BotStarting); err != nil {
		p.logger.Error().Err(err).Msg("bot status update failed")
	}

	accounts, err := p.accounts.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	started := 0

	for i := range accounts {
		account := &accounts[i]
		if !account.Connectable() {
			continue
		}

		if err := p.Start(ctx, account.ID); err != nil {
			p.logger.Error().Err(err).Str("account_id", account.ID).Msg("account start failed")

			continue
		}

		started++
	}

	status := domain.BotRunning
	if started == 0 {
		status = domain.BotError
	}

	if err := p.settings.UpdateBotStatus(ctx, settings.ID, status); err != nil {
		p.logger.Error().Err(err).Msg("bot status update failed")
	}

	p.logger.Info().Int("started", started).Str("status", string(status)).Msg("start-all finished")

	if status == domain.BotError {
		return fmt.Errorf("start-all: no account could be started")
	}

	return nil
}

// StopAll disconnects every running account and marks the bot stopped.
func (p *Pool) StopAll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Stop(id)
	}

	settings, err := p.settings.Settings(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("load settings failed")

		return
	}

	if err := p.settings.UpdateBotStatus(ctx, settings.ID, domain.BotStopped); err != nil {
		p.logger.Error().Err(err).Msg("bot status update failed")
	}
}

// Active returns the number of live connections.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.conns)
}

// Running reports whether the account currently has a live connection.
func (p *Pool) Running(accountID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.conns[accountID]

	return ok
}

func (p *Pool) remove(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.conns, accountID)
}
