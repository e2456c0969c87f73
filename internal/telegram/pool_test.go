package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/engine"
)

var errAccountLoad = errors.New("account load failed")

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	loadErrs map[string]error

	// loading signals entry into AccountByID; loadGate, when non-nil, holds
	// the call open until closed.
	loading  chan string
	loadGate chan struct{}
}

func (f *fakeAccountStore) AccountByID(_ context.Context, id string) (*domain.Account, error) {
	if f.loading != nil {
		f.loading <- id
	}

	if f.loadGate != nil {
		<-f.loadGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadErrs[id]; err != nil {
		return nil, err
	}

	account, ok := f.accounts[id]
	if !ok {
		return nil, errAccountLoad
	}

	copied := *account

	return &copied, nil
}

func (f *fakeAccountStore) ListAccounts(context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Account, 0, len(f.accounts))
	for _, account := range f.accounts {
		out = append(out, *account)
	}

	return out, nil
}

func (f *fakeAccountStore) UpdateAccountStatus(_ context.Context, id string, status domain.AccountStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if account, ok := f.accounts[id]; ok {
		account.Status = status
		account.ErrorMessage = errorMessage
	}

	return nil
}

func (f *fakeAccountStore) UpdateAccountSession(context.Context, string, string, string, string, string) error {
	return nil
}

type fakeSettingsStore struct {
	mu       sync.Mutex
	statuses []domain.BotStatus
}

func (f *fakeSettingsStore) Settings(context.Context) (domain.BotSettings, error) {
	return domain.BotSettings{ID: "s1"}, nil
}

func (f *fakeSettingsStore) UpdateBotStatus(_ context.Context, _ string, status domain.BotStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses = append(f.statuses, status)

	return nil
}

func (f *fakeSettingsStore) lastStatus() domain.BotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.statuses) == 0 {
		return ""
	}

	return f.statuses[len(f.statuses)-1]
}

type nopHandler struct{}

func (nopHandler) HandleMessage(context.Context, string, engine.Transport, domain.MessageContext) error {
	return nil
}

func (nopHandler) HandleCallback(context.Context, string, engine.Transport, engine.CallbackKey, domain.MessageContext) error {
	return nil
}

func newTestPool(accounts *fakeAccountStore, settings *fakeSettingsStore) *Pool {
	nop := zerolog.Nop()

	return NewPool(accounts, settings, nopHandler{}, 1, &nop)
}

func TestStartAllPartialFailureKeepsBotRunning(t *testing.T) {
	accounts := &fakeAccountStore{
		accounts: map[string]*domain.Account{
			"a": {ID: "a", Phone: "+10000000001", SessionString: "c2Vzc2lvbg==", Status: domain.AccountDisconnected},
			"b": {ID: "b", Phone: "+10000000002", SessionString: "c2Vzc2lvbg==", Status: domain.AccountDisconnected},
		},
		loadErrs: map[string]error{"b": errAccountLoad},
	}
	settings := &fakeSettingsStore{}
	pool := newTestPool(accounts, settings)

	err := pool.StartAll(context.Background())
	require.NoError(t, err, "one live account is enough for start-all to succeed")

	assert.Equal(t, domain.BotRunning, settings.lastStatus())
	assert.False(t, pool.Running("b"))

	pool.StopAll(context.Background())
}

func TestStartAllNothingStarted(t *testing.T) {
	accounts := &fakeAccountStore{
		accounts: map[string]*domain.Account{
			"a": {ID: "a", Phone: "+10000000001", Status: domain.AccountDisconnected},
		},
	}
	settings := &fakeSettingsStore{}
	pool := newTestPool(accounts, settings)

	// The only account has no stored session, so nothing can start.
	err := pool.StartAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.BotError, settings.lastStatus())
}

func TestStopDuringFailedStartDoesNotBlock(t *testing.T) {
	accounts := &fakeAccountStore{
		accounts: map[string]*domain.Account{},
		loadErrs: map[string]error{"a": errAccountLoad},
		loading:  make(chan string, 1),
		loadGate: make(chan struct{}),
	}
	pool := newTestPool(accounts, &fakeSettingsStore{})

	startErr := make(chan error, 1)
	go func() {
		startErr <- pool.Start(context.Background(), "a")
	}()

	// The connection is published and Start is held inside the account load.
	<-accounts.loading

	stopped := make(chan struct{})
	go func() {
		pool.Stop("a")
		close(stopped)
	}()

	close(accounts.loadGate)

	require.Error(t, <-startErr)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop blocked on a connection that never ran")
	}

	assert.False(t, pool.Running("a"))
}
