// Package domain defines the entities shared by the auto-reply engine,
// the storage layer, and the Telegram connection pool.
//
// Values in this package are plain data: they never reference transport or
// database types, so the engine can be exercised entirely with fakes.
package domain

import "time"

// AccountStatus is the lifecycle state of a Telegram user session.
type AccountStatus string

const (
	AccountDisconnected AccountStatus = "disconnected"
	AccountConnecting   AccountStatus = "connecting"
	AccountConnected    AccountStatus = "connected"
	AccountError        AccountStatus = "error"
)

// BotStatus is the process-wide engine state stored in BotSettings.
type BotStatus string

const (
	BotStopped  BotStatus = "stopped"
	BotStarting BotStatus = "starting"
	BotRunning  BotStatus = "running"
	BotError    BotStatus = "error"
)

// Account is one authenticated Telegram user identity. The session string is
// the serialized MTProto session produced by the login flow; an account
// without one cannot be connected.
type Account struct {
	ID            string
	Phone         string
	APIID         int
	APIHash       string
	SessionString string
	Status        AccountStatus
	FirstName     string
	LastName      string
	Username      string
	ErrorMessage  string
	CreatedAt     time.Time
	LastActive    *time.Time
}

// Connectable reports whether the account has a usable stored session and is
// not in a failed state.
func (a *Account) Connectable() bool {
	return a.SessionString != "" && a.Status != AccountError
}
