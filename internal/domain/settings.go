package domain

import "time"

// BotSettings is the process-wide singleton controlling the engine.
type BotSettings struct {
	ID                 string
	Status             BotStatus
	AutoStart          bool
	LogMessages        bool
	ResponseDelayMin   int
	ResponseDelayMax   int
	MaxDailyResponses  int
	DailyResponseCount int
	LastResetDate      time.Time
	AllowedUsers       []int64
	BlockedUsers       []int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NeedsDailyReset reports whether the daily response counter belongs to a
// previous UTC calendar day and must be zeroed before the next capacity
// check.
func (s *BotSettings) NeedsDailyReset(now time.Time) bool {
	last := s.LastResetDate.UTC()
	today := now.UTC()

	return last.Year() != today.Year() || last.YearDay() != today.YearDay()
}

// ActivityLogEntry is one immutable audit record per evaluated message.
type ActivityLogEntry struct {
	ID           string
	AccountID    string
	ChatID       int64
	ChatType     ChatType
	UserID       int64
	Username     string
	FirstName    string
	MessageText  string
	RuleID       *string
	ActionTaken  string
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

// RuleStatistics is the per-rule, per-day aggregate counter row.
type RuleStatistics struct {
	RuleID       string
	Day          time.Time
	TriggerCount int
	SuccessCount int
	ErrorCount   int
}
