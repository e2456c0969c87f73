package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConditionKind discriminates the condition variants on the wire and in
// storage.
type ConditionKind string

const (
	KindAll           ConditionKind = "all"
	KindChatFilter    ConditionKind = "chat_filter"
	KindUserFilter    ConditionKind = "user_filter"
	KindMessageFilter ConditionKind = "message_filter"
	KindTimeFilter    ConditionKind = "time_filter"
)

// Condition is a closed set of predicate variants evaluated against a
// MessageContext. Inactive conditions are skipped during matching, never
// failed.
//
// The interface is sealed: only the variants in this package implement it,
// so an invalid combination of filter fields cannot be constructed.
type Condition interface {
	Kind() ConditionKind
	Enabled() bool

	sealed()
}

// AllCondition matches unconditionally.
type AllCondition struct {
	Active bool `json:"active"`
}

func (AllCondition) Kind() ConditionKind { return KindAll }
func (c AllCondition) Enabled() bool     { return c.Active }
func (AllCondition) sealed()             {}

// ChatFilter constrains the chat an incoming message arrived from. Every
// configured sub-filter must hold; unset sub-filters are skipped. Member
// bounds are vacuously satisfied for chats without a member count.
type ChatFilter struct {
	Active        bool       `json:"active"`
	ChatTypes     []ChatType `json:"chat_types,omitempty"`
	Whitelist     []int64    `json:"whitelist,omitempty"`
	Blacklist     []int64    `json:"blacklist,omitempty"`
	TitleContains string     `json:"title_contains,omitempty"`
	MinMembers    *int       `json:"min_members,omitempty"`
	MaxMembers    *int       `json:"max_members,omitempty"`
}

func (ChatFilter) Kind() ConditionKind { return KindChatFilter }
func (c ChatFilter) Enabled() bool     { return c.Active }
func (ChatFilter) sealed()             {}

// UserFilter constrains the sender by id or username allow-lists.
type UserFilter struct {
	Active    bool     `json:"active"`
	UserIDs   []int64  `json:"user_ids,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
}

func (UserFilter) Kind() ConditionKind { return KindUserFilter }
func (c UserFilter) Enabled() bool     { return c.Active }
func (UserFilter) sealed()             {}

// MessageFilter constrains message content: at least one keyword must appear
// (case-insensitive substring) when keywords are configured, and the declared
// message type must be listed when types are configured.
type MessageFilter struct {
	Active   bool          `json:"active"`
	Keywords []string      `json:"keywords,omitempty"`
	Types    []MessageType `json:"types,omitempty"`
}

func (MessageFilter) Kind() ConditionKind { return KindMessageFilter }
func (c MessageFilter) Enabled() bool     { return c.Active }
func (MessageFilter) sealed()             {}

// HourWindow is an inclusive [Start, End] hour-of-day range.
type HourWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether the given hour falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour <= w.EndHour
}

// TimeFilter matches when the current weekday is allowed (empty set means
// every day) and the current hour falls within at least one window.
type TimeFilter struct {
	Active   bool           `json:"active"`
	Windows  []HourWindow   `json:"windows,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

func (TimeFilter) Kind() ConditionKind { return KindTimeFilter }
func (c TimeFilter) Enabled() bool     { return c.Active }
func (TimeFilter) sealed()             {}

// conditionEnvelope is the tagged wire form of a Condition.
type conditionEnvelope struct {
	Type ConditionKind `json:"type"`
}

// ConditionList marshals conditions as tagged JSON envelopes so the closed
// sum type survives a JSONB round trip.
type ConditionList []Condition

func (l ConditionList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))

	for _, c := range l {
		body, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("marshal condition body: %w", err)
		}

		tagged, err := tagJSON(body, string(c.Kind()))
		if err != nil {
			return nil, err
		}

		out = append(out, tagged)
	}

	return json.Marshal(out)
}

func (l *ConditionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("unmarshal condition list: %w", err)
	}

	conds := make(ConditionList, 0, len(raws))

	for _, raw := range raws {
		cond, err := unmarshalCondition(raw)
		if err != nil {
			return err
		}

		conds = append(conds, cond)
	}

	*l = conds

	return nil
}

func unmarshalCondition(raw json.RawMessage) (Condition, error) {
	var env conditionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal condition envelope: %w", err)
	}

	switch env.Type {
	case KindAll:
		var c AllCondition

		return decodeCondition(raw, &c)
	case KindChatFilter:
		var c ChatFilter

		return decodeCondition(raw, &c)
	case KindUserFilter:
		var c UserFilter

		return decodeCondition(raw, &c)
	case KindMessageFilter:
		var c MessageFilter

		return decodeCondition(raw, &c)
	case KindTimeFilter:
		var c TimeFilter

		return decodeCondition(raw, &c)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConditionKind, env.Type)
	}
}

func decodeCondition[T Condition](raw json.RawMessage, target *T) (Condition, error) {
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s condition: %w", (*target).Kind(), err)
	}

	return *target, nil
}

// tagJSON injects the type discriminator into an already-marshaled object.
func tagJSON(body []byte, kind string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("tag condition json: %w", err)
	}

	tag, err := json.Marshal(kind)
	if err != nil {
		return nil, fmt.Errorf("marshal condition tag: %w", err)
	}

	fields["type"] = tag

	return json.Marshal(fields)
}
