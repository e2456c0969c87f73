package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionListRoundTrip(t *testing.T) {
	minMembers := 10

	list := ConditionList{
		AllCondition{Active: true},
		ChatFilter{
			Active:        true,
			ChatTypes:     []ChatType{ChatSupergroup},
			Whitelist:     []int64{-100},
			Blacklist:     []int64{-200},
			TitleContains: "dev",
			MinMembers:    &minMembers,
		},
		UserFilter{Active: true, UserIDs: []int64{42}, Usernames: []string{"alice"}},
		MessageFilter{Active: false, Keywords: []string{"ping"}, Types: []MessageType{MessageText}},
		TimeFilter{
			Active:   true,
			Windows:  []HourWindow{{StartHour: 9, EndHour: 17}},
			Weekdays: []time.Weekday{time.Monday},
		},
	}

	data, err := json.Marshal(list)
	require.NoError(t, err)

	var decoded ConditionList
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, list, decoded)
}

func TestConditionListTagging(t *testing.T) {
	data, err := json.Marshal(ConditionList{MessageFilter{Active: true, Keywords: []string{"hi"}}})
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "message_filter", raw[0]["type"])
}

func TestConditionListUnknownKind(t *testing.T) {
	var list ConditionList

	err := json.Unmarshal([]byte(`[{"type":"regex_filter","active":true}]`), &list)
	assert.ErrorIs(t, err, ErrUnknownConditionKind)
}

func TestConditionListEmpty(t *testing.T) {
	data, err := json.Marshal(ConditionList{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	var list ConditionList
	require.NoError(t, json.Unmarshal([]byte("[]"), &list))
	assert.Empty(t, list)
}
