package oauthstate

import (
	"testing"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addr = bot.Address{
	ChannelID:    "msteams",
	ServiceURL:   "https://smba.example.com/",
	User:         bot.ChannelAccount{ID: "user-1"},
	Conversation: bot.ConversationAccount{ID: "conv-1"},
}

func TestNew(t *testing.T) {
	s1, err := New(addr)
	require.NoError(t, err)
	s2, err := New(addr)
	require.NoError(t, err)

	_, err = uuid.Parse(s1.SecurityToken)
	assert.NoError(t, err)
	assert.NotEqual(t, s1.SecurityToken, s2.SecurityToken)
	assert.Equal(t, session.Key{UserID: "user-1", ConversationID: "conv-1"}, s1.Key())
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	s, err := New(addr)
	require.NoError(t, err)

	raw, err := s.Encode()
	require.NoError(t, err)
	assert.Contains(t, raw, `"securityToken":"`+s.SecurityToken+`"`)
	assert.Contains(t, raw, `"address":{`)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	again, err := parsed.Encode()
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not_json", raw: "abc123"},
		{name: "json_array", raw: `[1,2]`},
		{name: "missing_security_token", raw: `{"address":{"user":{"id":"u"},"conversation":{"id":"c"}}}`},
		{name: "missing_user", raw: `{"securityToken":"t","address":{"conversation":{"id":"c"}}}`},
		{name: "missing_conversation", raw: `{"securityToken":"t","address":{"user":{"id":"u"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedState)
		})
	}
}
