package testutil

import (
	"context"
	"net/url"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/idp"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/dgellow/identity-bot/internal/storage"
	"github.com/stretchr/testify/mock"
)

// MockProvider is an idp.Provider whose network calls are scripted with
// testify expectations. AuthURL is deterministic so tests can read the state back.
type MockProvider struct {
	mock.Mock
	ProviderName string
	Display      string
	BaseURL      string
}

var _ idp.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider mock with the given name and display name
func NewMockProvider(name, display string) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		Display:      display,
		BaseURL:      "https://bot.example.com",
	}
}

func (m *MockProvider) Name() string        { return m.ProviderName }
func (m *MockProvider) DisplayName() string { return m.Display }

func (m *MockProvider) AuthURL(state string, extraParams url.Values) string {
	q := url.Values{}
	for k, v := range extraParams {
		q[k] = v
	}
	q.Set("response_type", "code")
	q.Set("redirect_uri", m.BaseURL+idp.CallbackPath(m.ProviderName))
	q.Set("state", state)
	return "https://idp.example.com/" + m.ProviderName + "/authorize?" + q.Encode()
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (idp.Token, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(idp.Token), args.Error(1)
}

func (m *MockProvider) Profile(ctx context.Context, accessToken string, fields []string) (idp.Profile, error) {
	args := m.Called(ctx, accessToken, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(idp.Profile), args.Error(1)
}

// StaticProfile is a Profile with a fixed card
type StaticProfile idp.ProfileCard

func (p StaticProfile) Card() idp.ProfileCard { return idp.ProfileCard(p) }

// MockStore wraps a MemoryStore and lets tests inject failures per method
type MockStore struct {
	mock.Mock
	*storage.MemoryStore
}

var _ storage.Store = (*MockStore)(nil)

// NewMockStore creates a MockStore backed by an empty MemoryStore
func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: storage.NewMemoryStore()}
}

// UpdateProvider fails with the scripted error when one is set, otherwise
// delegates to the memory store
func (m *MockStore) UpdateProvider(ctx context.Context, key session.Key, provider string, fn func(*session.ProviderSession) error) error {
	args := m.Called(ctx, key, provider)
	if err := args.Error(0); err != nil {
		return err
	}
	return m.MemoryStore.UpdateProvider(ctx, key, provider, fn)
}

// Delete fails with the scripted error when one is set, otherwise
// delegates to the memory store
func (m *MockStore) Delete(ctx context.Context, key session.Key) error {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return err
	}
	return m.MemoryStore.Delete(ctx, key)
}

// Address returns a conversation address for tests
func Address(userID, conversationID string) bot.Address {
	return bot.Address{
		ChannelID:    "msteams",
		ServiceURL:   "https://smba.example.com/",
		User:         bot.ChannelAccount{ID: userID, Name: "Test User"},
		Bot:          bot.ChannelAccount{ID: "bot-1", Name: "Identity Bot"},
		Conversation: bot.ConversationAccount{ID: conversationID},
	}
}
