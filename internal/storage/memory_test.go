package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/identity-bot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = session.Key{UserID: "user-1", ConversationID: "conv-1"}

func TestMemoryStore_GetEmpty(t *testing.T) {
	store := NewMemoryStore()

	sess, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Empty(t, sess.Providers)
	assert.False(t, sess.Dialog.Started)
	assert.Equal(t, 0, store.Len(), "reading must not create a session")
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ps := session.ProviderSession{OAuthState: `{"securityToken":"abc"}`}
	require.NoError(t, store.Set(ctx, testKey, "google", ps))

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, ps, sess.Provider("google"))
	assert.Equal(t, session.ProviderSession{}, sess.Provider("github"))
}

func TestMemoryStore_UpdateProviderErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, testKey, "google", session.ProviderSession{OAuthState: "s1"}))

	boom := errors.New("boom")
	err := store.UpdateProvider(ctx, testKey, "google", func(ps *session.ProviderSession) error {
		ps.OAuthState = "s2"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.Provider("google").OAuthState)
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	token := &session.UserToken{AccessToken: "at", VerificationCode: "123456"}
	require.NoError(t, store.Set(ctx, testKey, "google", session.ProviderSession{UserToken: token}))

	// Mutating the caller's value must not leak into the store
	token.AccessToken = "changed"

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "at", sess.Provider("google").UserToken.AccessToken)

	// Nor must mutating what Get returned
	sess.Provider("google").UserToken.VerificationCode = "000000"
	again, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "123456", again.Provider("google").UserToken.VerificationCode)
}

func TestMemoryStore_SetDialogKeepsProviders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, testKey, "github", session.ProviderSession{OAuthState: "s"}))

	state := session.DialogState{Started: true, Provider: "github", State: session.StateAwaitingAction}
	require.NoError(t, store.SetDialog(ctx, testKey, state))

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, state, sess.Dialog)
	assert.Equal(t, "s", sess.Provider("github").OAuthState)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, testKey, "google", session.ProviderSession{OAuthState: "s"}))
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, testKey))
	assert.Equal(t, 0, store.Len())

	// Deleting twice is fine
	assert.NoError(t, store.Delete(ctx, testKey))
}

func TestMemoryStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, testKey, "google", session.ProviderSession{UserToken: &session.UserToken{}}))

	const workers = 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.UpdateProvider(ctx, testKey, "google", func(ps *session.ProviderSession) error {
				ps.UserToken.AccessToken += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Len(t, sess.Provider("google").UserToken.AccessToken, workers)
}

func TestMemoryStore_PruneIdle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale := session.Key{UserID: "u", ConversationID: "old"}
	require.NoError(t, store.SetDialog(ctx, stale, session.DialogState{Started: true}))

	now = now.Add(2 * time.Hour)
	require.NoError(t, store.SetDialog(ctx, testKey, session.DialogState{Started: true}))

	pruned, err := store.PruneIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, store.Len())

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, sess.Dialog.Started)
}

type countingPruner struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPruner) PruneIdle(context.Context, time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 1, nil
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCleanupManager_RunsUntilStopped(t *testing.T) {
	p := &countingPruner{}
	cm := NewCleanupManager(p, 5*time.Millisecond, time.Hour)
	cm.Start(context.Background())

	assert.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
	cm.Stop()

	after := p.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, p.count())
}
