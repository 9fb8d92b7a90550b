package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type turnFunc func(ctx context.Context, turn *bot.Turn) error

func (f turnFunc) Handle(ctx context.Context, turn *bot.Turn) error { return f(ctx, turn) }

func TestMessagesHandler_Replies(t *testing.T) {
	h := NewMessagesHandler(turnFunc(func(_ context.Context, turn *bot.Turn) error {
		turn.SendText("echo: " + turn.Activity.Text)
		return nil
	}))

	body := `{"type":"message","text":"hi","address":{"channelId":"msteams","user":{"id":"u"},"conversation":{"id":"c"}}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"replies":[{"text":"echo: hi"}]}`, rec.Body.String())
}

func TestMessagesHandler_EmptyRepliesIsArray(t *testing.T) {
	h := NewMessagesHandler(turnFunc(func(context.Context, *bot.Turn) error { return nil }))

	body := `{"type":"invoke","name":"signin/verifyState","value":{"state":"123456"},"address":{"user":{"id":"u"},"conversation":{"id":"c"}}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"replies":[]}`, rec.Body.String())
}

func TestMessagesHandler_TurnError(t *testing.T) {
	h := NewMessagesHandler(turnFunc(func(context.Context, *bot.Turn) error {
		return errors.New("store unavailable")
	}))

	body := `{"type":"message","text":"hi","address":{"user":{"id":"u"},"conversation":{"id":"c"}}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestMessagesHandler_SerializesPerConversation(t *testing.T) {
	var active, maxActive atomic.Int32
	h := NewMessagesHandler(turnFunc(func(_ context.Context, turn *bot.Turn) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}))

	activity := bot.Activity{Type: bot.ActivityTypeMessage, Text: "hi", Address: testutil.Address("user-1", "conv-1")}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Run(context.Background(), activity)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, h.locks.size(), "locks are released once idle")
}

func TestMessagesHandler_ConversationsRunIndependently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	h := NewMessagesHandler(turnFunc(func(_ context.Context, turn *bot.Turn) error {
		started <- turn.Activity.Address.Conversation.ID
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	for _, conv := range []string{"conv-1", "conv-2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Run(context.Background(), bot.Activity{Type: bot.ActivityTypeMessage, Address: testutil.Address("user-1", conv)})
			assert.NoError(t, err)
		}()
	}

	// Both turns must be in flight at once before either is released
	got := map[string]bool{}
	for range 2 {
		select {
		case id := <-started:
			got[id] = true
		case <-time.After(2 * time.Second):
			require.FailNow(t, "turn for another conversation was blocked")
		}
	}
	close(release)
	wg.Wait()

	assert.Equal(t, map[string]bool{"conv-1": true, "conv-2": true}, got)
}
