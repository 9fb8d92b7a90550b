package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/ioutil"
	jsonwriter "github.com/dgellow/identity-bot/internal/json"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/session"
)

const maxActivityBytes = 256 << 10

// TurnHandler processes one chat turn
type TurnHandler interface {
	Handle(ctx context.Context, turn *bot.Turn) error
}

// MessagesResponse is the body returned for a handled activity
type MessagesResponse struct {
	Replies []bot.Reply `json:"replies"`
}

// MessagesHandler is the chat endpoint. Turns for the same conversation are
// run one at a time.
type MessagesHandler struct {
	turns TurnHandler
	locks *keyedMutex
}

// NewMessagesHandler creates the chat endpoint handler
func NewMessagesHandler(turns TurnHandler) *MessagesHandler {
	return &MessagesHandler{
		turns: turns,
		locks: newKeyedMutex(),
	}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var activity bot.Activity
	if err := ioutil.DecodeJSON(r.Body, maxActivityBytes, &activity); err != nil {
		if errors.Is(err, ioutil.ErrTooLarge) {
			jsonwriter.WriteRequestTooLarge(w, "Activity too large")
			return
		}
		jsonwriter.WriteBadRequest(w, "Invalid activity")
		return
	}
	if err := activity.Validate(); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}

	replies, err := h.Run(r.Context(), activity)
	if err != nil {
		log.LogErrorWithFields("messages", "Failed to handle activity", map[string]any{
			"type":         activity.Type,
			"conversation": activity.Address.Conversation.ID,
			"error":        err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to handle activity")
		return
	}

	if replies == nil {
		replies = []bot.Reply{}
	}
	_ = jsonwriter.Write(w, MessagesResponse{Replies: replies})
}

// Run handles one activity under its conversation's lock and returns the replies
func (h *MessagesHandler) Run(ctx context.Context, activity bot.Activity) ([]bot.Reply, error) {
	unlock := h.locks.lock(session.KeyFor(activity.Address).ID())
	defer unlock()

	turn := bot.NewTurn(activity)
	if err := h.turns.Handle(ctx, turn); err != nil {
		return nil, err
	}
	return turn.Replies(), nil
}

// keyedMutex hands out one mutex per key and forgets it once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
