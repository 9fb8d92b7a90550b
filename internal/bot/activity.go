// Package bot holds the chat-side vocabulary: incoming activities, the
// conversation address they came from, and the replies a turn produces.
package bot

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Activity types accepted from the chat runtime
const (
	ActivityTypeMessage = "message"
	ActivityTypeInvoke  = "invoke"
)

// InvokeVerifyState is sent by the chat client when the sign-in page calls
// notifySuccess with the verification code.
const InvokeVerifyState = "signin/verifyState"

var ErrInvalidActivity = errors.New("invalid activity")

// ChannelAccount identifies a user or bot on a channel
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation on a channel
type ConversationAccount struct {
	ID      string `json:"id"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Address is the opaque conversation reference embedded in the OAuth state.
// It is enough to find the session the sign-in belongs to.
type Address struct {
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot,omitzero"`
	Conversation ConversationAccount `json:"conversation"`
}

// Validate checks the fields needed to key a session
func (a Address) Validate() error {
	if a.User.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidActivity)
	}
	if a.Conversation.ID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidActivity)
	}
	return nil
}

// Invoke is a platform-native event, kept on a rewritten message so the
// dialog can tell where the input came from without branching its logic.
type Invoke struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

// VerifyStateValue is the payload of a signin/verifyState invoke
type VerifyStateValue struct {
	State string `json:"state"`
}

// Activity is a single inbound event from the chat runtime
type Activity struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Address Address         `json:"address"`

	// OriginalInvoke is set when an invoke was rewritten into a message
	OriginalInvoke *Invoke `json:"-"`
}

// Validate checks the activity can be dispatched
func (a *Activity) Validate() error {
	switch a.Type {
	case ActivityTypeMessage:
	case ActivityTypeInvoke:
		if a.Name == "" {
			return fmt.Errorf("%w: invoke name is required", ErrInvalidActivity)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidActivity, a.Type)
	}
	return a.Address.Validate()
}

// AsMessage rewrites an invoke into a synthetic message carrying the original
// payload. Messages are returned unchanged.
func (a Activity) AsMessage() Activity {
	if a.Type != ActivityTypeInvoke {
		return a
	}
	return Activity{
		Type:    ActivityTypeMessage,
		ID:      a.ID,
		Address: a.Address,
		OriginalInvoke: &Invoke{
			Name:  a.Name,
			Value: a.Value,
		},
	}
}

// VerificationState returns the code carried by a signin/verifyState invoke
func (i *Invoke) VerificationState() (string, bool) {
	if i == nil || i.Name != InvokeVerifyState {
		return "", false
	}
	var v VerifyStateValue
	if err := json.Unmarshal(i.Value, &v); err != nil {
		return "", false
	}
	return v.State, true
}
