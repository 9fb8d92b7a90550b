package bot

import "sync"

// Card kinds
const (
	CardThumbnail = "thumbnail"
	CardHero      = "hero"
)

// Card action types
const (
	ActionMessageBack = "messageBack"
	ActionIMBack      = "imBack"
	ActionSignIn      = "signin"
	ActionOpenURL     = "openUrl"
)

// CardAction is a button on a card
type CardAction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Value       string `json:"value,omitempty"`
	Text        string `json:"text,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}

// CardImage is an image shown on a card
type CardImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Card is a rich attachment
type Card struct {
	Kind     string       `json:"kind"`
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Images   []CardImage  `json:"images,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}

// Reply is one outbound message: plain text, a card, or both
type Reply struct {
	Text string `json:"text,omitempty"`
	Card *Card  `json:"card,omitempty"`
}

// Turn collects the replies produced while handling one activity
type Turn struct {
	Activity Activity

	mu      sync.Mutex
	replies []Reply
}

// NewTurn starts a turn for the activity
func NewTurn(activity Activity) *Turn {
	return &Turn{Activity: activity}
}

// SendText queues a text reply
func (t *Turn) SendText(text string) {
	t.Send(Reply{Text: text})
}

// SendCard queues a card reply
func (t *Turn) SendCard(card Card) {
	t.Send(Reply{Card: &card})
}

// Send queues a reply
func (t *Turn) Send(r Reply) {
	t.mu.Lock()
	t.replies = append(t.replies, r)
	t.mu.Unlock()
}

// Replies returns the queued replies in order
func (t *Turn) Replies() []Reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Reply, len(t.replies))
	copy(out, t.replies)
	return out
}
