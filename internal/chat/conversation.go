package chat

import (
	"sync"
	"time"

	"github.com/liliang-cn/doclens/internal/domain"
)

// Conversation guards a State so handlers can apply transitions safely
type Conversation struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

// NewConversation creates a conversation from a starting state
func NewConversation(s State) *Conversation {
	return &Conversation{state: s, now: time.Now}
}

// Snapshot returns the current state
func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ask records the user's message and opens a bot message for the answer
func (c *Conversation) Ask(text string) (user, bot domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state, user = AddUserMessage(c.state, text, c.now())
	c.state, bot = StartBotMessage(c.state)
	return user, bot
}

// Apply applies a stream event to a bot message
func (c *Conversation) Apply(messageID string, ev domain.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := ApplyEvent(c.state, messageID, ev)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Complete finishes a bot message and returns it
func (c *Conversation) Complete(messageID string) (domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Complete(c.state, messageID, c.now())
	if err != nil {
		return domain.ChatMessage{}, err
	}
	c.state = next
	msg, _ := next.Message(messageID)
	return msg, nil
}

// Fail finishes a bot message with an error text and returns it
func (c *Conversation) Fail(messageID, text string) (domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Fail(c.state, messageID, text, c.now())
	if err != nil {
		return domain.ChatMessage{}, err
	}
	c.state = next
	msg, _ := next.Message(messageID)
	return msg, nil
}

// Hover activates or deactivates a hover key and returns the active one
func (c *Conversation) Hover(key domain.HoverKey, active bool) *domain.HoverKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.state = Activate(c.state, key)
	} else {
		c.state = Deactivate(c.state, key)
	}
	return c.state.Hover
}
