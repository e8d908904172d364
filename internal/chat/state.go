// Package chat holds conversation state. State values are never mutated in
// place: every transition returns a new State.
package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/doclens/internal/domain"
)

// State is the conversation as the UI sees it
type State struct {
	SessionID string
	Messages  []domain.ChatMessage
	// Hover is the single active hover key, nil when none.
	Hover *domain.HoverKey
}

// NewState creates an empty conversation state
func NewState(sessionID string) State {
	return State{SessionID: sessionID}
}

// newMessageID returns a time ordered unique id
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func (s State) clone() State {
	next := s
	next.Messages = make([]domain.ChatMessage, len(s.Messages))
	copy(next.Messages, s.Messages)
	if s.Hover != nil {
		h := *s.Hover
		next.Hover = &h
	}
	return next
}

// Index returns the position of the message with the given id, or -1
func (s State) Index(messageID string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// Message returns the message with the given id
func (s State) Message(messageID string) (domain.ChatMessage, bool) {
	if i := s.Index(messageID); i >= 0 {
		return s.Messages[i], true
	}
	return domain.ChatMessage{}, false
}

// WithMessages returns a state holding previously stored messages
func WithMessages(s State, messages []domain.ChatMessage) State {
	next := s.clone()
	next.Messages = append(next.Messages, messages...)
	return next
}

// AddUserMessage appends a user message stamped with now
func AddUserMessage(s State, text string, now time.Time) (State, domain.ChatMessage) {
	ts := now
	msg := domain.ChatMessage{
		ID:        newMessageID(),
		SessionID: s.SessionID,
		Text:      text,
		Sender:    domain.SenderUser,
		Status:    domain.MessageStatusComplete,
		Timestamp: &ts,
		Citations: []domain.Citation{},
	}
	next := s.clone()
	next.Messages = append(next.Messages, msg)
	return next, msg
}

// StartBotMessage appends an empty bot message that will receive stream events
func StartBotMessage(s State) (State, domain.ChatMessage) {
	msg := domain.ChatMessage{
		ID:        newMessageID(),
		SessionID: s.SessionID,
		Sender:    domain.SenderBot,
		Status:    domain.MessageStatusStreaming,
		Citations: []domain.Citation{},
	}
	next := s.clone()
	next.Messages = append(next.Messages, msg)
	return next, msg
}

// ApplyEvent applies a stream event to a streaming message. Text deltas are
// appended; a citation set replaces the message's citations.
func ApplyEvent(s State, messageID string, ev domain.StreamEvent) (State, error) {
	i := s.Index(messageID)
	if i < 0 {
		return s, domain.ErrNotFound
	}
	if s.Messages[i].Status != domain.MessageStatusStreaming {
		return s, domain.ErrInvalidRequest
	}

	next := s.clone()
	msg := &next.Messages[i]
	switch ev.Kind {
	case domain.EventTextDelta:
		msg.Text += ev.Text
	case domain.EventCitationSet:
		citations := make([]domain.Citation, len(ev.Citations))
		copy(citations, ev.Citations)
		msg.Citations = citations
	}
	return next, nil
}

// Complete marks a streaming message finished and stamps it with now
func Complete(s State, messageID string, now time.Time) (State, error) {
	return finish(s, messageID, domain.MessageStatusComplete, nil, now)
}

// Fail marks a streaming message failed, replacing its text with a
// displayable error text
func Fail(s State, messageID, text string, now time.Time) (State, error) {
	return finish(s, messageID, domain.MessageStatusError, &text, now)
}

func finish(s State, messageID, status string, text *string, now time.Time) (State, error) {
	i := s.Index(messageID)
	if i < 0 {
		return s, domain.ErrNotFound
	}
	if s.Messages[i].Status != domain.MessageStatusStreaming {
		return s, domain.ErrInvalidRequest
	}

	next := s.clone()
	msg := &next.Messages[i]
	msg.Status = status
	if text != nil {
		msg.Text = *text
	}
	if msg.Timestamp == nil {
		ts := now
		msg.Timestamp = &ts
	}
	return next, nil
}

// Activate makes key the active hover key, replacing any other
func Activate(s State, key domain.HoverKey) State {
	next := s.clone()
	next.Hover = &key
	return next
}

// Deactivate clears the hover key if key is the active one
func Deactivate(s State, key domain.HoverKey) State {
	if s.Hover == nil || *s.Hover != key {
		return s
	}
	next := s.clone()
	next.Hover = nil
	return next
}
