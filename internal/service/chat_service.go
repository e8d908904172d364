package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/liliang-cn/doclens/internal/chat"
	"github.com/liliang-cn/doclens/internal/citation"
	"github.com/liliang-cn/doclens/internal/collaborator"
	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/repository"
	"go.uber.org/zap"
)

// FallbackErrorText is shown when the answer service cannot be reached
const FallbackErrorText = "Sorry, something went wrong while contacting the server. Please try again."

const defaultMaxConversations = 1024

// Answer event types sent to the browser
const (
	AnswerEventDelta     = "delta"
	AnswerEventCitations = "citations"
	AnswerEventDone      = "done"
	AnswerEventError     = "error"
)

// Query results reported to the QueryObserver
const (
	QueryResultComplete = "complete"
	QueryResultError    = "error"
	QueryResultCanceled = "canceled"
)

// Querier streams an answer for a query
type Querier interface {
	Query(ctx context.Context, req domain.QueryRequest, emit func(domain.StreamEvent) error) error
}

// QueryObserver is told how each query ended
type QueryObserver interface {
	QueryFinished(result string)
}

// AnswerEvent is one step of an answer as relayed to the browser
type AnswerEvent struct {
	Type      string              `json:"type"`
	MessageID string              `json:"message_id"`
	Delta     string              `json:"delta,omitempty"`
	Citations []domain.Citation   `json:"citations,omitempty"`
	Message   *MessageView        `json:"message,omitempty"`
	Error     string              `json:"error,omitempty"`
	User      *domain.ChatMessage `json:"user,omitempty"`
}

// MessageView is a message with its rendered form. Rendered is nil for
// user messages, which are shown as typed.
type MessageView struct {
	domain.ChatMessage
	Rendered *citation.Rendered `json:"rendered,omitempty"`
}

// ChatService relays questions to the answer service and keeps conversations
type ChatService struct {
	cfg         *config.Config
	sessionRepo *repository.SessionRepository
	querier     Querier
	renderer    *citation.Renderer
	logger      *zap.Logger
	observer    QueryObserver

	// mu serializes loads so a session is read from the database once
	mu            sync.Mutex
	conversations *lru.Cache[string, *chat.Conversation]
}

// NewChatService creates a new chat service
func NewChatService(
	cfg *config.Config,
	sessionRepo *repository.SessionRepository,
	querier Querier,
	logger *zap.Logger,
	observer QueryObserver,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Chat.MaxConversations
	if size <= 0 {
		size = defaultMaxConversations
	}
	// New only fails for a non-positive size
	conversations, _ := lru.New[string, *chat.Conversation](size)

	return &ChatService{
		cfg:           cfg,
		sessionRepo:   sessionRepo,
		querier:       querier,
		renderer:      citation.NewRenderer(),
		logger:        logger,
		observer:      observer,
		conversations: conversations,
	}
}

// CreateSession starts a new conversation
func (s *ChatService) CreateSession(ctx context.Context) (*domain.Session, error) {
	session := &domain.Session{}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}

	s.conversations.Add(session.ID, chat.NewConversation(chat.NewState(session.ID)))

	return session, nil
}

// conversation returns the live conversation for a session, loading its
// stored messages on first use or after it was evicted
func (s *ChatService) conversation(sessionID string) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations.Get(sessionID); ok {
		return conv, nil
	}

	session, err := s.sessionRepo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}

	messages, err := s.sessionRepo.GetMessages(sessionID)
	if err != nil {
		return nil, err
	}

	conv := chat.NewConversation(chat.WithMessages(chat.NewState(sessionID), messages))
	s.conversations.Add(sessionID, conv)
	return conv, nil
}

// Ask records the question, starts the answer stream and returns its events.
// The channel is closed after a done or error event, or when ctx ends.
func (s *ChatService) Ask(ctx context.Context, sessionID string, req *domain.AskRequest) (<-chan AnswerEvent, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}

	conv, err := s.conversation(sessionID)
	if err != nil {
		return nil, err
	}

	user, bot := conv.Ask(query)
	if err := s.sessionRepo.SaveMessage(&user); err != nil {
		s.logger.Error("Failed to save user message", zap.String("session_id", sessionID), zap.Error(err))
	}

	events := make(chan AnswerEvent, 64)
	go s.answer(ctx, conv, &user, bot.ID, s.queryRequest(query, req), events)
	return events, nil
}

func (s *ChatService) queryRequest(query string, req *domain.AskRequest) domain.QueryRequest {
	q := domain.QueryRequest{
		Query:      query,
		TopK:       req.TopK,
		SearchDocs: req.SearchDocs,
		SearchWeb:  req.SearchWeb,
	}
	if q.TopK <= 0 {
		q.TopK = s.cfg.Collaborator.TopK
	}
	if q.SearchDocs == nil {
		v := s.cfg.Collaborator.SearchDocs
		q.SearchDocs = &v
	}
	if q.SearchWeb == nil {
		v := s.cfg.Collaborator.SearchWeb
		q.SearchWeb = &v
	}
	return q
}

func (s *ChatService) answer(ctx context.Context, conv *chat.Conversation, user *domain.ChatMessage, botID string, req domain.QueryRequest, events chan<- AnswerEvent) {
	defer close(events)

	send := func(ev AnswerEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	first := true
	err := s.querier.Query(ctx, req, func(ev domain.StreamEvent) error {
		if err := conv.Apply(botID, ev); err != nil {
			return err
		}

		out := AnswerEvent{MessageID: botID}
		if first {
			out.User = user
			first = false
		}
		switch ev.Kind {
		case domain.EventTextDelta:
			out.Type = AnswerEventDelta
			out.Delta = ev.Text
		case domain.EventCitationSet:
			out.Type = AnswerEventCitations
			out.Citations = ev.Citations
		}
		return send(out)
	})

	var (
		msg    domain.ChatMessage
		result string
	)
	switch {
	case err == nil:
		msg, err = conv.Complete(botID)
		result = QueryResultComplete
	case ctx.Err() != nil:
		// The browser went away; keep what arrived.
		msg, err = conv.Complete(botID)
		result = QueryResultCanceled
	default:
		s.logger.Warn("Answer stream failed", zap.String("message_id", botID), zap.Error(err))
		msg, err = conv.Fail(botID, errorText(err))
		result = QueryResultError
	}
	if s.observer != nil {
		s.observer.QueryFinished(result)
	}
	if err != nil {
		s.logger.Error("Failed to finish message", zap.String("message_id", botID), zap.Error(err))
		return
	}

	if err := s.sessionRepo.SaveMessage(&msg); err != nil {
		s.logger.Error("Failed to save answer", zap.String("message_id", botID), zap.Error(err))
	}
	if err := s.sessionRepo.Update(msg.SessionID); err != nil {
		s.logger.Warn("Failed to touch session", zap.String("session_id", msg.SessionID), zap.Error(err))
	}

	if result == QueryResultCanceled {
		return
	}

	view := s.view(msg, conv.Snapshot().Hover)
	final := AnswerEvent{Type: AnswerEventDone, MessageID: botID, Message: &view}
	if first {
		final.User = user
	}
	if msg.Status == domain.MessageStatusError {
		final.Type = AnswerEventError
		final.Error = msg.Text
	}
	send(final)
}

// errorText is the bot message text shown for a failed answer
func errorText(err error) string {
	var apiErr *collaborator.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return "Error: " + apiErr.Message
	}
	return FallbackErrorText
}

func (s *ChatService) view(msg domain.ChatMessage, hover *domain.HoverKey) MessageView {
	v := MessageView{ChatMessage: msg}
	if msg.Sender != domain.SenderBot || msg.Status == domain.MessageStatusError {
		return v
	}

	rendered, err := s.renderer.Render(citation.RenderInput{
		MessageID: msg.ID,
		Text:      msg.Text,
		Citations: msg.Citations,
		Hover:     hover,
	})
	if err != nil {
		s.logger.Warn("Failed to render message", zap.String("message_id", msg.ID), zap.Error(err))
		return v
	}
	v.Rendered = rendered
	return v
}

// Messages returns a session's messages with bot answers rendered
func (s *ChatService) Messages(ctx context.Context, sessionID string) ([]MessageView, error) {
	conv, err := s.conversation(sessionID)
	if err != nil {
		return nil, err
	}

	state := conv.Snapshot()
	views := make([]MessageView, 0, len(state.Messages))
	for _, msg := range state.Messages {
		views = append(views, s.view(msg, state.Hover))
	}
	return views, nil
}

// Hover activates or deactivates a citation popover and returns the active key
func (s *ChatService) Hover(ctx context.Context, sessionID string, key domain.HoverKey, active bool) (*domain.HoverKey, error) {
	conv, err := s.conversation(sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := conv.Snapshot().Message(key.MessageID); !ok {
		return nil, domain.ErrNotFound
	}
	return conv.Hover(key, active), nil
}
