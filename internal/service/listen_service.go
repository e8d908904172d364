package service

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/collaborator"
	"github.com/liliang-cn/doclens/internal/speech"
	"go.uber.org/zap"
)

// ListenFunc opens a transcription socket
type ListenFunc func(ctx context.Context) (speech.Upstream, error)

// CollaboratorListener opens transcription sockets on the answer service
func CollaboratorListener(c *collaborator.Client) ListenFunc {
	return func(ctx context.Context) (speech.Upstream, error) {
		conn, err := c.Listen(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// ListenService relays browser audio to the answer service's listen socket
type ListenService struct {
	listen ListenFunc
	relay  *speech.Relay
	logger *zap.Logger
}

// NewListenService creates a new listen service
func NewListenService(listen ListenFunc, logger *zap.Logger, observer speech.Observer) *ListenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenService{
		listen: listen,
		relay:  speech.NewRelay(logger, observer),
		logger: logger,
	}
}

// Serve relays one browser socket until either side closes
func (s *ListenService) Serve(ctx context.Context, browser *websocket.Conn) error {
	upstream, err := s.listen(ctx)
	if err != nil {
		s.logger.Warn("Failed to open transcription socket", zap.Error(err))
		browser.WriteJSON(map[string]string{"error": errorText(err)})
		browser.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "transcription unavailable"))
		return err
	}

	text, err := s.relay.Run(ctx, browser, upstream)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Listen relay ended with error", zap.Error(err))
		return err
	}
	s.logger.Debug("Listen relay closed", zap.Int("transcript_length", len(text)))
	return nil
}
