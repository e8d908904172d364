package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/domain"
	"go.uber.org/zap"
)

// Upstream is the transcription side of a relay
type Upstream interface {
	SendAudio(fragment []byte) bool
	Transcripts() <-chan domain.TranscriptFragment
	Errors() <-chan error
	Close() error
}

// Observer receives relay counters
type Observer interface {
	AudioDropped()
	TranscriptReceived(final bool)
	ListenerOpened()
	ListenerClosed()
}

// Update is sent to the browser for every transcript fragment
type Update struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	Text       string `json:"text"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Relay bridges a browser socket and an Upstream. Binary messages from the
// browser are forwarded as audio; transcript fragments come back as Updates.
type Relay struct {
	logger   *zap.Logger
	observer Observer
}

// NewRelay creates a relay; observer may be nil
func NewRelay(logger *zap.Logger, observer Observer) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{logger: logger, observer: observer}
}

// Run relays until either side closes or ctx is done. It closes upstream
// and returns the buffered text.
func (r *Relay) Run(ctx context.Context, browser *websocket.Conn, upstream Upstream) (string, error) {
	if r.observer != nil {
		r.observer.ListenerOpened()
		defer r.observer.ListenerClosed()
	}

	var closeOnce sync.Once
	closeUpstream := func() { closeOnce.Do(func() { upstream.Close() }) }
	defer closeUpstream()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer closeUpstream()
		for {
			msgType, payload, err := browser.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.logger.Warn("Listen client read failed", zap.Error(err))
				}
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			if !upstream.SendAudio(payload) && r.observer != nil {
				r.observer.AudioDropped()
			}
		}
	}()

	var buf Buffer
	transcripts := upstream.Transcripts()
	upstreamErrs := upstream.Errors()

	for {
		select {
		case <-ctx.Done():
			browser.Close()
			<-done
			return buf.Text(), ctx.Err()

		case <-done:
			return buf.Text(), nil

		case err, ok := <-upstreamErrs:
			if !ok {
				upstreamErrs = nil
				continue
			}
			r.logger.Warn("Transcription socket error", zap.Error(err))
			if werr := browser.WriteJSON(errorMessage{Error: err.Error()}); werr != nil {
				return buf.Text(), werr
			}

		case f, ok := <-transcripts:
			if !ok {
				// Upstream finished; let the browser know and stop reading it.
				browser.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "transcription closed"))
				browser.Close()
				<-done
				return buf.Text(), nil
			}
			if r.observer != nil {
				r.observer.TranscriptReceived(f.IsFinal)
			}
			text := buf.Apply(f)
			if err := browser.WriteJSON(Update{Transcript: f.Transcript, IsFinal: f.IsFinal, Text: text}); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return buf.Text(), nil
				}
				return buf.Text(), err
			}
		}
	}
}
