package collaborator

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/domain"
	"go.uber.org/zap"
)

// ListenConn is an open live transcription socket. Audio goes out as binary
// messages; transcript fragments come back as JSON text messages.
type ListenConn struct {
	conn        *websocket.Conn
	logger      *zap.Logger
	transcripts chan domain.TranscriptFragment
	errors      chan error
	sendCh      chan []byte
	done        chan struct{}

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newListenConn(conn *websocket.Conn, logger *zap.Logger) *ListenConn {
	c := &ListenConn{
		conn:        conn,
		logger:      logger,
		transcripts: make(chan domain.TranscriptFragment, 64),
		errors:      make(chan error, 16),
		sendCh:      make(chan []byte, 64),
		done:        make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Transcripts is closed when the socket stops reading
func (c *ListenConn) Transcripts() <-chan domain.TranscriptFragment { return c.transcripts }

// Errors is closed together with Transcripts
func (c *ListenConn) Errors() <-chan error { return c.errors }

// SendAudio queues an audio fragment. It never blocks: the fragment is
// dropped and false returned when the socket is closed or its queue is full.
func (c *ListenConn) SendAudio(fragment []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendCh <- fragment:
		return true
	default:
		return false
	}
}

// Close closes the socket
func (c *ListenConn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"), time.Now().Add(250*time.Millisecond))
		err = c.conn.Close()
	})
	return err
}

func (c *ListenConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *ListenConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case fragment := <-c.sendCh:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, fragment); err != nil {
				c.logger.Warn("Failed to send audio fragment", zap.Error(err))
				c.conn.Close()
				return
			}
		}
	}
}

func (c *ListenConn) readLoop() {
	defer close(c.errors)
	defer close(c.transcripts)

	for {
		msgType, b, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emitErr(fmt.Errorf("listen socket read failed: %w", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var fragment domain.TranscriptFragment
		if err := json.Unmarshal(b, &fragment); err != nil {
			c.logger.Warn("Dropping malformed transcript frame", zap.Error(err))
			continue
		}
		select {
		case c.transcripts <- fragment:
		case <-c.done:
			return
		}
	}
}

func (c *ListenConn) emitErr(err error) {
	select {
	case c.errors <- err:
	default:
	}
}
