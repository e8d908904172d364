package listen

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/service"
	"go.uber.org/zap"
)

// Handler upgrades browser connections and relays them to the listen socket
type Handler struct {
	listenService *service.ListenService
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// NewHandler creates a new listen handler. Cross-origin handshakes are
// accepted only from allowOrigins.
func NewHandler(listenService *service.ListenService, allowOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		listenService: listenService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     checkOrigin(allowOrigins),
		},
		logger: logger,
	}
}

// RegisterRoutes registers the listen route
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/listen", h.Listen)
}

// Listen relays audio from the browser until either side closes
func (h *Handler) Listen(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("Failed to upgrade listen connection", zap.Error(err))
		return
	}
	defer conn.Close()

	h.listenService.Serve(c.Request.Context(), conn)
}

func checkOrigin(allowOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
