package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/doclens/internal/api/respond"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/service"
)

// Handler handles conversation API requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id/messages", h.Messages)
		sessions.POST("/:id/query", h.Query)
		sessions.PUT("/:id/hover", h.Activate)
		sessions.DELETE("/:id/hover", h.Deactivate)
	}
}

// CreateSession starts a conversation
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.chatService.CreateSession(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Messages returns the conversation with rendered answers
func (h *Handler) Messages(c *gin.Context) {
	messages, err := h.chatService.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Query asks a question and streams the answer (SSE)
func (h *Handler) Query(c *gin.Context) {
	var req domain.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.chatService.Ask(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			writeSSE(w, ev.Type, ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Activate shows the popover for a citation reference
func (h *Handler) Activate(c *gin.Context) {
	h.hover(c, true)
}

// Deactivate hides the popover if it is still the active one
func (h *Handler) Deactivate(c *gin.Context) {
	h.hover(c, false)
}

func (h *Handler) hover(c *gin.Context, active bool) {
	var key domain.HoverKey
	if err := c.ShouldBindJSON(&key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if key.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}

	current, err := h.chatService.Hover(c.Request.Context(), c.Param("id"), key, active)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": current})
}

func writeSSE(w io.Writer, eventType string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}
