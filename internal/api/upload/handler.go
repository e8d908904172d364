package upload

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/doclens/internal/api/respond"
	"github.com/liliang-cn/doclens/internal/service"
)

// Handler handles document upload requests
type Handler struct {
	uploadService *service.UploadService
}

// NewHandler creates a new upload handler
func NewHandler(uploadService *service.UploadService) *Handler {
	return &Handler{uploadService: uploadService}
}

// RegisterRoutes registers upload routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/upload-file", h.Upload)
	r.GET("/uploads", h.List)
}

// Upload forwards a multipart file to the answer service
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	upload, err := h.uploadService.Upload(c.Request.Context(), file)
	if err != nil {
		c.Error(err)
		c.JSON(respond.Status(err), gin.H{"error": err.Error(), "upload": upload})
		return
	}

	c.JSON(http.StatusCreated, upload)
}

// List returns the upload history
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.uploadService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
