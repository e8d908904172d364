package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/repository"
	"go.uber.org/zap"
)

// Uploader forwards a file to the answer service
type Uploader interface {
	UploadFile(ctx context.Context, filename string, r io.Reader) error
}

// UploadObserver is told the status of each upload
type UploadObserver interface {
	UploadFinished(status string)
}

// UploadService validates uploads, forwards them and keeps a history
type UploadService struct {
	cfg        *config.Config
	uploadRepo *repository.UploadRepository
	uploader   Uploader
	logger     *zap.Logger
	observer   UploadObserver
}

// NewUploadService creates a new upload service
func NewUploadService(
	cfg *config.Config,
	uploadRepo *repository.UploadRepository,
	uploader Uploader,
	logger *zap.Logger,
	observer UploadObserver,
) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		cfg:        cfg,
		uploadRepo: uploadRepo,
		uploader:   uploader,
		logger:     logger,
		observer:   observer,
	}
}

// FileType constants
const (
	FileTypePDF  = "pdf"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
	FileTypeHTML = "html"
	FileTypeDOCX = "docx"
	FileTypeCSV  = "csv"
)

// DetectFileType detects file type from filename
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FileTypePDF
	case ".md", ".markdown":
		return FileTypeMD
	case ".txt":
		return FileTypeTXT
	case ".html", ".htm":
		return FileTypeHTML
	case ".docx":
		return FileTypeDOCX
	case ".csv":
		return FileTypeCSV
	case "":
		return ""
	default:
		return ext[1:] // remove leading dot
	}
}

// IsSupported checks if file type is allowed by the upload config
func (s *UploadService) IsSupported(fileType string) bool {
	if fileType == "" {
		return false
	}
	for _, t := range s.cfg.Upload.AllowedTypes {
		if strings.EqualFold(t, fileType) {
			return true
		}
	}
	return false
}

// Upload validates a file and forwards it to the answer service. Every
// attempt is recorded, including rejected ones.
func (s *UploadService) Upload(ctx context.Context, file *multipart.FileHeader) (*domain.Upload, error) {
	upload := &domain.Upload{
		Filename: filepath.Base(file.Filename),
		FileType: DetectFileType(file.Filename),
		Size:     file.Size,
	}

	err := s.forward(ctx, upload, file)
	if err != nil {
		upload.Status = domain.UploadStatusFailed
		upload.Error = err.Error()
		s.logger.Warn("Upload failed", zap.String("filename", upload.Filename), zap.Error(err))
	} else {
		upload.Status = domain.UploadStatusAccepted
		s.logger.Info("Upload forwarded", zap.String("filename", upload.Filename), zap.Int64("size", upload.Size))
	}

	if s.observer != nil {
		s.observer.UploadFinished(upload.Status)
	}
	if rerr := s.uploadRepo.Create(upload); rerr != nil {
		s.logger.Error("Failed to record upload", zap.String("filename", upload.Filename), zap.Error(rerr))
	}

	return upload, err
}

func (s *UploadService) forward(ctx context.Context, upload *domain.Upload, file *multipart.FileHeader) error {
	if !s.IsSupported(upload.FileType) {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFile, upload.FileType)
	}
	if limit := s.cfg.Upload.MaxSizeMB << 20; upload.Size > limit {
		return fmt.Errorf("%w: file is larger than %d MB", domain.ErrInvalidRequest, s.cfg.Upload.MaxSizeMB)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	return s.uploader.UploadFile(ctx, upload.Filename, src)
}

// List returns the upload history, newest first
func (s *UploadService) List(ctx context.Context, page, pageSize int) (*domain.UploadListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	uploads, err := s.uploadRepo.List(pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.uploadRepo.Count()
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []*domain.Upload{}
	}

	return &domain.UploadListResponse{
		Uploads:  uploads,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
