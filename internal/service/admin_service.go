package service

import (
	"context"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/repository"
)

// AdminService handles admin operations
type AdminService struct {
	sessionRepo *repository.SessionRepository
	uploadRepo  *repository.UploadRepository
}

// NewAdminService creates a new admin service
func NewAdminService(
	sessionRepo *repository.SessionRepository,
	uploadRepo *repository.UploadRepository,
) *AdminService {
	return &AdminService{
		sessionRepo: sessionRepo,
		uploadRepo:  uploadRepo,
	}
}

// Stats

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	sessions, err := s.sessionRepo.Count()
	if err != nil {
		return nil, err
	}
	questions, err := s.sessionRepo.CountQuestions()
	if err != nil {
		return nil, err
	}
	uploads, err := s.uploadRepo.Count()
	if err != nil {
		return nil, err
	}
	failed, err := s.uploadRepo.CountByStatus(domain.UploadStatusFailed)
	if err != nil {
		return nil, err
	}

	return &domain.Stats{
		TotalSessions:  sessions,
		TotalQuestions: questions,
		TotalUploads:   uploads,
		FailedUploads:  failed,
	}, nil
}
