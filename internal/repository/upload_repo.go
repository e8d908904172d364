package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/doclens/internal/domain"
)

// UploadRepository records files forwarded to the answer service
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create stores an upload record
func (r *UploadRepository) Create(upload *domain.Upload) error {
	if upload.ID == "" {
		upload.ID = uuid.New().String()
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO uploads (id, filename, file_type, size, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, upload.ID, upload.Filename, upload.FileType, upload.Size, upload.Status,
		upload.Error, upload.CreatedAt)

	return err
}

// List returns uploads newest first
func (r *UploadRepository) List(limit, offset int) ([]*domain.Upload, error) {
	rows, err := r.db.Query(`
		SELECT id, filename, file_type, size, status, error, created_at
		FROM uploads ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*domain.Upload
	for rows.Next() {
		upload := &domain.Upload{}
		var errText sql.NullString

		if err := rows.Scan(&upload.ID, &upload.Filename, &upload.FileType, &upload.Size,
			&upload.Status, &errText, &upload.CreatedAt); err != nil {
			return nil, err
		}
		upload.Error = errText.String
		uploads = append(uploads, upload)
	}

	return uploads, rows.Err()
}

// Count returns the number of recorded uploads
func (r *UploadRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM uploads`).Scan(&count)
	return count, err
}

// CountByStatus returns the number of uploads with the given status
func (r *UploadRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM uploads WHERE status = ?`, status).Scan(&count)
	return count, err
}
