package domain

import "time"

// Upload status constants
const (
	UploadStatusAccepted = "accepted"
	UploadStatusFailed   = "failed"
)

// Upload records a file forwarded to the answer service
type Upload struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	Size      int64     `json:"size"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadListResponse is the response for listing uploads
type UploadListResponse struct {
	Uploads  []*Upload `json:"uploads"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
