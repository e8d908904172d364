package domain

// Stats summarizes activity for the admin API
type Stats struct {
	TotalSessions  int `json:"total_sessions"`
	TotalQuestions int `json:"total_questions"`
	TotalUploads   int `json:"total_uploads"`
	FailedUploads  int `json:"failed_uploads"`
}
