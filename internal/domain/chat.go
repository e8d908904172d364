package domain

import "time"

// Sender identifies who authored a chat message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message status values
const (
	MessageStatusStreaming = "streaming"
	MessageStatusComplete  = "complete"
	MessageStatusError     = "error"
)

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn in a conversation.
//
// Marker N in Text refers to Citations[N-1]. Citations is replaced as a
// whole whenever a new citation set arrives for the message.
type ChatMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Text      string     `json:"text"`
	Sender    Sender     `json:"sender"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Citations []Citation `json:"citations"`
}

// HoverKey identifies the citation popover currently shown.
type HoverKey struct {
	MessageID  string `json:"message_id"`
	CitationID string `json:"citation_id"`
	Number     int    `json:"number"`
	Instance   int    `json:"instance"`
}

// QueryRequest is the body sent to the answer service query endpoint
type QueryRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	SearchDocs *bool  `json:"search_docs,omitempty"`
	SearchWeb  *bool  `json:"search_web,omitempty"`
}

// AskRequest is the request a browser sends to ask a question
type AskRequest struct {
	Query      string `json:"query" binding:"required"`
	TopK       int    `json:"top_k,omitempty"`
	SearchDocs *bool  `json:"search_docs,omitempty"`
	SearchWeb  *bool  `json:"search_web,omitempty"`
}

// TranscriptFragment is a live transcription result from the listen socket
type TranscriptFragment struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}
