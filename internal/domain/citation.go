package domain

// Citation is a resolved source reference attached to a bot answer
type Citation struct {
	ID             string   `json:"id"`
	DocumentName   string   `json:"document_name"`
	PageNumber     *int     `json:"page_number,omitempty"`
	Snippet        string   `json:"snippet"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// APICitationRecord is the citation shape produced by the answer service
type APICitationRecord struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	PageNumber *int     `json:"page_number"`
	Filename   string   `json:"filename"`
	Score      *float64 `json:"score"`
	ChunkText  string   `json:"chunk_text"`
}

// CitationFromRecord maps an answer service record to a Citation.
// Page numbers are 1-based; anything below 1 is treated as absent.
func CitationFromRecord(r APICitationRecord) Citation {
	c := Citation{
		ID:           r.ChunkID,
		DocumentName: r.Filename,
		Snippet:      r.ChunkText,
	}
	if r.PageNumber != nil && *r.PageNumber > 0 {
		page := *r.PageNumber
		c.PageNumber = &page
	}
	if r.Score != nil {
		score := *r.Score
		c.RelevanceScore = &score
	}
	return c
}

// EventKind tags a StreamEvent
type EventKind int

const (
	// EventTextDelta carries text to append to the answer in progress
	EventTextDelta EventKind = iota + 1
	// EventCitationSet carries a citation set replacing any earlier one
	EventCitationSet
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventCitationSet:
		return "citation_set"
	default:
		return "unknown"
	}
}

// StreamEvent is one decoded item of a streamed answer
type StreamEvent struct {
	Kind      EventKind
	Text      string
	Citations []Citation
}

// TextDelta builds a text delta event
func TextDelta(text string) StreamEvent {
	return StreamEvent{Kind: EventTextDelta, Text: text}
}

// CitationSet builds a citation set event
func CitationSet(citations []Citation) StreamEvent {
	return StreamEvent{Kind: EventCitationSet, Citations: citations}
}
