// Package speech relays live audio to the transcription socket and keeps the
// transcript text shown in the query input.
package speech

import (
	"strings"
	"sync"

	"github.com/liliang-cn/doclens/internal/domain"
)

// Buffer is the transcript text for one listen session. Final fragments are
// committed; the latest non-final fragment is kept as a pending tail that the
// next fragment replaces.
type Buffer struct {
	mu        sync.Mutex
	committed strings.Builder
	pending   string
}

// Apply folds a fragment in and returns the full text
func (b *Buffer) Apply(f domain.TranscriptFragment) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f.IsFinal {
		b.committed.WriteString(f.Transcript)
		b.pending = ""
	} else {
		b.pending = f.Transcript
	}
	return b.committed.String() + b.pending
}

// Text returns committed text followed by the pending tail
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed.String() + b.pending
}

// Committed returns only the finalized text
func (b *Buffer) Committed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed.String()
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed.Reset()
	b.pending = ""
}
