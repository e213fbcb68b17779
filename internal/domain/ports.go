package domain

import (
	"context"
	"time"
)

// Inference provides the three enrichment capabilities. Implementations
// never return an error: every transport or decode failure degrades to
// the documented fallback value instead, so callers only ever see
// degraded output.
type Inference interface {
	// Transcribe converts an audio locator to text. Empty string means
	// "no speech recognized", including every failure mode.
	Transcribe(ctx context.Context, audioRef string) string
	// Refine summarizes text. On any failure the input is returned
	// unchanged, so content is never lost to a degraded summarizer.
	Refine(ctx context.Context, text string) string
	// Classify picks one label from the candidate set. On any failure,
	// or when the service answers with an unknown label, the default
	// label is returned.
	Classify(ctx context.Context, text string) string
}

// NoteStore persists finished notes.
type NoteStore interface {
	Save(ctx context.Context, note Note) error
}

// JournalEntry records the outcome of one processed update.
type JournalEntry struct {
	UpdateID  int
	RequestID string
	Kind      UpdateKind
	Outcome   string // saved | failed | skipped
	Category  string
	Stage     string
	CreatedAt time.Time
}

// Journal tracks processed update IDs so redelivered updates are not
// enriched or saved twice.
type Journal interface {
	Seen(ctx context.Context, updateID int) (bool, error)
	Record(ctx context.Context, entry JournalEntry) error
}
