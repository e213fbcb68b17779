package domain

// UpdateKind classifies the content of an inbound update.
type UpdateKind string

const (
	KindText  UpdateKind = "text"
	KindVoice UpdateKind = "voice"
	KindOther UpdateKind = "other"
)

// Update is one inbound event delivered by the messaging platform.
// It is immutable once decoded and lives for a single dispatch.
type Update struct {
	ID       int   // platform update ID, used for deduplication
	ChatID   int64 // reply target; 0 when the envelope carried no message
	SenderID int64
	Kind     UpdateKind
	RawText  string // set iff Kind == KindText
	VoiceRef string // platform file ID, set iff Kind == KindVoice
}
