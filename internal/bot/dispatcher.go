// Package bot routes decoded updates to the enrichment pipeline and
// produces the user-visible reply text.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"notebot/internal/domain"
	"notebot/internal/metrics"
	"notebot/internal/pipeline"
)

const (
	replyWelcome  = "🚀 Bot is live! Send me a message and I'll file it as a note."
	replyError    = "❌ error saving"
	replyVoiceAck = "🎙 Voice note received. Transcription is disabled, so it was not saved."
	replyDenied   = "⛔ Unauthorized. Your user ID is not in the allow list."
)

// VoiceResolver resolves a platform voice file reference to a
// fetchable audio URL.
type VoiceResolver interface {
	ResolveVoiceURL(fileID string) (string, error)
}

// Config wires the dispatcher's collaborators and policy.
type Config struct {
	Pipeline *pipeline.Pipeline
	Journal  domain.Journal // optional; nil disables dedup and audit
	Voice    VoiceResolver  // required when EnableVoiceTranscription is true

	// EnableVoiceTranscription selects the voice policy: true runs
	// voice notes through the full pipeline including transcription,
	// false acknowledges them without persisting anything.
	EnableVoiceTranscription bool

	AllowFrom []string // allowed user IDs; empty = allow all
	Logger    *slog.Logger
}

// Dispatcher classifies updates by content kind and routes them.
type Dispatcher struct {
	pipeline     *pipeline.Pipeline
	journal      domain.Journal
	voice        VoiceResolver
	voiceEnabled bool
	allowFrom    []int64
	logger       *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Dispatcher{
		pipeline:     cfg.Pipeline,
		journal:      cfg.Journal,
		voice:        cfg.Voice,
		voiceEnabled: cfg.EnableVoiceTranscription,
		allowFrom:    allowed,
		logger:       cfg.Logger,
	}
}

// Dispatch routes one update and returns the reply text for the user.
// An empty reply means nothing should be sent.
func (d *Dispatcher) Dispatch(ctx context.Context, upd domain.Update) string {
	requestID := uuid.NewString()
	log := d.logger.With("request_id", requestID, "update_id", upd.ID, "kind", string(upd.Kind))

	if !d.isAllowed(upd.SenderID) {
		log.Warn("unauthorized sender", "sender_id", upd.SenderID)
		return replyDenied
	}

	if d.journal != nil && upd.ID != 0 {
		seen, err := d.journal.Seen(ctx, upd.ID)
		if err != nil {
			log.Warn("journal lookup failed, processing anyway", "err", err)
		} else if seen {
			log.Info("duplicate update, skipping")
			metrics.DuplicateUpdates.Inc()
			return ""
		}
	}

	switch upd.Kind {
	case domain.KindText:
		out := d.pipeline.Run(ctx, pipeline.Input{SourceText: upd.RawText})
		d.record(ctx, requestID, upd, outcomeEntry(out))
		return replyFor(out)

	case domain.KindVoice:
		if !d.voiceEnabled {
			log.Info("voice transcription disabled, acknowledging without save")
			d.record(ctx, requestID, upd, domain.JournalEntry{Outcome: "skipped"})
			return replyVoiceAck
		}
		audioURL := ""
		if url, err := d.voice.ResolveVoiceURL(upd.VoiceRef); err != nil {
			// Degrades like a failed transcription: the run continues
			// with nothing to transcribe.
			log.Warn("voice file resolve failed", "err", err)
		} else {
			audioURL = url
		}
		out := d.pipeline.Run(ctx, pipeline.Input{AudioRef: audioURL})
		d.record(ctx, requestID, upd, outcomeEntry(out))
		return replyFor(out)

	default:
		// Greetings, commands, stickers, edits: a static reply, the
		// pipeline is never invoked.
		return replyWelcome
	}
}

func (d *Dispatcher) isAllowed(senderID int64) bool {
	if len(d.allowFrom) == 0 {
		return true
	}
	for _, id := range d.allowFrom {
		if id == senderID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) record(ctx context.Context, requestID string, upd domain.Update, entry domain.JournalEntry) {
	if d.journal == nil || upd.ID == 0 {
		return
	}
	entry.UpdateID = upd.ID
	entry.RequestID = requestID
	entry.Kind = upd.Kind
	entry.CreatedAt = time.Now()
	if err := d.journal.Record(ctx, entry); err != nil {
		d.logger.Warn("journal record failed", "err", err, "update_id", upd.ID)
	}
}

func outcomeEntry(out domain.Outcome) domain.JournalEntry {
	if out.Saved {
		return domain.JournalEntry{Outcome: "saved", Category: out.Category}
	}
	return domain.JournalEntry{Outcome: "failed", Stage: string(out.Stage)}
}

func replyFor(out domain.Outcome) string {
	if out.Saved {
		return fmt.Sprintf("✅ %s saved", out.Category)
	}
	return replyError
}
