package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notebot/internal/domain"
	"notebot/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubInference struct {
	transcribeOut string
	classifyOut   string
	transcribed   []string
}

func (s *stubInference) Transcribe(ctx context.Context, audioRef string) string {
	s.transcribed = append(s.transcribed, audioRef)
	return s.transcribeOut
}

func (s *stubInference) Refine(ctx context.Context, text string) string { return text }

func (s *stubInference) Classify(ctx context.Context, text string) string {
	if s.classifyOut == "" {
		return "note"
	}
	return s.classifyOut
}

type stubStore struct {
	saved []domain.Note
	err   error
}

func (s *stubStore) Save(ctx context.Context, note domain.Note) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, note)
	return nil
}

type stubResolver struct {
	url      string
	err      error
	resolved []string
}

func (s *stubResolver) ResolveVoiceURL(fileID string) (string, error) {
	s.resolved = append(s.resolved, fileID)
	return s.url, s.err
}

type memJournal struct {
	entries map[int]domain.JournalEntry
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[int]domain.JournalEntry)}
}

func (m *memJournal) Seen(ctx context.Context, updateID int) (bool, error) {
	_, ok := m.entries[updateID]
	return ok, nil
}

func (m *memJournal) Record(ctx context.Context, e domain.JournalEntry) error {
	m.entries[e.UpdateID] = e
	return nil
}

func newDispatcher(t *testing.T, inf domain.Inference, st domain.NoteStore, mod func(*Config)) *Dispatcher {
	t.Helper()
	cfg := Config{
		Pipeline: pipeline.New(pipeline.Config{Inference: inf, Store: st, Logger: testLogger()}),
		Logger:   testLogger(),
	}
	if mod != nil {
		mod(&cfg)
	}
	return NewDispatcher(cfg)
}

func TestDispatch_TextSaved(t *testing.T) {
	st := &stubStore{}
	d := newDispatcher(t, &stubInference{classifyOut: "todo"}, st, nil)

	reply := d.Dispatch(context.Background(), domain.Update{
		ID: 1, ChatID: 7, Kind: domain.KindText, RawText: "Buy milk tomorrow",
	})

	if reply != "✅ todo saved" {
		t.Errorf("expected saved reply, got %q", reply)
	}
	if len(st.saved) != 1 {
		t.Errorf("expected one saved note, got %d", len(st.saved))
	}
}

func TestDispatch_StoreFailure_ErrorReply(t *testing.T) {
	st := &stubStore{err: errors.New("boom")}
	d := newDispatcher(t, &stubInference{}, st, nil)

	reply := d.Dispatch(context.Background(), domain.Update{
		ID: 2, ChatID: 7, Kind: domain.KindText, RawText: "hello",
	})

	if reply != "❌ error saving" {
		t.Errorf("expected error reply, got %q", reply)
	}
}

func TestDispatch_Other_StaticWelcome(t *testing.T) {
	st := &stubStore{}
	d := newDispatcher(t, &stubInference{}, st, nil)

	reply := d.Dispatch(context.Background(), domain.Update{ID: 3, ChatID: 7, Kind: domain.KindOther})

	if reply != replyWelcome {
		t.Errorf("expected welcome reply, got %q", reply)
	}
	if len(st.saved) != 0 {
		t.Error("pipeline must not be invoked for kind=other")
	}
}

func TestDispatch_VoiceDisabled_AckWithoutSave(t *testing.T) {
	st := &stubStore{}
	inf := &stubInference{transcribeOut: "should not be used"}
	d := newDispatcher(t, inf, st, nil) // EnableVoiceTranscription defaults to false

	reply := d.Dispatch(context.Background(), domain.Update{
		ID: 4, ChatID: 7, Kind: domain.KindVoice, VoiceRef: "file-1",
	})

	if reply != replyVoiceAck {
		t.Errorf("expected voice acknowledgment, got %q", reply)
	}
	if len(inf.transcribed) != 0 {
		t.Error("transcription must not run when disabled")
	}
	if len(st.saved) != 0 {
		t.Error("nothing must be persisted when voice is disabled")
	}
}

func TestDispatch_VoiceEnabled_FullPipeline(t *testing.T) {
	st := &stubStore{}
	inf := &stubInference{transcribeOut: "call the dentist", classifyOut: "reminder"}
	resolver := &stubResolver{url: "https://files.example/voice.ogg"}
	d := newDispatcher(t, inf, st, func(c *Config) {
		c.EnableVoiceTranscription = true
		c.Voice = resolver
	})

	reply := d.Dispatch(context.Background(), domain.Update{
		ID: 5, ChatID: 7, Kind: domain.KindVoice, VoiceRef: "file-2",
	})

	if reply != "✅ reminder saved" {
		t.Errorf("expected saved reply, got %q", reply)
	}
	if len(resolver.resolved) != 1 || resolver.resolved[0] != "file-2" {
		t.Errorf("expected file-2 resolved, got %v", resolver.resolved)
	}
	if len(inf.transcribed) != 1 || inf.transcribed[0] != "https://files.example/voice.ogg" {
		t.Errorf("expected resolved URL transcribed, got %v", inf.transcribed)
	}
}

func TestDispatch_VoiceResolveFailure_Degrades(t *testing.T) {
	st := &stubStore{}
	inf := &stubInference{}
	d := newDispatcher(t, inf, st, func(c *Config) {
		c.EnableVoiceTranscription = true
		c.Voice = &stubResolver{err: errors.New("file expired")}
	})

	reply := d.Dispatch(context.Background(), domain.Update{
		ID: 6, ChatID: 7, Kind: domain.KindVoice, VoiceRef: "file-3",
	})

	// Nothing to transcribe, nothing persisted: the run degrades to the
	// empty-content failure rather than crashing.
	if reply != replyError {
		t.Errorf("expected error reply, got %q", reply)
	}
	if len(st.saved) != 0 {
		t.Error("nothing must be persisted")
	}
}

func TestDispatch_DuplicateUpdate_Skipped(t *testing.T) {
	st := &stubStore{}
	jnl := newMemJournal()
	d := newDispatcher(t, &stubInference{classifyOut: "todo"}, st, func(c *Config) {
		c.Journal = jnl
	})

	upd := domain.Update{ID: 9, ChatID: 7, Kind: domain.KindText, RawText: "once only"}

	first := d.Dispatch(context.Background(), upd)
	second := d.Dispatch(context.Background(), upd)

	if first != "✅ todo saved" {
		t.Errorf("expected saved reply on first delivery, got %q", first)
	}
	if second != "" {
		t.Errorf("expected silent skip on redelivery, got %q", second)
	}
	if len(st.saved) != 1 {
		t.Errorf("expected exactly one save across redeliveries, got %d", len(st.saved))
	}
}

func TestDispatch_AllowList(t *testing.T) {
	st := &stubStore{}
	d := newDispatcher(t, &stubInference{}, st, func(c *Config) {
		c.AllowFrom = []string{"100", "200"}
	})

	denied := d.Dispatch(context.Background(), domain.Update{
		ID: 10, ChatID: 7, SenderID: 999, Kind: domain.KindText, RawText: "hi",
	})
	if denied != replyDenied {
		t.Errorf("expected denial, got %q", denied)
	}
	if len(st.saved) != 0 {
		t.Error("denied sender must not reach the pipeline")
	}

	allowed := d.Dispatch(context.Background(), domain.Update{
		ID: 11, ChatID: 7, SenderID: 100, Kind: domain.KindText, RawText: "hi",
	})
	if allowed == replyDenied {
		t.Error("allowed sender must not be denied")
	}
}

// --- FromTelegram ---

func TestFromTelegram_Text(t *testing.T) {
	upd := FromTelegram(tgbotapi.Update{
		UpdateID: 42,
		Message: &tgbotapi.Message{
			Text: "hello",
			Chat: &tgbotapi.Chat{ID: 5},
			From: &tgbotapi.User{ID: 6},
		},
	})
	if upd.Kind != domain.KindText || upd.RawText != "hello" {
		t.Errorf("expected text update, got %+v", upd)
	}
	if upd.ID != 42 || upd.ChatID != 5 || upd.SenderID != 6 {
		t.Errorf("envelope fields not mapped: %+v", upd)
	}
}

func TestFromTelegram_Voice(t *testing.T) {
	upd := FromTelegram(tgbotapi.Update{
		UpdateID: 43,
		Message: &tgbotapi.Message{
			Voice: &tgbotapi.Voice{FileID: "voice-file"},
			Chat:  &tgbotapi.Chat{ID: 5},
		},
	})
	if upd.Kind != domain.KindVoice || upd.VoiceRef != "voice-file" {
		t.Errorf("expected voice update, got %+v", upd)
	}
}

func TestFromTelegram_Command(t *testing.T) {
	upd := FromTelegram(tgbotapi.Update{
		UpdateID: 44,
		Message: &tgbotapi.Message{
			Text:     "/start",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
			Chat:     &tgbotapi.Chat{ID: 5},
		},
	})
	if upd.Kind != domain.KindOther {
		t.Errorf("commands must classify as other, got %s", upd.Kind)
	}
}

func TestFromTelegram_NoMessage(t *testing.T) {
	upd := FromTelegram(tgbotapi.Update{UpdateID: 45})
	if upd.Kind != domain.KindOther || upd.ChatID != 0 {
		t.Errorf("expected other kind with zero chat, got %+v", upd)
	}
}
