package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"notebot/internal/taxonomy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(apiBase string) *Client {
	return NewClient(Config{
		APIBase:         apiBase,
		APIKey:          "test-key",
		TranscribeModel: "stt",
		SummarizeModel:  "sum",
		ClassifyModel:   "cls",
		Labels:          taxonomy.NewSet(testLogger()),
		Logger:          testLogger(),
	})
}

func jsonHandler(t *testing.T, status int, body any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	}
}

// --- Transcribe ---

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]string{"text": " hello world "}))
	defer srv.Close()

	got := testClient(srv.URL).Transcribe(context.Background(), "https://files.example/voice.ogg")
	if got != "hello world" {
		t.Errorf("expected trimmed transcription, got %q", got)
	}
}

func TestTranscribe_ServerError_ReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 500, nil))
	defer srv.Close()

	if got := testClient(srv.URL).Transcribe(context.Background(), "ref"); got != "" {
		t.Errorf("expected empty string on server error, got %q", got)
	}
}

func TestTranscribe_MissingField_ReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]string{}))
	defer srv.Close()

	if got := testClient(srv.URL).Transcribe(context.Background(), "ref"); got != "" {
		t.Errorf("expected empty string for missing text field, got %q", got)
	}
}

func TestTranscribe_Unreachable_ReturnsEmpty(t *testing.T) {
	c := testClient("http://127.0.0.1:1")
	if got := c.Transcribe(context.Background(), "ref"); got != "" {
		t.Errorf("expected empty string on transport failure, got %q", got)
	}
}

// --- Refine ---

func TestRefine_Success(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]string{"summaryText": "short version"}))
	defer srv.Close()

	got := testClient(srv.URL).Refine(context.Background(), "a very long original text")
	if got != "short version" {
		t.Errorf("expected summary, got %q", got)
	}
}

func TestRefine_ServerError_IdentityFallback(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 503, nil))
	defer srv.Close()

	input := "Buy milk tomorrow"
	if got := testClient(srv.URL).Refine(context.Background(), input); got != input {
		t.Errorf("expected input unchanged, got %q", got)
	}
}

func TestRefine_MissingField_IdentityFallback(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]string{"text": "wrong field"}))
	defer srv.Close()

	input := "original content"
	if got := testClient(srv.URL).Refine(context.Background(), input); got != input {
		t.Errorf("expected input unchanged, got %q", got)
	}
}

func TestRefine_MalformedJSON_IdentityFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	input := "keep me"
	if got := testClient(srv.URL).Refine(context.Background(), input); got != input {
		t.Errorf("expected input unchanged, got %q", got)
	}
}

// --- Classify ---

func TestClassify_Success(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]any{"labels": []string{"todo", "note"}}))
	defer srv.Close()

	if got := testClient(srv.URL).Classify(context.Background(), "Buy milk tomorrow"); got != "todo" {
		t.Errorf("expected todo, got %q", got)
	}
}

func TestClassify_ServerError_DefaultLabel(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 500, nil))
	defer srv.Close()

	if got := testClient(srv.URL).Classify(context.Background(), "anything"); got != "note" {
		t.Errorf("expected default note, got %q", got)
	}
}

func TestClassify_EmptyLabels_DefaultLabel(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]any{"labels": []string{}}))
	defer srv.Close()

	if got := testClient(srv.URL).Classify(context.Background(), "anything"); got != "note" {
		t.Errorf("expected default note, got %q", got)
	}
}

func TestClassify_UnknownLabel_DefaultLabel(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, 200, map[string]any{"labels": []string{"recipe"}}))
	defer srv.Close()

	if got := testClient(srv.URL).Classify(context.Background(), "anything"); got != "note" {
		t.Errorf("expected default for label outside candidate set, got %q", got)
	}
}

func TestClassify_SendsCandidateLabels(t *testing.T) {
	var received inferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{"labels": []string{"idea"}})
	}))
	defer srv.Close()

	testClient(srv.URL).Classify(context.Background(), "what if we tried X")

	if received.Options == nil || len(received.Options.CandidateLabels) != len(taxonomy.DefaultLabels) {
		t.Fatalf("expected candidate labels in request, got %+v", received.Options)
	}
	if received.Input != "what if we tried X" {
		t.Errorf("expected input text in request, got %q", received.Input)
	}
}

// --- Request shape ---

func TestInvoke_SendsAuthAndPath(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"summaryText": "s"})
	}))
	defer srv.Close()

	testClient(srv.URL).Refine(context.Background(), "text")

	if gotPath != "/models/sum" {
		t.Errorf("expected /models/sum, got %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}
