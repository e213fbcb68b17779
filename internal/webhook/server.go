// Package webhook is the HTTP entry point for Telegram update
// delivery. Whatever the pipeline does with an update, the webhook
// acknowledges the platform with a bounded response: outcomes reach
// the user through the bot channel, not through HTTP status codes.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notebot/internal/bot"
	"notebot/internal/domain"
	"notebot/internal/metrics"
)

const maxBodyBytes = 1 << 20 // Telegram updates are far below 1MB

// Dispatcher routes a decoded update and produces the user reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, upd domain.Update) string
}

// Replier delivers reply text through the bot channel.
type Replier interface {
	Reply(chatID int64, text string)
}

// Config configures the webhook server.
type Config struct {
	Port        int
	Path        string // webhook URL path (default "/")
	SecretToken string // optional X-Telegram-Bot-Api-Secret-Token check

	MetricsEnabled bool
	MetricsPath    string // default "/metrics"

	Dispatcher Dispatcher
	Replier    Replier
	Logger     *slog.Logger
}

// Server accepts update deliveries over HTTP. It keeps no state
// between requests.
type Server struct {
	port        int
	path        string
	secretToken string

	metricsEnabled bool
	metricsPath    string

	dispatcher Dispatcher
	replier    Replier
	logger     *slog.Logger
	server     *http.Server
}

// NewServer creates a webhook server.
func NewServer(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{
		port:           cfg.Port,
		path:           cfg.Path,
		secretToken:    cfg.SecretToken,
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
		dispatcher:     cfg.Dispatcher,
		replier:        cfg.Replier,
		logger:         cfg.Logger,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpdate)
	if s.metricsEnabled {
		mux.HandleFunc(s.metricsPath, metrics.Collector.Handler())
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "port", s.port, "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleUpdate processes one update delivery. Non-POST requests get a
// static liveness body; a POST is acknowledged with 200 "ok" once
// dispatch returns, whatever the pipeline decided. Only a decode
// failure or a panic inside dispatch yields an error status.
func (s *Server) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, "Bot running")
		return
	}

	if s.secretToken != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.secretToken {
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "Error", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	var envelope tgbotapi.Update
	if err := json.Unmarshal(body, &envelope); err != nil {
		s.logger.Error("update decode failed", "err", err)
		http.Error(rw, "Error", http.StatusInternalServerError)
		return
	}

	metrics.UpdatesTotal.Inc()

	upd := bot.FromTelegram(envelope)
	reply, ok := s.dispatch(r.Context(), upd)
	if !ok {
		http.Error(rw, "Error", http.StatusInternalServerError)
		return
	}

	if reply != "" && upd.ChatID != 0 {
		s.replier.Reply(upd.ChatID, reply)
	}

	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, "ok")
}

// dispatch isolates panics so a broken handler cannot take down the
// server; ok is false when dispatch panicked.
func (s *Server) dispatch(ctx context.Context, upd domain.Update) (reply string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("dispatch panic", "panic", rec, "update_id", upd.ID)
			ok = false
		}
	}()
	return s.dispatcher.Dispatch(ctx, upd), true
}
