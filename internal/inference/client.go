// Package inference calls a remote model-serving endpoint for the three
// enrichment capabilities: speech-to-text, summarization, and zero-shot
// classification. Every capability degrades to a documented fallback
// value instead of returning an error, so a degraded service can never
// abort the capture of a note.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"notebot/internal/metrics"
	"notebot/internal/taxonomy"
)

const defaultTimeout = 30 * time.Second

// Config configures the inference client.
type Config struct {
	APIBase         string
	APIKey          string
	TranscribeModel string
	SummarizeModel  string
	ClassifyModel   string
	Timeout         time.Duration
	RatePerMinute   int // 0 = unlimited
	Labels          *taxonomy.Set
	Logger          *slog.Logger
}

// Client invokes the model-serving endpoint. It is stateless and safe
// for concurrent use.
type Client struct {
	apiBase         string
	apiKey          string
	transcribeModel string
	summarizeModel  string
	classifyModel   string
	timeout         time.Duration
	client          *http.Client
	limiter         *rate.Limiter
	labels          *taxonomy.Set
	logger          *slog.Logger
}

// NewClient creates an inference client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}
	return &Client{
		apiBase:         strings.TrimRight(cfg.APIBase, "/"),
		apiKey:          cfg.APIKey,
		transcribeModel: cfg.TranscribeModel,
		summarizeModel:  cfg.SummarizeModel,
		classifyModel:   cfg.ClassifyModel,
		timeout:         cfg.Timeout,
		client:          SharedHTTPClient(cfg.Timeout),
		limiter:         limiter,
		labels:          cfg.Labels,
		logger:          cfg.Logger,
	}
}

type inferRequest struct {
	Input   string        `json:"input"`
	Options *inferOptions `json:"options,omitempty"`
}

type inferOptions struct {
	CandidateLabels []string `json:"candidateLabels,omitempty"`
}

type inferResponse struct {
	Text        string   `json:"text,omitempty"`
	SummaryText string   `json:"summaryText,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// Transcribe converts an audio locator to text. Any transport or decode
// failure, and a response without a text field, yield an empty string:
// "no speech recognized", never an error.
func (c *Client) Transcribe(ctx context.Context, audioRef string) string {
	resp, err := c.invoke(ctx, c.transcribeModel, audioRef, nil)
	if err != nil {
		c.logger.Warn("transcription degraded to empty text", "err", err)
		metrics.InferenceFallbacks.Inc()
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// Refine summarizes text. On any failure, or a response without a
// summary, the input is returned unchanged so content is never lost.
func (c *Client) Refine(ctx context.Context, text string) string {
	resp, err := c.invoke(ctx, c.summarizeModel, text, nil)
	if err != nil {
		c.logger.Warn("refinement degraded to identity", "err", err)
		metrics.InferenceFallbacks.Inc()
		return text
	}
	if resp.SummaryText == "" {
		c.logger.Warn("refinement response missing summary, keeping original text")
		metrics.InferenceFallbacks.Inc()
		return text
	}
	return resp.SummaryText
}

// Classify picks the top label from the candidate set. On any failure,
// a response without labels, or a label outside the candidate set, the
// default label is returned.
func (c *Client) Classify(ctx context.Context, text string) string {
	opts := &inferOptions{CandidateLabels: c.labels.Labels()}
	resp, err := c.invoke(ctx, c.classifyModel, text, opts)
	if err != nil {
		c.logger.Warn("classification degraded to default label", "err", err, "default", c.labels.Default())
		metrics.InferenceFallbacks.Inc()
		return c.labels.Default()
	}
	if len(resp.Labels) == 0 {
		metrics.InferenceFallbacks.Inc()
		return c.labels.Default()
	}
	label := resp.Labels[0]
	if !c.labels.Contains(label) {
		c.logger.Warn("classification returned unknown label, using default", "label", label)
		metrics.InferenceFallbacks.Inc()
		return c.labels.Default()
	}
	return label
}

// Healthy checks that the endpoint is reachable. Used by doctor only;
// the pipeline never depends on health state.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("inference endpoint: invalid API key")
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("inference endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// invoke posts one capability request. A timeout is treated exactly
// like any other transport failure: the caller falls back.
func (c *Client) invoke(ctx context.Context, model, input string, opts *inferOptions) (*inferResponse, error) {
	if model == "" {
		return nil, fmt.Errorf("no model configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(inferRequest{Input: input, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.apiBase + "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference error (status %d): %s", resp.StatusCode, string(body))
	}

	var result inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	c.logger.Debug("inference call complete", "model", model, "latency", time.Since(start))
	return &result, nil
}
