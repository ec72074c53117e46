package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultRatePerSec  = 2.0
	defaultBurst       = 4
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultTimeout     = 60 * time.Second
)

// Config configures the GenAI backend.
type Config struct {
	APIKey      string
	Model       string
	RatePerSec  float64
	Burst       int
	MaxRetries  int           // 0 uses the default, negative disables retries
	Timeout     time.Duration // per attempt
	Temperature float32
}

// completeFunc performs a single backend call.
type completeFunc func(ctx context.Context, prompt string) (string, error)

// GenAI generates artifacts with Google's Gemini models.
type GenAI struct {
	client      *genai.Client
	model       string
	temperature float32
	complete    completeFunc
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	timeout     time.Duration
	logger      *zap.Logger
}

// NewGenAI creates a GenAI generator.
func NewGenAI(ctx context.Context, cfg Config, logger *zap.Logger) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	g := newGenAI(cfg, logger)
	g.client = client
	g.complete = g.generateContent
	return g, nil
}

func newGenAI(cfg Config, logger *zap.Logger) *GenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &GenAI{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: defaultBaseBackoff,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Model returns the configured model name.
func (g *GenAI) Model() string {
	return g.model
}

// Generate renders the prompt for req and asks the model for a JSON answer,
// retrying transient failures with exponential backoff.
func (g *GenAI) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := Prompt(req)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.baseBackoff * time.Duration(1<<(attempt-1))
			g.logger.Debug("retrying generation",
				zap.String("kind", string(req.Kind)),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		text, err := g.attempt(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (g *GenAI) attempt(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.complete(attemptCtx, prompt)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoOutput
	}
	return text, nil
}

func (g *GenAI) generateContent(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return resp.Text(), nil
}

// isRetryable reports whether a failed attempt may succeed on retry: rate
// limiting, server errors, network errors, empty answers and per-attempt
// timeouts while the caller's context is still live.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNoOutput) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
