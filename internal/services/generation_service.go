package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// GenerationRequest is one bounded call to the language model
type GenerationRequest struct {
	Directive   string // system context
	UserText    string
	MaxTokens   int
	Temperature float64
}

// Generator produces a reply for a directive and user turn
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationConfig configures the OpenAI-compatible backend
type GenerationConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	RPS         float64 // 0 disables the limiter
	Burst       int
}

// GenerationClient calls {BaseURL}/chat/completions. Calls rejected by the local limiter
// fail immediately with ErrRateLimited instead of queueing.
type GenerationClient struct {
	cfg        GenerationConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewGenerationClient creates a generation client
func NewGenerationClient(cfg GenerationConfig) *GenerationClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	c := &GenerationClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	c.logger.WithFields(logrus.Fields{
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
		"rps":      cfg.RPS,
	}).Info("Generation client initialized")
	return c
}

// Generate sends the directive as the system message and returns the first choice
func (c *GenerationClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("Generation call rejected by local limiter")
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ErrRateLimited)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.cfg.Temperature
	}

	requestBody := map[string]interface{}{
		"model": c.cfg.Model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": req.Directive},
			{"role": "user", "content": req.UserText},
		},
		"stream":      false,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrGenerationFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrGenerationFailed, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrGenerationFailed, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		// Response bodies may echo prompt content; log the size only
		c.logger.WithFields(logrus.Fields{
			"status":     resp.StatusCode,
			"body_bytes": len(body),
		}).Warn("Generation API error")
		return "", fmt.Errorf("%w: API error (status %d)", ErrGenerationFailed, resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("%w: failed to parse API response: %v", ErrGenerationFailed, err)
	}

	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrGenerationFailed)
	}

	reply := apiResponse.Choices[0].Message.Content
	c.logger.WithFields(logrus.Fields{
		"reply_length": len(reply),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Debug("Generation completed")
	return reply, nil
}
