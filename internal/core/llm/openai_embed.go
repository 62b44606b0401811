package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
)

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint in batches.
//
// Retry policy: rate-limit (429) and 5xx responses are retried with
// exponential backoff starting at retryBase and doubling each attempt, up to
// maxRetries attempts. Other 4xx responses propagate immediately.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryBase  time.Duration

	// sleep is swappable in tests to observe backoff without waiting.
	sleep func(time.Duration)
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		sleep:      time.Sleep,
	}, nil
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedTexts embeds the batch with the given model. Output length equals
// input length; every vector has the model's fixed dimensionality.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !SupportedModel(model) {
		return nil, fmt.Errorf("unsupported embedding model %q", model)
	}

	body, err := json.Marshal(embedRequest{Input: texts, Model: model})
	if err != nil {
		return nil, err
	}

	var lastErr error
	delay := e.retryBase
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			e.sleep(delay)
			delay *= 2
		}

		vecs, retryable, err := e.embedOnce(ctx, body, model, len(texts))
		if err == nil {
			return vecs, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embedding failed after %d retries: %w", e.maxRetries, lastErr)
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, body []byte, model string, inputs int) (vecs [][]float32, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embedding API %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("embedding API %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("decode embedding response: %w", err)
	}

	vecs = make([][]float32, len(out.Data))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vecs) {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	if err := ValidateVectors(model, inputs, vecs); err != nil {
		return nil, false, err
	}
	return vecs, false, nil
}
