package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
)

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// GeminiEmbedder batches all texts in one request via BatchEmbedContents.
// It shares the retry contract with OpenAIEmbedder: 429/5xx backed off with
// doubling delays, other API errors immediate.
type GeminiEmbedder struct {
	client     *genai.Client
	maxRetries int
	retryBase  time.Duration

	sleep func(time.Duration)
}

func NewGeminiEmbedder(ctx context.Context, apiKey string, maxRetries int, retryBase time.Duration) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &GeminiEmbedder{client: cl, maxRetries: maxRetries, retryBase: retryBase, sleep: time.Sleep}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !SupportedModel(model) {
		return nil, fmt.Errorf("unsupported embedding model %q", model)
	}

	em := g.client.EmbeddingModel(model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	var lastErr error
	delay := g.retryBase
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			g.sleep(delay)
			delay *= 2
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			if retryableGeminiErr(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}

		out := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
		if err := ValidateVectors(model, len(texts), out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("embedding failed after %d retries: %w", g.maxRetries, lastErr)
}

func retryableGeminiErr(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	// Transport-level failures without an API code are treated as transient.
	return true
}
