package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/jobrag/internal/httpclient"
)

// OpenAIClient calls an OpenAI-compatible /embeddings endpoint (OpenAI, Ollama,
// vLLM and friends). Inputs are sent in batches of batchSize.
type OpenAIClient struct {
	http      *httpclient.Client
	model     string
	batchSize int
}

// NewOpenAIClient creates a client. An empty baseURL targets api.openai.com.
func NewOpenAIClient(baseURL, apiKey, model string, batchSize int, httpClient *http.Client, timeout time.Duration) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	c := httpclient.New(baseURL, httpClient, timeout)
	if apiKey != "" {
		c.Headers["Authorization"] = "Bearer " + apiKey
	}
	return &OpenAIClient{http: c, model: model, batchSize: batchSize}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse covers the OpenAI shape ("data") and Ollama's native
// /api/embed shape ("embeddings").
type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingsResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/embeddings", embeddingsRequest{Model: c.model, Input: texts}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 && len(resp.Embeddings) > 0 {
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
		}
		return resp.Embeddings, nil
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("embedding index %d out of range or repeated", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
