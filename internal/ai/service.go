package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobrag/internal/httpclient"
	"github.com/amishk599/jobrag/internal/model"
)

// ServiceGenerator calls a self-hosted text generation service that accepts
// {"prompt", "max_tokens", "temperature"} on /generate and answers
// {"response": "..."}.
type ServiceGenerator struct {
	http *httpclient.Client
}

// NewServiceGenerator creates a generator for the service at baseURL.
func NewServiceGenerator(baseURL string, httpClient *http.Client, timeout time.Duration) *ServiceGenerator {
	return &ServiceGenerator{http: httpclient.New(baseURL, httpClient, timeout)}
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends prompt to the service. The echoed prompt, when the model
// repeats it, is stripped from the response.
func (g *ServiceGenerator) Generate(ctx context.Context, prompt string, params model.GenerateParams) (string, error) {
	var resp generateResponse
	req := generateRequest{Prompt: prompt, MaxTokens: params.MaxTokens, Temperature: params.Temperature}
	if err := g.http.DoJSON(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Response, prompt)), nil
}
