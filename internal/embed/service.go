// Package embed holds the embedding collaborator clients.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/jobrag/internal/httpclient"
)

// ServiceClient calls a self-hosted embedding service that accepts
// {"texts": [...]} and answers {"embeddings": [[...], ...]}.
type ServiceClient struct {
	http *httpclient.Client
	path string
}

// NewServiceClient targets baseURL+path, e.g. "http://embed:8003" and "/embed".
func NewServiceClient(baseURL, path string, httpClient *http.Client, timeout time.Duration) *ServiceClient {
	if path == "" {
		path = "/embed"
	}
	return &ServiceClient{http: httpclient.New(baseURL, httpClient, timeout), path: path}
}

type serviceRequest struct {
	Texts []string `json:"texts"`
}

type serviceResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends all texts in a single request.
func (c *ServiceClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := c.http.Do(ctx, http.MethodPost, c.path, serviceRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	out, err := decodeServiceResponse(body)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("embed %d texts: service returned %d embeddings", len(texts), len(out))
	}
	return out, nil
}

// decodeServiceResponse accepts both the plain object and the older
// [{"embeddings": ...}, 200] tuple form.
func decodeServiceResponse(body []byte) ([][]float32, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var tuple []json.RawMessage
		if err := json.Unmarshal(body, &tuple); err != nil {
			return nil, fmt.Errorf("parse embed response: %w", err)
		}
		if len(tuple) == 0 {
			return nil, fmt.Errorf("parse embed response: empty array")
		}
		body = tuple[0]
	}
	var resp serviceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	return resp.Embeddings, nil
}
