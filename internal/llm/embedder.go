package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// embeddingRequest is the OpenAI-style embeddings request body
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the OpenAI-style embeddings response body
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
// Also works with OpenAI-compatible local servers via a custom base URL.
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIEmbedder creates a new embeddings client
func NewOpenAIEmbedder(apiKey, baseURL, model string, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed returns the embedding vector for the given text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{Model: e.model, Input: text}

	respBody, err := postJSON(ctx, e.httpClient, e.baseURL+"/v1/embeddings", e.apiKey, body)
	if err != nil {
		return nil, err
	}

	var response embeddingResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return response.Data[0].Embedding, nil
}
