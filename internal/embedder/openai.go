package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// OpenAIEmbedder calls the OpenAI embeddings API, or an Azure OpenAI
// deployment when configured for Azure.
type OpenAIEmbedder struct {
	url        string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1", or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	APIKey  string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions requests a shortened vector. 0 keeps the model default.
	Dimensions int
	// Azure switches to the api-key header and deployment routing.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	if cfg.Azure {
		e.url = cfg.BaseURL + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out openaiEmbedResponse
	err := postJSON(ctx, e.client, e.url, e.header,
		openaiEmbedRequest{Input: []string{text}, Model: e.model, Dimensions: e.dimensions},
		&out,
		func(body []byte) string {
			var r openaiEmbedResponse
			if json.Unmarshal(body, &r) == nil && r.Error != nil {
				return r.Error.Message
			}
			return ""
		},
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	vec, err := single(vecs)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return vec, nil
}
