// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"context"
	"errors"
	"net/http"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// cohereBaseURL overrides the SDK's default endpoint when set. Tests point
// it at an httptest server.
var cohereBaseURL string

// DefaultCohereModel is used when no model is configured.
const DefaultCohereModel = "command-r-plus"

// CohereBackend calls the Cohere chat endpoint through the official SDK.
type CohereBackend struct {
	client *cohereclient.Client
	model  string
}

// NewCohereBackend builds a backend authenticated with apiKey.
func NewCohereBackend(apiKey, model string, httpClient *http.Client) *CohereBackend {
	if model == "" {
		model = DefaultCohereModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	if cohereBaseURL != "" {
		client = cohereclient.NewClient(
			cohereclient.WithToken(apiKey),
			cohereclient.WithHTTPClient(httpClient),
			cohereclient.WithBaseURL(cohereBaseURL),
		)
	}
	return &CohereBackend{client: client, model: model}
}

func (c *CohereBackend) Name() string { return "cohere" }

// Generate sends prompt as a single chat message.
func (c *CohereBackend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message: prompt,
		Model:   cohere.String(c.model),
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("cohere chat returned empty response")
	}
	return resp.Text, nil
}
