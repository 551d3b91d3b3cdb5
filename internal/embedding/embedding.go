// Package embedding turns profile text into vectors via the Voyage AI API.
package embedding

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/halogen-labs/halogen/internal/httputil"
)

// Dimensions is the vector size of the voyage-large-2 model and of the
// pgvector columns.
const Dimensions = 1024

const voyageBaseURL = "https://api.voyageai.com/v1"

// Encoder produces embeddings for profile text.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// VoyageEncoder calls the Voyage AI embeddings endpoint.
type VoyageEncoder struct {
	api    *httputil.Client
	apiKey string
	model  string
}

// NewVoyage creates an encoder for the given API key and model.
func NewVoyage(apiKey, model string) *VoyageEncoder {
	return NewVoyageWithBaseURL(voyageBaseURL, apiKey, model)
}

// NewVoyageWithBaseURL creates an encoder against a custom endpoint, for tests.
func NewVoyageWithBaseURL(baseURL, apiKey, model string) *VoyageEncoder {
	return &VoyageEncoder{
		api:    httputil.NewClient(httputil.ClientConfig{BaseURL: baseURL}),
		apiKey: apiKey,
		model:  model,
	}
}

// Encode returns the embedding of text.
func (e *VoyageEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.Post(ctx, "/embeddings", e.apiKey, map[string]interface{}{
		"input": []string{text},
		"model": e.model,
	})
	if err != nil {
		return nil, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("voyage embeddings: %w", err)
	}

	raw := gjson.GetBytes(body, "data.0.embedding")
	if !raw.Exists() {
		return nil, fmt.Errorf("voyage response has no embedding")
	}
	var out []float32
	raw.ForEach(func(_, v gjson.Result) bool {
		out = append(out, float32(v.Float()))
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("voyage returned an empty embedding")
	}
	return out, nil
}

// FormatCreatorProfile builds the canonical text embedded for a creator.
func FormatCreatorProfile(profileDesc, contentDesc, audienceDesc string) string {
	return fmt.Sprintf(
		"# Content Creator Profile Description:\n%s\n\n# Content Creator Content Description:\n%s\n\n# Content Creator Audience Description:\n%s",
		profileDesc, contentDesc, audienceDesc)
}

// FormatCompanyBanner builds the canonical text embedded for a company.
func FormatCompanyBanner(bannerDesc string) string {
	return fmt.Sprintf("Question: Who are we?\nAnswer: %s", bannerDesc)
}
