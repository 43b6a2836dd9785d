package ai

import (
	"context"

	"ideaforge/internal/prediction"
	"ideaforge/internal/replicate"
)

// Provider is the interface that all AI providers must implement.
type Provider interface {
	// Generate runs one system+user prompt pair and returns the raw model output.
	Generate(ctx context.Context, req prediction.GenerationRequest) (replicate.Output, error)
}

// PredictionProvider implements Provider on top of a Replicate prediction
// run through the relay.
type PredictionProvider struct {
	client *prediction.Client
}

// NewPredictionProvider creates a provider backed by client.
func NewPredictionProvider(client *prediction.Client) *PredictionProvider {
	return &PredictionProvider{client: client}
}

// Generate submits req and waits for the prediction to finish.
func (p *PredictionProvider) Generate(ctx context.Context, req prediction.GenerationRequest) (replicate.Output, error) {
	return p.client.Run(ctx, req)
}
