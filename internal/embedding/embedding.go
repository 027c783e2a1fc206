// Package embedding provides pluggable text embedding generation with provider abstractions.
package embedding

import (
	"context"
)

// DefaultDimensions is the vector width produced by the default model.
const DefaultDimensions = 1536

// Vector represents a dense embedding vector.
type Vector []float32

// Embedder generates embeddings for text inputs.
//
// EmbedMany tolerates per-item failure: the returned slice always has the
// same length as texts, but an index whose embedding could not be produced
// holds a nil Vector instead of aborting the whole batch. Callers persist
// the chunk without a vector and record an embed-stage warning for each nil
// entry rather than failing the index job.
type Embedder interface {
	// EmbedMany generates embeddings for multiple texts. Errors for
	// individual texts surface as nil entries at the same index, not as a
	// returned error; EmbedMany only returns an error for conditions that
	// make the whole batch meaningless (e.g. a cancelled context).
	EmbedMany(ctx context.Context, texts []string) ([]Vector, error)

	// EmbedOne generates an embedding for a single text input.
	EmbedOne(ctx context.Context, text string) (Vector, error)

	// Dimensions returns the dimensionality of vectors produced by this embedder.
	Dimensions() int

	// Model returns the identifier of the embedding model.
	Model() string
}

// Provider is a factory for creating embedders with specific configurations.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "voyage", "mock").
	Name() string

	// Create instantiates an embedder with the given configuration.
	Create(config map[string]any) (Embedder, error)
}

// ProviderRegistry manages available embedding providers.
type ProviderRegistry interface {
	Register(provider Provider) error
	Get(name string) (Provider, error)
	List() []string
}
