// Package embedding defines the external embedding generator interface the
// Vector Index depends on, plus a deterministic local reference
// implementation used by tests and as a degraded-mode default when no real
// model is configured.
package embedding

import "context"

// Generator produces a fixed-dimension embedding for a piece of text. Real
// implementations call out to a model; they are external collaborators
// specified only by this interface.
type Generator interface {
	// Generate must be deterministic for a fixed model version and
	// always return a vector of the same length for every call.
	Generate(ctx context.Context, text string) ([]float32, error)
	// Dim reports the fixed vector length this generator produces.
	Dim() int
}
