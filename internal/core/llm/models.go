package llm

import "fmt"

// modelDims fixes the vector dimensionality per supported embedding model.
// A tenant picks one model at creation time; every chunk it owns carries
// vectors of that model's dimensionality.
var modelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
}

// Dimensions returns the fixed vector dimensionality for a model.
func Dimensions(model string) (int, bool) {
	d, ok := modelDims[model]
	return d, ok
}

// SupportedModel reports whether the model name is known.
func SupportedModel(model string) bool {
	_, ok := modelDims[model]
	return ok
}

// ValidateVectors checks batch shape: one vector per input, each with the
// model's exact dimensionality. A mismatch is a hard error, never silently
// truncated or padded.
func ValidateVectors(model string, inputs int, vecs [][]float32) error {
	want, ok := Dimensions(model)
	if !ok {
		return fmt.Errorf("unsupported embedding model %q", model)
	}
	if len(vecs) != inputs {
		return fmt.Errorf("embedding count mismatch: got %d vectors for %d inputs", len(vecs), inputs)
	}
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("embedding dimensionality mismatch for %q: vector %d has %d dims, want %d", model, i, len(v), want)
		}
	}
	return nil
}
