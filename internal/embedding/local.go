package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
)

// LocalGenerator is a deterministic, dependency-free embedding generator:
// it shingles the input into overlapping trigrams, seeds a PRNG per
// shingle from an FNV hash, and accumulates a unit-normalized vector. It
// never calls a network model; it exists purely so the recall pipeline is
// exercisable without one, as the spec frames the real generator as an
// external collaborator.
type LocalGenerator struct {
	dim int
}

// NewLocal constructs a LocalGenerator producing vectors of length dim.
func NewLocal(dim int) *LocalGenerator {
	return &LocalGenerator{dim: dim}
}

func (g *LocalGenerator) Dim() int { return g.dim }

func (g *LocalGenerator) Generate(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, g.dim)
	for _, shingle := range shingles(normalize(text), 3) {
		h := fnv.New64a()
		h.Write([]byte(shingle))
		seed := h.Sum64()
		r := rand.New(rand.NewSource(int64(seed)))
		for i := range vec {
			vec[i] += r.NormFloat64()
		}
	}

	out := make([]float32, g.dim)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func shingles(text string, n int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if len(fields) < n {
		return []string{strings.Join(fields, " ")}
	}
	out := make([]string, 0, len(fields)-n+1)
	for i := 0; i+n <= len(fields); i++ {
		out = append(out, strings.Join(fields[i:i+n], " "))
	}
	return out
}
