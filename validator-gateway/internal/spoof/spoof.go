// Package spoof produces deliberately fake classification output. No model is
// consulted; the flag and the scores are independent uniform draws.
package spoof

import (
	"math/rand/v2"
	"sync"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/models"
)

// ScoreCount is the number of scores in every spoof result.
const ScoreCount = 10

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator seeded from the runtime's random source.
func New() *Generator {
	return NewWithSource(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewWithSource lets tests pin the sequence.
func NewWithSource(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// Generate returns a random flag and ScoreCount scores in [0,1).
func (g *Generator) Generate() models.SpoofResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	scores := make([]float64, ScoreCount)
	flag := g.rnd.IntN(2) == 1
	for i := range scores {
		scores[i] = g.rnd.Float64()
	}
	return models.SpoofResult{
		AIGenerated: flag,
		Predictions: scores,
	}
}
