// Package conjugate draws exact posterior samples from the Beta posterior of
// each arm. It is the reference engine for the beta-binomial models.
package conjugate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/domain/model"
)

// Name is the engine name used in configuration.
const Name = "conjugate"

const pcgStream = 0x2545f4914f6cdd1d

// Engine draws p_i ~ Beta(alpha + Y_i, beta + K_i - Y_i) independently.
type Engine struct{}

// New creates the engine.
func New() *Engine { return &Engine{} }

// Name implements sampler.Engine.
func (e *Engine) Name() string { return Name }

// Check implements sampler.Engine.
func (e *Engine) Check(_ context.Context, m model.Model) error {
	if m != model.ConversionModel && m != model.RevenueModel {
		return fmt.Errorf("%w: %s: unknown model %q", model.ErrSampler, Name, m.Name)
	}
	return nil
}

// RunChain implements sampler.Engine. Warmup draws are generated and
// discarded so the retained stream depends on the warmup length the same
// way it does for the iterative engines.
func (e *Engine) RunChain(ctx context.Context, spec sampler.ChainSpec) (sampler.ChainResult, error) {
	p := spec.Payload
	src := rand.New(rand.NewPCG(spec.Seed, pcgStream))

	posts := make([]distuv.Beta, p.N)
	for i := range posts {
		alpha, beta := p.Prior(i)
		posts[i] = distuv.Beta{
			Alpha: alpha + float64(p.Y[i]),
			Beta:  beta + float64(p.K[i]-p.Y[i]),
			Src:   src,
		}
	}

	for t := 0; t < spec.Warmup; t++ {
		for i := range posts {
			posts[i].Rand()
		}
	}
	spec.Report("warmup", spec.Warmup, spec.Warmup)
	if err := ctx.Err(); err != nil {
		return sampler.ChainResult{}, err
	}

	chain := model.Chain{
		Values:  make([][]float64, p.N),
		LogProb: make([]float64, spec.Samples),
	}
	for i := range chain.Values {
		chain.Values[i] = make([]float64, spec.Samples)
	}
	for t := 0; t < spec.Samples; t++ {
		lp := 0.0
		for i := range posts {
			v := posts[i].Rand()
			chain.Values[i][t] = v
			lp += posts[i].LogProb(v)
		}
		chain.LogProb[t] = lp
	}
	spec.Report("sampling", spec.Samples, spec.Samples)

	chain.Stats.AcceptRate = 1
	return sampler.ChainResult{Params: spec.Model.LatentParams(p.N), Chain: chain}, nil
}
