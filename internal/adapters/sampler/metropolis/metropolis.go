// Package metropolis is the built-in engine: an adaptive random-walk
// Metropolis sampler for independent beta-binomial arms.
package metropolis

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/domain/model"
)

// Name is the engine name used in configuration.
const Name = "metropolis"

const (
	defaultTargetAccept = 0.44
	defaultMinAccept    = 0.1
	defaultMaxAccept    = 0.9
	// pcgStream is the second PCG word; the chain seed is the first.
	pcgStream = 0x9e3779b97f4a7c15
	// ctxCheckEvery is how many iterations run between context checks.
	ctxCheckEvery = 256
)

// Engine samples logit(p_i) for each arm with a component-wise random walk.
type Engine struct {
	targetAccept float64
	minAccept    float64
	maxAccept    float64
}

// Option configures the Engine.
type Option func(*Engine)

// WithTargetAccept sets the warmup acceptance target per arm.
func WithTargetAccept(rate float64) Option {
	return func(e *Engine) {
		if rate > 0 && rate < 1 {
			e.targetAccept = rate
		}
	}
}

// WithAcceptBounds sets the acceptance range outside which a chain reports
// a sampling issue.
func WithAcceptBounds(lo, hi float64) Option {
	return func(e *Engine) {
		if lo >= 0 && hi <= 1 && lo < hi {
			e.minAccept, e.maxAccept = lo, hi
		}
	}
}

// New creates the engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		targetAccept: defaultTargetAccept,
		minAccept:    defaultMinAccept,
		maxAccept:    defaultMaxAccept,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements sampler.Engine.
func (e *Engine) Name() string { return Name }

// Check implements sampler.Engine. Both models share the same target, so
// there is nothing to compile.
func (e *Engine) Check(_ context.Context, m model.Model) error {
	if m != model.ConversionModel && m != model.RevenueModel {
		return fmt.Errorf("%w: %s: unknown model %q", model.ErrSampler, Name, m.Name)
	}
	return nil
}

// arm is the target of one conversion probability on the logit scale.
type arm struct {
	prior distuv.Beta
	lik   distuv.Binomial
	y     float64
	step  float64
}

// logTarget is log Beta(p) + log Binomial(y | k, p) + log |dp/dz|.
func (a *arm) logTarget(z float64) float64 {
	p := sigmoid(z)
	if p <= 0 || p >= 1 {
		return math.Inf(-1)
	}
	a.lik.P = p
	return a.prior.LogProb(p) + a.lik.LogProb(a.y) + math.Log(p) + math.Log1p(-p)
}

// RunChain implements sampler.Engine.
func (e *Engine) RunChain(ctx context.Context, spec sampler.ChainSpec) (sampler.ChainResult, error) {
	p := spec.Payload
	rng := rand.New(rand.NewPCG(spec.Seed, pcgStream))

	arms := make([]arm, p.N)
	z := make([]float64, p.N)
	lp := make([]float64, p.N)
	for i := range arms {
		alpha, beta := p.Prior(i)
		y, k := float64(p.Y[i]), float64(p.K[i])
		arms[i] = arm{
			prior: distuv.Beta{Alpha: alpha, Beta: beta},
			lik:   distuv.Binomial{N: k, P: 0.5},
			y:     y,
			step:  initialStep(alpha+y, beta+k-y),
		}
		// Stan-style initialisation: uniform(-2, 2) on the unconstrained scale.
		z[i] = rng.Float64()*4 - 2
		lp[i] = arms[i].logTarget(z[i])
	}

	accepted := make([]int, p.N)
	iterate := func(adapt bool, t int) {
		for i := range arms {
			a := &arms[i]
			prop := z[i] + a.step*rng.NormFloat64()
			plp := a.logTarget(prop)
			ok := math.Log(rng.Float64()) < plp-lp[i]
			if ok {
				z[i], lp[i] = prop, plp
				if !adapt {
					accepted[i]++
				}
			}
			if adapt {
				hit := 0.0
				if ok {
					hit = 1
				}
				a.step *= math.Exp((hit - e.targetAccept) / math.Pow(float64(t+1), 0.6))
			}
		}
	}

	for t := 0; t < spec.Warmup; t++ {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return sampler.ChainResult{}, err
			}
		}
		iterate(true, t)
		spec.Report("warmup", t+1, spec.Warmup)
	}

	chain := model.Chain{
		Values:  make([][]float64, p.N),
		LogProb: make([]float64, spec.Samples),
	}
	for i := range chain.Values {
		chain.Values[i] = make([]float64, spec.Samples)
	}
	for t := 0; t < spec.Samples; t++ {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return sampler.ChainResult{}, err
			}
		}
		iterate(false, t)
		total := 0.0
		for i := range arms {
			chain.Values[i][t] = sigmoid(z[i])
			total += lp[i]
		}
		chain.LogProb[t] = total
		spec.Report("sampling", t+1, spec.Samples)
	}

	res := sampler.ChainResult{Params: spec.Model.LatentParams(p.N), Chain: chain}
	if spec.Samples > 0 {
		sum := 0
		for i, n := range accepted {
			rate := float64(n) / float64(spec.Samples)
			sum += n
			if rate < e.minAccept || rate > e.maxAccept {
				res.Issues = append(res.Issues, model.SamplingIssue{
					Kind:    model.IssueAcceptance,
					Count:   n,
					Message: fmt.Sprintf("%s acceptance rate %.3f outside [%.2f, %.2f]", p.Arms[i], rate, e.minAccept, e.maxAccept),
				})
			}
		}
		res.Chain.Stats.AcceptRate = float64(sum) / float64(spec.Samples*p.N)
	}
	return res, nil
}

// initialStep scales the proposal to the approximate posterior sd of
// logit(p) for a Beta(a, b) posterior.
func initialStep(a, b float64) float64 {
	return 2.4 * math.Sqrt((a+b)/(a*b))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
