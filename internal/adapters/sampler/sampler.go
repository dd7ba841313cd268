// Package sampler drives a posterior sampling engine over a pool of
// independent chains.
package sampler

import (
	"context"

	"github.com/okian/abbayes/internal/domain/model"
)

// Default run configuration.
const (
	DefaultChains         = 4
	DefaultParallelChains = 4
	DefaultWarmup         = 2000
	DefaultSamples        = 2000
	DefaultSeed           = 12345
)

// ProgressFunc receives sampling progress of one chain.
type ProgressFunc func(stage string, done, total int)

// ChainSpec is everything one chain needs. Payload is shared between chains
// and must be treated as read-only.
type ChainSpec struct {
	Model    model.Model
	Payload  *model.Payload
	Chain    int
	Seed     uint64
	Warmup   int
	Samples  int
	Progress ProgressFunc
}

// Report calls Progress when set.
func (s ChainSpec) Report(stage string, done, total int) {
	if s.Progress != nil {
		s.Progress(stage, done, total)
	}
}

// ChainResult is the output of one chain. Params names the rows of
// Chain.Values.
type ChainResult struct {
	Params []string
	Chain  model.Chain
	Issues []model.SamplingIssue
}

// Engine produces posterior draws for one chain at a time.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	// Check verifies the engine can run m, e.g. that a compiled model
	// artifact exists. Failures wrap model.ErrSampler.
	Check(ctx context.Context, m model.Model) error
	// RunChain runs warmup and sampling for one chain. It must not mutate
	// spec.Payload.
	RunChain(ctx context.Context, spec ChainSpec) (ChainResult, error)
}

// ChainSeed derives the seed of chain c from the run seed.
func ChainSeed(seed uint64, chain int) uint64 {
	return seed + uint64(chain)
}
