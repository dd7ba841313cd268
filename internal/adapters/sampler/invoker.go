package sampler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
	"github.com/okian/abbayes/pkg/metrics"
)

// progressSteps is how many progress reports a chain emits per phase.
const progressSteps = 10

// Invoker runs an Engine over a pool of chain workers.
type Invoker struct {
	engine       Engine
	chains       int
	parallel     int
	warmup       int
	samples      int
	seed         uint64
	showProgress bool
	logger       logger.Logger
}

// NewInvoker creates an invoker with the default run configuration.
func NewInvoker(engine Engine, opts ...Option) *Invoker {
	i := &Invoker{
		engine:       engine,
		chains:       DefaultChains,
		parallel:     DefaultParallelChains,
		warmup:       DefaultWarmup,
		samples:      DefaultSamples,
		seed:         DefaultSeed,
		showProgress: true,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.parallel > i.chains {
		i.parallel = i.chains
	}
	return i
}

// RunConfig reports the effective settings.
func (i *Invoker) RunConfig() model.RunConfig {
	return model.RunConfig{
		Engine:         i.engine.Name(),
		Chains:         i.chains,
		ParallelChains: i.parallel,
		Warmup:         i.warmup,
		Samples:        i.samples,
		Seed:           i.seed,
	}
}

// Check runs the engine precondition check for m.
func (i *Invoker) Check(ctx context.Context, m model.Model) error {
	if err := i.engine.Check(ctx, m); err != nil {
		if errors.Is(err, model.ErrSampler) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", model.ErrSampler, i.engine.Name(), err)
	}
	return nil
}

// Sample validates the payload, runs every chain and blocks until all of them
// complete. Any chain failure aborts the run with model.ErrSampler; sampling
// quality problems are returned in Draws.Issues.
func (i *Invoker) Sample(ctx context.Context, m model.Model, p *model.Payload) (model.Draws, error) {
	if err := p.Validate(m); err != nil {
		return model.Draws{}, err
	}
	if err := i.Check(ctx, m); err != nil {
		return model.Draws{}, err
	}

	pool := newPool(i, m, p)
	results, err := pool.run(ctx)
	if err != nil {
		return model.Draws{}, err
	}

	draws, err := collect(m, p.N, results)
	if err != nil {
		return model.Draws{}, err
	}
	if m.Revenue {
		applyExpectedUtility(&draws, p)
	}
	for _, issue := range draws.Issues {
		metrics.RecordSamplingIssue(string(issue.Kind))
		i.logger.Warn(ctx, "sampling issue",
			logger.Int("chain", issue.Chain),
			logger.String("kind", string(issue.Kind)),
			logger.Int("count", issue.Count),
			logger.String("detail", issue.Message),
		)
	}
	return draws, nil
}

// collect merges per-chain results into Draws. All chains must report the
// same parameters in the same order.
func collect(m model.Model, n int, results []ChainResult) (model.Draws, error) {
	d := model.Draws{Model: m, Chains: make([]model.Chain, len(results))}
	for c, r := range results {
		if c == 0 {
			d.Params = append([]string(nil), r.Params...)
		} else if !slices.Equal(d.Params, r.Params) {
			return model.Draws{}, fmt.Errorf("%w: chain %d reports parameters %v, chain 0 reports %v",
				model.ErrSampler, c, r.Params, d.Params)
		}
		if len(r.Chain.Values) != len(r.Params) {
			return model.Draws{}, fmt.Errorf("%w: chain %d has %d value rows for %d parameters",
				model.ErrSampler, c, len(r.Chain.Values), len(r.Params))
		}
		for _, row := range r.Chain.Values {
			if len(row) != r.Chain.Len() {
				return model.Draws{}, fmt.Errorf("%w: chain %d has ragged draws", model.ErrSampler, c)
			}
		}
		d.Chains[c] = r.Chain
		d.Issues = append(d.Issues, r.Issues...)
	}
	for _, want := range m.LatentParams(n) {
		if d.Index(want) < 0 {
			return model.Draws{}, fmt.Errorf("%w: engine did not report %s", model.ErrSampler, want)
		}
	}
	return d, nil
}

// applyExpectedUtility adds expected_utility[i] = p[i] * tau[i] for every draw
// unless the engine already produced it.
func applyExpectedUtility(d *model.Draws, p *model.Payload) {
	if d.Index(model.ParamName(model.ParamExpectedUtility, 0)) >= 0 {
		return
	}
	for a := 0; a < p.N; a++ {
		src := d.Index(model.ParamName(model.ParamP, a))
		d.Params = append(d.Params, model.ParamName(model.ParamExpectedUtility, a))
		for c := range d.Chains {
			ps := d.Chains[c].Values[src]
			eu := make([]float64, len(ps))
			for t, v := range ps {
				eu[t] = v * p.Tau[a]
			}
			d.Chains[c].Values = append(d.Chains[c].Values, eu)
		}
	}
}

// pool runs chain jobs on a fixed number of named workers. Chains share
// nothing but the read-only payload; each writes only its own result slot.
type pool struct {
	inv     *Invoker
	model   model.Model
	payload *model.Payload
	logger  logger.Logger
}

func newPool(inv *Invoker, m model.Model, p *model.Payload) *pool {
	return &pool{inv: inv, model: m, payload: p, logger: inv.logger.Named("chain-pool")}
}

func (p *pool) run(ctx context.Context) ([]ChainResult, error) {
	results := make([]ChainResult, p.inv.chains)
	jobs := make(chan int, p.inv.chains)
	for c := 0; c < p.inv.chains; c++ {
		jobs <- c
	}
	close(jobs)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.inv.parallel; w++ {
		name := "chain-worker-" + strconv.Itoa(w)
		g.Go(func() error {
			for c := range jobs {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("%w: chain %d not started: %w", model.ErrSampler, c, err)
				}
				res, err := p.runChain(gctx, name, c)
				if err != nil {
					return err
				}
				results[c] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info(ctx, "all chains finished",
		logger.String("engine", p.inv.engine.Name()),
		logger.Int("chains", p.inv.chains),
		logger.Int("parallel", p.inv.parallel),
		logger.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (p *pool) runChain(ctx context.Context, worker string, c int) (ChainResult, error) {
	log := p.logger.Named(worker)
	report := log.Debug
	if p.inv.showProgress {
		report = log.Info
	}

	spec := ChainSpec{
		Model:   p.model,
		Payload: p.payload,
		Chain:   c,
		Seed:    ChainSeed(p.inv.seed, c),
		Warmup:  p.inv.warmup,
		Samples: p.inv.samples,
		Progress: func(stage string, done, total int) {
			if total <= 0 || (done%max(total/progressSteps, 1) != 0 && done != total) {
				return
			}
			report(ctx, "chain progress",
				logger.Int("chain", c),
				logger.String("stage", stage),
				logger.Int("done", done),
				logger.Int("total", total),
			)
		},
	}

	metrics.ChainWorkerBusy()
	defer metrics.ChainWorkerIdle()

	report(ctx, "chain started", logger.Int("chain", c), logger.Uint64("seed", spec.Seed))
	start := time.Now()
	res, err := p.inv.engine.RunChain(ctx, spec)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordChain(p.inv.engine.Name(), "error", elapsed.Seconds())
		log.Error(ctx, "chain failed", logger.Int("chain", c), logger.Error(err))
		if errors.Is(err, model.ErrSampler) {
			return ChainResult{}, err
		}
		return ChainResult{}, fmt.Errorf("%w: chain %d: %w", model.ErrSampler, c, err)
	}
	metrics.RecordChain(p.inv.engine.Name(), "ok", elapsed.Seconds())

	res.Chain.ID = c
	res.Chain.Stats.Seed = spec.Seed
	res.Chain.Stats.Warmup = spec.Warmup
	res.Chain.Stats.Samples = spec.Samples
	res.Chain.Stats.Elapsed = elapsed
	for k := range res.Issues {
		res.Issues[k].Chain = c
	}
	report(ctx, "chain finished",
		logger.Int("chain", c),
		logger.Duration("elapsed", elapsed),
		logger.Float64("accept_rate", res.Chain.Stats.AcceptRate),
	)
	return res, nil
}
