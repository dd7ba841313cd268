// Package service runs the analysis pipeline and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/abbayes/internal/adapters/repository"
	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/adapters/sampler/metropolis"
	"github.com/okian/abbayes/internal/domain/aggregate"
	"github.com/okian/abbayes/internal/domain/diagnostics"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/domain/payload"
	"github.com/okian/abbayes/internal/domain/utility"
	"github.com/okian/abbayes/pkg/logger"
	"github.com/okian/abbayes/pkg/metrics"
)

// Pipeline stage names used in logs and metrics.
const (
	StageAggregate = "aggregate"
	StageAnnotate  = "annotate"
	StageBuild     = "build"
	StageSample    = "sample"
	StageSummarize = "summarize"
)

// Default payoff policy: list price for control, discounted price for
// treatment.
const (
	DefaultListPrice = 49.99
	DefaultDiscount  = 0.70
	defaultStoreSize = 256
)

// ErrBusy is returned when the concurrent analysis limit is reached.
var ErrBusy = errors.New("analysis limit reached")

// Request is the input of one pipeline run. Zero-valued Prior and Rules fall
// back to the service defaults.
type Request struct {
	Model   model.Model
	Records []model.Record
	Prior   *model.PriorSpec
	Rules   utility.Rules
}

// Service runs independent analyses and keeps the finished ones.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine     sampler.Engine
	invoker    *sampler.Invoker
	aggregator *aggregate.Aggregator
	reporter   *diagnostics.Reporter
	store      repository.Store

	// Configuration
	samplerOpts     []sampler.Option
	diagnosticsOpts []diagnostics.Option
	prior           model.PriorSpec
	rules           utility.Rules
	zeroTrials      aggregate.ZeroTrialPolicy
	storeCapacity   int
	maxConcurrent   int
	slots           chan struct{}

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service. The built-in metropolis engine is used unless
// WithEngine says otherwise.
func New(opts ...Option) *Service {
	s := &Service{
		engine:        metropolis.New(),
		prior:         model.UniformPrior(),
		zeroTrials:    aggregate.ZeroTrialReject,
		storeCapacity: defaultStoreSize,
		logger:        logger.Nop(),
	}
	rules, _ := utility.PricingRules(DefaultListPrice, DefaultDiscount)
	s.rules = rules

	for _, opt := range opts {
		opt(s)
	}
	if s.maxConcurrent > 0 {
		s.slots = make(chan struct{}, s.maxConcurrent)
	}

	s.invoker = sampler.NewInvoker(s.engine,
		append([]sampler.Option{sampler.WithLogger(s.logger.Named("sampler"))}, s.samplerOpts...)...)
	s.aggregator = aggregate.New(
		aggregate.WithZeroTrialPolicy(s.zeroTrials),
		aggregate.WithLogger(s.logger.Named("aggregate")),
	)
	s.reporter = diagnostics.New(
		append([]diagnostics.Option{diagnostics.WithLogger(s.logger.Named("diagnostics"))}, s.diagnosticsOpts...)...)
	return s
}

// Start creates the analysis store. Runs work without it, they are just
// not kept.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx, repository.WithCapacity(s.storeCapacity))
	}
	s.started = true
	rc := s.invoker.RunConfig()
	s.logger.Info(ctx, "analysis service started",
		logger.String("engine", rc.Engine),
		logger.Int("chains", rc.Chains),
		logger.Int("parallel_chains", rc.ParallelChains),
		logger.Int("store_capacity", s.storeCapacity),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	s.started = false
	s.logger.Info(context.Background(), "analysis service stopped")
}

// RunConfig reports the sampler settings.
func (s *Service) RunConfig() model.RunConfig {
	return s.invoker.RunConfig()
}

// Check runs the sampler precondition check for m.
func (s *Service) Check(ctx context.Context, m model.Model) error {
	return s.invoker.Check(ctx, m)
}

// Run executes one complete analysis. Errors found before sampling abort
// the run; convergence warnings and sampling issues are attached to the
// returned summary.
func (s *Service) Run(ctx context.Context, req Request) (*model.Analysis, error) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			metrics.RecordAnalysis(req.Model.Name, ErrorClass(ErrBusy))
			return nil, fmt.Errorf("%w: %d analyses already running", ErrBusy, s.maxConcurrent)
		}
	}
	metrics.AnalysisStarted()
	defer metrics.AnalysisFinished()

	a, err := s.run(ctx, req)
	if err != nil {
		metrics.RecordAnalysis(req.Model.Name, ErrorClass(err))
		s.logger.Error(ctx, "analysis failed",
			logger.String("model", req.Model.Name),
			logger.String("class", ErrorClass(err)),
			logger.Error(err),
		)
		return nil, err
	}

	outcome := "ok"
	if !a.Summary.Healthy() {
		outcome = "warning"
	}
	metrics.RecordAnalysis(a.Model.Name, outcome)
	for _, w := range a.Summary.Warnings {
		metrics.RecordConvergenceWarning(string(w.Reason))
	}

	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store != nil {
		if err := store.Save(ctx, a); err != nil {
			s.logger.Warn(ctx, "analysis not stored", logger.String("id", a.ID), logger.Error(err))
		}
	}

	s.logger.Info(ctx, "analysis finished",
		logger.String("id", a.ID),
		logger.String("model", a.Model.Name),
		logger.String("outcome", outcome),
		logger.Bool("healthy", a.Summary.Healthy()),
		logger.Int("warnings", len(a.Summary.Warnings)),
		logger.Int("sampling_issues", len(a.Summary.Issues)),
		logger.Duration("elapsed", a.Elapsed),
	)
	return a, nil
}

func (s *Service) run(ctx context.Context, req Request) (*model.Analysis, error) {
	m := req.Model
	if m != model.ConversionModel && m != model.RevenueModel {
		return nil, fmt.Errorf("%w: unknown model %q", model.ErrConfig, m.Name)
	}
	prior := s.prior
	if req.Prior != nil {
		prior = *req.Prior
	}
	if err := prior.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}

	a := &model.Analysis{
		ID:        uuid.NewString(),
		Model:     m,
		Prior:     prior,
		Run:       s.invoker.RunConfig(),
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.With(logger.String("analysis_id", a.ID), logger.String("model", m.Name))

	arms, err := stage(ctx, log, StageAggregate, func() ([]model.ArmAggregate, error) {
		return s.aggregator.Aggregate(ctx, req.Records)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordArms(len(arms))

	if m.Revenue {
		rules := s.rules
		if len(req.Rules) > 0 {
			rules = req.Rules
		}
		arms, err = stage(ctx, log, StageAnnotate, func() ([]model.ArmAggregate, error) {
			return utility.Annotate(arms, rules)
		})
		if err != nil {
			return nil, err
		}
	}
	a.Arms = arms

	p, err := stage(ctx, log, StageBuild, func() (model.Payload, error) {
		return payload.Build(arms, prior, m)
	})
	if err != nil {
		return nil, err
	}

	draws, err := stage(ctx, log, StageSample, func() (model.Draws, error) {
		return s.invoker.Sample(ctx, m, &p)
	})
	if err != nil {
		return nil, err
	}

	a.Summary, err = stage(ctx, log, StageSummarize, func() (model.Summary, error) {
		return s.reporter.Summarize(ctx, &draws, m.TrackedParams(p.N))
	})
	if err != nil {
		return nil, err
	}
	a.Elapsed = time.Since(a.StartedAt)
	return a, nil
}

// stage times one pipeline step.
func stage[T any](ctx context.Context, log logger.Logger, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	elapsed := time.Since(start)
	metrics.RecordStageDuration(name, elapsed.Seconds())
	if err != nil {
		return out, err
	}
	log.Debug(ctx, "stage finished", logger.String("stage", name), logger.Duration("elapsed", elapsed))
	return out, nil
}

// Get returns a stored analysis.
func (s *Service) Get(ctx context.Context, id string) (*model.Analysis, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return store.Get(ctx, id)
}

// List returns up to limit stored analyses, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]repository.Entry, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return nil, nil
	}
	return store.List(ctx, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rc := s.invoker.RunConfig()
	stats := map[string]any{
		"started":        s.started,
		"engine":         rc.Engine,
		"chains":         rc.Chains,
		"parallelChains": rc.ParallelChains,
		"warmup":         rc.Warmup,
		"samples":        rc.Samples,
	}
	if s.slots != nil {
		stats["runningAnalyses"] = len(s.slots)
		stats["maxConcurrent"] = s.maxConcurrent
	}
	if s.started {
		stats["storedAnalyses"] = s.store.Count(context.Background())
	}
	return stats
}

// ErrorClass names the error kind for metrics and API responses.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, model.ErrSchema):
		return "schema"
	case errors.Is(err, model.ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, model.ErrConfig):
		return "config"
	case errors.Is(err, model.ErrPayload):
		return "payload"
	case errors.Is(err, model.ErrSampler):
		return "sampler"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
