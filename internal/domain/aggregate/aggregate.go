// Package aggregate reduces raw observation records to per-arm sufficient
// statistics.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Aggregator groups records by (treat, arm_id) and sums their counts.
type Aggregator struct {
	validate   *validator.Validate
	zeroTrials ZeroTrialPolicy
	logger     logger.Logger
}

// New creates an Aggregator. The zero-trial policy defaults to reject.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		zeroTrials: ZeroTrialReject,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observation validates one record and coerces its counts to integers.
// Missing or mistyped fields wrap model.ErrSchema.
func (a *Aggregator) Observation(r model.Record) (model.Observation, error) {
	if err := a.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return model.Observation{}, fmt.Errorf("%w: field %s failed %q", model.ErrSchema, f.Field(), f.Tag())
		}
		return model.Observation{}, fmt.Errorf("%w: %w", model.ErrSchema, err)
	}
	conv, err := wholeCount("conversions", *r.Conversions)
	if err != nil {
		return model.Observation{}, err
	}
	trials, err := wholeCount("trials", *r.Trials)
	if err != nil {
		return model.Observation{}, err
	}
	return model.Observation{
		Treat:       *r.Treat,
		ArmID:       string(r.ArmID),
		Conversions: conv,
		Trials:      trials,
	}, nil
}

// wholeCount rejects fractional and non-finite values. Sign is checked later
// because a negative count is an integrity problem, not a schema one.
func wholeCount(field string, v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %v", model.ErrSchema, field, v)
	}
	if v > math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("%w: %s out of range: %v", model.ErrDataIntegrity, field, v)
	}
	return int64(v), nil
}

// Check reports logically impossible counts.
func Check(o model.Observation) error {
	switch {
	case o.Trials < 0:
		return fmt.Errorf("%w: arm %s has negative trials %d", model.ErrDataIntegrity, o.ArmID, o.Trials)
	case o.Conversions < 0:
		return fmt.Errorf("%w: arm %s has negative conversions %d", model.ErrDataIntegrity, o.ArmID, o.Conversions)
	case o.Conversions > o.Trials:
		return fmt.Errorf("%w: arm %s has %d conversions out of %d trials", model.ErrDataIntegrity, o.ArmID, o.Conversions, o.Trials)
	}
	return nil
}

// Aggregate validates every record, groups by (treat, arm_id) and returns the
// aggregates ordered by arm id, then treatment flag.
func (a *Aggregator) Aggregate(ctx context.Context, records []model.Record) ([]model.ArmAggregate, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no observations", model.ErrDataIntegrity)
	}

	groups := make(map[model.ArmKey]*model.ArmAggregate)
	for i, r := range records {
		o, err := a.Observation(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := Check(o); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		key := model.ArmKey{Treat: o.Treat, ArmID: o.ArmID}
		g, ok := groups[key]
		if !ok {
			g = &model.ArmAggregate{Key: key}
			groups[key] = g
		}
		if g.Trials, err = addCount(g.Trials, o.Trials); err != nil {
			return nil, fmt.Errorf("%w: trials of %s", err, key)
		}
		if g.Conversions, err = addCount(g.Conversions, o.Conversions); err != nil {
			return nil, fmt.Errorf("%w: conversions of %s", err, key)
		}
	}

	out := make([]model.ArmAggregate, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key, out[j].Key) })

	seen := make(map[string]int, len(out))
	for _, g := range out {
		if prev, dup := seen[g.Key.ArmID]; dup {
			return nil, fmt.Errorf("%w: arm %s appears under treat=%d and treat=%d",
				model.ErrDataIntegrity, g.Key.ArmID, prev, g.Key.Treat)
		}
		seen[g.Key.ArmID] = g.Key.Treat
	}

	kept := out[:0]
	for _, g := range out {
		if g.Trials > 0 {
			kept = append(kept, g)
			continue
		}
		if a.zeroTrials == ZeroTrialReject {
			return nil, fmt.Errorf("%w: %s has zero trials", model.ErrDataIntegrity, g.Key)
		}
		a.logger.Warn(ctx, "excluding arm without trials",
			logger.String("arm_id", g.Key.ArmID),
			logger.Int("treat", g.Key.Treat),
		)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: every arm has zero trials", model.ErrDataIntegrity)
	}

	var trials int64
	for _, g := range kept {
		trials += g.Trials
	}
	a.logger.Debug(ctx, "aggregated observations",
		logger.Int("rows", len(records)),
		logger.Int("arms", len(kept)),
		logger.Int64("trials", trials),
	)
	return kept, nil
}

func addCount(acc, v int64) (int64, error) {
	if v > 0 && acc > math.MaxInt64-v {
		return 0, fmt.Errorf("%w: count overflow", model.ErrDataIntegrity)
	}
	return acc + v, nil
}

// lessKey orders numerically when both arm ids are integers, lexically otherwise.
func lessKey(a, b model.ArmKey) bool {
	if a.ArmID != b.ArmID {
		ai, aerr := strconv.ParseInt(a.ArmID, 10, 64)
		bi, berr := strconv.ParseInt(b.ArmID, 10, 64)
		if aerr == nil && berr == nil && ai != bi {
			return ai < bi
		}
		return a.ArmID < b.ArmID
	}
	return a.Treat < b.Treat
}
