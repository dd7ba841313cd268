// Package utility attaches a fixed payoff per conversion to each arm.
package utility

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/abbayes/internal/domain/model"
)

// Rules maps a treatment flag to the payoff of one conversion.
type Rules map[int]float64

// PricingRules is the list-price policy: control earns the list price,
// treatment earns the list price reduced by the discount fraction.
func PricingRules(listPrice, discount float64) (Rules, error) {
	if !(listPrice >= 0) || math.IsInf(listPrice, 0) {
		return nil, fmt.Errorf("%w: list price must be finite and non-negative, got %v", model.ErrConfig, listPrice)
	}
	if !(discount >= 0 && discount < 1) {
		return nil, fmt.Errorf("%w: discount must be in [0, 1), got %v", model.ErrConfig, discount)
	}
	return Rules{
		0: listPrice,
		1: listPrice * (1 - discount),
	}, nil
}

// Validate checks every payoff is finite and non-negative.
func (r Rules) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: no payoff rules", model.ErrConfig)
	}
	for flag, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: payoff for treat=%d must be finite and non-negative, got %v", model.ErrConfig, flag, v)
		}
	}
	return nil
}

func (r Rules) String() string {
	flags := make([]int, 0, len(r))
	for f := range r {
		flags = append(flags, f)
	}
	sort.Ints(flags)
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = fmt.Sprintf("treat=%d:%.6g", f, r[f])
	}
	return strings.Join(parts, ",")
}

// Annotate returns a copy of arms with Utility set from the rules. Order is
// preserved.
func Annotate(arms []model.ArmAggregate, rules Rules) ([]model.ArmAggregate, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	out := make([]model.ArmAggregate, len(arms))
	for i, a := range arms {
		u, ok := rules[a.Key.Treat]
		if !ok {
			return nil, fmt.Errorf("%w: no payoff rule for treat=%d (%s)", model.ErrConfig, a.Key.Treat, a.Key)
		}
		out[i] = a.WithUtility(u)
	}
	return out, nil
}
