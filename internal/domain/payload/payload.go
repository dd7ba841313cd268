// Package payload turns ordered arm aggregates into the data payload a
// sampler engine consumes.
package payload

import (
	"fmt"

	"github.com/okian/abbayes/internal/domain/model"
)

// Build assembles the payload for m. Every vector is filled from the same arm
// in a single pass so index i always refers to arms[i]. The result is
// validated before it is returned; failures wrap model.ErrPayload.
func Build(arms []model.ArmAggregate, prior model.PriorSpec, m model.Model) (model.Payload, error) {
	if len(arms) == 0 {
		return model.Payload{}, fmt.Errorf("%w: no arms", model.ErrPayload)
	}
	if err := prior.Validate(); err != nil {
		return model.Payload{}, fmt.Errorf("%w: %w", model.ErrPayload, err)
	}

	n := len(arms)
	p := model.Payload{
		N:          n,
		Y:          make([]int64, n),
		K:          make([]int64, n),
		AlphaPrior: append([]float64(nil), prior.Alpha...),
		BetaPrior:  append([]float64(nil), prior.Beta...),
		Group:      make([]int, n),
		Arms:       make([]model.ArmKey, n),
	}
	if m.Revenue {
		p.Tau = make([]float64, n)
	}

	seen := make(map[string]struct{}, n)
	for i, a := range arms {
		if _, dup := seen[a.Key.ArmID]; dup {
			return model.Payload{}, fmt.Errorf("%w: arm %s repeated", model.ErrPayload, a.Key.ArmID)
		}
		seen[a.Key.ArmID] = struct{}{}

		p.Y[i] = a.Conversions
		p.K[i] = a.Trials
		p.Group[i] = a.Key.Treat + 1
		p.Arms[i] = a.Key
		if m.Revenue {
			if a.Utility == nil {
				return model.Payload{}, fmt.Errorf("%w: %s has no utility for %s", model.ErrPayload, a.Key, m.Name)
			}
			p.Tau[i] = *a.Utility
		}
	}

	if err := p.Validate(m); err != nil {
		return model.Payload{}, err
	}
	return p, nil
}
