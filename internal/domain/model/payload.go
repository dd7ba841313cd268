package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// PriorLen is the number of Beta hyperparameter pairs: one per treatment flag.
const PriorLen = 2

// PriorSpec holds Beta(alpha, beta) hyperparameters indexed by treatment flag.
type PriorSpec struct {
	Alpha []float64 `json:"alpha" koanf:"alpha"`
	Beta  []float64 `json:"beta" koanf:"beta"`
}

// UniformPrior is Beta(1, 1) for both arms.
func UniformPrior() PriorSpec {
	return PriorSpec{Alpha: []float64{1, 1}, Beta: []float64{1, 1}}
}

// Validate checks lengths and positivity.
func (p PriorSpec) Validate() error {
	if len(p.Alpha) != PriorLen || len(p.Beta) != PriorLen {
		return fmt.Errorf("prior vectors must have length %d, got alpha=%d beta=%d", PriorLen, len(p.Alpha), len(p.Beta))
	}
	for i := 0; i < PriorLen; i++ {
		if !positiveFinite(p.Alpha[i]) || !positiveFinite(p.Beta[i]) {
			return fmt.Errorf("prior %d must be positive and finite, got alpha=%v beta=%v", i, p.Alpha[i], p.Beta[i])
		}
	}
	return nil
}

// Model identifies which compiled probabilistic model runs.
type Model struct {
	Name    string `json:"name"`
	Revenue bool   `json:"revenue"`
}

// Known models.
var (
	ConversionModel = Model{Name: "binomial_conversions"}
	RevenueModel    = Model{Name: "binomial_conversions_revenue", Revenue: true}
)

// ModelByName resolves a model from its full name or its short alias
// (conversions, revenue).
func ModelByName(name string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ConversionModel.Name, "conversions", "conversion":
		return ConversionModel, nil
	case RevenueModel.Name, "revenue":
		return RevenueModel, nil
	}
	return Model{}, fmt.Errorf("%w: unknown model %q", ErrConfig, name)
}

// Parameter base names.
const (
	ParamP               = "p"
	ParamExpectedUtility = "expected_utility"
)

// ParamName renders the 1-based indexed name of a vector element, e.g. p[1].
func ParamName(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i+1)
}

// LatentParams lists the sampled parameters for n arms.
func (m Model) LatentParams(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = ParamName(ParamP, i)
	}
	return out
}

// TrackedParams lists every parameter summarised for n arms.
func (m Model) TrackedParams(n int) []string {
	out := m.LatentParams(n)
	if m.Revenue {
		for i := 0; i < n; i++ {
			out = append(out, ParamName(ParamExpectedUtility, i))
		}
	}
	return out
}

// Payload is the data contract handed to a sampler engine. Index i refers to
// the same arm in every vector.
type Payload struct {
	N          int       `json:"N"`
	Y          []int64   `json:"Y"`
	K          []int64   `json:"K"`
	AlphaPrior []float64 `json:"alpha_prior"`
	BetaPrior  []float64 `json:"beta_prior"`
	Tau        []float64 `json:"tau,omitempty"`
	// Group is the 1-based prior index of each arm (treatment flag + 1).
	Group []int    `json:"group"`
	Arms  []ArmKey `json:"-"`
}

// Validate re-checks every payload invariant. Errors wrap ErrPayload.
func (p *Payload) Validate(m Model) error {
	if p.N <= 0 {
		return fmt.Errorf("%w: N must be positive, got %d", ErrPayload, p.N)
	}
	if len(p.Y) != p.N || len(p.K) != p.N || len(p.Group) != p.N || len(p.Arms) != p.N {
		return fmt.Errorf("%w: dimension mismatch: N=%d len(Y)=%d len(K)=%d len(group)=%d len(arms)=%d",
			ErrPayload, p.N, len(p.Y), len(p.K), len(p.Group), len(p.Arms))
	}
	if m.Revenue && len(p.Tau) != p.N {
		return fmt.Errorf("%w: revenue model needs len(tau)=N, got %d for N=%d", ErrPayload, len(p.Tau), p.N)
	}
	if !m.Revenue && len(p.Tau) != 0 {
		return fmt.Errorf("%w: tau supplied to %s", ErrPayload, m.Name)
	}
	prior := PriorSpec{Alpha: p.AlphaPrior, Beta: p.BetaPrior}
	if err := prior.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPayload, err)
	}
	for i := 0; i < p.N; i++ {
		if p.K[i] < 0 || p.Y[i] < 0 || p.Y[i] > p.K[i] {
			return fmt.Errorf("%w: %s has Y=%d K=%d", ErrPayload, p.Arms[i], p.Y[i], p.K[i])
		}
		if p.Group[i] < 1 || p.Group[i] > PriorLen {
			return fmt.Errorf("%w: %s has prior group %d", ErrPayload, p.Arms[i], p.Group[i])
		}
		if p.Arms[i].Treat+1 != p.Group[i] {
			return fmt.Errorf("%w: %s misaligned with prior group %d", ErrPayload, p.Arms[i], p.Group[i])
		}
		if m.Revenue && (math.IsNaN(p.Tau[i]) || math.IsInf(p.Tau[i], 0)) {
			return fmt.Errorf("%w: %s has non-finite tau %v", ErrPayload, p.Arms[i], p.Tau[i])
		}
	}
	return nil
}

// Prior returns the Beta hyperparameters of arm i.
func (p *Payload) Prior(i int) (alpha, beta float64) {
	g := p.Group[i] - 1
	return p.AlphaPrior[g], p.BetaPrior[g]
}

// JSON renders the CmdStan JSON data file.
func (p *Payload) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
