// Package diagnostics turns posterior draws into summary rows and
// convergence warnings.
package diagnostics

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Reporter computes posterior summaries.
type Reporter struct {
	mass          float64
	rhatThreshold float64
	minESS        float64
	logger        logger.Logger
}

// New creates a Reporter with the default thresholds.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		mass:          DefaultCredibleMass,
		rhatThreshold: DefaultRHatThreshold,
		minESS:        DefaultMinESS,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CredibleMass returns the configured interval mass.
func (r *Reporter) CredibleMass() float64 { return r.mass }

// Summarize computes one row per parameter, in the order given. A parameter
// missing from the draws is an error; convergence problems are returned as
// warnings on the summary, as are the sampling issues of the draws.
func (r *Reporter) Summarize(ctx context.Context, d *model.Draws, params []string) (model.Summary, error) {
	s := model.Summary{
		CredibleMass: r.mass,
		Rows:         make([]model.SummaryRow, 0, len(params)),
		Issues:       append([]model.SamplingIssue(nil), d.Issues...),
	}
	if len(d.Chains) == 0 {
		return model.Summary{}, fmt.Errorf("%w: no chains to summarise", model.ErrSampler)
	}

	for _, name := range params {
		chains, err := d.Param(name)
		if err != nil {
			return model.Summary{}, fmt.Errorf("%w: %w", model.ErrSampler, err)
		}
		row := r.row(name, chains)
		s.Rows = append(s.Rows, row)
		for _, w := range r.check(row) {
			r.logger.Warn(ctx, "convergence warning",
				logger.String("param", w.Param),
				logger.String("reason", string(w.Reason)),
				logger.Float64("value", w.Value),
				logger.Float64("threshold", w.Threshold),
			)
			s.Warnings = append(s.Warnings, w)
		}
	}
	r.logger.Debug(ctx, "summary computed",
		logger.Strings("params", params),
		logger.Int("draws", d.TotalDraws()),
		logger.Float64("credible_mass", r.mass),
	)
	return s, nil
}

func (r *Reporter) row(name string, chains [][]float64) model.SummaryRow {
	all := pool(chains)
	sorted := slices.Clone(all)
	slices.Sort(sorted)

	tail := (1 - r.mass) / 2
	row := model.SummaryRow{
		Param:   name,
		Mean:    stat.Mean(all, nil),
		SD:      stat.StdDev(all, nil),
		Lower:   stat.Quantile(tail, stat.LinInterp, sorted, nil),
		Upper:   stat.Quantile(1-tail, stat.LinInterp, sorted, nil),
		RHat:    RHat(chains),
		ESSBulk: ESSBulk(chains),
		ESSTail: ESSTail(chains),
	}
	row.MCSEMean = row.SD / math.Sqrt(ESSMean(chains))
	return row
}

// check flags a row. A non-finite row gets a single warning.
func (r *Reporter) check(row model.SummaryRow) []model.ConvergenceWarning {
	for _, v := range []float64{row.Mean, row.SD, row.RHat, row.ESSBulk} {
		if !finite(v) {
			return []model.ConvergenceWarning{{
				Param:     row.Param,
				Reason:    model.ReasonNonFinite,
				Value:     v,
				Threshold: r.rhatThreshold,
			}}
		}
	}
	var out []model.ConvergenceWarning
	if row.RHat > r.rhatThreshold {
		out = append(out, model.ConvergenceWarning{
			Param: row.Param, Reason: model.ReasonRHat, Value: row.RHat, Threshold: r.rhatThreshold,
		})
	}
	if r.minESS > 0 && row.ESSBulk < r.minESS {
		out = append(out, model.ConvergenceWarning{
			Param: row.Param, Reason: model.ReasonLowESS, Value: row.ESSBulk, Threshold: r.minESS,
		})
	}
	return out
}

func pool(chains [][]float64) []float64 {
	n := 0
	for _, c := range chains {
		n += len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range chains {
		out = append(out, c...)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
