package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SummaryRow summarises the posterior of one parameter.
type SummaryRow struct {
	Param    string  `json:"param"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	MCSEMean float64 `json:"mcse_mean"`
	ESSBulk  float64 `json:"ess_bulk"`
	ESSTail  float64 `json:"ess_tail"`
	RHat     float64 `json:"r_hat"`
}

// MarshalJSON writes non-finite statistics as null.
func (r SummaryRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Param    string   `json:"param"`
		Mean     *float64 `json:"mean"`
		SD       *float64 `json:"sd"`
		Lower    *float64 `json:"lower"`
		Upper    *float64 `json:"upper"`
		MCSEMean *float64 `json:"mcse_mean"`
		ESSBulk  *float64 `json:"ess_bulk"`
		ESSTail  *float64 `json:"ess_tail"`
		RHat     *float64 `json:"r_hat"`
	}{
		r.Param, finiteOrNil(r.Mean), finiteOrNil(r.SD), finiteOrNil(r.Lower), finiteOrNil(r.Upper),
		finiteOrNil(r.MCSEMean), finiteOrNil(r.ESSBulk), finiteOrNil(r.ESSTail), finiteOrNil(r.RHat),
	})
}

// UnmarshalJSON reads null statistics back as NaN.
func (r *SummaryRow) UnmarshalJSON(b []byte) error {
	var raw struct {
		Param    string   `json:"param"`
		Mean     *float64 `json:"mean"`
		SD       *float64 `json:"sd"`
		Lower    *float64 `json:"lower"`
		Upper    *float64 `json:"upper"`
		MCSEMean *float64 `json:"mcse_mean"`
		ESSBulk  *float64 `json:"ess_bulk"`
		ESSTail  *float64 `json:"ess_tail"`
		RHat     *float64 `json:"r_hat"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = SummaryRow{
		Param: raw.Param, Mean: nanIfNil(raw.Mean), SD: nanIfNil(raw.SD),
		Lower: nanIfNil(raw.Lower), Upper: nanIfNil(raw.Upper), MCSEMean: nanIfNil(raw.MCSEMean),
		ESSBulk: nanIfNil(raw.ESSBulk), ESSTail: nanIfNil(raw.ESSTail), RHat: nanIfNil(raw.RHat),
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nanIfNil(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// WarningReason tells why a parameter was flagged.
type WarningReason string

const (
	ReasonRHat      WarningReason = "rhat"
	ReasonLowESS    WarningReason = "low_ess"
	ReasonNonFinite WarningReason = "non_finite"
)

// ConvergenceWarning flags a parameter whose diagnostics are not trustworthy.
type ConvergenceWarning struct {
	Param     string        `json:"param"`
	Reason    WarningReason `json:"reason"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
}

// MarshalJSON writes a non-finite value as null.
func (w ConvergenceWarning) MarshalJSON() ([]byte, error) {
	type plain ConvergenceWarning
	return json.Marshal(struct {
		plain
		Value *float64 `json:"value"`
	}{plain(w), finiteOrNil(w.Value)})
}

func (w ConvergenceWarning) String() string {
	switch w.Reason {
	case ReasonRHat:
		return fmt.Sprintf("%s: r_hat %.4f exceeds %.4g", w.Param, w.Value, w.Threshold)
	case ReasonLowESS:
		return fmt.Sprintf("%s: ess_bulk %.0f below %.0f", w.Param, w.Value, w.Threshold)
	default:
		return fmt.Sprintf("%s: diagnostics are not finite", w.Param)
	}
}

// Summary is the terminal artifact of the pipeline.
type Summary struct {
	CredibleMass float64              `json:"credible_mass"`
	Rows         []SummaryRow         `json:"rows"`
	Warnings     []ConvergenceWarning `json:"warnings,omitempty"`
	Issues       []SamplingIssue      `json:"sampling_issues,omitempty"`
}

// Row returns the row of a parameter.
func (s *Summary) Row(param string) (SummaryRow, bool) {
	for _, r := range s.Rows {
		if r.Param == param {
			return r, true
		}
	}
	return SummaryRow{}, false
}

// Healthy is true when no warning or sampling issue was attached.
func (s *Summary) Healthy() bool {
	return len(s.Warnings) == 0 && len(s.Issues) == 0
}

// RunConfig records the sampler settings of an analysis.
type RunConfig struct {
	Engine         string `json:"engine"`
	Chains         int    `json:"chains"`
	ParallelChains int    `json:"parallel_chains"`
	Warmup         int    `json:"warmup"`
	Samples        int    `json:"samples"`
	Seed           uint64 `json:"seed"`
}

// Analysis is one complete pipeline run.
type Analysis struct {
	ID        string         `json:"id"`
	Model     Model          `json:"model"`
	Arms      []ArmAggregate `json:"arms"`
	Prior     PriorSpec      `json:"prior"`
	Run       RunConfig      `json:"run"`
	Summary   Summary        `json:"summary"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
}
