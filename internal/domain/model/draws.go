package model

import (
	"fmt"
	"time"
)

// Chain holds the retained draws of one MCMC chain.
type Chain struct {
	ID int `json:"id"`
	// Values is indexed [parameter][iteration], parameters in Draws.Params order.
	Values  [][]float64 `json:"-"`
	LogProb []float64   `json:"-"`
	Stats   ChainStats  `json:"stats"`
}

// Len returns the number of retained iterations.
func (c *Chain) Len() int {
	return len(c.LogProb)
}

// ChainStats carries the per-chain sampler diagnostics.
type ChainStats struct {
	Seed         uint64        `json:"seed"`
	Warmup       int           `json:"warmup"`
	Samples      int           `json:"samples"`
	AcceptRate   float64       `json:"accept_rate"`
	Divergent    int           `json:"divergent"`
	MaxTreedepth int           `json:"max_treedepth_hits"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Draws are the posterior draws of all chains. Read-only once produced.
type Draws struct {
	Model  Model           `json:"model"`
	Params []string        `json:"params"`
	Chains []Chain         `json:"chains"`
	Issues []SamplingIssue `json:"issues,omitempty"`
}

// Index returns the position of a parameter or -1.
func (d *Draws) Index(name string) int {
	for i, p := range d.Params {
		if p == name {
			return i
		}
	}
	return -1
}

// Param returns one slice of draws per chain for the named parameter.
func (d *Draws) Param(name string) ([][]float64, error) {
	idx := d.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("unknown parameter %q", name)
	}
	out := make([][]float64, len(d.Chains))
	for c := range d.Chains {
		out[c] = d.Chains[c].Values[idx]
	}
	return out, nil
}

// TotalDraws returns chains x retained iterations.
func (d *Draws) TotalDraws() int {
	n := 0
	for i := range d.Chains {
		n += d.Chains[i].Len()
	}
	return n
}

// IssueKind classifies a sampling issue.
type IssueKind string

const (
	IssueDivergent    IssueKind = "divergent"
	IssueMaxTreedepth IssueKind = "max_treedepth"
	IssueAcceptance   IssueKind = "acceptance"
)

// SamplingIssue is a non-fatal per-chain quality problem.
type SamplingIssue struct {
	Chain   int       `json:"chain"`
	Kind    IssueKind `json:"kind"`
	Count   int       `json:"count"`
	Message string    `json:"message"`
}

func (s SamplingIssue) String() string {
	return fmt.Sprintf("chain %d: %s", s.Chain, s.Message)
}
