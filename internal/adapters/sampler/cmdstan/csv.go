package cmdstan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/domain/model"
)

// Sampler diagnostic columns of the Stan CSV format.
const (
	colLogProb   = "lp__"
	colAccept    = "accept_stat__"
	colTreedepth = "treedepth__"
	colDivergent = "divergent__"
)

// Output is one parsed Stan CSV file.
type Output struct {
	Params    []string
	Chain     model.Chain
	Accept    []float64
	Treedepth []int
	Divergent []bool
}

// ParseOutput reads a Stan CSV file. Comment lines are skipped; the first
// record is the header. Model columns ("p.1") are renamed to the bracket
// form ("p[1]"); sampler columns other than the diagnostics are dropped.
func ParseOutput(r io.Reader) (*Output, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("stan csv: no header")
		}
		return nil, fmt.Errorf("stan csv: %w", err)
	}

	out := &Output{}
	lp, acc, depth, div := -1, -1, -1, -1
	var cols []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case h == colLogProb:
			lp = i
		case h == colAccept:
			acc = i
		case h == colTreedepth:
			depth = i
		case h == colDivergent:
			div = i
		case strings.HasSuffix(h, "__"):
		default:
			cols = append(cols, i)
			out.Params = append(out.Params, bracketName(h))
		}
	}
	if lp < 0 {
		return nil, fmt.Errorf("stan csv: missing %s column", colLogProb)
	}
	out.Chain.Values = make([][]float64, len(cols))

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stan csv: %w", err)
		}
		v, err := parseFloat(rec, lp, row)
		if err != nil {
			return nil, err
		}
		out.Chain.LogProb = append(out.Chain.LogProb, v)
		for k, c := range cols {
			v, err := parseFloat(rec, c, row)
			if err != nil {
				return nil, err
			}
			out.Chain.Values[k] = append(out.Chain.Values[k], v)
		}
		if acc >= 0 {
			v, err := parseFloat(rec, acc, row)
			if err != nil {
				return nil, err
			}
			out.Accept = append(out.Accept, v)
		}
		if depth >= 0 {
			v, err := parseFloat(rec, depth, row)
			if err != nil {
				return nil, err
			}
			out.Treedepth = append(out.Treedepth, int(v))
		}
		if div >= 0 {
			v, err := parseFloat(rec, div, row)
			if err != nil {
				return nil, err
			}
			out.Divergent = append(out.Divergent, v != 0)
		}
	}
	return out, nil
}

// Result converts the output to a chain result, reporting divergences and
// iterations that hit maxDepth as sampling issues.
func (o *Output) Result(maxDepth int) sampler.ChainResult {
	res := sampler.ChainResult{Params: o.Params, Chain: o.Chain}
	if n := len(o.Accept); n > 0 {
		sum := 0.0
		for _, a := range o.Accept {
			sum += a
		}
		res.Chain.Stats.AcceptRate = sum / float64(n)
	}
	for _, d := range o.Divergent {
		if d {
			res.Chain.Stats.Divergent++
		}
	}
	for _, d := range o.Treedepth {
		if d >= maxDepth {
			res.Chain.Stats.MaxTreedepth++
		}
	}
	if n := res.Chain.Stats.Divergent; n > 0 {
		res.Issues = append(res.Issues, model.SamplingIssue{
			Kind:    model.IssueDivergent,
			Count:   n,
			Message: fmt.Sprintf("%d of %d transitions after warmup were divergent", n, o.Chain.Len()),
		})
	}
	if n := res.Chain.Stats.MaxTreedepth; n > 0 {
		res.Issues = append(res.Issues, model.SamplingIssue{
			Kind:    model.IssueMaxTreedepth,
			Count:   n,
			Message: fmt.Sprintf("%d of %d transitions hit the maximum tree depth of %d", n, o.Chain.Len(), maxDepth),
		})
	}
	return res
}

// bracketName turns "p.1" into "p[1]" and "m.1.2" into "m[1,2]".
func bracketName(h string) string {
	base, idx, ok := strings.Cut(h, ".")
	if !ok {
		return h
	}
	return base + "[" + strings.ReplaceAll(idx, ".", ",") + "]"
}

func parseFloat(rec []string, col, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
	if err != nil {
		return 0, fmt.Errorf("stan csv row %d column %d: %w", row, col+1, err)
	}
	return v, nil
}
