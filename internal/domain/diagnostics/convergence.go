package diagnostics

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minSplitLen is the shortest half-chain the diagnostics accept.
const minSplitLen = 2

// RHat is the rank-normalized split R-hat: the larger of the bulk value and
// the value on folded draws. It is NaN when chains are too short or constant.
func RHat(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	bulk := rhat(rankNormalize(split))
	tail := rhat(rankNormalize(fold(split)))
	return math.Max(bulk, tail)
}

// ESSBulk is the effective sample size of the rank-normalized split chains.
func ESSBulk(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	return ess(rankNormalize(split))
}

// ESSTail is the smaller effective sample size of the 5% and 95% quantile
// indicators.
func ESSTail(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	sorted := pool(split)
	slices.Sort(sorted)
	lo := ess(indicator(split, stat.Quantile(0.05, stat.LinInterp, sorted, nil)))
	hi := ess(indicator(split, stat.Quantile(0.95, stat.LinInterp, sorted, nil)))
	return math.Min(lo, hi)
}

// ESSMean is the effective sample size of the raw split chains, used for the
// Monte Carlo standard error of the mean.
func ESSMean(chains [][]float64) float64 {
	split := splitChains(chains)
	if split == nil {
		return math.NaN()
	}
	return ess(split)
}

// splitChains halves every chain, dropping the middle draw of odd lengths.
// Chains must have equal length.
func splitChains(chains [][]float64) [][]float64 {
	if len(chains) == 0 {
		return nil
	}
	n := len(chains[0])
	for _, c := range chains {
		if len(c) != n {
			return nil
		}
	}
	half := n / 2
	if half < minSplitLen {
		return nil
	}
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		out = append(out, c[:half], c[n-half:])
	}
	return out
}

// rankNormalize replaces draws by normal scores of their pooled ranks, with
// ties sharing the average rank.
func rankNormalize(chains [][]float64) [][]float64 {
	all := pool(chains)
	s := float64(len(all))
	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		switch {
		case all[a] < all[b]:
			return -1
		case all[a] > all[b]:
			return 1
		}
		return 0
	})

	ranks := make([]float64, len(all))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && all[idx[j]] == all[idx[i]] {
			j++
		}
		// 1-based average rank of the tie block [i, j).
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	out := make([][]float64, len(chains))
	pos := 0
	for c, ch := range chains {
		out[c] = make([]float64, len(ch))
		for t := range ch {
			out[c][t] = distuv.UnitNormal.Quantile((ranks[pos] - 0.375) / (s + 0.25))
			pos++
		}
	}
	return out
}

// fold returns |x - median| of the pooled draws.
func fold(chains [][]float64) [][]float64 {
	sorted := pool(chains)
	slices.Sort(sorted)
	med := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	out := make([][]float64, len(chains))
	for c, ch := range chains {
		out[c] = make([]float64, len(ch))
		for t, v := range ch {
			out[c][t] = math.Abs(v - med)
		}
	}
	return out
}

func indicator(chains [][]float64, q float64) [][]float64 {
	out := make([][]float64, len(chains))
	for c, ch := range chains {
		out[c] = make([]float64, len(ch))
		for t, v := range ch {
			if v <= q {
				out[c][t] = 1
			}
		}
	}
	return out
}

// moments returns per-chain means, the mean within-chain variance W and the
// between-chain variance of the means B/n.
func moments(chains [][]float64) (means []float64, w, bn float64) {
	means = make([]float64, len(chains))
	vars := make([]float64, len(chains))
	for c, ch := range chains {
		means[c], vars[c] = stat.MeanVariance(ch, nil)
	}
	w = stat.Mean(vars, nil)
	if len(chains) > 1 {
		bn = stat.Variance(means, nil)
	}
	return means, w, bn
}

// rhat is the classic potential scale reduction of equal-length chains.
func rhat(chains [][]float64) float64 {
	n := float64(len(chains[0]))
	_, w, bn := moments(chains)
	if w == 0 {
		return math.NaN()
	}
	varPlus := (n-1)/n*w + bn
	return math.Sqrt(varPlus / w)
}

// ess estimates the effective sample size with Geyer's initial monotone
// sequence over the multi-chain autocorrelation.
func ess(chains [][]float64) float64 {
	m := float64(len(chains))
	n := len(chains[0])
	means, w, bn := moments(chains)
	varPlus := (float64(n)-1)/float64(n)*w + bn
	if w == 0 || varPlus == 0 {
		return math.NaN()
	}

	// rho(t) = 1 - (W - mean autocovariance at lag t) / var+.
	rho := func(t int) float64 {
		acov := 0.0
		for c, ch := range chains {
			mu := means[c]
			sum := 0.0
			for i := 0; i+t < n; i++ {
				sum += (ch[i] - mu) * (ch[i+t] - mu)
			}
			acov += sum / float64(n)
		}
		acov /= m
		return 1 - (w-acov)/varPlus
	}

	total := 0.0
	prev := math.Inf(1)
	for t := 0; t+1 < n; t += 2 {
		even := 1.0
		if t > 0 {
			even = rho(t)
		}
		pair := even + rho(t+1)
		if pair <= 0 {
			break
		}
		if pair > prev {
			pair = prev
		}
		total += pair
		prev = pair
	}
	tau := -1 + 2*total
	draws := m * float64(n)
	limit := draws * math.Log10(draws)
	if tau <= 0 {
		return limit
	}
	return math.Min(draws/tau, limit)
}
