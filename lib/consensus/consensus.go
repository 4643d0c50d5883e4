// Package consensus reduces a set of independently obtained numeric samples
// (network heights, difficulties) into summary statistics and a plurality
// vote with a confidence ratio. The vote is a heuristic over a semi-trusted
// seed set, not an agreement protocol: a sample is one node's answer and the
// winner is simply the most repeated value.
package consensus

import (
	"math"
	"sort"
	"sync"
)

// Sample is the outcome of querying one source. A non-nil Err excludes the
// value from the usable set but still counts as an attempted response.
type Sample struct {
	Value float64
	Err   error
}

// Result holds the reduction of an aggregation round. When Ans is zero no
// source produced a usable value: Win and Con carry the empty-input vote
// (0 with full confidence) and the order statistics are NaN, so callers must
// check Ans before trusting them.
type Result struct {
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Avg    float64 `json:"avg"`
	Med    float64 `json:"med"`
	Cnt    int     `json:"cnt"` // responses attempted
	Ans    int     `json:"ans"` // responses with a usable value
	Con    float64 `json:"con"` // winner's share of usable responses
	Win    float64 `json:"win"` // plurality winner
	Cached bool    `json:"cached"`
}

// Reduce computes the statistics and plurality vote over samples. Errored
// samples are counted in Cnt only. Ties on the vote tally are broken in
// favour of the numerically largest value.
func Reduce(samples []Sample) Result {
	r := Result{Cnt: len(samples)}

	vals := make([]float64, 0, len(samples))

	for _, s := range samples {
		if s.Err == nil {
			vals = append(vals, s.Value)
		}
	}

	r.Ans = len(vals)

	if len(vals) == 0 {
		r.Max, r.Min, r.Avg, r.Med = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		r.Win, r.Con = 0, 1

		return r
	}

	sort.Float64s(vals)

	r.Min = vals[0]
	r.Max = vals[len(vals)-1]

	var sum float64
	for _, v := range vals {
		sum += v
	}

	r.Avg = math.Round(sum / float64(len(vals)))

	if n := len(vals); n%2 == 0 {
		r.Med = (vals[n/2-1] + vals[n/2]) / 2
	} else {
		r.Med = vals[n/2]
	}

	// plurality vote, largest value wins a tie
	tally := make(map[float64]int, len(vals))
	for _, v := range vals {
		tally[v]++
	}

	best := 0
	for v, t := range tally {
		if t > best || (t == best && v > r.Win) {
			best = t
			r.Win = v
		}
	}

	r.Con = float64(best) / float64(len(vals))

	return r
}

// Poll runs fn for indexes 0..n-1 concurrently and waits for every call to
// settle. Each call is isolated: a failure or timeout in one becomes an
// errored sample without affecting the others. Per-call timeouts are the
// responsibility of fn (typically the timeout of its HTTP client).
func Poll(n int, fn func(i int) (float64, error)) []Sample {
	samples := make([]Sample, n)

	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			v, err := fn(i)
			samples[i] = Sample{Value: v, Err: err}
		}(i)
	}

	wg.Wait()

	return samples
}
