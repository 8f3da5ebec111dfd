package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// relativeTolerance treats probabilities this close to the observed one as
// equally likely when summing the two-sided tail.
const relativeTolerance = 1 + 1e-7

// BinomialTwoSided is the exact two-sided binomial test p-value for k
// successes in n trials with success probability p. Outcomes whose
// probability does not exceed that of k contribute to the p-value.
func BinomialTwoSided(k, n int, p float64) float64 {
	if n <= 0 || k < 0 || k > n {
		return 1
	}
	if p <= 0 || p >= 1 {
		expected := 0
		if p >= 1 {
			expected = n
		}
		if k == expected {
			return 1
		}
		return 0
	}

	dist := distuv.Binomial{N: float64(n), P: p}
	observed := dist.LogProb(float64(k))
	var total float64
	for i := 0; i <= n; i++ {
		lp := dist.LogProb(float64(i))
		if lp <= observed+math.Log(relativeTolerance) {
			total += math.Exp(lp)
		}
	}
	return math.Min(1, total)
}
