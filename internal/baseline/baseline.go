// Package baseline judges whether a recent observation count is elevated
// relative to a set of historical counts (for the monitor service, one count
// per reference version for the same error key and minute), via a
// Poisson-CDF significance test.
package baseline

import (
	"math"
	"math/big"
)

// precisionBits bounds the big.Float mantissa so the Poisson CDF stays
// accurate even when expected reaches into the hundreds, where a
// float64-only computation of e^-lambda would underflow to zero.
const precisionBits = 256

// Analyze implements the BaselineAnalyzer contract: given historical counts
// and the most recent count, it returns the expected count and the
// probability that recentCount is an elevated draw from that baseline.
func Analyze(historicalCounts []int64, recentCount int64) (expected float64, probability float64) {
	if len(historicalCounts) == 0 {
		return 0, 0
	}

	var sum int64
	for _, c := range historicalCounts {
		sum += c
	}
	mean := float64(sum) / float64(len(historicalCounts))

	if float64(recentCount) < mean {
		return mean, 0
	}

	expected = mean
	if expected < 1 {
		expected = 1
	}

	k := recentCount
	if k < 0 {
		k = 0
	}

	probability = poissonCDF(k, expected)
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return expected, probability
}

// poissonCDF computes P(X <= k) for X ~ Poisson(lambda) using big.Float
// arithmetic so that lambda in the hundreds does not underflow float64's
// exponent range when computing e^-lambda.
func poissonCDF(k int64, lambda float64) float64 {
	prec := uint(precisionBits)
	bigLambda := new(big.Float).SetPrec(prec).SetFloat64(lambda)

	negLambda := new(big.Float).SetPrec(prec).Neg(bigLambda)
	term := bigExp(negLambda, prec) // i = 0 term: e^-lambda * lambda^0 / 0!

	sum := new(big.Float).SetPrec(prec).Set(term)

	for i := int64(1); i <= k; i++ {
		term = new(big.Float).SetPrec(prec).Mul(term, bigLambda)
		term.Quo(term, new(big.Float).SetPrec(prec).SetInt64(i))
		sum.Add(sum, term)
	}

	result, _ := sum.Float64()
	return result
}

// bigExp computes e^x for x <= 0 via argument reduction (repeated halving
// until |x| <= 1), a Taylor series on the reduced argument, and repeated
// squaring to undo the reduction. Computing e^x directly from a Taylor
// series at large |x| converges too slowly and loses precision; reduction
// keeps each stage well conditioned regardless of how large |x| is.
func bigExp(x *big.Float, prec uint) *big.Float {
	one := new(big.Float).SetPrec(prec).SetInt64(1)

	xf, _ := x.Float64()
	if xf == 0 {
		return one
	}

	reduced := new(big.Float).SetPrec(prec).Set(x)
	two := new(big.Float).SetPrec(prec).SetInt64(2)
	halvings := 0
	for {
		rf, _ := reduced.Float64()
		if math.Abs(rf) <= 1 {
			break
		}
		reduced.Quo(reduced, two)
		halvings++
	}

	sum := new(big.Float).SetPrec(prec).Set(one)
	term := new(big.Float).SetPrec(prec).Set(one)
	for n := 1; n <= 80; n++ {
		term = new(big.Float).SetPrec(prec).Mul(term, reduced)
		term.Quo(term, new(big.Float).SetPrec(prec).SetInt64(int64(n)))
		sum.Add(sum, term)
	}

	for i := 0; i < halvings; i++ {
		sum = new(big.Float).SetPrec(prec).Mul(sum, sum)
	}

	return sum
}
