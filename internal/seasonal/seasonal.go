// Package seasonal implements the SeasonalAnomalyDetector: a Robust
// Principal Component Analysis (RPCA) decomposition of an hourly request
// series into a low-rank trend/seasonal component and a sparse residual,
// used to flag hours with far fewer requests than the seasonal pattern
// predicts.
//
// No third-party linear-algebra library in the retrieval corpus exposes an
// RPCA or general SVD routine (see DESIGN.md); the decomposition below is
// implemented from scratch using one-sided Jacobi SVD, which is compact,
// numerically stable for the small matrices this package builds (at most a
// few dozen rows by 168 columns), and needs no external dependency.
package seasonal

import "math"

// DefaultPeriod is the seasonal period used throughout the monitor service:
// 168 hourly buckets, one week.
const DefaultPeriod = 168

const (
	maxIterations  = 60
	convergenceTol = 1e-6
)

// Decompose separates series into a low-rank trend+seasonal component and a
// sparse residual, returning the residual aligned to series' own length.
// The leading len(series)%period samples are discarded before reshaping
// into a ⌊N/period⌋ × period matrix; their corresponding residual entries
// are always 0. If fewer than one full period of data remains, Decompose
// returns an all-zero array of len(series).
func Decompose(series []int64, period int) []float64 {
	n := len(series)
	residual := make([]float64, n)
	if period <= 0 || n < period {
		return residual
	}

	rows := n / period
	discard := n % period

	m := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		m[r] = make([]float64, period)
		for c := 0; c < period; c++ {
			m[r][c] = float64(series[discard+r*period+c])
		}
	}

	_, s := robustPCA(m)

	for r := 0; r < rows; r++ {
		for c := 0; c < period; c++ {
			residual[discard+r*period+c] = s[r][c]
		}
	}
	return residual
}

// Detect decomposes series (whose last element must be the hour under
// inspection) and reports whether that hour's residual falls below
// threshold, i.e. the observed count is anomalously low relative to the
// seasonal model built from the data up to and including that hour.
func Detect(series []int64, period int, threshold float64) (anomalous bool, residual float64) {
	residuals := Decompose(series, period)
	if len(residuals) == 0 {
		return false, 0
	}
	last := residuals[len(residuals)-1]
	return last < threshold, last
}

// robustPCA computes a Principal Component Pursuit decomposition m = l + s
// via the inexact augmented Lagrange multiplier method: alternately
// shrinking m's singular values (toward l, the low-rank component) and
// shrinking its entries (toward s, the sparse component).
func robustPCA(m [][]float64) (l, s [][]float64) {
	rows := len(m)
	if rows == 0 {
		return nil, nil
	}
	cols := len(m[0])

	normM := frobeniusNorm(m)
	if normM == 0 {
		return zeros(rows, cols), zeros(rows, cols)
	}

	lambda := 1.0 / math.Sqrt(float64(maxInt(rows, cols)))
	mu := float64(rows*cols) / (4 * l1Norm(m))
	if mu <= 0 {
		mu = 1.0 / normM
	}
	muBar := mu * 1e7
	rho := 1.5

	l = zeros(rows, cols)
	s = zeros(rows, cols)
	y := zeros(rows, cols)

	for iter := 0; iter < maxIterations; iter++ {
		// L-update: shrink singular values of (M - S + Y/mu).
		target := addScaled(subtract(m, s), y, 1/mu)
		l = singularValueThreshold(target, 1/mu)

		// S-update: entrywise soft-threshold (M - L + Y/mu).
		target2 := addScaled(subtract(m, l), y, 1/mu)
		s = softThresholdMatrix(target2, lambda/mu)

		// Dual update.
		residualMat := subtract(subtract(m, l), s)
		y = addScaled(y, residualMat, mu)

		mu = math.Min(mu*rho, muBar)

		if frobeniusNorm(residualMat)/normM < convergenceTol {
			break
		}
	}

	return l, s
}

// singularValueThreshold computes U * shrink(Sigma, tau) * V^T for a via a
// from-scratch one-sided Jacobi SVD.
func singularValueThreshold(a [][]float64, tau float64) [][]float64 {
	uSigma, sigma, v := jacobiSVD(a)
	rows := len(a)
	cols := len(a[0])

	out := zeros(rows, cols)
	for k := range sigma {
		shrunk := math.Max(sigma[k]-tau, 0)
		if shrunk == 0 || sigma[k] == 0 {
			continue
		}
		scale := shrunk / sigma[k]
		for i := 0; i < rows; i++ {
			ui := uSigma[i][k] * scale
			if ui == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				out[i][j] += ui * v[j][k]
			}
		}
	}
	return out
}

// jacobiSVD computes a one-sided Jacobi SVD of the m×n matrix a: it returns
// uSigma (the same shape as a, whose k-th column is sigma[k] times the k-th
// left singular vector) and v (n×n, the right singular vectors), such that
// a == uSigma * v^T.
func jacobiSVD(a [][]float64) (uSigma [][]float64, sigma []float64, v [][]float64) {
	rows := len(a)
	cols := len(a[0])

	uSigma = make([][]float64, rows)
	for i := range uSigma {
		uSigma[i] = append([]float64(nil), a[i]...)
	}
	v = identity(cols)

	const sweeps = 40
	for sweep := 0; sweep < sweeps; sweep++ {
		converged := true
		for p := 0; p < cols-1; p++ {
			for q := p + 1; q < cols; q++ {
				alpha, beta, gamma := 0.0, 0.0, 0.0
				for i := 0; i < rows; i++ {
					alpha += uSigma[i][p] * uSigma[i][p]
					beta += uSigma[i][q] * uSigma[i][q]
					gamma += uSigma[i][p] * uSigma[i][q]
				}
				if math.Abs(gamma) < 1e-12*math.Sqrt(alpha*beta+1e-30) {
					continue
				}
				converged = false

				zeta := (beta - alpha) / (2 * gamma)
				t := sign(zeta) / (math.Abs(zeta) + math.Sqrt(1+zeta*zeta))
				if zeta == 0 {
					t = 1
				}
				c := 1 / math.Sqrt(1+t*t)
				sN := c * t

				for i := 0; i < rows; i++ {
					up := uSigma[i][p]
					uq := uSigma[i][q]
					uSigma[i][p] = c*up - sN*uq
					uSigma[i][q] = sN*up + c*uq
				}
				for i := 0; i < cols; i++ {
					vp := v[i][p]
					vq := v[i][q]
					v[i][p] = c*vp - sN*vq
					v[i][q] = sN*vp + c*vq
				}
			}
		}
		if converged {
			break
		}
	}

	sigma = make([]float64, cols)
	for k := 0; k < cols; k++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += uSigma[i][k] * uSigma[i][k]
		}
		sigma[k] = math.Sqrt(sum)
	}

	return uSigma, sigma, v
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func softThresholdMatrix(a [][]float64, tau float64) [][]float64 {
	out := zeros(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = softThresholdScalar(a[i][j], tau)
		}
	}
	return out
}

func softThresholdScalar(x, tau float64) float64 {
	if x > tau {
		return x - tau
	}
	if x < -tau {
		return x + tau
	}
	return 0
}

func zeros(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func identity(n int) [][]float64 {
	m := zeros(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

func subtract(a, b [][]float64) [][]float64 {
	out := zeros(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = a[i][j] - b[i][j]
		}
	}
	return out
}

func addScaled(a, b [][]float64, scale float64) [][]float64 {
	out := zeros(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			out[i][j] = a[i][j] + b[i][j]*scale
		}
	}
	return out
}

func frobeniusNorm(a [][]float64) float64 {
	sum := 0.0
	for i := range a {
		for j := range a[i] {
			sum += a[i][j] * a[i][j]
		}
	}
	return math.Sqrt(sum)
}

func l1Norm(a [][]float64) float64 {
	sum := 0.0
	for i := range a {
		for j := range a[i] {
			sum += math.Abs(a[i][j])
		}
	}
	if sum == 0 {
		return 1
	}
	return sum
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
