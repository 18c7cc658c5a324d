package analyze

import (
	"math"
	"math/rand/v2"
)

// LinearResult describes the dominant linear region of a series.
type LinearResult struct {
	Slope       float64
	Intercept   float64
	Coverage    float64 // Fraction of points inside the region
	StartX      float64
	EndX        float64
	InlierCount int
}

const ransacIterations = 500

// FindDominantSlope fits the line that explains most points of a behaviour
// series within a relative tolerance (RANSAC, refined by least squares).
// A steady run has slope near zero and coverage near one.
func FindDominantSlope(points []Point, tolerance float64) LinearResult {
	n := len(points)
	if n < 2 {
		return LinearResult{}
	}

	var best []Point
	for i := 0; i < ransacIterations; i++ {
		a, b := rand.IntN(n), rand.IntN(n)
		if a == b {
			continue
		}
		p1, p2 := points[a], points[b]
		if math.Abs(p2.X-p1.X) < 1e-9 {
			continue
		}
		m := (p2.Y - p1.Y) / (p2.X - p1.X)
		c := p1.Y - m*p1.X

		inliers := make([]Point, 0, n)
		for _, p := range points {
			if residual(m*p.X+c, p.Y) <= tolerance {
				inliers = append(inliers, p)
			}
		}
		if len(inliers) > len(best) {
			best = inliers
		}
	}
	if len(best) < 2 {
		return LinearResult{}
	}

	m, c := leastSquares(best)
	minX, maxX := best[0].X, best[0].X
	for _, p := range best {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
	}
	return LinearResult{
		Slope:       m,
		Intercept:   c,
		Coverage:    float64(len(best)) / float64(n),
		StartX:      minX,
		EndX:        maxX,
		InlierCount: len(best),
	}
}

// residual is relative, or absolute for observations near zero.
func residual(pred, obs float64) float64 {
	if math.Abs(obs) < 1e-9 {
		return math.Abs(pred - obs)
	}
	return math.Abs(pred-obs) / math.Abs(obs)
}

func leastSquares(points []Point) (m, c float64) {
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(points))
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
		sumXY += p.X * p.Y
		sumXX += p.X * p.X
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, sumY / n
	}
	m = (n*sumXY - sumX*sumY) / den
	c = (sumY - m*sumX) / n
	return m, c
}
