package analyze

import (
	"sort"
)

// FindKnee returns the point of maximum curvature of a concave, saturating
// curve (Kneedle). For the throughput probe this is the transfer size past
// which larger transfers stop buying bandwidth.
func FindKnee(points []Point) Point {
	if len(points) < 3 {
		if len(points) > 0 {
			return points[len(points)-1]
		}
		return Point{}
	}

	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	minX, maxX := pts[0].X, pts[len(pts)-1].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if maxX == minX || maxY == minY {
		return pts[len(pts)-1]
	}

	// Normalized to the unit square, the chord from the first to the last
	// point is y = x; the knee sits furthest above it.
	best := -1.0
	var knee Point
	for _, p := range pts {
		xn := (p.X - minX) / (maxX - minX)
		yn := (p.Y - minY) / (maxY - minY)
		if d := yn - xn; d > best {
			best = d
			knee = p
		}
	}
	return knee
}
