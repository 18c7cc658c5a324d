package analyze

import "time"

// Point is one sample of a curve.
type Point struct {
	X float64
	Y float64
}

// Window picks the aggregation window for a run lasting dur seconds.
func Window(dur float64) time.Duration {
	var ms int
	switch {
	case dur < 0.5:
		ms = 2
	case dur < 1:
		ms = 5
	case dur < 3:
		ms = 10
	case dur < 5:
		ms = 20
	case dur < 10:
		ms = 50
	case dur < 20:
		ms = 70
	case dur < 50:
		ms = 100
	case dur < 100:
		ms = 150
	case dur < 150:
		ms = 200
	case dur < 200:
		ms = 500
	case dur < 300:
		ms = 1000
	default:
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

// OpsInWindow converts ordered completion timestamps into an ops/s series.
// The series spans at most max after the first timestamp. Each timestamp is
// counted in exactly one window; those past the last full window, including
// any beyond max, land in a final tail point.
func OpsInWindow(ts []time.Time, max time.Duration) []Point {
	if len(ts) == 0 {
		return nil
	}
	first := ts[0]
	last := ts[len(ts)-1]
	if last.Sub(first) > max {
		last = first.Add(max)
	}

	w := Window(last.Sub(first).Seconds())
	wms := int(w / time.Millisecond)

	var out []Point
	idx := 0
	for next := first.Add(w); next.Before(last); next = next.Add(w) {
		ops := 0
		for idx < len(ts) && ts[idx].Before(next) {
			ops++
			idx++
		}
		out = append(out, Point{X: next.Sub(first).Seconds(), Y: float64(ops * 1000 / wms)})
	}
	if idx < len(ts) {
		ops := len(ts) - idx
		out = append(out, Point{X: last.Sub(first).Seconds(), Y: float64(ops * 1000 / wms)})
	}
	return out
}
