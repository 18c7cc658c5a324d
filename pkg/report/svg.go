package report

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/errs"
)

// Series is one named curve.
type Series struct {
	Name   string
	Points []analyze.Point
}

// Bar is one bar with an error interval.
type Bar struct {
	Label     string
	Value     float64
	Low, High float64
}

// Chart lays out a plot. Zero sizes fall back to 1024x768.
type Chart struct {
	Title  string
	XLabel string
	YLabel string
	Width  int
	Height int
}

var palette = []string{"#1f77b4", "#d62728", "#2ca02c", "#ff7f0e", "#9467bd", "#8c564b", "#e377c2", "#17becf"}

const (
	marginLeft   = 90
	marginRight  = 160
	marginTop    = 50
	marginBottom = 60
	ticks        = 5
)

type frame struct {
	c                      Chart
	minX, maxX, minY, maxY float64
}

func (c Chart) size() (int, int) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = 1024
	}
	if h <= 0 {
		h = 768
	}
	return w, h
}

func (f frame) px(x float64) float64 {
	w, _ := f.c.size()
	span := f.maxX - f.minX
	if span == 0 {
		span = 1
	}
	return marginLeft + (x-f.minX)/span*float64(w-marginLeft-marginRight)
}

func (f frame) py(y float64) float64 {
	_, h := f.c.size()
	span := f.maxY - f.minY
	if span == 0 {
		span = 1
	}
	return float64(h-marginBottom) - (y-f.minY)/span*float64(h-marginTop-marginBottom)
}

func bounds(series []Series) (minX, maxX, maxY float64) {
	minX, maxX = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.Points {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return 0, 1, 1
	}
	return minX, maxX, maxY
}

func num(v float64) string {
	if math.Abs(v) >= 1000 || v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func (f frame) axes(w io.Writer) {
	width, height := f.c.size()
	fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif" font-size="12">`+"\n", width, height)
	fmt.Fprintf(w, `<rect width="%d" height="%d" fill="white"/>`+"\n", width, height)
	fmt.Fprintf(w, `<text x="%d" y="%d" font-size="16" text-anchor="middle">%s</text>`+"\n", width/2, marginTop/2, html.EscapeString(f.c.Title))
	x0, x1 := f.px(f.minX), f.px(f.maxX)
	y0, y1 := f.py(f.minY), f.py(f.maxY)
	fmt.Fprintf(w, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="black"/>`+"\n", x0, y0, x1, y0)
	fmt.Fprintf(w, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="black"/>`+"\n", x0, y0, x0, y1)
	for i := 0; i <= ticks; i++ {
		v := f.minY + (f.maxY-f.minY)*float64(i)/ticks
		y := f.py(v)
		fmt.Fprintf(w, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#ddd"/>`+"\n", x0, y, x1, y)
		fmt.Fprintf(w, `<text x="%.1f" y="%.1f" text-anchor="end">%s</text>`+"\n", x0-6, y+4, num(v))
	}
	fmt.Fprintf(w, `<text x="%d" y="%d" text-anchor="middle">%s</text>`+"\n", (width-marginRight+marginLeft)/2, height-15, html.EscapeString(f.c.XLabel))
	fmt.Fprintf(w, `<text x="20" y="%d" text-anchor="middle" transform="rotate(-90 20 %d)">%s</text>`+"\n", height/2, height/2, html.EscapeString(f.c.YLabel))
}

func (f frame) xTicks(w io.Writer) {
	y0 := f.py(f.minY)
	for i := 0; i <= ticks; i++ {
		v := f.minX + (f.maxX-f.minX)*float64(i)/ticks
		fmt.Fprintf(w, `<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`+"\n", f.px(v), y0+18, num(v))
	}
}

func legend(w io.Writer, c Chart, names []string) {
	width, _ := c.size()
	for i, n := range names {
		y := marginTop + 20*i
		fmt.Fprintf(w, `<rect x="%d" y="%d" width="12" height="12" fill="%s"/>`+"\n", width-marginRight+15, y, palette[i%len(palette)])
		fmt.Fprintf(w, `<text x="%d" y="%d">%s</text>`+"\n", width-marginRight+32, y+11, html.EscapeString(n))
	}
}

func writeSVG(path string, draw func(w io.Writer)) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.SvgError, err, "create %s", path)
	}
	bw := bufio.NewWriter(f)
	draw(bw)
	fmt.Fprintln(bw, "</svg>")
	if err := bw.Flush(); err != nil {
		f.Close()
		return errs.Wrap(errs.SvgError, err, "write %s", path)
	}
	return errs.Wrap(errs.SvgError, f.Close(), "close %s", path)
}

func (c Chart) plot(path string, series []Series, lines bool) error {
	minX, maxX, maxY := bounds(series)
	fr := frame{c: c, minX: minX, maxX: maxX, minY: 0, maxY: maxY * 1.05}
	return writeSVG(path, func(w io.Writer) {
		fr.axes(w)
		fr.xTicks(w)
		names := make([]string, 0, len(series))
		for i, s := range series {
			color := palette[i%len(palette)]
			names = append(names, s.Name)
			if lines && len(s.Points) > 1 {
				fmt.Fprintf(w, `<polyline fill="none" stroke="%s" stroke-width="1.5" points="`, color)
				for _, p := range s.Points {
					fmt.Fprintf(w, "%.1f,%.1f ", fr.px(p.X), fr.py(p.Y))
				}
				fmt.Fprintln(w, `"/>`)
			}
			for _, p := range s.Points {
				fmt.Fprintf(w, `<circle cx="%.1f" cy="%.1f" r="2" fill="%s"/>`+"\n", fr.px(p.X), fr.py(p.Y), color)
			}
		}
		legend(w, c, names)
	})
}

// Line draws each series as a polyline.
func (c Chart) Line(path string, series ...Series) error {
	return c.plot(path, series, true)
}

// Points draws each series as a scatter plot.
func (c Chart) Points(path string, series ...Series) error {
	return c.plot(path, series, false)
}

// Bars draws one bar per entry with its [Low, High] interval.
func (c Chart) Bars(path string, bars ...Bar) error {
	var maxY float64
	for _, b := range bars {
		maxY = math.Max(maxY, math.Max(b.Value, b.High))
	}
	n := float64(len(bars))
	if n == 0 {
		n = 1
	}
	fr := frame{c: c, minX: 0, maxX: n, minY: 0, maxY: maxY * 1.05}
	return writeSVG(path, func(w io.Writer) {
		fr.axes(w)
		slot := fr.px(1) - fr.px(0)
		for i, b := range bars {
			x := fr.px(float64(i)) + slot*0.15
			bw := slot * 0.7
			top := fr.py(b.Value)
			fmt.Fprintf(w, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
				x, top, bw, fr.py(0)-top, palette[i%len(palette)])
			cx := x + bw/2
			fmt.Fprintf(w, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="black"/>`+"\n", cx, fr.py(b.Low), cx, fr.py(b.High))
			fmt.Fprintf(w, `<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`+"\n", cx, fr.py(0)+18, html.EscapeString(b.Label))
		}
	})
}
