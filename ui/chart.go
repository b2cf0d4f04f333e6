package ui

import (
	"fmt"
	"math"
	"strconv"

	plot "github.com/chriskim06/drawille-go"
	"github.com/thetooth/pingchart/series"
	"github.com/thetooth/pingchart/session"
)

const (
	minChartWidth  = 16
	minChartHeight = 4
)

var lineColors = []plot.Color{plot.Default, plot.Default, plot.Red, plot.Cyan}

// chartData converts a frame into drawille lines, dots wide. The canvas
// scales to the extremes of its data, so two single point lines pin the y axis
// to the viewport without drawing anything. Dropped packets are drawn as
// spikes to the top of the chart so they never look like fast replies.
func chartData(f session.Frame, dots int) [][]float64 {
	received := make([]float64, len(f.Received))
	for i, p := range f.Received {
		if p.Y != series.Sentinel {
			received[i] = p.Y
		}
	}

	dropped := make([]float64, len(f.Dropped))
	for i, p := range f.Dropped {
		if p.Y != series.Sentinel {
			dropped[i] = f.Bounds.MaxLatency
		}
	}

	return [][]float64{
		{0},
		{f.Bounds.MaxLatency},
		resample(dropped, f.Bounds.MaxSeq, dots),
		resample(received, f.Bounds.MaxSeq, dots),
	}
}

// resample maps values indexed by sequence number onto a grid of dots covering
// [0, maxSeq]. Each dot keeps the largest value that falls into it so single
// spikes survive compression.
func resample(values []float64, maxSeq float64, dots int) []float64 {
	if len(values) == 0 || dots < 1 {
		return nil
	}

	per := (maxSeq + 1) / float64(dots)
	n := int(math.Ceil(float64(len(values)) / per))
	n = max(1, min(n, dots))

	out := make([]float64, n)
	for k := range out {
		lo := min(int(float64(k)*per), len(values)-1)
		hi := min(max(int(float64(k+1)*per), lo+1), len(values))
		v := values[lo]
		for _, x := range values[lo:hi] {
			v = max(v, x)
		}
		out[k] = v
	}
	return out
}

// plotDots is the number of braille dot columns drawille leaves for data
// after drawing the y axis labels.
func plotDots(width int, maxLatency float64) int {
	label := max(len(fmt.Sprintf("%.2f", maxLatency)), len(fmt.Sprintf("%.2f", 0.0)))
	return (width - label - 2) * 2
}

// renderChart draws the frame on a width x height braille canvas. The x axis
// covers [0, MaxSeq] and the y axis [0, MaxLatency].
func renderChart(f session.Frame, width, height int) string {
	dots := plotDots(width, f.Bounds.MaxLatency)
	if width < minChartWidth || height < minChartHeight || dots < 2 {
		return ""
	}

	c := plot.NewCanvas(width, height)
	c.LineColors = lineColors
	c.AxisColor = plot.Gray
	c.LabelColor = plot.Gray
	c.HorizontalLabels = []string{"0", formatBound(f.Bounds.MaxSeq)}
	c.Fill(chartData(f, dots))

	return c.String()
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
