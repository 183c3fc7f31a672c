// Package report renders measurement counts as a text histogram or an SVG bar
// chart.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrNoCounts is returned when there is nothing to plot.
var ErrNoCounts = errors.New("no counts to render")

// HistogramWidth is the length of the longest bar in a text histogram.
const HistogramWidth = 40

// WriteHistogram prints one bar per outcome in lexical order:
//
//	00  ####################  512  0.512
func WriteHistogram(w io.Writer, counts quantum.Counts) error {
	shots := counts.Shots()
	if shots == 0 {
		return ErrNoCounts
	}

	outcomes := counts.Outcomes()
	label, peak := 0, 0
	for _, o := range outcomes {
		if len(o) > label {
			label = len(o)
		}
		if counts[o] > peak {
			peak = counts[o]
		}
	}

	for _, o := range outcomes {
		n := counts[o]
		bar := 0
		if peak > 0 {
			bar = n * HistogramWidth / peak
		}
		_, err := fmt.Fprintf(w, "%-*s  %-*s  %*d  %.3f\n",
			label, o,
			HistogramWidth, strings.Repeat("#", bar),
			digits(shots), n,
			float64(n)/float64(shots))
		if err != nil {
			return pkgerrors.Wrap(err, "write histogram")
		}
	}
	return nil
}

func digits(n int) int {
	return len(fmt.Sprint(n))
}

// SVG constants for chart generation.
const (
	SVGVersion   = "1.1"
	SVGNamespace = "http://www.w3.org/2000/svg"
)

// SVGConfig specifies options for the bar chart.
type SVGConfig struct {
	// Width and Height are the image size in pixels.
	Width  int
	Height int

	// Padding is the margin around the plot area.
	Padding int

	Title string

	// BarColor fills each bar.
	BarColor string

	AxisColor       string
	BackgroundColor string
	FontFamily      string
}

// DefaultSVGConfig returns an SVGConfig with sensible defaults.
func DefaultSVGConfig() *SVGConfig {
	return &SVGConfig{
		Width:           640,
		Height:          360,
		Padding:         50,
		BarColor:        "#2563eb",
		AxisColor:       "#374151",
		BackgroundColor: "#ffffff",
		FontFamily:      "Arial, sans-serif",
	}
}

// WriteSVG renders counts as a probability bar chart with the default
// configuration.
func WriteSVG(w io.Writer, counts quantum.Counts, title string) error {
	config := DefaultSVGConfig()
	config.Title = title
	svg, err := BuildSVG(counts, config)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, svg)
	return pkgerrors.Wrap(err, "write svg")
}

// BuildSVG returns the chart as a string. Bar heights are outcome
// probabilities on a fixed [0, 1] axis.
func BuildSVG(counts quantum.Counts, config *SVGConfig) (string, error) {
	shots := counts.Shots()
	if shots == 0 {
		return "", ErrNoCounts
	}
	if config == nil {
		config = DefaultSVGConfig()
	}

	outcomes := counts.Outcomes()
	plotWidth := config.Width - 2*config.Padding
	plotHeight := config.Height - 2*config.Padding
	if plotWidth <= 0 || plotHeight <= 0 {
		return "", pkgerrors.Errorf("svg: padding %d leaves no room in %dx%d", config.Padding, config.Width, config.Height)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<svg xmlns=\"%s\" version=\"%s\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n",
		SVGNamespace, SVGVersion, config.Width, config.Height, config.Width, config.Height)
	fmt.Fprintf(&sb, "  <rect width=\"100%%\" height=\"100%%\" fill=\"%s\"/>\n", config.BackgroundColor)
	fmt.Fprintf(&sb, "  <!-- shots: %d -->\n", shots)
	fmt.Fprintf(&sb, "  <g transform=\"translate(%d,%d)\" font-family=\"%s\" font-size=\"11\">\n",
		config.Padding, config.Padding, escapeXML(config.FontFamily))

	// axes
	fmt.Fprintf(&sb, "    <line x1=\"0\" y1=\"%d\" x2=\"%d\" y2=\"%d\" stroke=\"%s\"/>\n",
		plotHeight, plotWidth, plotHeight, config.AxisColor)
	fmt.Fprintf(&sb, "    <line x1=\"0\" y1=\"0\" x2=\"0\" y2=\"%d\" stroke=\"%s\"/>\n", plotHeight, config.AxisColor)
	for _, tick := range []float64{0, 0.25, 0.5, 0.75, 1} {
		y := float64(plotHeight) * (1 - tick)
		fmt.Fprintf(&sb, "    <text x=\"-6\" y=\"%.1f\" text-anchor=\"end\" dominant-baseline=\"middle\">%.2f</text>\n", y, tick)
	}

	slot := float64(plotWidth) / float64(len(outcomes))
	barWidth := slot * 0.7
	for i, o := range outcomes {
		p := float64(counts[o]) / float64(shots)
		h := p * float64(plotHeight)
		x := slot*float64(i) + (slot-barWidth)/2
		fmt.Fprintf(&sb, "    <rect class=\"bar\" x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%.1f\" fill=\"%s\"><title>%s: %d</title></rect>\n",
			x, float64(plotHeight)-h, barWidth, h, config.BarColor, escapeXML(o), counts[o])
		fmt.Fprintf(&sb, "    <text x=\"%.1f\" y=\"%d\" text-anchor=\"middle\">%s</text>\n",
			x+barWidth/2, plotHeight+16, escapeXML(o))
	}
	sb.WriteString("  </g>\n")

	if config.Title != "" {
		fmt.Fprintf(&sb, "  <text x=\"%d\" y=\"%d\" text-anchor=\"middle\" font-family=\"%s\" font-size=\"16\" font-weight=\"bold\">%s</text>\n",
			config.Width/2, config.Padding/2, escapeXML(config.FontFamily), escapeXML(config.Title))
	}
	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
	return r.Replace(s)
}
