package report

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

type rgb struct{ r, g, b int }

// clusterPalette follows viridis so adjacent cluster ids stay distinguishable.
var clusterPalette = []rgb{
	{68, 1, 84},
	{59, 82, 139},
	{33, 145, 140},
	{94, 201, 98},
	{253, 231, 37},
}

var featurePalette = []rgb{
	{31, 119, 180},
	{255, 127, 14},
	{44, 160, 44},
	{214, 39, 40},
}

func paletteColor(p []rgb, i int) rgb {
	return p[((i%len(p))+len(p))%len(p)]
}

// Page geometry in millimetres for an A4 landscape page split 2x2.
const (
	pageMargin  = 12.0
	panelWidth  = 125.0
	panelHeight = 78.0
	panelGapX   = 23.0
	panelGapY   = 16.0
	plotInsetL  = 14.0
	plotInsetB  = 12.0
	plotInsetT  = 8.0
	plotInsetR  = 4.0
	markerSize  = 0.9
	tickCount   = 5
	titleHeight = 14.0
)

// panel maps data coordinates into one plot area of the page.
type panel struct {
	pdf        *gofpdf.Fpdf
	x, y, w, h float64
	xmin, xmax float64
	ymin, ymax float64
}

func newPanel(pdf *gofpdf.Fpdf, col, row int) *panel {
	left := pageMargin + float64(col)*(panelWidth+panelGapX)
	top := pageMargin + titleHeight + float64(row)*(panelHeight+panelGapY)
	return &panel{
		pdf: pdf,
		x:   left + plotInsetL,
		y:   top + plotInsetT,
		w:   panelWidth - plotInsetL - plotInsetR,
		h:   panelHeight - plotInsetT - plotInsetB,
	}
}

func (p *panel) scale(xmin, xmax, ymin, ymax float64) {
	p.xmin, p.xmax = xmin, xmax
	p.ymin, p.ymax = ymin, ymax
	if p.xmax <= p.xmin {
		p.xmax = p.xmin + 1
	}
	if p.ymax <= p.ymin {
		p.ymax = p.ymin + 1
	}
}

func (p *panel) px(v float64) float64 {
	return p.x + (v-p.xmin)/(p.xmax-p.xmin)*p.w
}

func (p *panel) py(v float64) float64 {
	return p.y + p.h - (v-p.ymin)/(p.ymax-p.ymin)*p.h
}

// frame draws the axes box, y ticks and labels.
func (p *panel) frame(title, xlabel, ylabel string, xticks bool) {
	pdf := p.pdf
	pdf.SetDrawColor(90, 90, 90)
	pdf.SetLineWidth(0.2)
	pdf.Rect(p.x, p.y, p.w, p.h, "D")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetXY(p.x, p.y-plotInsetT)
	pdf.CellFormat(p.w, 6, title, "", 0, "C", false, 0, "")

	pdf.SetFont("Arial", "", 7)
	pdf.SetDrawColor(200, 200, 200)
	for i := range tickCount {
		frac := float64(i) / float64(tickCount-1)
		yv := p.ymin + frac*(p.ymax-p.ymin)
		y := p.py(yv)
		pdf.Line(p.x, y, p.x+p.w, y)
		label := tickLabel(yv)
		pdf.Text(p.x-pdf.GetStringWidth(label)-1.5, y+1, label)

		if xticks {
			xv := p.xmin + frac*(p.xmax-p.xmin)
			x := p.px(xv)
			label = tickLabel(xv)
			pdf.Text(x-pdf.GetStringWidth(label)/2, p.y+p.h+4, label)
		}
	}

	pdf.SetFont("Arial", "", 8)
	pdf.Text(p.x+p.w/2-pdf.GetStringWidth(xlabel)/2, p.y+p.h+9, xlabel)
	lx, ly := p.x-plotInsetL+3, p.y+p.h/2+pdf.GetStringWidth(ylabel)/2
	pdf.TransformBegin()
	pdf.TransformRotate(90, lx, ly)
	pdf.Text(lx, ly, ylabel)
	pdf.TransformEnd()
}

func tickLabel(v float64) string {
	if math.Abs(v-math.Round(v)) < 1e-9 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func (p *panel) scatter(xs, ys []float64, clusters []int) {
	pdf := p.pdf
	for i := range xs {
		c := paletteColor(clusterPalette, clusters[i])
		pdf.SetFillColor(c.r, c.g, c.b)
		pdf.SetDrawColor(c.r, c.g, c.b)
		pdf.Circle(p.px(xs[i]), p.py(ys[i]), markerSize, "F")
	}
}

func (p *panel) bar(xv, width, height float64, color rgb) {
	pdf := p.pdf
	pdf.SetFillColor(color.r, color.g, color.b)
	top := p.py(height)
	pdf.Rect(p.px(xv), top, width/(p.xmax-p.xmin)*p.w, p.py(p.ymin)-top, "F")
}

func (p *panel) categoryLabel(xv float64, label string) {
	pdf := p.pdf
	pdf.SetFont("Arial", "", 7)
	pdf.Text(p.px(xv)-pdf.GetStringWidth(label)/2, p.y+p.h+4, label)
}

// ceilTo rounds v up to the next multiple of step.
func ceilTo(v, step float64) float64 {
	return math.Ceil(v/step) * step
}

// Visualization draws the cluster plots as a one-page PDF: attendance vs
// work hours, punctuality vs consistency, the tier distribution and the
// average features per tier. now stamps the document.
func Visualization(l cluster.Labeling, now time.Time) ([]byte, error) {
	if len(l.Workers) == 0 {
		return nil, tierrors.NewValidationError("no labeled workers to plot")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(now)
	pdf.SetTitle("Worker performance clusters", false)
	pdf.SetCreator("workertiers", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetXY(pageMargin, pageMargin)
	pdf.Cell(0, 8, "Worker Performance Clusters")
	pdf.SetFont("Arial", "I", 8)
	pdf.SetXY(pageMargin, pageMargin+7)
	pdf.Cell(0, 5, fmt.Sprintf("%d workers, generated %s", len(l.Workers), now.UTC().Format("2006-01-02 15:04 MST")))

	n := len(l.Workers)
	att, hours := make([]float64, n), make([]float64, n)
	punct, cons := make([]float64, n), make([]float64, n)
	clusters := make([]int, n)
	maxHours := 0.0
	for i, w := range l.Workers {
		att[i], hours[i] = w.AttendanceRate, w.AvgWorkHours
		punct[i], cons[i] = w.PunctualityScore, w.ConsistencyScore
		clusters[i] = w.Cluster
		maxHours = math.Max(maxHours, w.AvgWorkHours)
	}

	p := newPanel(pdf, 0, 0)
	p.scale(0, 100, 0, math.Max(12, ceilTo(maxHours, 2)))
	p.frame("Attendance Rate vs Work Hours", "Attendance Rate (%)", "Average Work Hours", true)
	p.scatter(att, hours, clusters)

	p = newPanel(pdf, 1, 0)
	p.scale(0, 100, 0, 100)
	p.frame("Punctuality vs Consistency", "Punctuality Score (%)", "Consistency Score (%)", true)
	p.scatter(punct, cons, clusters)

	summary := Summarize(l, nil)
	drawDistribution(newPanel(pdf, 0, 1), summary)
	drawFeatureMeans(newPanel(pdf, 1, 1), summary)
	drawClusterLegend(pdf, summary)

	if err := pdf.Error(); err != nil {
		return nil, tierrors.Wrap(err, "failed to draw visualization")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, tierrors.Wrap(err, "failed to encode visualization")
	}
	return buf.Bytes(), nil
}

func drawDistribution(p *panel, s Summary) {
	maxCount := 0
	for _, t := range s.Tiers {
		maxCount = max(maxCount, t.Count)
	}
	p.scale(0, float64(len(s.Tiers)), 0, ceilTo(float64(max(maxCount, 1)), 5))
	p.frame("Performance Distribution", "Performance Level", "Workers", false)

	for i, t := range s.Tiers {
		p.bar(float64(i)+0.2, 0.6, float64(t.Count), paletteColor(clusterPalette, t.Cluster))
		p.categoryLabel(float64(i)+0.5, t.Label)
		label := fmt.Sprintf("%.1f%%", t.Percent)
		p.pdf.Text(p.px(float64(i)+0.5)-p.pdf.GetStringWidth(label)/2, p.py(float64(t.Count))-1, label)
	}
}

func drawFeatureMeans(p *panel, s Summary) {
	top := 0.0
	for _, t := range s.Tiers {
		for _, v := range t.Means {
			top = math.Max(top, v)
		}
	}
	p.scale(0, float64(len(s.Tiers)), 0, math.Max(100, ceilTo(top, 10)))
	p.frame("Average Features by Performance Level", "Performance Level", "Score", false)

	const groupWidth = 0.8
	barWidth := groupWidth / features.NumFeatures
	for i, t := range s.Tiers {
		for j, v := range t.Means {
			p.bar(float64(i)+0.1+float64(j)*barWidth, barWidth, v, paletteColor(featurePalette, j))
		}
		p.categoryLabel(float64(i)+0.5, t.Label)
	}

	pdf := p.pdf
	pdf.SetFont("Arial", "", 6)
	for j, name := range features.Names {
		c := paletteColor(featurePalette, j)
		y := p.y + 2 + float64(j)*3.5
		pdf.SetFillColor(c.r, c.g, c.b)
		pdf.Rect(p.x+p.w-30, y, 2.5, 2.5, "F")
		pdf.Text(p.x+p.w-26.5, y+2.2, name)
	}
}

func drawClusterLegend(pdf *gofpdf.Fpdf, s Summary) {
	pdf.SetFont("Arial", "", 7)
	x := pageMargin + 150
	for _, t := range s.ByCluster() {
		c := paletteColor(clusterPalette, t.Cluster)
		pdf.SetFillColor(c.r, c.g, c.b)
		pdf.Circle(x, pageMargin+9.5, 1.2, "F")
		label := fmt.Sprintf("Cluster %d: %s", t.Cluster, t.Label)
		pdf.Text(x+2.5, pageMargin+10.5, label)
		x += pdf.GetStringWidth(label) + 9
	}
}
