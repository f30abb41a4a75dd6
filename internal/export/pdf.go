package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 297.0
	pageHeight = 210.0
)

type PDFOptions struct {
	// Background fills the page; empty keeps it white.
	Background string
	// Margin in millimetres.
	Margin float64
	Title  string
}

func DefaultPDFOptions() PDFOptions {
	return PDFOptions{Background: "#1e1e1e", Margin: 10}
}

// WritePDF renders strokes on an A4 landscape page, scaled to fit the
// margins. Brush strokes vary their width with the recorded speed.
func WritePDF(w io.Writer, strokes []domain.Stroke, opts PDFOptions) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetTitle(opts.Title, true)
	p.AddPage()

	if opts.Background != "" {
		r, g, b := parseColor(opts.Background)
		p.SetFillColor(r, g, b)
		p.Rect(0, 0, pageWidth, pageHeight, "F")
	}
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	tr := fit(strokes, opts.Margin)
	for i := range strokes {
		drawStroke(p, &strokes[i], tr)
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawStroke(p *gofpdf.Fpdf, s *domain.Stroke, tr transform) {
	if len(s.Points) == 0 {
		return
	}
	r, g, b := parseColor(s.Color)
	p.SetDrawColor(r, g, b)
	p.SetFillColor(r, g, b)

	base := s.EffectiveWidth()
	if len(s.Points) == 1 {
		x, y := tr.apply(s.Points[0].X, s.Points[0].Y)
		p.Circle(x, y, base*tr.scale/2, "F")
		return
	}

	p.SetLineWidth(base * tr.scale)
	for i := 1; i < len(s.Points); i++ {
		if s.Tool == domain.ToolBrush {
			p.SetLineWidth(domain.BrushWidth(s.Points[i].Speed, base) * tr.scale)
		}
		x1, y1 := tr.apply(s.Points[i-1].X, s.Points[i-1].Y)
		x2, y2 := tr.apply(s.Points[i].X, s.Points[i].Y)
		p.Line(x1, y1, x2, y2)
	}
}

type transform struct {
	scale, dx, dy float64
}

func (t transform) apply(x, y float64) (float64, float64) {
	return x*t.scale + t.dx, y*t.scale + t.dy
}

// fit maps the bounding box of strokes into the printable area, keeping the
// aspect ratio and centring the drawing.
func fit(strokes []domain.Stroke, margin float64) transform {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range strokes {
		for _, pt := range s.Points {
			minX = math.Min(minX, pt.X)
			minY = math.Min(minY, pt.Y)
			maxX = math.Max(maxX, pt.X)
			maxY = math.Max(maxY, pt.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return transform{scale: 1}
	}

	availW := pageWidth - 2*margin
	availH := pageHeight - 2*margin
	w := math.Max(maxX-minX, 1)
	h := math.Max(maxY-minY, 1)
	scale := math.Min(availW/w, availH/h)

	return transform{
		scale: scale,
		dx:    margin + (availW-w*scale)/2 - minX*scale,
		dy:    margin + (availH-h*scale)/2 - minY*scale,
	}
}

// parseColor reads #rgb and #rrggbb. Anything else renders white.
func parseColor(hex string) (int, int, int) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
