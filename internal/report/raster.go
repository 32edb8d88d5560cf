package report

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Raster geometry in unscaled pixels. The canvas is drawn with the 7x13
// bitmap face and then enlarged by rasterScale.
const (
	rasterScale   = 2
	margin        = 16
	lineHeight    = 18
	columnGap     = 32
	minCanvasWide = 420
	maxCellChars  = 60
)

var (
	colorBackground = color.White
	colorText       = color.Black
	colorMuted      = color.Gray{Y: 0x55}
	colorRule       = color.Gray{Y: 0xbb}
)

type textLine struct {
	x, y  int
	text  string
	color color.Color
	bold  bool
}

type rule struct {
	x0, x1, y int
}

// Rasterize draws l onto a white canvas. The output depends only on l.
func Rasterize(l Layout) *image.RGBA {
	face := basicfont.Face7x13

	var (
		lines []textLine
		rules []rule
		y     = margin + lineHeight
		right = minCanvasWide - margin
	)

	add := func(x int, s string, c color.Color, bold bool) {
		s = clip(s)
		lines = append(lines, textLine{x: x, y: y, text: s, color: c, bold: bold})
		if end := x + measure(face, s); end > right {
			right = end
		}
	}

	add(margin, l.Title, colorText, true)
	y += lineHeight / 2
	titleRule := len(rules)
	rules = append(rules, rule{x0: margin, y: y})
	y += lineHeight

	labelWidth := 0
	for _, f := range l.Fields {
		if w := measure(face, f.Label+":"); w > labelWidth {
			labelWidth = w
		}
	}
	for _, f := range l.Fields {
		add(margin, f.Label+":", colorMuted, false)
		add(margin+labelWidth+columnGap/2, f.Value, colorText, false)
		y += lineHeight
	}

	y += lineHeight / 2
	add(margin, l.Section, colorText, true)
	y += lineHeight

	nameWidth := measure(face, l.Columns[0])
	for _, row := range l.Rows {
		if w := measure(face, clip(row[0])); w > nameWidth {
			nameWidth = w
		}
	}
	valueX := margin + nameWidth + columnGap

	add(margin, l.Columns[0], colorMuted, true)
	add(valueX, l.Columns[1], colorMuted, true)
	y += lineHeight / 3
	headerRule := len(rules)
	rules = append(rules, rule{x0: margin, y: y})
	y += lineHeight

	for _, row := range l.Rows {
		add(margin, row[0], colorText, false)
		add(valueX, row[1], colorText, false)
		y += lineHeight
	}

	rules[titleRule].x1 = right
	rules[headerRule].x1 = right

	width := right + margin
	height := y - lineHeight + margin
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	for _, r := range rules {
		for x := r.x0; x < r.x1; x++ {
			canvas.Set(x, r.y, colorRule)
		}
	}
	for _, ln := range lines {
		drawText(canvas, face, ln)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width*rasterScale, height*rasterScale))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return scaled
}

func drawText(dst draw.Image, face font.Face, ln textLine) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ln.color),
		Face: face,
		Dot:  fixed.P(ln.x, ln.y),
	}
	d.DrawString(ln.text)
	if ln.bold {
		d.Dot = fixed.P(ln.x+1, ln.y)
		d.DrawString(ln.text)
	}
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// clip shortens cells that would otherwise widen the page without bound.
func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxCellChars {
		return s
	}
	return string(r[:maxCellChars-3]) + "..."
}
