package studio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const watermarkText = "MMD CRAFT"

// Gradient endpoints for the mark: white fading into the brand blue.
var (
	markTop    = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	markBottom = color.NRGBA{R: 96, G: 165, B: 250, A: 255}
	markShadow = color.NRGBA{R: 0, G: 0, B: 0, A: 160}
)

// Watermark stamps the brand mark into the bottom-right corner of a
// PNG and re-encodes it. The mark scales with the image so it stays
// legible without dominating small renders.
func Watermark(pngBytes []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	bounds := src.Bounds()
	base := image.NewRGBA(bounds)
	xdraw.Draw(base, bounds, src, bounds.Min, xdraw.Src)

	label := renderLabel()

	scale := bounds.Dx() / 320
	if scale < 1 {
		scale = 1
	}
	margin := 8 * scale
	w := label.Bounds().Dx() * scale
	h := label.Bounds().Dy() * scale
	target := image.Rect(
		bounds.Max.X-margin-w,
		bounds.Max.Y-margin-h,
		bounds.Max.X-margin,
		bounds.Max.Y-margin,
	)
	xdraw.NearestNeighbor.Scale(base, target, label, label.Bounds(), xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, base); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// renderLabel draws the mark at 1x: a diamond glyph, then the text with
// a drop shadow and a vertical gradient fill.
func renderLabel() *image.RGBA {
	face := basicfont.Face7x13
	glyphSize := face.Height
	gap := 3
	textWidth := font.MeasureString(face, watermarkText).Ceil()

	width := glyphSize + gap + textWidth + 1 // +1 for the shadow offset
	height := face.Height + 1
	label := image.NewRGBA(image.Rect(0, 0, width, height))

	drawDiamond(label, glyphSize)

	textOrigin := fixed.P(glyphSize+gap, face.Ascent)

	// shadow first, offset down-right
	shadow := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(markShadow),
		Face: face,
		Dot:  textOrigin.Add(fixed.P(1, 1)),
	}
	shadow.DrawString(watermarkText)

	// gradient fill through the glyph mask
	mask := image.NewAlpha(label.Bounds())
	masked := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(color.Opaque),
		Face: face,
		Dot:  textOrigin,
	}
	masked.DrawString(watermarkText)
	xdraw.DrawMask(label, label.Bounds(), verticalGradient{height: height}, image.Point{}, mask, image.Point{}, xdraw.Over)

	return label
}

// drawDiamond fills a small four-pointed diamond sized to the text.
func drawDiamond(dst *image.RGBA, size int) {
	r := size / 2
	cx, cy := r, size/2
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if abs(dx)+abs(dy) > r {
				continue
			}
			t := float64(dy+r) / float64(2*r)
			dst.Set(cx+dx, cy+dy, lerpColor(markTop, markBottom, t))
		}
	}
}

// verticalGradient is an image.Image fading markTop to markBottom.
type verticalGradient struct {
	height int
}

func (verticalGradient) ColorModel() color.Model { return color.NRGBAModel }

func (g verticalGradient) Bounds() image.Rectangle {
	return image.Rect(0, 0, 1<<16, g.height)
}

func (g verticalGradient) At(_, y int) color.Color {
	t := float64(y) / float64(g.height-1)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return lerpColor(markTop, markBottom, t)
}

func lerpColor(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.NRGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: lerp(a.A, b.A),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
