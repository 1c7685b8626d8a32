// Package render turns a computed scene into a poster PNG: the overlap
// mask painted as filled cells, every Apollonius circle outlined, the
// generator lattice dotted, the anchor marked, and a caption strip at
// the bottom with the parameters and overlap fraction.
//
// The poster draws at 2x and downsamples with Catmull-Rom so circle
// outlines stay smooth without per-pixel anti-aliasing code.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"apollonius-overlap-map/pkg/apollonius"
	"apollonius-overlap-map/pkg/raster"
	"apollonius-overlap-map/pkg/scene"
)

// Options configures poster output. Zero values become defaults.
type Options struct {
	Width   int // output width (px)
	Height  int // output height (px), caption strip included
	Caption string
}

var (
	colorPaper   = color.RGBA{250, 250, 248, 255}
	colorFrame   = color.RGBA{60, 60, 60, 255}
	colorOverlap = color.RGBA{255, 122, 61, 255}
	colorCircle  = color.RGBA{30, 90, 168, 96}
	colorLattice = color.RGBA{120, 120, 120, 255}
	colorAnchor  = color.RGBA{200, 30, 30, 255}
	colorText    = color.RGBA{51, 51, 51, 255}
)

const captionStrip = 56 // caption band height at output scale (px)

// Poster renders res into w as a PNG.
func Poster(w io.Writer, res *scene.Result, opt Options) error {
	if opt.Width <= 0 {
		opt.Width = 1000
	}
	if opt.Height <= 0 {
		opt.Height = 1000 + captionStrip
	}
	if opt.Caption == "" {
		opt.Caption = defaultCaption(res)
	}

	const scale = 2
	big := image.NewRGBA(image.Rect(0, 0, opt.Width*scale, opt.Height*scale))
	paint(big, res, opt.Caption, scale)

	out := image.NewRGBA(image.Rect(0, 0, opt.Width, opt.Height))
	draw.CatmullRom.Scale(out, out.Bounds(), big, big.Bounds(), draw.Over, nil)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, out)
}

func defaultCaption(res *scene.Result) string {
	p := res.Params
	mode := p.Mode
	if mode == scene.ModeFixed {
		mode = fmt.Sprintf("k=%g", p.K)
	}
	return fmt.Sprintf("anchor (%g, %g)  %s  circles %d  overlap %.4f",
		p.Ax, p.Ay, mode, res.CircleCount, res.OverlapFraction)
}

// view maps world coordinates into the plot rectangle.
type view struct {
	b       raster.Bounds
	x0, y0  float64 // plot origin (px)
	sx, sy  float64 // px per world unit
	plotW   float64
	plotH   float64
	originY float64 // bottom of the plot, Y axis points up in world space
}

func newView(b raster.Bounds, plotX, plotY, plotW, plotH float64) view {
	w := b.MaxX - b.MinX
	h := b.MaxY - b.MinY
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return view{
		b: b, x0: plotX, y0: plotY,
		sx: plotW / w, sy: plotH / h,
		plotW: plotW, plotH: plotH,
		originY: plotY + plotH,
	}
}

func (v view) px(x, y float64) (float64, float64) {
	return v.x0 + (x-v.b.MinX)*v.sx, v.originY - (y-v.b.MinY)*v.sy
}

func paint(img *image.RGBA, res *scene.Result, caption string, scale int) {
	b := img.Bounds()
	draw.Draw(img, b, &image.Uniform{colorPaper}, image.Point{}, draw.Src)

	margin := float64(30 * scale)
	strip := float64(captionStrip * scale)
	plotX := margin
	plotY := margin
	plotW := float64(b.Dx()) - 2*margin
	plotH := float64(b.Dy()) - 2*margin - strip
	v := newView(res.Bounds, plotX, plotY, plotW, plotH)

	paintMask(img, res, v)
	for _, c := range res.Circles {
		paintCircle(img, v, c)
	}
	paintLattice(img, res, v, scale)
	paintAnchor(img, v, res.Params.Ax, res.Params.Ay, scale)

	// Frame around the plot.
	strokeRect(img, int(plotX), int(plotY), int(plotW), int(plotH), scale, colorFrame)

	face := newFace(14 * float64(scale))
	ax, ay := v.px(res.Params.Ax, res.Params.Ay)
	drawText(img, face, int(ax)+8*scale, int(ay)-8*scale, "A", colorAnchor)
	drawText(img, face, int(plotX), b.Dy()-int(strip)/2, caption, colorText)
}

// paintMask fills every inside cell of the overlap mask.
func paintMask(img *image.RGBA, res *scene.Result, v view) {
	n := len(res.Xs)
	if n == 0 || res.NoCircles {
		return
	}
	// Cell size: one mesh step in each direction.
	hx := v.sx
	hy := v.sy
	if n > 1 {
		hx = (res.Xs[1] - res.Xs[0]) * v.sx
		hy = (res.Ys[1] - res.Ys[0]) * v.sy
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if !res.Mask[j*n+i] {
				continue
			}
			px, py := v.px(res.Xs[i], res.Ys[j])
			fillRect(img,
				int(px-hx/2), int(py-hy/2),
				int(math.Ceil(hx))+1, int(math.Ceil(hy))+1,
				colorOverlap)
		}
	}
}

func paintCircle(img *image.RGBA, v view, c apollonius.Circle) {
	cx, cy := v.px(c.X, c.Y)
	rx := c.R * v.sx
	ry := c.R * v.sy
	// March the outline; step count follows the larger radius.
	steps := int(2*math.Pi*math.Max(rx, ry)) + 16
	for s := 0; s < steps; s++ {
		a := 2 * math.Pi * float64(s) / float64(steps)
		setClipped(img, int(cx+rx*math.Cos(a)), int(cy+ry*math.Sin(a)), colorCircle)
	}
}

func paintLattice(img *image.RGBA, res *scene.Result, v view, scale int) {
	pts := res.Params.Grid().Points()
	r := 2 * scale
	for _, p := range pts {
		px, py := v.px(p.X, p.Y)
		fillDisc(img, int(px), int(py), r, colorLattice)
	}
}

func paintAnchor(img *image.RGBA, v view, ax, ay float64, scale int) {
	px, py := v.px(ax, ay)
	arm := 6 * scale
	th := scale
	fillRect(img, int(px)-arm, int(py)-th, 2*arm, 2*th, colorAnchor)
	fillRect(img, int(px)-th, int(py)-arm, 2*th, 2*arm, colorAnchor)
}

func strokeRect(img *image.RGBA, x, y, w, h, th int, col color.RGBA) {
	fillRect(img, x, y, w, th, col)
	fillRect(img, x, y+h-th, w, th, col)
	fillRect(img, x, y, th, h, col)
	fillRect(img, x+w-th, y, th, h, col)
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			setClipped(img, xx, yy, col)
		}
	}
}

func fillDisc(img *image.RGBA, cx, cy, r int, col color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				setClipped(img, cx+dx, cy+dy, col)
			}
		}
	}
}

func setClipped(img *image.RGBA, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		if col.A < 255 {
			img.Set(x, y, blend(img.RGBAAt(x, y), col))
			return
		}
		img.SetRGBA(x, y, col)
	}
}

func blend(dst, src color.RGBA) color.RGBA {
	a := uint32(src.A)
	ia := 255 - a
	return color.RGBA{
		R: uint8((uint32(src.R)*a + uint32(dst.R)*ia) / 255),
		G: uint8((uint32(src.G)*a + uint32(dst.G)*ia) / 255),
		B: uint8((uint32(src.B)*a + uint32(dst.B)*ia) / 255),
		A: 255,
	}
}

func newFace(size float64) font.Face {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		panic(err) // embedded font, cannot fail
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		panic(err)
	}
	return face
}

func drawText(img *image.RGBA, face font.Face, x, y int, s string, col color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{col},
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}
