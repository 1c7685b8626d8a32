// Package qrshare renders the QR share card: a high-ECC QR code with
// a central badge of two overlapping circle outlines, the project
// mark. ECC level H survives the covered center modules.
//
// All drawing happens in-memory on an RGBA canvas so the card can be
// streamed straight to the response writer.
package qrshare

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// Options controls the card's size and palette. Zero values fall back
// to the defaults applied inside EncodePNG.
type Options struct {
	// Output size (px).
	TargetPx int

	// Colors.
	Fg    color.RGBA // QR modules
	Bg    color.RGBA // background, including the quiet zone
	Badge color.RGBA // the two-circle mark

	// Central square reserved for the badge, as a fraction of the
	// image edge. Clamped to 0.20..0.40 so the QR stays readable.
	BadgeBoxFrac float64
}

// EncodePNG writes the share card for the given URL.
func EncodePNG(w io.Writer, url string, opt Options) error {
	if opt.TargetPx <= 0 {
		opt.TargetPx = 1400
	}
	if opt.BadgeBoxFrac <= 0 {
		opt.BadgeBoxFrac = 0.30
	}
	if opt.BadgeBoxFrac < 0.20 {
		opt.BadgeBoxFrac = 0.20
	}
	if opt.BadgeBoxFrac > 0.40 {
		opt.BadgeBoxFrac = 0.40
	}
	if (opt.Fg == color.RGBA{}) {
		opt.Fg = color.RGBA{0, 0, 0, 255}
	}
	if (opt.Bg == color.RGBA{}) {
		opt.Bg = color.RGBA{255, 255, 255, 255}
	}
	if (opt.Badge == color.RGBA{}) {
		opt.Badge = color.RGBA{0x1E, 0x5A, 0xA8, 0xFF}
	}

	qr, err := qrcode.New(url, qrcode.Highest)
	if err != nil {
		return err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg
	qr.DisableBorder = false

	src := qr.Image(opt.TargetPx)
	b := src.Bounds()
	W, H := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, W, H))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{opt.Bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)

	// Clear the central box and draw the mark into it.
	box := int(opt.BadgeBoxFrac * float64(min(W, H)))
	if box%2 == 1 {
		box--
	}
	if box < W/6 {
		box = W / 6
	}
	cx, cy := W/2, H/2
	fillRect(dst, cx-box/2, cy-box/2, box, box, opt.Bg)
	drawBadge(dst, cx, cy, box, opt.Badge)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, dst)
}

// drawBadge draws two overlapping circle outlines, offset left and
// right of center the way two Apollonius disks overlap on the page.
func drawBadge(dst *image.RGBA, cx, cy, box int, col color.RGBA) {
	r := int(0.30 * float64(box))
	offset := int(0.17 * float64(box))
	stroke := box / 24
	if stroke < 2 {
		stroke = 2
	}
	ring(dst, cx-offset, cy, r, stroke, col)
	ring(dst, cx+offset, cy, r, stroke, col)
}

// ring fills the band between r-stroke and r around (cx, cy).
func ring(img *image.RGBA, cx, cy, r, stroke int, col color.RGBA) {
	if r <= 0 || stroke <= 0 {
		return
	}
	ri := r - stroke
	if ri < 0 {
		ri = 0
	}
	ro2 := r * r
	ri2 := ri * ri
	b := img.Bounds()
	minX := max(cx-r, b.Min.X)
	maxX := min(cx+r, b.Max.X-1)
	minY := max(cy-r, b.Min.Y)
	maxY := min(cy+r, b.Max.Y-1)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := x - cx
			dy := y - cy
			d2 := dx*dx + dy*dy
			if d2 <= ro2 && d2 >= ri2 {
				img.Set(x, y, col)
			}
		}
	}
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			img.Set(xx, yy, col)
		}
	}
}
