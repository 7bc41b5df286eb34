package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // decoder registration
	"image/jpeg"
	_ "image/png" // decoder registration
	"regexp"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// The OCR provider reports coordinates on a 0..999 grid and places boxes
// slightly low; y is corrected by y*yScale + yOffset*height.
const (
	coordRange = 999
	yScale     = 0.97
	yOffset    = -0.01

	fillAlpha   = 64
	borderWidth = 2
	jpegQuality = 90
)

// ErrImageDecode indicates the visualization source is not a decodable image.
var ErrImageDecode = fmt.Errorf("%w: unsupported or corrupt image", domain.ErrValidation)

// boxPattern matches "<|ref|>label<|/ref|><|det|>[[x1,y1,x2,y2]]" as emitted by
// the provider, and the bare "<label>[[x1,y1,x2,y2]]" form.
var boxPattern = regexp.MustCompile(
	`<(?:\|ref\|>(.*?)<\|/ref\|>\s*<\|det\|>|([^<>|\[\]]+)>)\s*\[\[\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\]\]`,
)

// palette cycles through the box colors.
var palette = []color.RGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 70, G: 240, B: 240, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
	{R: 128, G: 128, B: 0, A: 255},
}

// BoundingBox is one labelled region on the provider's 0..999 grid.
type BoundingBox struct {
	Label string `json:"label"`
	X1    int    `json:"x1"`
	Y1    int    `json:"y1"`
	X2    int    `json:"x2"`
	Y2    int    `json:"y2"`
}

// ParseBoundingBoxes returns the boxes of s in encounter order.
func ParseBoundingBoxes(s string) []BoundingBox {
	matches := boxPattern.FindAllStringSubmatch(s, -1)
	boxes := make([]BoundingBox, 0, len(matches))
	for _, m := range matches {
		label := m[1]
		if label == "" {
			label = m[2]
		}
		coords := [4]int{}
		for i := range coords {
			coords[i], _ = strconv.Atoi(m[3+i])
		}
		boxes = append(boxes, BoundingBox{
			Label: label,
			X1:    coords[0],
			Y1:    coords[1],
			X2:    coords[2],
			Y2:    coords[3],
		})
	}
	return boxes
}

// DrawBoundingBoxes draws semi-transparent numbered boxes onto a copy of img
// and returns it as JPEG.
func DrawBoundingBoxes(img []byte, boxes []BoundingBox) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()
	for i, box := range boxes {
		rect := toPixels(box, w, h)
		if rect.Empty() {
			continue
		}
		c := palette[i%len(palette)]

		fill := c
		fill.A = fillAlpha
		draw.Draw(canvas, rect, image.NewUniform(premultiply(fill)), image.Point{}, draw.Over)
		drawBorder(canvas, rect, c)
		drawNumber(canvas, rect.Min, i+1, c)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: failed to encode visualization: %v", domain.ErrInternal, err)
	}
	return buf.Bytes(), nil
}

// toPixels maps a grid box onto a w×h image, applying the vertical correction.
func toPixels(box BoundingBox, w, h int) image.Rectangle {
	scaleX := func(v int) int { return v * w / coordRange }
	scaleY := func(v int) int {
		y := float64(v*h/coordRange)*yScale + yOffset*float64(h)
		return int(y)
	}
	r := image.Rect(scaleX(box.X1), scaleY(box.Y1), scaleX(box.X2), scaleY(box.Y2))
	return r.Intersect(image.Rect(0, 0, w, h))
}

func drawBorder(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth),
		image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y),
		image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

// drawNumber writes n on a filled tag at the box's top-left corner.
func drawNumber(dst *image.RGBA, at image.Point, n int, c color.RGBA) {
	face := basicfont.Face7x13
	label := strconv.Itoa(n)
	width := font.MeasureString(face, label).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	tag := image.Rect(at.X, at.Y, at.X+width, at.Y+height).Intersect(dst.Bounds())
	draw.Draw(dst, tag, image.NewUniform(c), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(at.X+2, at.Y+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(label)
}

func premultiply(c color.RGBA) color.RGBA {
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 255),
		G: uint8(uint32(c.G) * a / 255),
		B: uint8(uint32(c.B) * a / 255),
		A: c.A,
	}
}
