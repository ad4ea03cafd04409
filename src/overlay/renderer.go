package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"strings"
	"sync"

	"screen-region-capture/src/coords"
	"screen-region-capture/src/display"
	"screen-region-capture/src/geometry"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Style controls overlay colours and sizes. Lengths are in points and are
// multiplied by the display scale factor when drawn.
type Style struct {
	Scrim           color.RGBA
	Border          color.RGBA
	Handle          color.RGBA
	LabelBackground color.RGBA
	LabelText       color.RGBA
	BorderWidth     float64
	HandleSize      float64
	LabelPadding    float64
	LabelGap        float64
	FontSize        float64
}

// DefaultStyle is a dim scrim with a blue outline.
func DefaultStyle() Style {
	return Style{
		Scrim:           color.RGBA{A: 0x66},
		Border:          color.RGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff},
		Handle:          color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		LabelBackground: color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xe0},
		LabelText:       color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		BorderWidth:     2,
		HandleSize:      8,
		LabelPadding:    4,
		LabelGap:        6,
		FontSize:        12,
	}
}

// Renderer draws the selection overlay for one display per call. It keeps no
// per-frame state; only font faces are cached.
type Renderer struct {
	style Style

	mu    sync.Mutex
	faces map[float64]font.Face
}

func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style, faces: make(map[float64]font.Face)}
}

var (
	goFontOnce sync.Once
	goFont     *opentype.Font
	goFontErr  error
)

// Render produces a full-display frame in device pixels. A nil selection draws
// the bare scrim. Frames should be returned with RecycleFrame once presented.
func (r *Renderer) Render(sel *geometry.InteractionRect, d display.Descriptor) *image.RGBA {
	w, h := d.PixelSize()
	frame := acquireFrame(image.Rect(0, 0, w, h))
	bounds := frame.Bounds()
	fillRect(frame, bounds, r.style.Scrim)
	if sel == nil {
		return frame
	}

	box := SelectionPixels(*sel, d).Intersect(bounds)
	if box.Empty() {
		return frame
	}
	scale := d.ScaleFactor
	if scale <= 0 {
		scale = 1
	}

	fillRect(frame, box, color.RGBA{})
	r.strokeRect(frame, box, px(r.style.BorderWidth, scale))
	r.drawHandles(frame, box, px(r.style.HandleSize, scale))
	r.drawLabel(frame, box, DimensionLabel(*sel), scale)
	return frame
}

// Recycle returns a presented frame to the frame pool.
func (r *Renderer) Recycle(frame *image.RGBA) { RecycleFrame(frame) }

// SelectionPixels maps an interaction-space selection to a pixel rectangle
// on the display's overlay frame (top-left origin).
func SelectionPixels(sel geometry.InteractionRect, d display.Descriptor) image.Rectangle {
	local := coords.ToDisplaySpace(sel, d)
	s := d.ScaleFactor
	if s <= 0 {
		s = 1
	}
	return image.Rect(
		int(math.Round(local.X*s)),
		int(math.Round(local.Y*s)),
		int(math.Round(local.MaxX()*s)),
		int(math.Round(local.MaxY()*s)),
	)
}

// DimensionLabel formats the selection size in points, e.g. "300 × 150".
func DimensionLabel(sel geometry.InteractionRect) string {
	n := sel.Normalize()
	return fmt.Sprintf("%d × %d", int(math.Round(n.Width)), int(math.Round(n.Height)))
}

// PlaceLabel positions a label of the given size above sel, falling back to
// below it and then inside its top edge, and keeps the result inside bounds.
func PlaceLabel(sel image.Rectangle, size image.Point, bounds image.Rectangle, gap int) image.Rectangle {
	x := sel.Min.X
	y := sel.Min.Y - gap - size.Y
	if y < bounds.Min.Y {
		y = sel.Max.Y + gap
		if y+size.Y > bounds.Max.Y {
			y = sel.Min.Y + gap
		}
	}
	x = clampInt(x, bounds.Min.X, bounds.Max.X-size.X)
	y = clampInt(y, bounds.Min.Y, bounds.Max.Y-size.Y)
	return image.Rect(x, y, x+size.X, y+size.Y)
}

func (r *Renderer) strokeRect(dst *image.RGBA, box image.Rectangle, width int) {
	if width <= 0 {
		return
	}
	c := r.style.Border
	fillRect(dst, image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+width), c)
	fillRect(dst, image.Rect(box.Min.X, box.Max.Y-width, box.Max.X, box.Max.Y), c)
	fillRect(dst, image.Rect(box.Min.X, box.Min.Y, box.Min.X+width, box.Max.Y), c)
	fillRect(dst, image.Rect(box.Max.X-width, box.Min.Y, box.Max.X, box.Max.Y), c)
}

func (r *Renderer) drawHandles(dst *image.RGBA, box image.Rectangle, size int) {
	if size <= 0 {
		return
	}
	half := size / 2
	corners := []image.Point{
		box.Min,
		{X: box.Max.X, Y: box.Min.Y},
		{X: box.Min.X, Y: box.Max.Y},
		box.Max,
	}
	for _, c := range corners {
		outer := image.Rect(c.X-half, c.Y-half, c.X-half+size, c.Y-half+size)
		fillRect(dst, outer, r.style.Border)
		fillRect(dst, outer.Inset(1), r.style.Handle)
	}
}

func (r *Renderer) drawLabel(dst *image.RGBA, box image.Rectangle, text string, scale float64) {
	face, ascii := r.face(scale)
	if ascii {
		text = strings.ReplaceAll(text, "×", "x")
	}
	drawer := &font.Drawer{Face: face}
	advance := drawer.MeasureString(text).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	textHeight := ascent + metrics.Descent.Ceil()
	pad := px(r.style.LabelPadding, scale)

	size := image.Pt(advance+2*pad, textHeight+2*pad)
	label := PlaceLabel(box, size, dst.Bounds(), px(r.style.LabelGap, scale))
	fillRect(dst, label, r.style.LabelBackground)

	drawer.Dst = dst
	drawer.Src = image.NewUniform(r.style.LabelText)
	drawer.Dot = fixed.P(label.Min.X+pad, label.Min.Y+pad+ascent)
	drawer.DrawString(text)
}

// face returns a Go Regular face for the scale. When the embedded font cannot
// be loaded it falls back to the fixed 7x13 face, which has ASCII glyphs only.
func (r *Renderer) face(scale float64) (font.Face, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[scale]; ok {
		return f, f == basicfont.Face7x13
	}

	goFontOnce.Do(func() {
		goFont, goFontErr = opentype.Parse(goregular.TTF)
	})
	var face font.Face = basicfont.Face7x13
	if goFontErr == nil {
		f, err := opentype.NewFace(goFont, &opentype.FaceOptions{
			Size:    r.style.FontSize,
			DPI:     72 * scale,
			Hinting: font.HintingFull,
		})
		if err != nil {
			log.Printf("OVERLAY: font face at scale %.2f: %v", scale, err)
		} else {
			face = f
		}
	} else {
		log.Printf("OVERLAY: parse embedded font: %v", goFontErr)
	}
	r.faces[scale] = face
	return face, face == basicfont.Face7x13
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func px(points, scale float64) int {
	return int(math.Round(points * scale))
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
