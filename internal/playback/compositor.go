// Package playback drives the real-time preview: a cooperative tick loop
// that advances the playhead, composites the active clip onto the output
// surface, and keeps audio elements in tolerant sync.
package playback

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

// Compositor draws the topmost active visual clip onto a surface sized to
// the project resolution.
type Compositor struct {
	width  int
	height int
}

func NewCompositor(width, height int) *Compositor {
	return &Compositor{width: width, height: height}
}

func (c *Compositor) NewSurface() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, c.width, c.height))
}

// FrameIndex selects the decoded frame for a clip-local time: floor of
// local time times the source rate, clamped into the decoded range, and
// mirrored when the clip plays reversed. frameCount may still be growing
// while extraction runs.
func FrameIndex(clipLocal, frameRate float64, frameCount int, reversed bool) int {
	if frameCount <= 0 {
		return -1
	}
	if frameRate <= 0 {
		frameRate = frames.DefaultFrameRate
	}
	idx := int(math.Floor(clipLocal * frameRate))
	if idx < 0 {
		idx = 0
	}
	if idx > frameCount-1 {
		idx = frameCount - 1
	}
	if reversed {
		idx = frameCount - idx - 1
	}
	return idx
}

// Render composites the frame for time t into dst. With no active visual
// clip the surface is cleared to black.
func (c *Compositor) Render(dst *image.RGBA, snap *timeline.Snapshot, lib *frames.Library, t float64) {
	xdraw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, xdraw.Src)

	clip, ok := snap.TopVisualClip(t)
	if !ok {
		return
	}
	asset := snap.Asset(clip.AssetID)
	if asset == nil {
		return
	}
	store := lib.Get(clip.AssetID)
	if store == nil {
		return
	}

	var frame image.Image
	if clip.Kind == timeline.KindImage {
		frame = store.Frame(0)
	} else {
		clipLocal := t - clip.StartTime + clip.Offset
		idx := FrameIndex(clipLocal, asset.FrameRate, store.Len(), clip.Reversed)
		if idx < 0 {
			return
		}
		frame = store.Frame(idx)
	}
	if frame == nil {
		return
	}

	c.drawFrame(dst, frame, clip.Transform)
}

// drawFrame applies cover fit then the user transform: translate to the
// clip-space center plus the user offset, rotate, scale, with opacity as a
// global alpha. The order matches how the transforms were authored.
func (c *Compositor) drawFrame(dst *image.RGBA, frame image.Image, tf timeline.Transform) {
	sb := frame.Bounds()
	srcW := float64(sb.Dx())
	srcH := float64(sb.Dy())
	if srcW == 0 || srcH == 0 {
		return
	}

	w := float64(c.width)
	h := float64(c.height)

	// Cover fit: scale to fill, center the overflow.
	canvasAspect := w / h
	srcAspect := srcW / srcH
	var drawW, drawH, offX, offY float64
	if srcAspect > canvasAspect {
		drawH = h
		drawW = drawH * srcAspect
		offX = (w - drawW) / 2
	} else {
		drawW = w
		drawH = drawW / srcAspect
		offY = (h - drawH) / 2
	}

	place := aff3Mul(aff3Translate(offX, offY), aff3Scale(drawW/srcW, drawH/srcH))

	cx := w/2 + tf.X
	cy := h/2 + tf.Y
	user := aff3Translate(cx, cy)
	user = aff3Mul(user, aff3Rotate(tf.Rotation*math.Pi/180))
	user = aff3Mul(user, aff3Scale(tf.Scale, tf.Scale))
	user = aff3Mul(user, aff3Translate(-cx, -cy))

	m := aff3Mul(user, place)

	var opts *xdraw.Options
	if tf.Opacity < 1 {
		a := tf.Opacity
		if a < 0 {
			a = 0
		}
		opts = &xdraw.Options{
			SrcMask: image.NewUniform(color.Alpha{A: uint8(a*255 + 0.5)}),
		}
	}

	xdraw.ApproxBiLinear.Transform(dst, m, frame, sb, xdraw.Over, opts)
}

func aff3Translate(x, y float64) f64.Aff3 {
	return f64.Aff3{1, 0, x, 0, 1, y}
}

func aff3Scale(sx, sy float64) f64.Aff3 {
	return f64.Aff3{sx, 0, 0, 0, sy, 0}
}

func aff3Rotate(rad float64) f64.Aff3 {
	sin, cos := math.Sincos(rad)
	return f64.Aff3{cos, -sin, 0, sin, cos, 0}
}

func aff3Mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
