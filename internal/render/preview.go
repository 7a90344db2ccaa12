// Package render draws the configurator scene into PNG previews for the
// web page and keeps them in step with the session.
package render

import (
	"bytes"
	"cmp"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"slices"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/vector"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Share of the light that does not depend on the surface orientation.
const ambientShare = 0.35

// face is a projected triangle ready for filling.
type face struct {
	pts   [3]mgl32.Vec2
	depth float32
	fill  color.NRGBA
}

// Draw rasterizes sc as seen by cam into a w×h image. Triangles are
// flat-shaded and painted back to front.
func Draw(sc *scene.Scene, cam *camera.Camera, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(sc.Background), image.Point{}, draw.Src)
	root := sc.Root()
	if root == nil || w <= 0 || h <= 0 {
		return dst
	}

	light := sc.Ambient.Color.Mul(sc.Ambient.Intensity)
	vp := cam.ViewProjection()
	var faces []face
	root.Walk(func(n *scene.Node) bool {
		if n.Mesh == nil {
			return true
		}
		world := n.World()
		mvp := vp.Mul4(world)
		for _, p := range n.Mesh.Primitives {
			faces = appendFaces(faces, p, world, mvp, cam.Position, light, w, h)
		}
		return true
	})

	slices.SortFunc(faces, func(a, b face) int { return cmp.Compare(b.depth, a.depth) })
	var r vector.Rasterizer
	for _, f := range faces {
		fill(dst, &r, f)
	}
	return dst
}

func appendFaces(out []face, p *scene.Primitive, world, mvp mgl32.Mat4, eye, light mgl32.Vec3, w, h int) []face {
	base := surfaceColor(p.Material)
	unlit := p.Material != nil && p.Material.Unlit
	doubleSided := p.Material != nil && p.Material.DoubleSided
	n := uint32(len(p.Positions))

tris:
	for _, t := range p.Triangles() {
		if t[0] >= n || t[1] >= n || t[2] >= n {
			continue
		}
		var f face
		var wp [3]mgl32.Vec3
		for i, vi := range t {
			v := p.Positions[vi]
			wp[i] = mgl32.TransformCoordinate(v, world)
			clip := mvp.Mul4x1(v.Vec4(1))
			if clip.W() <= 0 {
				continue tris
			}
			ndc := clip.Vec3().Mul(1 / clip.W())
			if ndc.Z() < -1 || ndc.Z() > 1 {
				continue tris
			}
			f.pts[i] = mgl32.Vec2{(ndc.X() + 1) / 2 * float32(w), (1 - ndc.Y()) / 2 * float32(h)}
			f.depth += ndc.Z() / 3
		}

		normal := wp[1].Sub(wp[0]).Cross(wp[2].Sub(wp[0]))
		if normal.Len() == 0 {
			continue
		}
		normal = normal.Normalize()
		centroid := wp[0].Add(wp[1]).Add(wp[2]).Mul(1.0 / 3)
		toEye := eye.Sub(centroid).Normalize()
		facing := normal.Dot(toEye)
		if facing < 0 && !doubleSided {
			continue
		}

		c := base
		if !unlit {
			k := ambientShare + (1-ambientShare)*math32.Abs(facing)
			c = mgl32.Vec4{c.X() * light.X() * k, c.Y() * light.Y() * k, c.Z() * light.Z() * k, c.W()}
		}
		f.fill = toNRGBA(c)
		out = append(out, f)
	}
	return out
}

// surfaceColor returns the linear color a material shows from afar: its base
// color modulated by the mean color of its texture.
func surfaceColor(m *scene.Material) mgl32.Vec4 {
	if m == nil {
		return mgl32.Vec4{1, 1, 1, 1}
	}
	c := m.BaseColor
	if m.BaseColorTexture != nil {
		avg := m.BaseColorTexture.Average()
		tex, _ := colorful.MakeColor(color.NRGBA{R: avg.R, G: avg.G, B: avg.B, A: 0xFF})
		r, g, b := tex.LinearRgb()
		c = mgl32.Vec4{c.X() * float32(r), c.Y() * float32(g), c.Z() * float32(b), c.W() * float32(avg.A) / 0xFF}
	}
	return c
}

func toNRGBA(c mgl32.Vec4) color.NRGBA {
	r, g, b := colorful.LinearRgb(float64(c.X()), float64(c.Y()), float64(c.Z())).Clamped().RGB255()
	a := mgl32.Clamp(c.W(), 0, 1)
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math32.Round(a * 0xFF))}
}

// fill paints one triangle, rasterizing only its bounding box.
func fill(dst *image.NRGBA, r *vector.Rasterizer, f face) {
	lo, hi := f.pts[0], f.pts[0]
	for _, p := range f.pts[1:] {
		lo = mgl32.Vec2{min(lo.X(), p.X()), min(lo.Y(), p.Y())}
		hi = mgl32.Vec2{max(hi.X(), p.X()), max(hi.Y(), p.Y())}
	}
	box := image.Rect(
		int(math32.Floor(lo.X())), int(math32.Floor(lo.Y())),
		int(math32.Ceil(hi.X())), int(math32.Ceil(hi.Y())),
	).Intersect(dst.Bounds())
	if box.Empty() {
		return
	}
	ox, oy := float32(box.Min.X), float32(box.Min.Y)
	r.Reset(box.Dx(), box.Dy())
	r.MoveTo(f.pts[0].X()-ox, f.pts[0].Y()-oy)
	r.LineTo(f.pts[1].X()-ox, f.pts[1].Y()-oy)
	r.LineTo(f.pts[2].X()-ox, f.pts[2].Y()-oy)
	r.ClosePath()
	r.Draw(dst, box, image.NewUniform(f.fill), image.Point{})
}

// EncodePNG encodes img favoring speed over size.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Preview holds the latest encoded frame.
type Preview struct {
	mu      sync.RWMutex
	png     []byte
	version uint64
}

// PNG returns the latest frame and the session version it shows. data is
// nil until the first frame is drawn.
func (p *Preview) PNG() (data []byte, version uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.png, p.version
}

func (p *Preview) store(data []byte, version uint64) {
	p.mu.Lock()
	p.png, p.version = data, version
	p.mu.Unlock()
}
