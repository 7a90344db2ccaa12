package geometry

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Box is an axis-aligned bounding box in world space.
type Box struct {
	Min, Max mgl32.Vec3
}

// EmptyBox returns a box that contains nothing; expanding it by any point
// yields that point.
func EmptyBox() Box {
	inf := math32.Inf(1)
	return Box{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether b contains no point.
func (b Box) IsEmpty() bool {
	return b.Max.X() < b.Min.X() || b.Max.Y() < b.Min.Y() || b.Max.Z() < b.Min.Z()
}

// ExpandByPoint grows b to contain p.
func (b Box) ExpandByPoint(p mgl32.Vec3) Box {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Size returns the box extent along each axis, zero when empty.
func (b Box) Size() mgl32.Vec3 {
	if b.IsEmpty() {
		return mgl32.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the middle of the box, the origin when empty.
func (b Box) Center() mgl32.Vec3 {
	if b.IsEmpty() {
		return mgl32.Vec3{}
	}
	return b.Min.Add(b.Max).Mul(0.5)
}

// BoxOf returns the world-space bounds of every vertex under root.
func BoxOf(root *scene.Node) Box {
	box := EmptyBox()
	if root == nil {
		return box
	}
	root.Walk(func(n *scene.Node) bool {
		if n.Mesh == nil {
			return true
		}
		world := n.World()
		for _, p := range n.Mesh.Primitives {
			for _, v := range p.Positions {
				box = box.ExpandByPoint(mgl32.TransformCoordinate(v, world))
			}
		}
		return true
	})
	return box
}
