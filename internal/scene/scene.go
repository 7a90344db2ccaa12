// Package scene holds the in-memory scene graph the configurator edits:
// a single model root of named nodes, their meshes and materials.
package scene

import (
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
)

// Scene is the container of renderable objects. It owns at most one model
// root at a time.
type Scene struct {
	Background color.NRGBA
	Ambient    AmbientLight
	root       *Node
}

// AmbientLight lights every surface uniformly.
type AmbientLight struct {
	Color     mgl32.Vec3
	Intensity float32
}

// New returns an empty scene with a white background and a white ambient
// light.
func New() *Scene {
	return &Scene{
		Background: color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		Ambient:    AmbientLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 1},
	}
}

// Root returns the attached model root, or nil.
func (s *Scene) Root() *Node { return s.root }

// Replace attaches root in place of the current model and returns the
// detached one. Passing nil only detaches.
func (s *Scene) Replace(root *Node) *Node {
	old := s.root
	if old != nil {
		old.parent = nil
	}
	if root != nil {
		root.Detach()
	}
	s.root = root
	return old
}

// FindByName searches the attached model for a node named name.
func (s *Scene) FindByName(name string) *Node {
	if s.root == nil {
		return nil
	}
	return s.root.FindByName(name)
}

// Node is an element of the scene graph. The local transform is
// translation * rotation * scale.
type Node struct {
	Name        string
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
	Mesh        *Mesh
	Children    []*Node

	parent *Node
}

// NewNode returns a node with the identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Add appends child, detaching it from its previous parent.
func (n *Node) Add(child *Node) {
	child.Detach()
	child.parent = n
	n.Children = append(n.Children, child)
}

// Detach removes n from its parent.
func (n *Node) Detach() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Local returns the node's transform relative to its parent.
func (n *Node) Local() mgl32.Mat4 {
	t := mgl32.Translate3D(n.Translation.X(), n.Translation.Y(), n.Translation.Z())
	r := n.Rotation.Normalize().Mat4()
	s := mgl32.Scale3D(n.Scale.X(), n.Scale.Y(), n.Scale.Z())
	return t.Mul4(r).Mul4(s)
}

// World returns the node's transform relative to the scene root.
func (n *Node) World() mgl32.Mat4 {
	m := n.Local()
	for p := n.parent; p != nil; p = p.parent {
		m = p.Local().Mul4(m)
	}
	return m
}

// SetMatrix decomposes a TRS matrix into the node's transform. Shear is lost.
func (n *Node) SetMatrix(m mgl32.Mat4) {
	n.Translation = m.Col(3).Vec3()
	sx := m.Col(0).Vec3().Len()
	sy := m.Col(1).Vec3().Len()
	sz := m.Col(2).Vec3().Len()
	if m.Mat3().Det() < 0 {
		sx = -sx
	}
	n.Scale = mgl32.Vec3{sx, sy, sz}
	var r mgl32.Mat4
	r.SetCol(0, m.Col(0).Mul(1/nonZero(sx)))
	r.SetCol(1, m.Col(1).Mul(1/nonZero(sy)))
	r.SetCol(2, m.Col(2).Mul(1/nonZero(sz)))
	r.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	n.Rotation = mgl32.Mat4ToQuat(r).Normalize()
}

func nonZero(v float32) float32 {
	if v == 0 {
		return 1
	}
	return v
}

// FindByName returns the first node named name in a depth-first walk of n's
// subtree, n included.
func (n *Node) FindByName(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.Name == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// Walk visits n and its descendants depth-first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Mesh is a set of primitives drawn with the node's world transform.
type Mesh struct {
	Name       string
	Primitives []*Primitive
}

// Primitive is an indexed triangle list.
type Primitive struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2
	Indices   []uint32
	Material  *Material
}

// Triangles returns the vertex indices of every triangle.
func (p *Primitive) Triangles() [][3]uint32 {
	if len(p.Indices) == 0 {
		out := make([][3]uint32, 0, len(p.Positions)/3)
		for i := 0; i+2 < len(p.Positions); i += 3 {
			out = append(out, [3]uint32{uint32(i), uint32(i + 1), uint32(i + 2)})
		}
		return out
	}
	out := make([][3]uint32, 0, len(p.Indices)/3)
	for i := 0; i+2 < len(p.Indices); i += 3 {
		out = append(out, [3]uint32{p.Indices[i], p.Indices[i+1], p.Indices[i+2]})
	}
	return out
}

// Material is a metallic-roughness material. BaseColor is linear RGBA.
type Material struct {
	Name             string
	BaseColor        mgl32.Vec4
	Metallic         float32
	Roughness        float32
	BaseColorTexture *Texture
	Unlit            bool
	DoubleSided      bool
}

// NewMaterial returns a material with glTF defaults.
func NewMaterial(name string) *Material {
	return &Material{
		Name:      name,
		BaseColor: mgl32.Vec4{1, 1, 1, 1},
		Metallic:  1,
		Roughness: 1,
	}
}

// Clone returns a shallow copy of m. The texture is shared.
func (m *Material) Clone() *Material {
	c := *m
	return &c
}

// Texture is an encoded image plus its decoded raster.
type Texture struct {
	Name     string
	MimeType string
	Encoded  []byte
	Image    image.Image
}

// Average returns the mean color of the texture, or white when the raster
// is missing.
func (t *Texture) Average() color.NRGBA {
	if t == nil || t.Image == nil {
		return color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	b := t.Image.Bounds()
	if b.Empty() {
		return color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	// Sample at most 64x64 points.
	stepX := max(1, b.Dx()/64)
	stepY := max(1, b.Dy()/64)
	var r, g, bl, a, n uint64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c := color.NRGBAModel.Convert(t.Image.At(x, y)).(color.NRGBA)
			r += uint64(c.R)
			g += uint64(c.G)
			bl += uint64(c.B)
			a += uint64(c.A)
			n++
		}
	}
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: uint8(a / n)}
}

// Materials returns the distinct materials used under n, with the number of
// primitives referencing each.
func Materials(n *Node) map[*Material]int {
	out := make(map[*Material]int)
	n.Walk(func(c *Node) bool {
		if c.Mesh == nil {
			return true
		}
		for _, p := range c.Mesh.Primitives {
			if p.Material != nil {
				out[p.Material]++
			}
		}
		return true
	})
	return out
}
