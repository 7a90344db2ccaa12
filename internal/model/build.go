package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/unlit"
	"github.com/qmuntal/gltf/modeler"

	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Names of the sub-objects every frame model must contain.
const (
	FrameNode = "Frame"
	ImageNode = "Image"
)

// Vertex attribute names.
const (
	attrPosition  = "POSITION"
	attrNormal    = "NORMAL"
	attrTexCoord0 = "TEXCOORD_0"
)

// ErrMissingNode is returned when a model lacks a required sub-object.
var ErrMissingNode = errors.New("model is missing a required node")

// Build creates a fresh scene graph from d. Materials are created per call,
// so callers may mutate them; textures are shared with d.
func Build(d *Document) (*scene.Node, error) {
	b := &builder{
		d:         d,
		materials: make(map[int]*scene.Material),
		meshes:    make(map[int][]*scene.Primitive),
		visiting:  make(map[int]bool),
	}
	doc := d.GLTF

	root := scene.NewNode("Scene")
	var roots []int
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil {
			s = *doc.Scene
		}
		roots = doc.Scenes[s].Nodes
		if doc.Scenes[s].Name != "" {
			root.Name = doc.Scenes[s].Name
		}
	} else {
		roots = parentless(doc)
	}
	for _, i := range roots {
		n, err := b.node(i)
		if err != nil {
			return nil, err
		}
		root.Add(n)
	}
	if err := Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

// Validate checks that root contains the Frame and Image sub-objects.
func Validate(root *scene.Node) error {
	for _, name := range []string{FrameNode, ImageNode} {
		if root.FindByName(name) == nil {
			return fmt.Errorf("%w: %q", ErrMissingNode, name)
		}
	}
	return nil
}

func parentless(doc *gltf.Document) []int {
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

type builder struct {
	d         *Document
	materials map[int]*scene.Material
	meshes    map[int][]*scene.Primitive
	visiting  map[int]bool
}

var (
	identity     = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	noRotation   = [4]float64{0, 0, 0, 1}
	defaultScale = [3]float64{1, 1, 1}
)

func (b *builder) node(i int) (*scene.Node, error) {
	if b.visiting[i] {
		return nil, malformed("node %d is its own ancestor", i)
	}
	b.visiting[i] = true
	defer delete(b.visiting, i)

	src := b.d.GLTF.Nodes[i]
	n := scene.NewNode(src.Name)
	if m := src.Matrix; m != identity && m != [16]float64{} {
		n.SetMatrix(mat4(m))
	} else {
		n.Translation = vec3(src.Translation)
		if r := src.Rotation; r != noRotation && r != [4]float64{} {
			n.Rotation = mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
		}
		if s := src.Scale; s != defaultScale && s != [3]float64{} {
			n.Scale = vec3(s)
		}
	}
	if src.Mesh != nil {
		prims, err := b.mesh(*src.Mesh)
		if err != nil {
			return nil, err
		}
		// Each node gets its own Mesh so material swaps stay local.
		m := &scene.Mesh{Name: b.d.GLTF.Meshes[*src.Mesh].Name}
		for _, p := range prims {
			cp := *p
			m.Primitives = append(m.Primitives, &cp)
		}
		n.Mesh = m
	}
	for _, c := range src.Children {
		child, err := b.node(c)
		if err != nil {
			return nil, err
		}
		n.Add(child)
	}
	return n, nil
}

func (b *builder) mesh(i int) ([]*scene.Primitive, error) {
	if prims, ok := b.meshes[i]; ok {
		return prims, nil
	}
	doc := b.d.GLTF
	var prims []*scene.Primitive
	for k, p := range doc.Meshes[i].Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			debug.Verbose("Mesh %d primitive %d: mode %v not drawn", i, k, p.Mode)
			continue
		}
		pos, ok := p.Attributes[attrPosition]
		if !ok {
			continue
		}
		prim := &scene.Primitive{}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[pos], nil)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d positions: %w", i, k, err)
		}
		prim.Positions = vec3s(positions)
		if a, ok := p.Attributes[attrNormal]; ok {
			normals, err := modeler.ReadNormal(doc, doc.Accessors[a], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d normals: %w", i, k, err)
			}
			prim.Normals = vec3s(normals)
		}
		if a, ok := p.Attributes[attrTexCoord0]; ok {
			uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[a], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d texcoords: %w", i, k, err)
			}
			prim.TexCoords = vec2s(uvs)
		}
		if p.Indices != nil {
			if prim.Indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil); err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d indices: %w", i, k, err)
			}
			for _, v := range prim.Indices {
				if int(v) >= len(prim.Positions) {
					return nil, malformed("mesh %d primitive %d: index %d out of range", i, k, v)
				}
			}
		}
		if p.Material != nil {
			prim.Material = b.material(*p.Material)
		} else {
			prim.Material = scene.NewMaterial("")
		}
		prims = append(prims, prim)
	}
	b.meshes[i] = prims
	return prims, nil
}

func (b *builder) material(i int) *scene.Material {
	if m, ok := b.materials[i]; ok {
		return m
	}
	src := b.d.GLTF.Materials[i]
	m := scene.NewMaterial(src.Name)
	m.DoubleSided = src.DoubleSided
	_, m.Unlit = src.Extensions[unlit.ExtensionName]
	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if f := pbr.BaseColorFactor; f != nil {
			m.BaseColor = mgl32.Vec4{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}
		}
		if f := pbr.MetallicFactor; f != nil {
			m.Metallic = float32(*f)
		}
		if f := pbr.RoughnessFactor; f != nil {
			m.Roughness = float32(*f)
		}
		if ti := pbr.BaseColorTexture; ti != nil {
			m.BaseColorTexture = b.texture(ti.Index)
		}
	}
	b.materials[i] = m
	return m
}

// texture resolves a texture index already checked by check.
func (b *builder) texture(i int) *scene.Texture {
	t := b.d.GLTF.Textures[i]
	if t.Source == nil {
		return nil
	}
	return b.d.Textures[*t.Source]
}

func mat4(m [16]float64) mgl32.Mat4 {
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

func vec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

func vec3s(in [][3]float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func vec2s(in [][2]float32) []mgl32.Vec2 {
	out := make([]mgl32.Vec2, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// Surfaces returns the primitives that make up the sub-object n: its own
// mesh, or when it has none, the meshes of descendants that are not
// themselves required sub-objects.
func Surfaces(n *scene.Node) []*scene.Primitive {
	if n.Mesh != nil {
		return n.Mesh.Primitives
	}
	var out []*scene.Primitive
	var visit func(*scene.Node)
	visit = func(d *scene.Node) {
		if d.Name == FrameNode || d.Name == ImageNode {
			return
		}
		if d.Mesh != nil {
			out = append(out, d.Mesh.Primitives...)
		}
		for _, c := range d.Children {
			visit(c)
		}
	}
	for _, c := range n.Children {
		visit(c)
	}
	return out
}
