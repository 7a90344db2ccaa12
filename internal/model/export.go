package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/unlit"
	"github.com/qmuntal/gltf/modeler"

	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Format is an export container.
type Format string

const (
	FormatGLTF Format = "gltf" // JSON with the buffer embedded as a data URI
	FormatGLB  Format = "glb"  // binary container
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

const generator = "FrameGo"

// ParseFormat parses "gltf" or "glb", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatGLTF, FormatGLB:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Filename returns the download name of an export.
func (f Format) Filename() string { return "frame." + string(f) }

// ContentType returns the media type of an export.
func (f Format) ContentType() string {
	if f == FormatGLB {
		return "model/gltf-binary"
	}
	return "model/gltf+json"
}

// Export writes root and its subtree as a single-scene glTF asset.
func Export(w io.Writer, root *scene.Node, format Format) error {
	if root == nil {
		return errors.New("export: nothing to export")
	}
	if format != FormatGLTF && format != FormatGLB {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	e := &exporter{
		doc:       &gltf.Document{Asset: gltf.Asset{Version: "2.0", Generator: generator}},
		meshes:    make(map[*scene.Mesh]int),
		materials: make(map[*scene.Material]int),
		textures:  make(map[*scene.Texture]int),
	}
	top, err := e.node(root)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	doc := e.doc
	doc.Scenes = []*gltf.Scene{{Name: root.Name, Nodes: []int{top}}}
	doc.Scene = gltf.Index(0)

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = format == FormatGLB
	if !enc.AsBinary && len(doc.Buffers) > 0 {
		doc.Buffers[0].EmbeddedResource()
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	debug.Exported(string(format), n)
	return nil
}

type exporter struct {
	doc       *gltf.Document
	meshes    map[*scene.Mesh]int
	materials map[*scene.Material]int
	textures  map[*scene.Texture]int
	sampler   *int
}

func (e *exporter) node(n *scene.Node) (int, error) {
	doc := e.doc
	idx := len(doc.Nodes)
	out := &gltf.Node{
		Name:        n.Name,
		Translation: [3]float64{float64(n.Translation[0]), float64(n.Translation[1]), float64(n.Translation[2])},
		Rotation:    [4]float64{float64(n.Rotation.V[0]), float64(n.Rotation.V[1]), float64(n.Rotation.V[2]), float64(n.Rotation.W)},
		Scale:       [3]float64{float64(n.Scale[0]), float64(n.Scale[1]), float64(n.Scale[2])},
	}
	doc.Nodes = append(doc.Nodes, out)
	if n.Mesh != nil && len(n.Mesh.Primitives) > 0 {
		mi, err := e.mesh(n.Mesh)
		if err != nil {
			return 0, err
		}
		out.Mesh = mi
	}
	for _, c := range n.Children {
		ci, err := e.node(c)
		if err != nil {
			return 0, err
		}
		out.Children = append(out.Children, ci)
	}
	return idx, nil
}

func (e *exporter) mesh(m *scene.Mesh) (*int, error) {
	if i, ok := e.meshes[m]; ok {
		return &i, nil
	}
	doc := e.doc
	out := &gltf.Mesh{Name: m.Name}
	for _, p := range m.Primitives {
		if len(p.Positions) == 0 {
			continue
		}
		attrs := map[string]int{
			attrPosition: modeler.WritePosition(doc, arrays3(p.Positions)),
		}
		if len(p.Normals) == len(p.Positions) {
			attrs[attrNormal] = modeler.WriteNormal(doc, arrays3(p.Normals))
		}
		if len(p.TexCoords) == len(p.Positions) {
			attrs[attrTexCoord0] = modeler.WriteTextureCoord(doc, arrays2(p.TexCoords))
		}
		prim := &gltf.Primitive{Attributes: attrs}
		if len(p.Indices) > 0 {
			prim.Indices = gltf.Index(modeler.WriteIndices(doc, p.Indices))
		}
		if p.Material != nil {
			mi, err := e.material(p.Material)
			if err != nil {
				return nil, err
			}
			prim.Material = gltf.Index(mi)
		}
		out.Primitives = append(out.Primitives, prim)
	}
	if len(out.Primitives) == 0 {
		return nil, nil
	}
	i := len(doc.Meshes)
	doc.Meshes = append(doc.Meshes, out)
	e.meshes[m] = i
	return &i, nil
}

func (e *exporter) material(m *scene.Material) (int, error) {
	if i, ok := e.materials[m]; ok {
		return i, nil
	}
	base := [4]float64{float64(m.BaseColor[0]), float64(m.BaseColor[1]), float64(m.BaseColor[2]), float64(m.BaseColor[3])}
	metal, rough := float64(m.Metallic), float64(m.Roughness)
	pbr := &gltf.PBRMetallicRoughness{
		BaseColorFactor: &base,
		MetallicFactor:  &metal,
		RoughnessFactor: &rough,
	}
	if m.BaseColorTexture != nil && len(m.BaseColorTexture.Encoded) > 0 {
		ti, err := e.texture(m.BaseColorTexture)
		if err != nil {
			return 0, err
		}
		pbr.BaseColorTexture = &gltf.TextureInfo{Index: ti}
	}
	out := &gltf.Material{
		Name:                 m.Name,
		PBRMetallicRoughness: pbr,
		DoubleSided:          m.DoubleSided,
	}
	doc := e.doc
	if m.Unlit {
		out.Extensions = gltf.Extensions{unlit.ExtensionName: unlit.Unlit{}}
		if !slices.Contains(doc.ExtensionsUsed, unlit.ExtensionName) {
			doc.ExtensionsUsed = append(doc.ExtensionsUsed, unlit.ExtensionName)
		}
	}
	i := len(doc.Materials)
	doc.Materials = append(doc.Materials, out)
	e.materials[m] = i
	return i, nil
}

func (e *exporter) texture(t *scene.Texture) (int, error) {
	if i, ok := e.textures[t]; ok {
		return i, nil
	}
	doc := e.doc
	if e.sampler == nil {
		doc.Samplers = append(doc.Samplers, &gltf.Sampler{
			MagFilter: gltf.MagLinear,
			MinFilter: gltf.MinLinearMipMapLinear,
			WrapS:     gltf.WrapRepeat,
			WrapT:     gltf.WrapRepeat,
		})
		e.sampler = gltf.Index(len(doc.Samplers) - 1)
	}
	mime := t.MimeType
	if mime == "" {
		mime = mimePNG
	}
	img, err := modeler.WriteImage(doc, t.Name, mime, bytes.NewReader(t.Encoded))
	if err != nil {
		return 0, fmt.Errorf("image %q: %w", t.Name, err)
	}
	i := len(doc.Textures)
	doc.Textures = append(doc.Textures, &gltf.Texture{Sampler: e.sampler, Source: gltf.Index(img), Name: t.Name})
	e.textures[t] = i
	return i, nil
}

func arrays3(v []mgl32.Vec3) [][3]float32 {
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = p
	}
	return out
}

func arrays2(v []mgl32.Vec2) [][2]float32 {
	out := make([][2]float32, len(v))
	for i, p := range v {
		out[i] = p
	}
	return out
}
