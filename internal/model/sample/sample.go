// Package sample generates small frame models: a rectangular border named
// "Frame" around a textured quad named "Image". They serve as demo assets
// when no model directory is configured, and as test fixtures.
package sample

import (
	"bytes"
	"encoding/json"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/cjeanneret/FrameGo/internal/config"
)

// Options shape a generated model. The picture opening is always 1x1.
type Options struct {
	Border         float32    // border width around the opening
	Depth          float32    // frame thickness along Z
	Color          [4]float32 // linear base color of the frame
	SharedMaterial bool       // Frame and Image use the same material
	OmitImage      bool       // leave out the Image node
}

// Classic is a thick walnut-colored frame.
var Classic = Options{Border: 0.25, Depth: 0.1, Color: [4]float32{0.2, 0.09, 0.02, 1}}

// Slim is a thin black frame whose picture shares the frame material.
var Slim = Options{Border: 0.05, Depth: 0.04, Color: [4]float32{0.01, 0.01, 0.01, 1}, SharedMaterial: true}

// build returns the document with its payload in Buffers[0].Data.
func build(o Options) *gltf.Document {
	doc := &gltf.Document{Asset: gltf.Asset{Version: "2.0", Generator: "FrameGo sample"}}

	frameColor := [4]float64{float64(o.Color[0]), float64(o.Color[1]), float64(o.Color[2]), float64(o.Color[3])}
	doc.Materials = []*gltf.Material{{
		Name: "FrameMaterial",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &frameColor, MetallicFactor: ptr(0.0), RoughnessFactor: ptr(0.6),
		},
	}}
	imageMat := 0
	if !o.SharedMaterial {
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name: "ImageMaterial",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float64{1, 1, 1, 1}, MetallicFactor: ptr(0.0), RoughnessFactor: ptr(0.6),
			},
		})
		imageMat = 1
	}

	var pos, nrm [][3]float32
	var idx []uint32
	h, bw, d := float32(0.5), o.Border, o.Depth/2
	for _, r := range [][2][3]float32{
		{{-h - bw, h, -d}, {h + bw, h + bw, d}},   // top
		{{-h - bw, -h - bw, -d}, {h + bw, -h, d}}, // bottom
		{{-h - bw, -h, -d}, {-h, h, d}},           // left
		{{h, -h, -d}, {h + bw, h, d}},             // right
	} {
		pos, nrm, idx = appendBox(pos, nrm, idx, r[0], r[1])
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: "FrameMesh", Primitives: []*gltf.Primitive{{
		Attributes: map[string]int{
			"POSITION": modeler.WritePosition(doc, pos),
			"NORMAL":   modeler.WriteNormal(doc, nrm),
		},
		Indices:  gltf.Index(modeler.WriteIndices(doc, idx)),
		Material: gltf.Index(0),
	}}})
	doc.Nodes = []*gltf.Node{
		{Name: "FrameModel", Children: []int{1}},
		{Name: "Frame", Mesh: gltf.Index(0)},
	}

	if !o.OmitImage {
		up := [3]float32{0, 0, 1}
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: "ImageMesh", Primitives: []*gltf.Primitive{{
			Attributes: map[string]int{
				"POSITION":   modeler.WritePosition(doc, [][3]float32{{-h, -h, 0}, {h, -h, 0}, {h, h, 0}, {-h, h, 0}}),
				"NORMAL":     modeler.WriteNormal(doc, [][3]float32{up, up, up, up}),
				"TEXCOORD_0": modeler.WriteTextureCoord(doc, [][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}),
			},
			Indices:  gltf.Index(modeler.WriteIndices(doc, []uint32{0, 1, 2, 0, 2, 3})),
			Material: gltf.Index(imageMat),
		}}})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "Image", Mesh: gltf.Index(1)})
		doc.Nodes[0].Children = append(doc.Nodes[0].Children, 2)
	}

	doc.Scenes = []*gltf.Scene{{Name: "Scene", Nodes: []int{0}}}
	doc.Scene = gltf.Index(0)
	return doc
}

func ptr(v float64) *float64 { return &v }

// appendBox appends an axis-aligned box with per-face normals.
func appendBox(pos, nrm [][3]float32, idx []uint32, lo, hi [3]float32) ([][3]float32, [][3]float32, []uint32) {
	faces := []struct {
		n       [3]float32
		corners [4][3]float32
	}{
		{[3]float32{0, 0, 1}, [4][3]float32{{lo[0], lo[1], hi[2]}, {hi[0], lo[1], hi[2]}, {hi[0], hi[1], hi[2]}, {lo[0], hi[1], hi[2]}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{hi[0], lo[1], lo[2]}, {lo[0], lo[1], lo[2]}, {lo[0], hi[1], lo[2]}, {hi[0], hi[1], lo[2]}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{hi[0], lo[1], hi[2]}, {hi[0], lo[1], lo[2]}, {hi[0], hi[1], lo[2]}, {hi[0], hi[1], hi[2]}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{lo[0], lo[1], lo[2]}, {lo[0], lo[1], hi[2]}, {lo[0], hi[1], hi[2]}, {lo[0], hi[1], lo[2]}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{lo[0], hi[1], hi[2]}, {hi[0], hi[1], hi[2]}, {hi[0], hi[1], lo[2]}, {lo[0], hi[1], lo[2]}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{lo[0], lo[1], lo[2]}, {hi[0], lo[1], lo[2]}, {hi[0], lo[1], hi[2]}, {lo[0], lo[1], hi[2]}}},
	}
	for _, f := range faces {
		base := uint32(len(pos))
		for _, c := range f.corners {
			pos = append(pos, c)
			nrm = append(nrm, f.n)
		}
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return pos, nrm, idx
}

// GLB returns a binary frame model.
func GLB(o Options) []byte {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(build(o)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GLTF returns a JSON frame model whose buffer lives in a sibling file
// called binName, plus that file's content.
func GLTF(o Options, binName string) (doc, bin []byte) {
	d := build(o)
	bin = d.Buffers[0].Data
	d.Buffers[0].Data = nil
	d.Buffers[0].URI = binName
	doc, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return doc, bin
}

// Assets returns the demo asset set used with Styles.
func Assets() map[string][]byte {
	modern, modernBin := GLTF(Options{Border: 0.12, Depth: 0.06, Color: [4]float32{0.8, 0.8, 0.8, 1}}, "modern.bin")
	return map[string][]byte{
		"classic.glb":       GLB(Classic),
		"slim.glb":          GLB(Slim),
		"modern/frame.gltf": modern,
		"modern/modern.bin": modernBin,
	}
}

// Styles returns the style catalog matching Assets.
func Styles() []config.StyleConfig {
	return []config.StyleConfig{
		{Name: "classic", File: "classic.glb"},
		{Name: "slim", File: "slim.glb"},
		{Name: "modern", File: "modern/frame.gltf"},
	}
}
