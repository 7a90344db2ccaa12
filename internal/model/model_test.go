package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/unlit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/FrameGo/internal/assets"
	"github.com/cjeanneret/FrameGo/internal/model/sample"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

func newLoader() (*Loader, *assets.MemSource) {
	mem := assets.NewMemSource(sample.Assets())
	return NewLoader(mem), mem
}

func TestLoad_GLB(t *testing.T) {
	l, _ := newLoader()
	root, err := l.Load(context.Background(), "classic.glb")
	require.NoError(t, err)

	assert.Equal(t, "Scene", root.Name)
	frame := root.FindByName(FrameNode)
	img := root.FindByName(ImageNode)
	require.NotNil(t, frame)
	require.NotNil(t, img)

	require.NotNil(t, frame.Mesh)
	p := frame.Mesh.Primitives[0]
	assert.Len(t, p.Positions, 4*24)
	assert.Len(t, p.Normals, 4*24)
	assert.Len(t, p.Indices, 4*36)
	assert.InDelta(t, 0.2, p.Material.BaseColor[0], 1e-6)
	assert.Equal(t, float32(0), p.Material.Metallic)

	ip := img.Mesh.Primitives[0]
	assert.Len(t, ip.TexCoords, 4)
	assert.NotSame(t, p.Material, ip.Material)
}

func TestLoad_GLTFWithSiblingBuffer(t *testing.T) {
	l, _ := newLoader()
	root, err := l.Load(context.Background(), "modern/frame.gltf")
	require.NoError(t, err)
	require.NoError(t, Validate(root))
}

func TestLoad_SharedMaterial(t *testing.T) {
	l, _ := newLoader()
	root, err := l.Load(context.Background(), "slim.glb")
	require.NoError(t, err)
	f := Surfaces(root.FindByName(FrameNode))
	i := Surfaces(root.FindByName(ImageNode))
	assert.Same(t, f[0].Material, i[0].Material)
}

func TestLoad_FreshTreePerCall(t *testing.T) {
	l, _ := newLoader()
	a, err := l.Load(context.Background(), "classic.glb")
	require.NoError(t, err)
	b, err := l.Load(context.Background(), "classic.glb")
	require.NoError(t, err)

	fa := a.FindByName(FrameNode)
	fb := b.FindByName(FrameNode)
	assert.NotSame(t, fa, fb)
	assert.NotSame(t, fa.Mesh.Primitives[0].Material, fb.Mesh.Primitives[0].Material)

	fa.Mesh.Primitives[0].Material.BaseColor = mgl32.Vec4{1, 0, 0, 1}
	c, err := l.Load(context.Background(), "classic.glb")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, c.FindByName(FrameNode).Mesh.Primitives[0].Material.BaseColor[0], 1e-6)
}

func TestLoad_MissingNode(t *testing.T) {
	mem := assets.NewMemSource(map[string][]byte{
		"noimage.glb": sample.GLB(sample.Options{Border: 0.1, Depth: 0.1, OmitImage: true}),
	})
	_, err := NewLoader(mem).Load(context.Background(), "noimage.glb")
	assert.ErrorIs(t, err, ErrMissingNode)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		asset string
		data  []byte
		want  error
	}{
		{"not_found", "", nil, assets.ErrNotFound},
		{"traversal", "../x.glb", nil, assets.ErrInvalidName},
		{"version_1", "v1.gltf", []byte(`{"asset":{"version":"1.0"}}`), ErrUnsupportedVersion},
		{"min_version", "v21.gltf", []byte(`{"asset":{"version":"2.1","minVersion":"2.1"}}`), ErrUnsupportedVersion},
		{"bad_version", "vx.gltf", []byte(`{"asset":{"version":"two"}}`), ErrUnsupportedVersion},
		{"required_ext", "ext.gltf", []byte(`{"asset":{"version":"2.0"},"extensionsRequired":["KHR_draco_mesh_compression"]}`), ErrUnsupportedExtension},
		{"empty_scene", "empty.gltf", []byte(`{"asset":{"version":"2.0"}}`), ErrMissingNode},
		{"negative_texture", "neg.gltf", []byte(`{"asset":{"version":"2.0"},"materials":[{"pbrMetallicRoughness":{"baseColorTexture":{"index":-1}}}]}`), ErrMalformed},
		{"texture_past_end", "past.gltf", []byte(`{"asset":{"version":"2.0"},"materials":[{"pbrMetallicRoughness":{"baseColorTexture":{"index":3}}}]}`), ErrMalformed},
		{"image_bad_view", "img.gltf", []byte(`{"asset":{"version":"2.0"},"images":[{"bufferView":-2,"mimeType":"image/png"}]}`), ErrMalformed},
		{"child_loop", "loop.gltf", []byte(`{"asset":{"version":"2.0"},"nodes":[{"children":[0]}]}`), ErrMalformed},
		{"not_json", "junk.gltf", []byte(`{"asset":`), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := tt.asset
			if name == "" {
				name = "missing.glb"
			}
			files := map[string][]byte{}
			if tt.data != nil {
				files[name] = tt.data
			}
			_, err := NewLoader(assets.NewMemSource(files)).Load(context.Background(), name)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingSiblingBuffer(t *testing.T) {
	js, _ := sample.GLTF(sample.Classic, "gone.bin")
	l := NewLoader(assets.NewMemSource(map[string][]byte{"f.gltf": js}))
	_, err := l.Load(context.Background(), "f.gltf")
	assert.ErrorIs(t, err, assets.ErrNotFound)
}

func TestLoad_Cancelled(t *testing.T) {
	l, _ := newLoader()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Load(ctx, "classic.glb")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvict(t *testing.T) {
	l, mem := newLoader()
	ctx := context.Background()
	_, err := l.Load(ctx, "modern/frame.gltf")
	require.NoError(t, err)

	// Replace the sibling buffer with garbage; the cached document survives.
	mem.Put("modern/modern.bin", []byte{1, 2, 3})
	_, err = l.Load(ctx, "modern/frame.gltf")
	require.NoError(t, err)

	assert.True(t, l.Evict("modern/modern.bin"))
	_, err = l.Load(ctx, "modern/frame.gltf")
	assert.Error(t, err)

	assert.False(t, l.Evict("unrelated.glb"))
	assert.False(t, l.Evict("../bad"))
}

func TestBuild_MatrixAndCycle(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(2, 2, 2))
	var mat [16]float64
	for i, v := range m {
		mat[i] = float64(v)
	}
	doc := &gltf.Document{
		Asset: gltf.Asset{Version: "2.0"},
		Nodes: []*gltf.Node{{Name: "Frame", Matrix: mat}, {Name: "Image"}},
	}
	root, err := Build(&Document{GLTF: doc})
	require.NoError(t, err)
	f := root.FindByName(FrameNode)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, f.Translation)
	assert.True(t, f.Scale.ApproxEqual(mgl32.Vec3{2, 2, 2}))
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, root.FindByName(ImageNode).Scale)
	assert.Len(t, root.Children, 2, "parentless nodes become roots without scenes")

	doc.Nodes = []*gltf.Node{{Name: "a", Children: []int{1}}, {Name: "b", Children: []int{0}}}
	doc.Scenes = []*gltf.Scene{{Nodes: []int{0}}}
	_, err = Build(&Document{GLTF: doc})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSurfaces_SkipsNestedSubObjects(t *testing.T) {
	frame := scene.NewNode(FrameNode)
	part := scene.NewNode("Part")
	part.Mesh = &scene.Mesh{Primitives: []*scene.Primitive{{}}}
	img := scene.NewNode(ImageNode)
	img.Mesh = &scene.Mesh{Primitives: []*scene.Primitive{{}, {}}}
	frame.Add(part)
	frame.Add(img)

	assert.Len(t, Surfaces(frame), 1)
	assert.Len(t, Surfaces(img), 2)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"gltf": FormatGLTF, "GLB": FormatGLB, " glb ": FormatGLB} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("obj")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	assert.Equal(t, "frame.gltf", FormatGLTF.Filename())
	assert.Equal(t, "frame.glb", FormatGLB.Filename())
	assert.Equal(t, "model/gltf-binary", FormatGLB.ContentType())
	assert.Equal(t, "model/gltf+json", FormatGLTF.ContentType())
}

func pngTexture(t *testing.T) *scene.Texture {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &scene.Texture{Name: "photo", MimeType: "image/png", Encoded: buf.Bytes(), Image: img}
}

// composed loads the classic frame, recolors it and puts an unlit photo in.
func composed(t *testing.T) *scene.Node {
	t.Helper()
	l, _ := newLoader()
	root, err := l.Load(context.Background(), "classic.glb")
	require.NoError(t, err)
	Surfaces(root.FindByName(FrameNode))[0].Material.BaseColor = mgl32.Vec4{0.5, 0.25, 0.125, 1}
	m := scene.NewMaterial("photo")
	m.Unlit = true
	m.Metallic = 0
	m.BaseColorTexture = pngTexture(t)
	img := root.FindByName(ImageNode)
	img.Mesh.Primitives[0].Material = m
	img.Scale = mgl32.Vec3{1, 0.75, 1}
	return root
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatGLTF, FormatGLB} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, composed(t), format))
			assert.Equal(t, format == FormatGLB, IsGLB(buf.Bytes()))

			doc, err := Decode(buf.Bytes(), nil)
			require.NoError(t, err)
			assert.Equal(t, []string{unlit.ExtensionName}, doc.GLTF.ExtensionsUsed)
			require.Len(t, doc.GLTF.Images, 1)
			assert.Equal(t, "image/png", doc.GLTF.Images[0].MimeType)
			require.NotNil(t, doc.Textures[0])
			assert.NotNil(t, doc.Textures[0].Image)

			root, err := Build(doc)
			require.NoError(t, err)
			frame := root.FindByName(FrameNode)
			assert.Equal(t, mgl32.Vec4{0.5, 0.25, 0.125, 1}, frame.Mesh.Primitives[0].Material.BaseColor)
			img := root.FindByName(ImageNode)
			assert.Equal(t, mgl32.Vec3{1, 0.75, 1}, img.Scale)
			im := img.Mesh.Primitives[0].Material
			assert.True(t, im.Unlit)
			assert.NotNil(t, im.BaseColorTexture)
			assert.Len(t, img.Mesh.Primitives[0].TexCoords, 4)
		})
	}
}

func TestExport_GLTFIsSelfContained(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, composed(t), FormatGLTF))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	bufs := raw["buffers"].([]any)
	require.Len(t, bufs, 1)
	uri := bufs[0].(map[string]any)["uri"].(string)
	assert.True(t, IsDataURI(uri))
}

func TestExport_DedupesSharedMaterial(t *testing.T) {
	l, _ := newLoader()
	root, err := l.Load(context.Background(), "slim.glb")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, root, FormatGLB))
	doc, err := Decode(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Len(t, doc.GLTF.Materials, 1)
}

func TestExport_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Export(&buf, nil, FormatGLB))
	assert.ErrorIs(t, Export(&buf, scene.NewNode("x"), Format("obj")), ErrUnknownFormat)
}
