package model

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

func inRange(i, n int) bool { return i >= 0 && i < n }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}

// check verifies every index and byte range Build and Decode follow, so
// that a bad asset fails to load instead of failing while building.
func check(doc *gltf.Document) error {
	if s := doc.Scene; s != nil && !inRange(*s, len(doc.Scenes)) {
		return malformed("scene index %d", *s)
	}
	for i, s := range doc.Scenes {
		for _, n := range s.Nodes {
			if !inRange(n, len(doc.Nodes)) {
				return malformed("node index %d in scene %d", n, i)
			}
		}
	}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if !inRange(c, len(doc.Nodes)) || c == i {
				return malformed("child index %d in node %d", c, i)
			}
		}
		if n.Mesh != nil && !inRange(*n.Mesh, len(doc.Meshes)) {
			return malformed("mesh index %d in node %d", *n.Mesh, i)
		}
	}
	for i, m := range doc.Meshes {
		for _, p := range m.Primitives {
			for k, a := range p.Attributes {
				if !inRange(a, len(doc.Accessors)) {
					return malformed("%s accessor %d in mesh %d", k, a, i)
				}
			}
			if p.Indices != nil && !inRange(*p.Indices, len(doc.Accessors)) {
				return malformed("indices accessor %d in mesh %d", *p.Indices, i)
			}
			if p.Material != nil && !inRange(*p.Material, len(doc.Materials)) {
				return malformed("material index %d in mesh %d", *p.Material, i)
			}
		}
	}
	for i, m := range doc.Materials {
		pbr := m.PBRMetallicRoughness
		if pbr == nil || pbr.BaseColorTexture == nil {
			continue
		}
		if t := pbr.BaseColorTexture.Index; !inRange(t, len(doc.Textures)) {
			return malformed("base color texture %d in material %d", t, i)
		}
	}
	for i, t := range doc.Textures {
		if t.Source != nil && !inRange(*t.Source, len(doc.Images)) {
			return malformed("image index %d in texture %d", *t.Source, i)
		}
		if t.Sampler != nil && !inRange(*t.Sampler, len(doc.Samplers)) {
			return malformed("sampler index %d in texture %d", *t.Sampler, i)
		}
	}
	for i, im := range doc.Images {
		if im.BufferView != nil && !inRange(*im.BufferView, len(doc.BufferViews)) {
			return malformed("bufferView %d in image %d", *im.BufferView, i)
		}
	}
	for i, v := range doc.BufferViews {
		if !inRange(v.Buffer, len(doc.Buffers)) {
			return malformed("buffer index %d in bufferView %d", v.Buffer, i)
		}
		if v.ByteOffset < 0 || v.ByteLength < 1 || v.ByteOffset+v.ByteLength > len(doc.Buffers[v.Buffer].Data) {
			return malformed("bufferView %d outside buffer %d", i, v.Buffer)
		}
	}
	for i, a := range doc.Accessors {
		if err := checkAccessor(doc, i, a); err != nil {
			return err
		}
	}
	return nil
}

func checkAccessor(doc *gltf.Document, i int, a *gltf.Accessor) error {
	size := componentSize[a.ComponentType] * componentCount[a.Type]
	if size == 0 {
		return malformed("accessor %d has an unknown element type", i)
	}
	if a.Count < 1 || a.ByteOffset < 0 {
		return malformed("accessor %d count or offset", i)
	}
	if a.BufferView == nil {
		return nil
	}
	if !inRange(*a.BufferView, len(doc.BufferViews)) {
		return malformed("bufferView %d in accessor %d", *a.BufferView, i)
	}
	bv := doc.BufferViews[*a.BufferView]
	stride := bv.ByteStride
	if stride == 0 {
		stride = size
	}
	if a.ByteOffset+stride*(a.Count-1)+size > bv.ByteLength {
		return malformed("accessor %d overruns bufferView %d", i, *a.BufferView)
	}
	return nil
}

var componentSize = map[gltf.ComponentType]int{
	gltf.ComponentByte:   1,
	gltf.ComponentUbyte:  1,
	gltf.ComponentShort:  2,
	gltf.ComponentUshort: 2,
	gltf.ComponentUint:   4,
	gltf.ComponentFloat:  4,
}

var componentCount = map[gltf.AccessorType]int{
	gltf.AccessorScalar: 1,
	gltf.AccessorVec2:   2,
	gltf.AccessorVec3:   3,
	gltf.AccessorVec4:   4,
	gltf.AccessorMat2:   4,
	gltf.AccessorMat3:   9,
	gltf.AccessorMat4:   16,
}
