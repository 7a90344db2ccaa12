// Package model loads frame models from glTF assets into scene graphs and
// exports composed scenes back to glTF.
package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/url"
	"slices"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/Masterminds/semver/v3"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/unlit"

	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
	"github.com/cjeanneret/FrameGo/internal/texture"
)

// Errors returned while decoding.
var (
	ErrUnsupportedVersion   = errors.New("unsupported glTF version")
	ErrUnsupportedExtension = errors.New("unsupported required glTF extension")
	ErrMalformed            = errors.New("malformed glTF asset")
)

var supportedVersion = semver.MustParse("2.0.0")

// supportedExtensions lists the extensionsRequired entries the loader honors.
var supportedExtensions = []string{unlit.ExtensionName}

// mimePNG is the media type of exported images without one.
const mimePNG = "image/png"

// Document is a decoded glTF asset with its buffers loaded.
// It is never mutated after Decode returns, so Build may be called
// repeatedly on the same Document.
type Document struct {
	GLTF     *gltf.Document
	Textures []*scene.Texture // indexed like GLTF.Images; nil when unresolvable
}

// Decode parses a .glb or .gltf blob. External buffers and images are read
// from fsys relative to the asset; fsys may be nil when the asset is
// self-contained.
func Decode(data []byte, fsys fs.FS) (*Document, error) {
	if fsys == nil {
		fsys = noFiles{}
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), fsys).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := checkVersion(doc.Asset); err != nil {
		return nil, err
	}
	for _, ext := range doc.ExtensionsRequired {
		if !slices.Contains(supportedExtensions, ext) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
		}
	}
	if err := check(doc); err != nil {
		return nil, err
	}

	d := &Document{GLTF: doc, Textures: make([]*scene.Texture, len(doc.Images))}
	for i, im := range doc.Images {
		raw, err := imageBytes(doc, im, fsys)
		if err != nil {
			debug.Verbose("Skipping image %d: %v", i, err)
			continue
		}
		d.Textures[i] = decodeTexture(im, raw)
	}
	return d, nil
}

func imageBytes(doc *gltf.Document, im *gltf.Image, fsys fs.FS) ([]byte, error) {
	switch {
	case im.BufferView != nil:
		return viewBytes(doc, *im.BufferView), nil
	case im.IsEmbeddedResource():
		return im.MarshalData()
	case im.URI != "":
		name, err := url.PathUnescape(im.URI)
		if err != nil {
			return nil, fmt.Errorf("uri %q: %w", im.URI, err)
		}
		return fs.ReadFile(fsys, name)
	default:
		return nil, errors.New("no source")
	}
}

// viewBytes returns the bytes of a buffer view already checked by check.
func viewBytes(doc *gltf.Document, i int) []byte {
	bv := doc.BufferViews[i]
	return doc.Buffers[bv.Buffer].Data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength]
}

func decodeTexture(im *gltf.Image, raw []byte) *scene.Texture {
	tex := &scene.Texture{Name: im.Name, MimeType: im.MimeType, Encoded: raw}
	if tex.MimeType == "" {
		if m, err := texture.Sniff(raw); err == nil {
			tex.MimeType = m
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		debug.Verbose("Image %q kept undecoded: %v", im.Name, err)
		return tex
	}
	tex.Image = img
	return tex
}

// checkVersion accepts glTF 2.x assets whose minVersion we satisfy.
func checkVersion(a gltf.Asset) error {
	v, err := semver.NewVersion(a.Version)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, a.Version)
	}
	if v.Major() != supportedVersion.Major() {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, a.Version)
	}
	if a.MinVersion != "" {
		mv, err := semver.NewVersion(a.MinVersion)
		if err != nil || mv.GreaterThan(supportedVersion) {
			return fmt.Errorf("%w: minVersion %s", ErrUnsupportedVersion, a.MinVersion)
		}
	}
	return nil
}

// IsGLB reports whether data starts with the binary glTF magic.
func IsGLB(data []byte) bool { return bytes.HasPrefix(data, []byte("glTF")) }

// IsDataURI reports whether uri embeds its content.
func IsDataURI(uri string) bool { return strings.HasPrefix(uri, "data:") }

// noFiles is the file system of self-contained assets.
type noFiles struct{}

func (noFiles) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
