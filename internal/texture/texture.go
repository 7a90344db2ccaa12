// Package texture turns user-supplied photos into textures for the frame's
// Image sub-object.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	// Decoders beyond the stdlib set, registered with image.Decode.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/anthonynsimon/bild/transform"
	"github.com/h2non/filetype"

	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/scene"
)

// Errors returned by Load.
var (
	ErrNotImage = errors.New("not an image")
	ErrEmpty    = errors.New("image has no pixels")
	ErrTooLarge = errors.New("image has too many pixels")
)

// Limits bound what Load accepts and produces. Zero fields disable a limit.
type Limits struct {
	MaxSize   int // longest edge after downscaling
	MaxPixels int // width * height declared by the source header
}

// sniffLen is how many leading bytes filetype needs.
const sniffLen = 262

// Image is a decoded user photo, ready to be used as a glTF texture.
// Encoded holds PNG or JPEG bytes matching MimeType. Width and Height are
// the texture size; SrcWidth and SrcHeight the size of the uploaded photo.
type Image struct {
	Name      string
	Image     image.Image
	Encoded   []byte
	MimeType  string
	Width     int
	Height    int
	SrcWidth  int
	SrcHeight int
}

// Ratio returns height / width of the uploaded photo, the vertical scale
// applied to the frame.
func (i *Image) Ratio() float32 {
	if i.SrcWidth == 0 {
		return 1
	}
	return float32(i.SrcHeight) / float32(i.SrcWidth)
}

// Texture returns a scene texture sharing i's raster and bytes.
func (i *Image) Texture() *scene.Texture {
	return &scene.Texture{
		Name:     i.Name,
		MimeType: i.MimeType,
		Encoded:  i.Encoded,
		Image:    i.Image,
	}
}

// Sniff returns the MIME type of data, or ErrNotImage when data is not an
// image format.
func Sniff(data []byte) (string, error) {
	head := data[:min(len(data), sniffLen)]
	if !filetype.IsImage(head) {
		return "", ErrNotImage
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return kind.MIME.Value, nil
}

// Load reads an image from r, downscales it so neither edge exceeds
// lim.MaxSize and re-encodes it when the source format is not PNG or JPEG,
// or when it was resized. Sources declaring more than lim.MaxPixels pixels
// are rejected before their pixels are decoded.
func Load(name string, r io.Reader, lim Limits) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mimeType, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s header: %v", ErrNotImage, mimeType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmpty
	}
	if lim.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(lim.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, lim.MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNotImage, mimeType, err)
	}
	size := img.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return nil, ErrEmpty
	}
	debug.Verbose("Decoded %s image %q: %dx%d", format, name, size.X, size.Y)
	src := size

	resized := false
	if target := SizeMax(size, lim.MaxSize); target != size {
		debug.Verbose("Downscaling %q to %dx%d", name, target.X, target.Y)
		img = transform.Resize(img, target.X, target.Y, transform.Linear)
		size = target
		resized = true
	}

	out := &Image{Name: name, Image: img, Width: size.X, Height: size.Y, SrcWidth: src.X, SrcHeight: src.Y}
	switch {
	case !resized && (mimeType == "image/png" || mimeType == "image/jpeg"):
		out.Encoded = data
		out.MimeType = mimeType
	case mimeType == "image/jpeg":
		out.Encoded, err = encodeJPEG(img)
		out.MimeType = "image/jpeg"
	default:
		out.Encoded, err = encodePNG(img)
		out.MimeType = "image/png"
	}
	if err != nil {
		return nil, err
	}
	debug.Asset("texture", name, len(out.Encoded))
	return out, nil
}

// SizeMax returns sz scaled so its largest edge is at most maxSize,
// preserving the aspect ratio.
func SizeMax(sz image.Point, maxSize int) image.Point {
	if maxSize <= 0 || (sz.X <= maxSize && sz.Y <= maxSize) {
		return sz
	}
	var t image.Point
	if sz.X >= sz.Y {
		t.X = maxSize
		t.Y = max(1, int(float32(sz.Y)*float32(maxSize)/float32(sz.X)))
	} else {
		t.Y = maxSize
		t.X = max(1, int(float32(sz.X)*float32(maxSize)/float32(sz.Y)))
	}
	return t
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
