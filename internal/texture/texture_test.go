package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func TestLoad_PNGKeepsBytes(t *testing.T) {
	data := pngBytes(t, 40, 20)
	img, err := Load("photo.png", bytes.NewReader(data), Limits{MaxSize: 2048})
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, data, img.Encoded)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 20, img.Height)
	assert.InDelta(t, 0.5, img.Ratio(), 1e-6)
}

func TestLoad_RatioFromSourceSize(t *testing.T) {
	img, err := Load("strip.png", bytes.NewReader(pngBytes(t, 4000, 3)), Limits{MaxSize: 2048})
	require.NoError(t, err)

	assert.Equal(t, 2048, img.Width)
	assert.Equal(t, 1, img.Height)
	assert.Equal(t, 4000, img.SrcWidth)
	assert.Equal(t, 3, img.SrcHeight)
	assert.InDelta(t, 0.00075, img.Ratio(), 1e-9)
}

// pngHeader returns a PNG signature and IHDR declaring w x h pixels, with
// no image data after it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 0, 17)
	ihdr = append(ihdr, "IHDR"...)
	ihdr = binary.BigEndian.AppendUint32(ihdr, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
	// Pad past the sniffing window.
	return append(out, make([]byte, 300)...)
}

func TestLoad_PixelBudget(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		lim  Limits
	}{
		{"huge_header", pngHeader(50000, 50000), Limits{MaxPixels: 40_000_000}},
		{"small_budget", pngBytes(t, 40, 20), Limits{MaxPixels: 799}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.name, bytes.NewReader(tt.data), tt.lim)
			if !errors.Is(err, ErrTooLarge) {
				t.Errorf("Load() error = %v, want ErrTooLarge", err)
			}
		})
	}

	img, err := Load("exact.png", bytes.NewReader(pngBytes(t, 40, 20)), Limits{MaxPixels: 800})
	require.NoError(t, err)
	assert.Equal(t, 40, img.SrcWidth)
}

func TestLoad_Downscale(t *testing.T) {
	data := pngBytes(t, 400, 100)
	img, err := Load("wide.png", bytes.NewReader(data), Limits{MaxSize: 100})
	require.NoError(t, err)

	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 25, img.Height)
	assert.Equal(t, image.Pt(100, 25), img.Image.Bounds().Size())
	assert.NotEqual(t, data, img.Encoded)

	decoded, err := png.Decode(bytes.NewReader(img.Encoded))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(100, 25), decoded.Bounds().Size())
	assert.InDelta(t, 0.25, img.Ratio(), 1e-6)
}

func TestLoad_JPEGStaysJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(64, 128), nil))

	img, err := Load("tall.jpg", &buf, Limits{MaxSize: 32})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 32, img.Height)
	assert.InDelta(t, 2, img.Ratio(), 1e-6)
}

func TestLoad_GIFReencodedAsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, solid(8, 8), nil))

	img, err := Load("anim.gif", &buf, Limits{})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	_, err = png.Decode(bytes.NewReader(img.Encoded))
	assert.NoError(t, err)
}

func TestLoad_NotImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("hello, this is not a picture")},
		{"empty", nil},
		{"pdf", []byte("%PDF-1.4\n%...")},
		{"truncated_png", pngBytes(t, 4, 4)[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.name, bytes.NewReader(tt.data), Limits{})
			if !errors.Is(err, ErrNotImage) {
				t.Errorf("Load() error = %v, want ErrNotImage", err)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	mime, err := Sniff(pngBytes(t, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = Sniff([]byte(strings.Repeat("x", 600)))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestSizeMax(t *testing.T) {
	tests := []struct {
		in   image.Point
		max  int
		want image.Point
	}{
		{image.Pt(100, 50), 0, image.Pt(100, 50)},
		{image.Pt(100, 50), 200, image.Pt(100, 50)},
		{image.Pt(100, 50), 50, image.Pt(50, 25)},
		{image.Pt(50, 100), 50, image.Pt(25, 50)},
		{image.Pt(1000, 1), 10, image.Pt(10, 1)},
	}
	for _, tt := range tests {
		if got := SizeMax(tt.in, tt.max); got != tt.want {
			t.Errorf("SizeMax(%v, %d) = %v, want %v", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRatioZeroWidth(t *testing.T) {
	assert.Equal(t, float32(1), (&Image{}).Ratio())
}

func TestTextureSharesData(t *testing.T) {
	data := pngBytes(t, 2, 2)
	img, err := Load("p", bytes.NewReader(data), Limits{})
	require.NoError(t, err)
	tex := img.Texture()
	assert.Equal(t, "p", tex.Name)
	assert.Equal(t, "image/png", tex.MimeType)
	assert.Equal(t, img.Encoded, tex.Encoded)
	assert.Same(t, img.Image, tex.Image)
}
