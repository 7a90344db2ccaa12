package configurator

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/cjeanneret/FrameGo/internal/scene"
)

// ErrInvalidColor is returned for strings that are not #RGB or #RRGGBB.
var ErrInvalidColor = errors.New("invalid color")

// Color is a user-selected frame color.
type Color struct {
	Hex    string     // normalized "#rrggbb"
	Linear mgl32.Vec3 // linear RGB, as glTF base color factors are
}

const hexDigits = "0123456789abcdefABCDEF"

// ParseColor parses "#RGB" or "#RRGGBB" (the leading '#' is optional).
func ParseColor(s string) (Color, error) {
	h := strings.TrimSpace(s)
	if !strings.HasPrefix(h, "#") {
		h = "#" + h
	}
	if len(h) != 4 && len(h) != 7 || strings.Trim(h[1:], hexDigits) != "" {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	c, err := colorful.Hex(h)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	r, g, b := c.LinearRgb()
	return Color{
		Hex:    c.Hex(),
		Linear: mgl32.Vec3{float32(r), float32(g), float32(b)},
	}, nil
}

// NRGBA returns the sRGB color as an opaque color.NRGBA.
func (c Color) NRGBA() color.NRGBA {
	cf, err := colorful.Hex(c.Hex)
	if err != nil {
		return color.NRGBA{A: 0xFF}
	}
	r, g, b := cf.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}
}

// apply sets the base color of every material in mats, keeping alpha.
func (c Color) apply(mats []*scene.Material) {
	for _, m := range mats {
		m.BaseColor = c.Linear.Vec4(m.BaseColor.W())
	}
}

// ownMaterials makes prims reference materials that no primitive outside
// prims uses, cloning shared ones, and returns the distinct materials.
func ownMaterials(root *scene.Node, prims []*scene.Primitive) []*scene.Material {
	total := scene.Materials(root)
	local := make(map[*scene.Material]int)
	for _, p := range prims {
		if p.Material != nil {
			local[p.Material]++
		}
	}
	clones := make(map[*scene.Material]*scene.Material)
	seen := make(map[*scene.Material]bool)
	var out []*scene.Material
	for _, p := range prims {
		m := p.Material
		switch {
		case m == nil:
			m = scene.NewMaterial("")
		case total[m] > local[m]:
			c, ok := clones[m]
			if !ok {
				c = m.Clone()
				clones[m] = c
			}
			m = c
		}
		p.Material = m
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
