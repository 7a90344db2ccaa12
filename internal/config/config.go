package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// StyleConfig maps a frame style name to its model asset.
type StyleConfig struct {
	Name string `yaml:"name"` // e.g., "classic"
	File string `yaml:"file"` // asset file relative to assets.dir, e.g., "pictureframe.glb"
}

// AssetsConfig describes where frame models are read from.
type AssetsConfig struct {
	Dir   string `yaml:"dir"`   // directory holding the .glb/.gltf files; "~" is expanded
	Watch bool   `yaml:"watch"` // reload changed assets without restarting
}

// CameraConfig holds the initial perspective camera.
type CameraConfig struct {
	FOVDeg   float64    `yaml:"fov_deg"`  // vertical field of view
	Aspect   float64    `yaml:"aspect"`   // width / height until the first viewport resize
	Near     float64    `yaml:"near"`     // near clip plane
	Far      float64    `yaml:"far"`      // far clip plane
	Position [3]float64 `yaml:"position"` // initial eye position
	Target   [3]float64 `yaml:"target"`   // initial orbit target
}

// FramingConfig controls how a freshly loaded model is framed.
type FramingConfig struct {
	FitRatio          float64 `yaml:"fit_ratio"`           // on-screen size = model size × fit_ratio
	MaxDistanceFactor float64 `yaml:"max_distance_factor"` // orbit max distance = model size × factor
}

// ImageConfig limits user uploads.
type ImageConfig struct {
	MaxUploadMB    int `yaml:"max_upload_mb"`    // multipart upload limit
	MaxTextureSize int `yaml:"max_texture_size"` // longest edge in pixels after downscale
	MaxPixels      int `yaml:"max_pixels"`       // decoded size limit, width * height
}

// RenderConfig controls the preview renderer.
type RenderConfig struct {
	Width      int    `yaml:"width"`      // initial preview width in pixels
	Height     int    `yaml:"height"`     // initial preview height in pixels
	RefreshMs  int    `yaml:"refresh_ms"` // refresh loop interval
	Background string `yaml:"background"` // hex background color
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	Style        string `yaml:"style"`         // style loaded at startup
	Color        string `yaml:"color"`         // initial color picker value
	ExportFormat string `yaml:"export_format"` // "gltf" or "glb"
	DebugLevel   int    `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Assets   AssetsConfig   `yaml:"assets"`
	Styles   []StyleConfig  `yaml:"styles"`
	Camera   CameraConfig   `yaml:"camera"`
	Framing  FramingConfig  `yaml:"framing"`
	Image    ImageConfig    `yaml:"image"`
	Render   RenderConfig   `yaml:"render"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file inside a directory
// called "configs" and contains no traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithStyles returns a default configuration over the given style catalog,
// as Load would produce from a file listing only those styles.
func WithStyles(styles []StyleConfig) (*Config, error) {
	cfg := &Config{Styles: styles}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills defaults and validates ranges.
func (c *Config) Normalize() error {
	// Styles
	if len(c.Styles) == 0 {
		return errors.New("at least one style is required")
	}
	seen := make(map[string]bool, len(c.Styles))
	for i, s := range c.Styles {
		if s.Name == "" {
			return fmt.Errorf("styles[%d].name is required", i)
		}
		if s.File == "" {
			return fmt.Errorf("styles[%d].file is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate style name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Defaults.Style == "" {
		c.Defaults.Style = c.Styles[0].Name
	}
	if !seen[c.Defaults.Style] {
		return fmt.Errorf("defaults.style %q is not a configured style", c.Defaults.Style)
	}

	// Assets
	if c.Assets.Dir == "" {
		c.Assets.Dir = "assets"
	}
	dir, err := homedir.Expand(c.Assets.Dir)
	if err != nil {
		return fmt.Errorf("expand assets.dir: %w", err)
	}
	c.Assets.Dir = dir

	// Camera, same defaults as the reference scene
	if c.Camera.FOVDeg == 0 {
		c.Camera.FOVDeg = 45
	}
	if c.Camera.FOVDeg <= 0 || c.Camera.FOVDeg >= 180 {
		return fmt.Errorf("camera.fov_deg must be between 0 and 180, got %.2f", c.Camera.FOVDeg)
	}
	if c.Camera.Aspect <= 0 {
		c.Camera.Aspect = 2
	}
	if c.Camera.Near <= 0 {
		c.Camera.Near = 0.1
	}
	if c.Camera.Far <= 0 {
		c.Camera.Far = 100
	}
	if c.Camera.Near >= c.Camera.Far {
		return fmt.Errorf("camera.near (%.3f) must be < camera.far (%.3f)", c.Camera.Near, c.Camera.Far)
	}
	if c.Camera.Position == [3]float64{} {
		c.Camera.Position = [3]float64{0, 10, 20}
	}
	if c.Camera.Target == [3]float64{} {
		c.Camera.Target = [3]float64{0, 5, 0}
	}

	// Framing
	if c.Framing.FitRatio <= 0 {
		c.Framing.FitRatio = 1.5
	}
	if c.Framing.MaxDistanceFactor <= 0 {
		c.Framing.MaxDistanceFactor = 10
	}

	// Image
	if c.Image.MaxUploadMB <= 0 {
		c.Image.MaxUploadMB = 20
	}
	if c.Image.MaxTextureSize <= 0 {
		c.Image.MaxTextureSize = 2048
	}
	if c.Image.MaxPixels <= 0 {
		c.Image.MaxPixels = 40_000_000
	}

	// Render
	if c.Render.Width <= 0 {
		c.Render.Width = 800
	}
	if c.Render.Height <= 0 {
		c.Render.Height = 400
	}
	if c.Render.RefreshMs <= 0 {
		c.Render.RefreshMs = 100
	}
	if c.Render.Background == "" {
		c.Render.Background = "#FFFFFF"
	}

	// Defaults
	if c.Defaults.Color == "" {
		c.Defaults.Color = "#7C5427"
	}
	switch c.Defaults.ExportFormat {
	case "":
		c.Defaults.ExportFormat = "gltf"
	case "gltf", "glb":
	default:
		return fmt.Errorf("defaults.export_format must be gltf or glb, got %q", c.Defaults.ExportFormat)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Copy returns a deep copy of c, so overrides never leak into the base config.
func (c *Config) Copy() (*Config, error) {
	var dst Config
	if err := copier.CopyWithOption(&dst, c, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy config: %w", err)
	}
	return &dst, nil
}

// StyleFile returns the asset file of the named style.
func (c *Config) StyleFile(name string) (string, bool) {
	for _, s := range c.Styles {
		if s.Name == name {
			return s.File, true
		}
	}
	return "", false
}

// StyleNames returns the configured style names in declaration order.
func (c *Config) StyleNames() []string {
	names := make([]string, len(c.Styles))
	for i, s := range c.Styles {
		names[i] = s.Name
	}
	return names
}

// RefreshInterval returns the preview refresh loop interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Render.RefreshMs) * time.Millisecond
}
