package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
assets:
  dir: "/srv/frames"
  watch: true
styles:
  - name: "classic"
    file: "pictureframe.glb"
  - name: "modern"
    file: "modernframe.glb"
camera:
  fov_deg: 50
  aspect: 1.5
  near: 0.5
  far: 500
  position: [0, 2, 8]
  target: [0, 1, 0]
framing:
  fit_ratio: 1.2
  max_distance_factor: 8
image:
  max_upload_mb: 5
  max_texture_size: 1024
render:
  width: 640
  height: 480
  refresh_ms: 50
  background: "#EEEEEE"
defaults:
  style: "modern"
  color: "#112233"
  export_format: "glb"
  debug_level: 2
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assets.Dir != "/srv/frames" {
		t.Errorf("assets.dir = %q, want %q", cfg.Assets.Dir, "/srv/frames")
	}
	if !cfg.Assets.Watch {
		t.Error("assets.watch should be true")
	}
	if len(cfg.Styles) != 2 {
		t.Fatalf("len(styles) = %d, want 2", len(cfg.Styles))
	}
	if cfg.Styles[1].File != "modernframe.glb" {
		t.Errorf("styles[1].file = %q, want %q", cfg.Styles[1].File, "modernframe.glb")
	}
	if cfg.Camera.FOVDeg != 50 {
		t.Errorf("camera.fov_deg = %v, want 50", cfg.Camera.FOVDeg)
	}
	if cfg.Camera.Position != [3]float64{0, 2, 8} {
		t.Errorf("camera.position = %v, want [0 2 8]", cfg.Camera.Position)
	}
	if cfg.Framing.FitRatio != 1.2 {
		t.Errorf("framing.fit_ratio = %v, want 1.2", cfg.Framing.FitRatio)
	}
	if cfg.Image.MaxTextureSize != 1024 {
		t.Errorf("image.max_texture_size = %d, want 1024", cfg.Image.MaxTextureSize)
	}
	if cfg.Render.Background != "#EEEEEE" {
		t.Errorf("render.background = %q, want #EEEEEE", cfg.Render.Background)
	}
	if cfg.Defaults.Style != "modern" {
		t.Errorf("defaults.style = %q, want modern", cfg.Defaults.Style)
	}
	if cfg.Defaults.ExportFormat != "glb" {
		t.Errorf("defaults.export_format = %q, want glb", cfg.Defaults.ExportFormat)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("defaults.debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_MissingStyles(t *testing.T) {
	yaml := `
defaults:
  color: "#7C5427"
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing styles, got nil")
	}
}

func TestLoad_InvalidStyles(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing_name", "styles:\n  - file: a.glb\n"},
		{"missing_file", "styles:\n  - name: a\n"},
		{"duplicate", "styles:\n  - {name: a, file: a.glb}\n  - {name: a, file: b.glb}\n"},
		{"unknown_default", "styles:\n  - {name: a, file: a.glb}\ndefaults:\n  style: b\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FOVOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		fov  float64
	}{
		{"negative", -1.0},
		{"straight", 180.0},
		{"over_180", 200.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := `
styles:
  - {name: classic, file: pictureframe.glb}
camera:
  fov_deg: ` + formatFloat(tc.fov)
			path := writeConfig(t, yaml)
			_, err := Load(path)
			if err == nil {
				t.Errorf("expected error for fov_deg=%v, got nil", tc.fov)
			}
		})
	}
}

func TestLoad_NearNotBelowFar(t *testing.T) {
	yaml := `
styles:
  - {name: classic, file: pictureframe.glb}
camera:
  near: 10
  far: 5
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for near >= far, got nil")
	}
}

func TestLoad_InvalidExportFormat(t *testing.T) {
	yaml := `
styles:
  - {name: classic, file: pictureframe.glb}
defaults:
  export_format: "obj"
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for export_format=obj, got nil")
	}
}

func TestLoad_DebugLevelOutOfRange(t *testing.T) {
	yaml := `
styles:
  - {name: classic, file: pictureframe.glb}
defaults:
  debug_level: 5
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for debug_level=5, got nil")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
styles:
  - name: "classic"
    file: "pictureframe.glb"
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.Style != "classic" {
		t.Errorf("style default = %q, want classic", cfg.Defaults.Style)
	}
	if cfg.Defaults.Color != "#7C5427" {
		t.Errorf("color default = %q, want #7C5427", cfg.Defaults.Color)
	}
	if cfg.Defaults.ExportFormat != "gltf" {
		t.Errorf("export_format default = %q, want gltf", cfg.Defaults.ExportFormat)
	}
	if cfg.Assets.Dir != "assets" {
		t.Errorf("assets.dir default = %q, want assets", cfg.Assets.Dir)
	}
	if cfg.Camera.FOVDeg != 45 {
		t.Errorf("fov_deg default = %v, want 45", cfg.Camera.FOVDeg)
	}
	if cfg.Camera.Aspect != 2 {
		t.Errorf("aspect default = %v, want 2", cfg.Camera.Aspect)
	}
	if cfg.Camera.Near != 0.1 || cfg.Camera.Far != 100 {
		t.Errorf("near/far default = %v/%v, want 0.1/100", cfg.Camera.Near, cfg.Camera.Far)
	}
	if cfg.Camera.Position != [3]float64{0, 10, 20} {
		t.Errorf("position default = %v, want [0 10 20]", cfg.Camera.Position)
	}
	if cfg.Camera.Target != [3]float64{0, 5, 0} {
		t.Errorf("target default = %v, want [0 5 0]", cfg.Camera.Target)
	}
	if cfg.Framing.FitRatio != 1.5 {
		t.Errorf("fit_ratio default = %v, want 1.5", cfg.Framing.FitRatio)
	}
	if cfg.Framing.MaxDistanceFactor != 10 {
		t.Errorf("max_distance_factor default = %v, want 10", cfg.Framing.MaxDistanceFactor)
	}
	if cfg.Image.MaxUploadMB != 20 {
		t.Errorf("max_upload_mb default = %d, want 20", cfg.Image.MaxUploadMB)
	}
	if cfg.Image.MaxTextureSize != 2048 {
		t.Errorf("max_texture_size default = %d, want 2048", cfg.Image.MaxTextureSize)
	}
	if cfg.Image.MaxPixels != 40_000_000 {
		t.Errorf("max_pixels default = %d, want 40000000", cfg.Image.MaxPixels)
	}
	if cfg.Render.RefreshMs != 100 {
		t.Errorf("refresh_ms default = %d, want 100", cfg.Render.RefreshMs)
	}
	if cfg.Render.Background != "#FFFFFF" {
		t.Errorf("background default = %q, want #FFFFFF", cfg.Render.Background)
	}
}

func TestLoad_HomeDirExpanded(t *testing.T) {
	yaml := `
assets:
  dir: "~/frames"
styles:
  - {name: classic, file: pictureframe.glb}
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(cfg.Assets.Dir, "~") {
		t.Errorf("assets.dir = %q, want ~ expanded", cfg.Assets.Dir)
	}
	if filepath.Base(cfg.Assets.Dir) != "frames" {
		t.Errorf("assets.dir = %q, want .../frames", cfg.Assets.Dir)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (styles missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
styles:
  - {name: classic, file: pictureframe.glb}
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_Copy(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cp, err := cfg.Copy()
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	cp.Styles[0].File = "changed.glb"
	cp.Defaults.Color = "#000000"
	if cfg.Styles[0].File != "pictureframe.glb" {
		t.Errorf("base styles[0].file = %q, copy must not alias the base", cfg.Styles[0].File)
	}
	if cfg.Defaults.Color != "#112233" {
		t.Errorf("base defaults.color = %q, want #112233", cfg.Defaults.Color)
	}
}

func TestConfig_StyleFile(t *testing.T) {
	cfg := &Config{Styles: []StyleConfig{
		{Name: "classic", File: "pictureframe.glb"},
		{Name: "modern", File: "modernframe.glb"},
	}}
	if f, ok := cfg.StyleFile("modern"); !ok || f != "modernframe.glb" {
		t.Errorf("StyleFile(modern) = %q, %v, want modernframe.glb, true", f, ok)
	}
	if _, ok := cfg.StyleFile("rustic"); ok {
		t.Error("StyleFile(rustic) should not be found")
	}
	names := cfg.StyleNames()
	if len(names) != 2 || names[0] != "classic" || names[1] != "modern" {
		t.Errorf("StyleNames() = %v, want [classic modern]", names)
	}
}

func TestConfig_RefreshInterval(t *testing.T) {
	cfg := &Config{Render: RenderConfig{RefreshMs: 16}}
	got := cfg.RefreshInterval()
	want := 16 * time.Millisecond
	if got != want {
		t.Errorf("RefreshInterval() = %v, want %v", got, want)
	}
}

// formatFloat is a test helper for embedding floats into YAML strings.
func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func TestWithStyles(t *testing.T) {
	cfg, err := WithStyles([]StyleConfig{{Name: "classic", File: "classic.glb"}})
	if err != nil {
		t.Fatalf("WithStyles: %v", err)
	}
	if cfg.Defaults.Style != "classic" {
		t.Errorf("Defaults.Style = %q, want classic", cfg.Defaults.Style)
	}
	if cfg.Framing.FitRatio != 1.5 || cfg.Framing.MaxDistanceFactor != 10 {
		t.Errorf("Framing = %+v, want defaults", cfg.Framing)
	}

	if _, err := WithStyles(nil); err == nil {
		t.Error("WithStyles(nil) should fail")
	}
	dup := []StyleConfig{{Name: "a", File: "a.glb"}, {Name: "a", File: "b.glb"}}
	if _, err := WithStyles(dup); err == nil {
		t.Error("duplicate style names should fail")
	}
}
