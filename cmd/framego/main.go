package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/FrameGo/internal/assets"
	"github.com/cjeanneret/FrameGo/internal/config"
	"github.com/cjeanneret/FrameGo/internal/debug"
	"github.com/cjeanneret/FrameGo/internal/logic/configurator"
	"github.com/cjeanneret/FrameGo/internal/model"
	"github.com/cjeanneret/FrameGo/internal/model/sample"
	"github.com/cjeanneret/FrameGo/internal/render"
	"github.com/cjeanneret/FrameGo/internal/web"
)

// Overrides holds command-line values that replace config defaults.
// Empty fields keep the config value.
type Overrides struct {
	Style        string
	Color        string
	ExportFormat string
}

// options are the parsed command-line flags.
type options struct {
	configPath string
	webPort    int
	overrides  Overrides
	imagePath  string
	outPath    string
	demo       bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	style := flag.String("style", "", "override the frame style loaded at startup")
	color := flag.String("color", "", "frame color as #RGB or #RRGGBB")
	format := flag.String("format", "", "export format: gltf or glb")
	imagePath := flag.String("image", "", "picture to place inside the frame")
	outPath := flag.String("out", "", "export path (default frame.<format>); ignored with -web")
	demo := flag.Bool("demo", false, "use the built-in sample frames instead of the configured assets")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := options{
		configPath: *cfgPath,
		webPort:    webPort.port(),
		overrides:  Overrides{Style: *style, Color: *color, ExportFormat: *format},
		imagePath:  *imagePath,
		outPath:    *outPath,
		demo:       *demo,
	}
	if err := run(ctx, opts); err != nil {
		log.Fatalf("framego: %v", err)
	}
}

// run loads the configuration and either serves the configurator or
// composes a single export.
func run(ctx context.Context, opts options) error {
	// Validate CLI overrides (empty values mean "use config default")
	if err := validateCLIOverrides(opts.overrides); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}

	base, src, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg, err := applyOverridesToCopy(base, opts.overrides)
	if err != nil {
		return err
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Demo assets", opts.demo)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Styles", cfg.Styles)

	if opts.webPort > 0 {
		return serve(ctx, cfg, src, opts)
	}
	return compose(ctx, cfg, src, opts)
}

// loadConfig returns the configuration and the asset source it points at.
// Demo mode serves the built-in samples and needs no config file.
func loadConfig(opts options) (*config.Config, assets.Source, error) {
	if opts.demo {
		cfg, err := config.WithStyles(sample.Styles())
		if err != nil {
			return nil, nil, err
		}
		src, err := assets.NewSource("", sample.Assets())
		return cfg, src, err
	}

	if err := config.ValidateConfigPath(opts.configPath); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	src, err := assets.NewSource(cfg.Assets.Dir, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open assets: %w", err)
	}
	return cfg, src, nil
}

// compose loads the default style, applies the CLI color and picture, and
// writes the export file.
func compose(ctx context.Context, cfg *config.Config, src assets.Source, opts options) error {
	session := configurator.New(cfg, model.NewLoader(src))
	defer session.Close()

	debug.Step(1, "Loading style "+cfg.Defaults.Style)
	if _, err := session.SwitchStyle(ctx, cfg.Defaults.Style); err != nil {
		return err
	}
	if opts.overrides.Color != "" {
		debug.Step(2, "Applying color "+cfg.Defaults.Color)
		if err := session.SetColor(cfg.Defaults.Color); err != nil {
			return err
		}
	}
	if opts.imagePath != "" {
		debug.Step(3, "Applying picture "+opts.imagePath)
		if err := applyImage(session, opts.imagePath); err != nil {
			return err
		}
	}

	format, err := model.ParseFormat(cfg.Defaults.ExportFormat)
	if err != nil {
		return err
	}
	out := opts.outPath
	if out == "" {
		out = format.Filename()
	}
	debug.Step(4, "Exporting "+out)
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := session.Export(f, format); err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	debug.Summary(debug.Fmt("%s style written to %s", cfg.Defaults.Style, out))
	return nil
}

func applyImage(session *configurator.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	_, err = session.SetImage(filepath.Base(path), f)
	return err
}

// serve runs the web configurator, the preview loop and, when enabled, the
// asset watcher until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, src assets.Source, opts options) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	loader := model.NewLoader(src)
	session := configurator.New(cfg, loader)
	defer session.Close()
	session.SetNotifier(broadcaster.Broadcast)

	viewport := render.NewViewport(cfg.Render.Width, cfg.Render.Height)
	loop := render.NewLoop(session, viewport, cfg.RefreshInterval())

	srv, err := web.NewServer(fmt.Sprintf(":%d", opts.webPort), web.Deps{
		Broadcaster: broadcaster,
		Session:     session,
		Preview:     loop.Preview(),
		Viewport:    viewport,
		UI: web.UIConfig{
			Styles:       cfg.StyleNames(),
			DefaultStyle: cfg.Defaults.Style,
			DefaultColor: cfg.Defaults.Color,
			ExportFormat: cfg.Defaults.ExportFormat,
			MaxUploadMB:  cfg.Image.MaxUploadMB,
		},
	})
	if err != nil {
		return err
	}

	// Startup customizations; the style load runs in the background.
	if opts.overrides.Color != "" {
		if err := session.SetColor(cfg.Defaults.Color); err != nil {
			return err
		}
	}
	if opts.imagePath != "" {
		if err := applyImage(session, opts.imagePath); err != nil {
			return err
		}
	}
	if _, err := session.RequestStyle(ctx, cfg.Defaults.Style, nil); err != nil {
		return err
	}

	var watcher *assets.Watcher
	if dir, ok := src.(*assets.DirSource); ok && cfg.Assets.Watch {
		watcher, err = assets.NewWatcher(dir.Dir())
		if err != nil {
			return fmt.Errorf("watch assets: %w", err)
		}
		defer watcher.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx, func(name string) {
				reloadOnChange(gctx, session, loader, broadcaster, name)
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadOnChange drops cached documents depending on name and reloads the
// current style when it was one of them.
func reloadOnChange(ctx context.Context, session *configurator.Session, loader *model.Loader, b *web.StatusBroadcaster, name string) {
	if !loader.Evict(name) {
		return
	}
	style := session.Style()
	if style == "" {
		return
	}
	b.BroadcastMsg(fmt.Sprintf("Asset %s changed, reloading %q", name, style))
	session.RequestStyle(ctx, style, nil)
}

// validateCLIOverrides checks the non-empty CLI overrides.
// The style is checked against the catalog when it is loaded.
func validateCLIOverrides(o Overrides) error {
	if o.Color != "" {
		if _, err := configurator.ParseColor(o.Color); err != nil {
			return fmt.Errorf("color: %w", err)
		}
	}
	if o.ExportFormat != "" {
		if _, err := model.ParseFormat(o.ExportFormat); err != nil {
			return fmt.Errorf("format: %w", err)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-empty override values are applied.
func applyOverrides(cfg *config.Config, overrides Overrides) {
	if overrides.Style != "" {
		cfg.Defaults.Style = overrides.Style
	}
	if overrides.Color != "" {
		cfg.Defaults.Color = overrides.Color
	}
	if overrides.ExportFormat != "" {
		f, _ := model.ParseFormat(overrides.ExportFormat)
		cfg.Defaults.ExportFormat = string(f)
	}
}

// applyOverridesToCopy returns a deep copy of baseCfg with overrides applied.
func applyOverridesToCopy(baseCfg *config.Config, overrides Overrides) (*config.Config, error) {
	cfg, err := baseCfg.Copy()
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, overrides)
	return cfg, nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
