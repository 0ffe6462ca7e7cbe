// Package config holds the startup settings of the renderer. Settings come
// from defaults, then an optional TOML file, then the environment.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Log      Log      `toml:"log"`
}

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Renderer struct {
	// FramesInFlight is fixed for the session; 2 or 3.
	FramesInFlight int  `toml:"frames_in_flight"`
	VSync          bool `toml:"vsync"`
	// Validation enables the Khronos validation layer and debug report
	// callback.
	Validation          bool       `toml:"validation"`
	ClearColor          mgl32.Vec4 `toml:"clear_color"`
	OffscreenClearColor mgl32.Vec4 `toml:"offscreen_clear_color"`
}

type Log struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		Window: Window{
			Title:  "Lumen",
			Width:  800,
			Height: 600,
		},
		Renderer: Renderer{
			FramesInFlight:      2,
			Validation:          true,
			ClearColor:          mgl32.Vec4{0.1, 0.1, 0.1, 1},
			OffscreenClearColor: mgl32.Vec4{0, 0, 1, 1},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults. A missing file, or an
// empty path, leaves the defaults in place. Environment overrides are
// applied last and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := decode(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// applyEnv applies VK_VALIDATION and LUMEN_LOG_LEVEL. VK_VALIDATION turns
// validation off only for 0 or false; any other value turns it on.
func (c *Config) applyEnv() {
	if val, ok := os.LookupEnv("VK_VALIDATION"); ok && val != "" {
		switch val {
		case "0", "false", "False", "FALSE":
			c.Renderer.Validation = false
		default:
			c.Renderer.Validation = true
		}
	}
	if val, ok := os.LookupEnv("LUMEN_LOG_LEVEL"); ok && val != "" {
		c.Log.Level = strings.ToLower(val)
	}
}

func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if n := c.Renderer.FramesInFlight; n != 2 && n != 3 {
		return errors.Errorf("frames_in_flight must be 2 or 3, got %d", n)
	}
	for name, color := range map[string]mgl32.Vec4{
		"clear_color":           c.Renderer.ClearColor,
		"offscreen_clear_color": c.Renderer.OffscreenClearColor,
	} {
		for _, v := range color {
			if v < 0 || v > 1 {
				return errors.Errorf("%s components must be in [0, 1], got %v", name, color)
			}
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.Wrapf(err, "invalid log level %q", c.Log.Level)
	}
	return level, nil
}
