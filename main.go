package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"Lumen/internal/config"
	"Lumen/internal/gpu"
	"Lumen/internal/presenter"
	"Lumen/internal/swapchain"
	"Lumen/internal/vkdevice"
	"Lumen/internal/window"
)

func init() {
	// GLFW/Vulkan require the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "lumen.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	level, err := cfg.LogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpu.SetLogger(logger)

	if err := run(cfg); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := window.Init(); err != nil {
		return err
	}
	defer window.Terminate()

	win, err := window.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	dev, err := vkdevice.New(win.Handle(), vkdevice.Config{
		AppName:    cfg.Window.Title,
		Validation: cfg.Renderer.Validation,
	})
	if err != nil {
		return errors.Wrap(err, "init vulkan")
	}
	defer dev.Destroy()

	p, err := presenter.New(dev, win, presenter.Options{
		FramesInFlight:      cfg.Renderer.FramesInFlight,
		VSync:               cfg.Renderer.VSync,
		ClearColor:          cfg.Renderer.ClearColor,
		OffscreenClearColor: cfg.Renderer.OffscreenClearColor,
	})
	if err != nil {
		return errors.Wrap(err, "init presenter")
	}
	defer func() {
		if err := p.Destroy(); err != nil {
			gpu.Logger().Error("destroy presenter", "err", err)
		}
	}()

	p.SetOnRecreate(func(chain *swapchain.Chain, formatsChanged bool) {
		if formatsChanged {
			gpu.Logger().Warn("swapchain formats changed",
				"color", chain.ImageFormat(),
				"depth", chain.DepthFormat())
		}
	})

	gpu.Logger().Info("entering main loop")
	start := time.Now()
	lastTitle := start
	for !win.ShouldClose() {
		win.PollEvents()

		cb, ok, err := p.BeginFrame(win)
		if err != nil {
			return errors.Wrap(err, "begin frame")
		}
		if !ok {
			continue
		}

		t := float32(0.5 + 0.5*math.Sin(time.Since(start).Seconds()))
		p.SetClearColor(pulse(cfg.Renderer.ClearColor, t))
		p.BeginRenderPass(cb)
		p.EndRenderPass(cb)

		if err := p.EndFrame(win); err != nil {
			return errors.Wrap(err, "end frame")
		}

		if now := time.Now(); now.Sub(lastTitle) >= time.Second {
			lastTitle = now
			win.SetTitle(fmt.Sprintf("%s | %s", cfg.Window.Title, p.Stats()))
		}
	}
	return nil
}

// pulse moves base a quarter of the way towards white at t = 1.
func pulse(base mgl32.Vec4, t float32) mgl32.Vec4 {
	white := mgl32.Vec3{1, 1, 1}
	c := base.Vec3().Add(white.Sub(base.Vec3()).Mul(0.25 * t))
	return c.Vec4(base.W())
}
