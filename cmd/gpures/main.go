// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/gpures/core"
	"github.com/devblok/gpures/frame"
	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/platform"
	"github.com/devblok/gpures/platform/glfwwin"
	"github.com/devblok/gpures/platform/sdlwin"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	envFile      = flag.String("env", "", "Load configuration from this dotenv file")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

func newWindow(cfg core.Configuration) (platform.Window, error) {
	extent := gfx.Extent2D{
		Width:  cfg.Renderer.ScreenWidth,
		Height: cfg.Renderer.ScreenHeight,
	}
	if cfg.Window.Backend == "glfw" {
		return glfwwin.New(cfg.Window.Title, extent)
	}
	return sdlwin.New(cfg.Window.Title, extent)
}

func main() {
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := core.LoadConfiguration(files...)
	if err != nil {
		log.Fatal(err)
	}
	if *debug {
		cfg.Renderer.Debug = true
	}
	logger, err := core.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}
	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			log.Fatal(err)
		}
		defer trace.Stop()
	}

	window, err := newWindow(cfg)
	if err != nil {
		logger.Fatal(err)
	}
	defer window.Destroy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	window.OnClose(cancel)

	a, err := newApp(ctx, cfg, window, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer a.Release()

	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()
	stats := time.NewTicker(time.Second)
	defer stats.Stop()

	frames := 0
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			if window.Poll() {
				break EventLoop
			}
		case <-timeService.FpsTicker().C:
			err := a.Draw(ctx)
			switch {
			case errors.Is(err, frame.ErrFrameDeferred):
				continue
			case errors.Is(err, context.Canceled):
				break EventLoop
			case err != nil:
				logger.WithError(err).Error("frame failed")
				break EventLoop
			}
			frames++
		case <-stats.C:
			logger.WithFields(log.Fields{
				"frames":     frames,
				"cgo":        runtime.NumCgoCall(),
				"generation": a.chain.Generation(),
			}).Debug("frame count")
			frames = 0
		}
	}
	logger.Info("event loop exited")
}
