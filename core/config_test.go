// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/gpures/core"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	c := qt.New(t)

	cfg := core.DefaultConfiguration()
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Renderer.MaxFramesInFlight, qt.Equals, 2)
	c.Assert(cfg.Renderer.MaxTransfersInFlight, qt.Equals, 2)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(800))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(600))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*core.Configuration)
	}{
		{"frames exceed swapchain", func(cfg *core.Configuration) {
			cfg.Renderer.SwapchainSize = 2
			cfg.Renderer.MaxFramesInFlight = 3
		}},
		{"no frames in flight", func(cfg *core.Configuration) {
			cfg.Renderer.MaxFramesInFlight = 0
		}},
		{"no transfers in flight", func(cfg *core.Configuration) {
			cfg.Renderer.MaxTransfersInFlight = 0
		}},
		{"single sample", func(cfg *core.Configuration) {
			cfg.Renderer.Samples = 1
		}},
		{"odd samples", func(cfg *core.Configuration) {
			cfg.Renderer.Samples = 6
		}},
		{"zero extent", func(cfg *core.Configuration) {
			cfg.Renderer.ScreenHeight = 0
		}},
		{"unknown backend", func(cfg *core.Configuration) {
			cfg.Window.Backend = "x11"
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := core.DefaultConfiguration()
			test.modify(&cfg)
			qt.Assert(t, cfg.Validate(), qt.ErrorIs, core.ErrConfiguration)
		})
	}
}

func TestLoadConfigurationFromEnvironment(t *testing.T) {
	c := qt.New(t)

	t.Setenv(core.EnvMaxFramesInFlight, "3")
	t.Setenv(core.EnvSwapchainSize, "4")
	t.Setenv(core.EnvWindowBackend, "GLFW")
	t.Setenv(core.EnvDebug, "true")

	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.MaxFramesInFlight, qt.Equals, 3)
	c.Assert(cfg.Renderer.SwapchainSize, qt.Equals, uint32(4))
	c.Assert(cfg.Window.Backend, qt.Equals, "glfw")
	c.Assert(cfg.Renderer.Debug, qt.IsTrue)
}

func TestLoadConfigurationFromDotenv(t *testing.T) {
	c := qt.New(t)

	file := filepath.Join(t.TempDir(), "test.env")
	err := os.WriteFile(file, []byte("GPURES_WIDTH=1024\nGPURES_HEIGHT=768\n"), 0o600)
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() {
		os.Unsetenv(core.EnvScreenWidth)
		os.Unsetenv(core.EnvScreenHeight)
	})

	cfg, err := core.LoadConfiguration(file)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1024))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(768))
}

func TestLoadConfigurationRejectsBudget(t *testing.T) {
	t.Setenv(core.EnvMaxFramesInFlight, "4")
	t.Setenv(core.EnvSwapchainSize, "3")

	_, err := core.LoadConfiguration()
	qt.Assert(t, err, qt.ErrorIs, core.ErrConfiguration)
}

func TestLoadConfigurationRejectsMalformed(t *testing.T) {
	t.Setenv(core.EnvSamples, "four")

	_, err := core.LoadConfiguration()
	qt.Assert(t, err, qt.ErrorIs, core.ErrConfiguration)
}

func TestLoadConfigurationMissingFile(t *testing.T) {
	_, err := core.LoadConfiguration(filepath.Join(t.TempDir(), "missing.env"))
	qt.Assert(t, err, qt.IsNotNil)
}
