// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by every validation failure.
var ErrConfiguration = errors.New("invalid configuration")

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Window   WindowConfiguration
	Assets   AssetConfiguration
	Log      LogConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	// MaxFramesInFlight bounds the frames submitted but not yet
	// completed. It may not exceed SwapchainSize.
	MaxFramesInFlight int

	// MaxTransfersInFlight bounds pending transfer queue submissions.
	MaxTransfersInFlight int

	// Samples is the multisample count of color and depth targets.
	Samples uint32

	ScreenWidth  uint32
	ScreenHeight uint32

	Debug bool
}

// WindowConfiguration selects and configures the window provider
type WindowConfiguration struct {
	Title string

	// Backend is either "sdl" or "glfw"
	Backend string
}

// AssetConfiguration locates asset bundles
type AssetConfiguration struct {
	Bundle string
}

// LogConfiguration configures the engine logger
type LogConfiguration struct {
	Level string
}

// DefaultConfiguration returns the configuration the engine runs with
// when nothing overrides it.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Renderer: RendererConfiguration{
			SwapchainSize: 3,
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			MaxFramesInFlight:    2,
			MaxTransfersInFlight: 2,
			Samples:              4,
			ScreenWidth:          800,
			ScreenHeight:         600,
		},
		Window: WindowConfiguration{
			Title:   "gpures",
			Backend: "sdl",
		},
		Assets: AssetConfiguration{
			Bundle: "assets.bundle",
		},
		Log: LogConfiguration{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Configuration) Validate() error {
	r := c.Renderer
	switch {
	case r.MaxFramesInFlight < 1:
		return fmt.Errorf("%w: max frames in flight %d, need at least 1", ErrConfiguration, r.MaxFramesInFlight)
	case uint32(r.MaxFramesInFlight) > r.SwapchainSize:
		return fmt.Errorf("%w: max frames in flight %d exceeds swapchain size %d", ErrConfiguration, r.MaxFramesInFlight, r.SwapchainSize)
	case r.MaxTransfersInFlight < 1:
		return fmt.Errorf("%w: max transfers in flight %d, need at least 1", ErrConfiguration, r.MaxTransfersInFlight)
	case r.Samples < 2 || r.Samples&(r.Samples-1) != 0:
		return fmt.Errorf("%w: sample count %d is not a power of two above 1", ErrConfiguration, r.Samples)
	case r.ScreenWidth == 0 || r.ScreenHeight == 0:
		return fmt.Errorf("%w: window extent %dx%d", ErrConfiguration, r.ScreenWidth, r.ScreenHeight)
	case c.Time.FramesPerSecond < 0:
		return fmt.Errorf("%w: frames per second %d", ErrConfiguration, c.Time.FramesPerSecond)
	case c.Time.EventPollDelay < 1:
		return fmt.Errorf("%w: event poll delay %dms", ErrConfiguration, c.Time.EventPollDelay)
	}
	switch c.Window.Backend {
	case "sdl", "glfw":
	default:
		return fmt.Errorf("%w: unknown window backend %q", ErrConfiguration, c.Window.Backend)
	}
	return nil
}
