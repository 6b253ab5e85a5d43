// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// Environment keys read by LoadConfiguration.
const (
	EnvFramesPerSecond      = "GPURES_FPS"
	EnvEventPollDelay       = "GPURES_EVENT_POLL_DELAY"
	EnvSwapchainSize        = "GPURES_SWAPCHAIN_SIZE"
	EnvMaxFramesInFlight    = "GPURES_FRAMES_IN_FLIGHT"
	EnvMaxTransfersInFlight = "GPURES_TRANSFERS_IN_FLIGHT"
	EnvSamples              = "GPURES_SAMPLES"
	EnvScreenWidth          = "GPURES_WIDTH"
	EnvScreenHeight         = "GPURES_HEIGHT"
	EnvDebug                = "GPURES_DEBUG"
	EnvWindowTitle          = "GPURES_TITLE"
	EnvWindowBackend        = "GPURES_WINDOW"
	EnvAssetBundle          = "GPURES_BUNDLE"
	EnvLogLevel             = "GPURES_LOG_LEVEL"
)

// LoadConfiguration builds a Configuration from DefaultConfiguration
// overridden by the environment. Dotenv files, when given, are loaded
// first and never override variables already set. The result is validated.
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, fmt.Errorf("godotenv.Load(): %w", err)
		}
	}
	envy.Reload()

	var (
		cfg  = DefaultConfiguration()
		errs []error
	)
	getInt := func(key string, def int) int {
		raw := envy.Get(key, strconv.Itoa(def))
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return def
		}
		return v
	}
	getUint := func(key string, def uint32) uint32 {
		raw := envy.Get(key, strconv.FormatUint(uint64(def), 10))
		v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return def
		}
		return uint32(v)
	}
	getBool := func(key string, def bool) bool {
		raw := envy.Get(key, strconv.FormatBool(def))
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return def
		}
		return v
	}

	cfg.Time.FramesPerSecond = getInt(EnvFramesPerSecond, cfg.Time.FramesPerSecond)
	cfg.Time.EventPollDelay = getInt(EnvEventPollDelay, cfg.Time.EventPollDelay)

	r := &cfg.Renderer
	r.SwapchainSize = getUint(EnvSwapchainSize, r.SwapchainSize)
	r.MaxFramesInFlight = getInt(EnvMaxFramesInFlight, r.MaxFramesInFlight)
	r.MaxTransfersInFlight = getInt(EnvMaxTransfersInFlight, r.MaxTransfersInFlight)
	r.Samples = getUint(EnvSamples, r.Samples)
	r.ScreenWidth = getUint(EnvScreenWidth, r.ScreenWidth)
	r.ScreenHeight = getUint(EnvScreenHeight, r.ScreenHeight)
	r.Debug = getBool(EnvDebug, r.Debug)

	cfg.Window.Title = envy.Get(EnvWindowTitle, cfg.Window.Title)
	cfg.Window.Backend = strings.ToLower(envy.Get(EnvWindowBackend, cfg.Window.Backend))
	cfg.Assets.Bundle = envy.Get(EnvAssetBundle, cfg.Assets.Bundle)
	cfg.Log.Level = envy.Get(EnvLogLevel, cfg.Log.Level)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %v", ErrConfiguration, errors.Join(errs...))
	}
	return cfg, cfg.Validate()
}
