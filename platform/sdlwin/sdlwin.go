// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sdlwin provides an SDL2 window with a Vulkan surface.
// Every call must be made from the main thread.
package sdlwin

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/platform"
)

// waitTimeout bounds WaitEvents in milliseconds.
const waitTimeout = 100

// New initialises SDL with the Vulkan loader and opens a resizable window.
func New(title string, extent gfx.Extent2D) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("sdl.Init(): %w", err)
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("sdl.VulkanLoadLibrary(): %w", err)
	}
	window, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(extent.Width),
		int32(extent.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		return nil, fmt.Errorf("sdl.CreateWindow(): %w", err)
	}
	return &Window{window: window}, nil
}

// Window is an SDL window.
type Window struct {
	window      *sdl.Window
	subscribers platform.Subscribers
	closer      platform.Closer
}

var _ platform.Window = (*Window)(nil)

// DrawableSize implements surface.Window.
func (w *Window) DrawableSize() gfx.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gfx.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// WaitEvents implements surface.Window.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEventTimeout(waitTimeout); event != nil {
		w.handle(event)
	}
	w.Poll()
}

// OnResize implements surface.Window.
func (w *Window) OnResize(f func(gfx.Extent2D)) func() {
	return w.subscribers.Add(f)
}

// Poll implements platform.Window.
func (w *Window) Poll() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
	return w.closer.Closed()
}

// OnClose implements platform.Window.
func (w *Window) OnClose(f func()) {
	w.closer.Add(f)
}

func (w *Window) handle(event sdl.Event) {
	switch et := event.(type) {
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
			w.subscribers.Notify(w.DrawableSize())
		}
	case *sdl.KeyboardEvent:
		if et.Keysym.Sym == sdl.K_ESCAPE {
			w.closer.Close()
		}
	case *sdl.QuitEvent:
		w.closer.Close()
	}
}

// ProcAddr implements vkr.Platform.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions implements vkr.Platform.
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// CreateSurface implements vkr.Platform.
func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	var none vk.Surface
	surface, err := w.window.VulkanCreateSurface(instance)
	if err != nil {
		return none, fmt.Errorf("sdl.VulkanCreateSurface(): %w", err)
	}
	return vk.SurfaceFromPointer(uintptr(surface)), nil
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	w.window.Destroy()
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
}
