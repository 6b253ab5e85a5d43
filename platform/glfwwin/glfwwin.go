// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package glfwwin provides a GLFW window with a Vulkan surface.
// Every call must be made from the main thread.
package glfwwin

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/platform"
)

// ErrNoVulkan is returned when GLFW cannot find a Vulkan loader.
var ErrNoVulkan = errors.New("glfwwin: vulkan is not supported")

// New initialises GLFW and opens a resizable window without a
// client API, as the surface is created through Vulkan.
func New(title string, extent gfx.Extent2D) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init(): %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, ErrNoVulkan
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err := glfw.CreateWindow(int(extent.Width), int(extent.Height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw.CreateWindow(): %w", err)
	}
	w := &Window{window: window}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.subscribers.Notify(gfx.Extent2D{Width: uint32(width), Height: uint32(height)})
	})
	window.SetCloseCallback(func(*glfw.Window) {
		w.closer.Close()
	})
	window.SetKeyCallback(func(win *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			w.closer.Close()
		}
	})
	return w, nil
}

// Window is a GLFW window.
type Window struct {
	window      *glfw.Window
	subscribers platform.Subscribers
	closer      platform.Closer
}

var _ platform.Window = (*Window)(nil)

// DrawableSize implements surface.Window.
func (w *Window) DrawableSize() gfx.Extent2D {
	width, height := w.window.GetFramebufferSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// WaitEvents implements surface.Window.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// OnResize implements surface.Window.
func (w *Window) OnResize(f func(gfx.Extent2D)) func() {
	return w.subscribers.Add(f)
}

// Poll implements platform.Window.
func (w *Window) Poll() bool {
	glfw.PollEvents()
	return w.window.ShouldClose() || w.closer.Closed()
}

// OnClose implements platform.Window.
func (w *Window) OnClose(f func()) {
	w.closer.Add(f)
}

// ProcAddr implements vkr.Platform.
func (w *Window) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// InstanceExtensions implements vkr.Platform.
func (w *Window) InstanceExtensions() []string {
	return w.window.GetRequiredInstanceExtensions()
}

// CreateSurface implements vkr.Platform.
func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	var none vk.Surface
	surface, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return none, fmt.Errorf("glfw.CreateWindowSurface(): %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

// Destroy closes the window and terminates GLFW.
func (w *Window) Destroy() {
	w.window.Destroy()
	glfw.Terminate()
}
