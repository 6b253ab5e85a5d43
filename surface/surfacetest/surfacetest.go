// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package surfacetest provides a scripted surface.Window.
package surfacetest

import (
	"sync"

	"github.com/devblok/gpures/gfx"
)

// Window is a window whose drawable size is set by the test. Sizes
// queued with Script are applied one per WaitEvents call, as if each
// were the result of a window event.
type Window struct {
	mutex    sync.Mutex
	size     gfx.Extent2D
	script   []gfx.Extent2D
	waits    int
	next     int
	handlers map[int]func(gfx.Extent2D)
}

// New returns a window with the given drawable size.
func New(size gfx.Extent2D) *Window {
	return &Window{
		size:     size,
		handlers: make(map[int]func(gfx.Extent2D)),
	}
}

// Resize changes the drawable size and notifies the handlers.
func (w *Window) Resize(size gfx.Extent2D) {
	w.mutex.Lock()
	w.size = size
	handlers := make([]func(gfx.Extent2D), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mutex.Unlock()

	for _, h := range handlers {
		h(size)
	}
}

// Script queues sizes applied by the coming WaitEvents calls.
func (w *Window) Script(sizes ...gfx.Extent2D) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.script = append(w.script, sizes...)
}

// Waits returns how many times WaitEvents was called.
func (w *Window) Waits() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.waits
}

// Subscribers returns the number of registered resize handlers.
func (w *Window) Subscribers() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.handlers)
}

// DrawableSize implements surface.Window.
func (w *Window) DrawableSize() gfx.Extent2D {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.size
}

// WaitEvents implements surface.Window. It applies the next scripted
// size, if any, through Resize.
func (w *Window) WaitEvents() {
	w.mutex.Lock()
	w.waits++
	if len(w.script) == 0 {
		w.mutex.Unlock()
		return
	}
	size := w.script[0]
	w.script = w.script[1:]
	w.mutex.Unlock()

	w.Resize(size)
}

// OnResize implements surface.Window.
func (w *Window) OnResize(h func(gfx.Extent2D)) func() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	id := w.next
	w.next++
	w.handlers[id] = h
	return func() {
		w.mutex.Lock()
		defer w.mutex.Unlock()
		delete(w.handlers, id)
	}
}
