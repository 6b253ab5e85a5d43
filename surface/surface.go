// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package surface tracks the drawable size of the presentation window
// and whether the swap mechanism built for it is still valid.
package surface

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/gfx"
)

// Window is the part of a window the engine depends on.
type Window interface {
	// DrawableSize returns the size of the drawable area in pixels.
	// A minimized window reports a zero extent.
	DrawableSize() gfx.Extent2D

	// WaitEvents blocks until the window receives at least one event
	// and processes the received events.
	WaitEvents()

	// OnResize registers a handler called with the new drawable size
	// whenever it changes. Calling the returned function removes it.
	OnResize(func(gfx.Extent2D)) (unsubscribe func())
}

// NewManager creates a manager for w and subscribes to its resizes.
func NewManager(w Window, logger logrus.FieldLogger) *Manager {
	m := &Manager{
		window: w,
		log:    logger,
		extent: w.DrawableSize(),
	}
	m.unsubscribe = w.OnResize(m.resize)
	return m
}

// Manager holds the last known drawable extent and the resize signal.
// Resize notifications may arrive from any goroutine.
type Manager struct {
	window      Window
	log         logrus.FieldLogger
	unsubscribe func()

	mutex   sync.Mutex
	extent  gfx.Extent2D
	resized bool
}

func (m *Manager) resize(e gfx.Extent2D) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.extent = e
	m.resized = true
	m.log.WithField("extent", e.String()).Debug("surface resized")
}

// Extent returns the last known drawable extent.
func (m *Manager) Extent() gfx.Extent2D {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.extent
}

func (m *Manager) refresh() gfx.Extent2D {
	e := m.window.DrawableSize()
	m.mutex.Lock()
	m.extent = e
	m.mutex.Unlock()
	return e
}

// Resized reports whether the surface changed since the last
// ClearResized.
func (m *Manager) Resized() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.resized
}

// ClearResized lowers the resize signal once the swap mechanism
// matches the surface again.
func (m *Manager) ClearResized() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.resized = false
}

// WaitDrawable returns the drawable extent once neither dimension is
// zero, blocking on window events until then. The context is checked
// between events; an event wait in progress is not interrupted. A window
// closed while minimized only ends the wait through ctx.
func (m *Manager) WaitDrawable(ctx context.Context) (gfx.Extent2D, error) {
	waited := false
	for {
		e := m.refresh()
		if !e.Zero() {
			if waited {
				m.log.WithField("extent", e.String()).Info("surface drawable again")
			}
			return e, nil
		}
		if err := ctx.Err(); err != nil {
			return gfx.Extent2D{}, err
		}
		if !waited {
			m.log.WithField("extent", e.String()).Info("surface has no drawable area, waiting")
			waited = true
		}
		m.window.WaitEvents()
	}
}

// Close removes the resize subscription.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}
