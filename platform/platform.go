// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package platform holds what the native window providers share.
package platform

import (
	"sync"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/gfx/vkr"
	"github.com/devblok/gpures/surface"
)

// Window is a native window that hosts the Vulkan surface.
type Window interface {
	surface.Window
	vkr.Platform

	// Poll processes pending events without blocking and reports
	// whether the user asked to quit.
	Poll() (quit bool)

	// OnClose registers f to run once when the user asks to quit, also
	// from inside WaitEvents.
	OnClose(f func())
	Destroy()
}

// Closer runs close handlers once.
type Closer struct {
	mutex    sync.Mutex
	closed   bool
	handlers []func()
}

// Add registers f. It runs at once when the close already happened.
func (c *Closer) Add(f func()) {
	c.mutex.Lock()
	if !c.closed {
		c.handlers = append(c.handlers, f)
		c.mutex.Unlock()
		return
	}
	c.mutex.Unlock()
	f()
}

// Close runs every handler. Later calls do nothing.
func (c *Closer) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	handlers := c.handlers
	c.handlers = nil
	c.mutex.Unlock()
	for _, f := range handlers {
		f()
	}
}

// Closed reports whether Close was called.
func (c *Closer) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

// Subscribers is a set of resize handlers.
type Subscribers struct {
	mutex    sync.Mutex
	next     int
	handlers map[int]func(gfx.Extent2D)
}

// Add registers f and returns the function that removes it.
func (s *Subscribers) Add(f func(gfx.Extent2D)) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(gfx.Extent2D))
	}
	id := s.next
	s.next++
	s.handlers[id] = f
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.handlers, id)
	}
}

// Len returns the number of registered handlers.
func (s *Subscribers) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.handlers)
}

// Notify calls every handler with e. Handlers may unsubscribe
// themselves while being called.
func (s *Subscribers) Notify(e gfx.Extent2D) {
	s.mutex.Lock()
	handlers := make([]func(gfx.Extent2D), 0, len(s.handlers))
	for _, f := range s.handlers {
		handlers = append(handlers, f)
	}
	s.mutex.Unlock()
	for _, f := range handlers {
		f(e)
	}
}
