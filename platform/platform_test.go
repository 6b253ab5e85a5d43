// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package platform_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/platform"
)

func TestSubscribers(t *testing.T) {
	c := qt.New(t)
	var s platform.Subscribers

	var first, second []gfx.Extent2D
	unsubscribe := s.Add(func(e gfx.Extent2D) { first = append(first, e) })
	s.Add(func(e gfx.Extent2D) { second = append(second, e) })
	c.Assert(s.Len(), qt.Equals, 2)

	s.Notify(gfx.Extent2D{Width: 800, Height: 600})
	unsubscribe()
	unsubscribe()
	s.Notify(gfx.Extent2D{})

	c.Assert(s.Len(), qt.Equals, 1)
	c.Assert(first, qt.DeepEquals, []gfx.Extent2D{{Width: 800, Height: 600}})
	c.Assert(second, qt.DeepEquals, []gfx.Extent2D{{Width: 800, Height: 600}, {}})
}

func TestSubscriberRemovesItself(t *testing.T) {
	c := qt.New(t)
	var s platform.Subscribers

	calls := 0
	var unsubscribe func()
	unsubscribe = s.Add(func(gfx.Extent2D) {
		calls++
		unsubscribe()
	})
	s.Notify(gfx.Extent2D{Width: 1, Height: 1})
	s.Notify(gfx.Extent2D{Width: 2, Height: 2})
	c.Assert(calls, qt.Equals, 1)
	c.Assert(s.Len(), qt.Equals, 0)
}

func TestCloserRunsHandlersOnce(t *testing.T) {
	c := qt.New(t)
	var closer platform.Closer

	calls := 0
	closer.Add(func() { calls++ })
	c.Assert(closer.Closed(), qt.IsFalse)
	c.Assert(calls, qt.Equals, 0)

	closer.Close()
	closer.Close()
	c.Assert(closer.Closed(), qt.IsTrue)
	c.Assert(calls, qt.Equals, 1)

	late := false
	closer.Add(func() { late = true })
	c.Assert(late, qt.IsTrue)
}
