// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/gpures/chain"
	"github.com/devblok/gpures/frame"
	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/gfx/gfxtest"
	"github.com/devblok/gpures/memory"
	"github.com/devblok/gpures/registry"
	"github.com/devblok/gpures/surface"
	"github.com/devblok/gpures/surface/surfacetest"
)

type fixture struct {
	dev   *gfxtest.Device
	win   *surfacetest.Window
	surf  *surface.Manager
	chain *chain.Chain
	sched *frame.Scheduler
}

func newFixture(c *qt.C, maxFrames int) *fixture {
	logger, _ := test.NewNullLogger()
	f := &fixture{
		dev: gfxtest.New(),
		win: surfacetest.New(gfx.Extent2D{Width: 800, Height: 600}),
	}
	reg := registry.New(f.dev, memory.NewAllocator(f.dev, logger), logger)
	f.surf = surface.NewManager(f.win, logger)
	f.chain = chain.New(f.dev, reg, f.surf, chain.Config{
		SwapchainSize:     3,
		MaxFramesInFlight: maxFrames,
		DepthFormat:       gfx.FormatD32Sfloat,
		Samples:           4,
		Scene:             chain.SceneInfo{FramebufferBase: 0},
	}, logger)
	c.Assert(f.chain.Build(context.Background()), qt.IsNil)

	var err error
	f.sched, err = frame.NewScheduler(f.dev, f.chain, f.surf, maxFrames, logger)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() {
		f.sched.Release()
		f.chain.Release()
		reg.Release()
		c.Check(f.dev.Live(), qt.Equals, 0)
		c.Check(f.dev.Err(), qt.IsNil)
	})
	return f
}

// render runs one complete frame and returns its slot.
func (f *fixture) render(c *qt.C) int {
	fr, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(f.sched.EndFrame(context.Background(), fr), qt.IsNil)
	return fr.Slot
}

func TestSlotsRotate(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)

	var slots []int
	var images []uint32
	for i := 0; i < 5; i++ {
		fr, err := f.sched.BeginFrame(context.Background())
		c.Assert(err, qt.IsNil)
		slots = append(slots, fr.Slot)
		images = append(images, fr.Image)
		c.Assert(f.sched.EndFrame(context.Background(), fr), qt.IsNil)
	}
	c.Assert(slots, qt.DeepEquals, []int{0, 1, 0, 1, 0})
	c.Assert(images, qt.DeepEquals, []uint32{0, 1, 2, 0, 1})
	c.Assert(f.dev.Count(gfxtest.OpSubmit), qt.Equals, 5)
	c.Assert(f.dev.Count(gfxtest.OpPresent), qt.Equals, 5)
}

func TestBeginFrameWaitsForSlotFence(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	f.dev.SetAutoSignal(false)

	first, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(f.dev.Signaled(first.Sync.Fence), qt.IsFalse)
	c.Assert(f.sched.EndFrame(context.Background(), first), qt.IsNil)

	second, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(second.Slot, qt.Equals, 1)
	c.Assert(f.sched.EndFrame(context.Background(), second), qt.IsNil)

	type result struct {
		frame frame.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		fr, err := f.sched.BeginFrame(context.Background())
		done <- result{fr, err}
	}()

	select {
	case <-done:
		c.Fatal("third frame started before the first one completed")
	case <-time.After(50 * time.Millisecond):
	}

	f.dev.Signal(first.Sync.Fence)
	var third result
	select {
	case third = <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("third frame did not start after the first one completed")
	}
	c.Assert(third.err, qt.IsNil)
	c.Assert(third.frame.Slot, qt.Equals, 0)
	c.Assert(third.frame.Sync, qt.Equals, first.Sync)
	c.Assert(f.sched.EndFrame(context.Background(), third.frame), qt.IsNil)

	f.dev.Signal(second.Sync.Fence)
	c.Assert(f.render(c), qt.Equals, 1)
	f.dev.SignalAll()
	c.Assert(f.render(c), qt.Equals, 0)
	f.dev.SignalAll()
}

func TestBeginFrameHonoursContext(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	f.dev.SetAutoSignal(false)
	f.render(c)
	f.render(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.sched.BeginFrame(ctx)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
	c.Assert(f.sched.Slot(), qt.Equals, 0)
	f.dev.SignalAll()
}

func TestOutOfDateOnAcquireDefersFrame(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	f.render(c)

	f.dev.QueueAcquire(gfx.ErrSurfaceOutOfDate)
	_, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.ErrorIs, frame.ErrFrameDeferred)
	c.Assert(f.chain.Generation(), qt.Equals, 1)
	c.Assert(f.sched.Slot(), qt.Equals, 1)
	c.Assert(f.dev.Count(gfxtest.OpResetFence), qt.Equals, 1)

	c.Assert(f.render(c), qt.Equals, 1)
	c.Assert(f.render(c), qt.Equals, 0)
}

func TestSuboptimalAcquireRecreatesAfterPresent(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)

	f.dev.QueueAcquire(gfx.ErrSurfaceSuboptimal)
	fr, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(f.chain.Generation(), qt.Equals, 0)
	c.Assert(f.sched.EndFrame(context.Background(), fr), qt.IsNil)
	c.Assert(f.chain.Generation(), qt.Equals, 1)

	f.render(c)
	c.Assert(f.chain.Generation(), qt.Equals, 1)
}

func TestPresentResults(t *testing.T) {
	for _, res := range []error{gfx.ErrSurfaceOutOfDate, gfx.ErrSurfaceSuboptimal} {
		t.Run(res.Error(), func(t *testing.T) {
			c := qt.New(t)
			f := newFixture(c, 2)

			f.dev.QueuePresent(res)
			c.Assert(f.render(c), qt.Equals, 0)
			c.Assert(f.chain.Generation(), qt.Equals, 1)
			c.Assert(f.render(c), qt.Equals, 1)
		})
	}
}

func TestResizeRecreatesAfterPresent(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)

	f.win.Resize(gfx.Extent2D{Width: 1024, Height: 768})
	f.render(c)
	c.Assert(f.chain.Generation(), qt.Equals, 1)
	c.Assert(f.chain.Extent(), qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})
	c.Assert(f.surf.Resized(), qt.IsFalse)

	f.render(c)
	c.Assert(f.chain.Generation(), qt.Equals, 1)
}

func TestEndFrameSlotMismatch(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)

	c.Assert(f.sched.EndFrame(context.Background(), frame.Frame{}), qt.ErrorIs, frame.ErrSlotMismatch)

	fr, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	_, err = f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.ErrorIs, frame.ErrSlotMismatch)

	wrong := fr
	wrong.Slot = 1
	c.Assert(f.sched.EndFrame(context.Background(), wrong), qt.ErrorIs, frame.ErrSlotMismatch)
	c.Assert(f.sched.EndFrame(context.Background(), fr), qt.IsNil)
}

func TestFailedSubmitFailsScheduler(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)

	fr, err := f.sched.BeginFrame(context.Background())
	c.Assert(err, qt.IsNil)
	f.dev.FailAfter(gfxtest.OpSubmit, 0)
	err = f.sched.EndFrame(context.Background(), fr)
	c.Assert(err, qt.ErrorIs, gfx.ErrResourceCreation)
	c.Assert(f.dev.Signaled(fr.Sync.Fence), qt.IsFalse)

	waits := f.dev.Count(gfxtest.OpWaitFence)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = f.sched.BeginFrame(ctx)
	c.Assert(err, qt.ErrorIs, frame.ErrFailed)
	c.Assert(ctx.Err(), qt.IsNil)
	c.Assert(f.dev.Count(gfxtest.OpWaitFence), qt.Equals, waits)
	c.Assert(f.sched.EndFrame(ctx, fr), qt.ErrorIs, frame.ErrFailed)
}

func TestSchedulerBudget(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	logger, _ := test.NewNullLogger()
	live := f.dev.Live()

	for _, n := range []int{0, 4} {
		_, err := frame.NewScheduler(f.dev, f.chain, f.surf, n, logger)
		c.Assert(err, qt.ErrorIs, frame.ErrFrameBudget)
		c.Assert(err, qt.ErrorIs, chain.ErrFrameBudget)
	}
	c.Assert(f.dev.Live(), qt.Equals, live)
}

func TestSchedulerCreationRollsBack(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	logger, _ := test.NewNullLogger()
	live := f.dev.Live()

	f.dev.FailAfter(gfxtest.OpCreateSemaphore, 2)
	_, err := frame.NewScheduler(f.dev, f.chain, f.surf, 3, logger)
	c.Assert(err, qt.ErrorIs, gfx.ErrResourceCreation)
	c.Assert(f.dev.Live(), qt.Equals, live)
}
