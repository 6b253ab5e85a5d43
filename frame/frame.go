// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame bounds the number of frames the host may record ahead of
// the device. Every frame slot owns a fence, two semaphores and a command
// buffer, and slots are used in rotation.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/chain"
	"github.com/devblok/gpures/gfx"
)

// package errors
var (
	// ErrFrameDeferred is returned by BeginFrame when the swapchain had
	// to be recreated before an image could be acquired. The caller
	// skips the frame and tries again.
	ErrFrameDeferred = errors.New("frame: deferred")

	// ErrFrameBudget is returned when more frames may be in flight than
	// the swapchain has images.
	ErrFrameBudget = chain.ErrFrameBudget

	// ErrSlotMismatch is returned when EndFrame is given a frame that
	// BeginFrame did not just hand out.
	ErrSlotMismatch = errors.New("frame: slot mismatch")

	// ErrFailed is returned by every call after a submission failed. The
	// failed slot's fence will never be signaled again.
	ErrFailed = errors.New("frame: scheduler failed")
)

// Device is the part of gfx.Device the scheduler drives.
type Device interface {
	gfx.Sync
	gfx.Commands

	AcquireNextImage(swapchain, semaphore gfx.Handle) (uint32, error)
	Present(gfx.PresentInfo) error
}

// Recreator owns the swapchain. It is satisfied by *chain.Chain.
type Recreator interface {
	Recreate(context.Context) error
	Swapchain() gfx.Handle
	ImageCount() uint32
}

// ResizeSignal reports a pending surface change. It is satisfied by
// *surface.Manager.
type ResizeSignal interface {
	Resized() bool
}

// SyncSet is what one frame slot owns.
type SyncSet struct {
	// Fence is signaled when the device finished the slot's last
	// submission. It is created signaled.
	Fence          gfx.Handle
	ImageAvailable gfx.Handle
	RenderDone     gfx.Handle
	Commands       gfx.Handle
}

// Frame is a frame between BeginFrame and EndFrame.
type Frame struct {
	Slot  int
	Image uint32
	Sync  SyncSet
}

// NewScheduler creates the sync sets for maxFrames slots.
func NewScheduler(dev Device, rec Recreator, resize ResizeSignal, maxFrames int, logger logrus.FieldLogger) (*Scheduler, error) {
	if maxFrames < 1 || uint32(maxFrames) > rec.ImageCount() {
		return nil, fmt.Errorf("%w: %d frames, %d images", ErrFrameBudget, maxFrames, rec.ImageCount())
	}
	s := &Scheduler{
		dev:    dev,
		rec:    rec,
		resize: resize,
		log:    logger,
	}
	for i := 0; i < maxFrames; i++ {
		set, err := s.createSet()
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("frame slot %d: %w", i, err)
		}
		s.sets = append(s.sets, set)
	}
	return s, nil
}

// Scheduler hands out frames. It is used from the single thread that
// submits work to the device.
type Scheduler struct {
	dev    Device
	rec    Recreator
	resize ResizeSignal
	log    logrus.FieldLogger

	sets    []SyncSet
	slot    int
	active  bool
	pending bool
	failed  error
}

func (s *Scheduler) createSet() (set SyncSet, err error) {
	defer func() {
		if err != nil {
			s.destroySet(set)
		}
	}()
	if set.Fence, err = s.dev.CreateFence(true); err != nil {
		return
	}
	if set.ImageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		return
	}
	if set.RenderDone, err = s.dev.CreateSemaphore(); err != nil {
		return
	}
	set.Commands, err = s.dev.AllocateCommands(gfx.GraphicsQueue)
	return
}

func (s *Scheduler) destroySet(set SyncSet) {
	if set.Commands.Valid() {
		s.dev.FreeCommands(set.Commands)
	}
	if set.RenderDone.Valid() {
		s.dev.DestroySemaphore(set.RenderDone)
	}
	if set.ImageAvailable.Valid() {
		s.dev.DestroySemaphore(set.ImageAvailable)
	}
	if set.Fence.Valid() {
		s.dev.DestroyFence(set.Fence)
	}
}

// Frames returns the number of frame slots.
func (s *Scheduler) Frames() int {
	return len(s.sets)
}

// Slot returns the slot the next frame uses.
func (s *Scheduler) Slot() int {
	return s.slot
}

// BeginFrame waits until the current slot's previous submission completed
// and acquires the next swapchain image. If the swapchain is out of date it
// is recreated and ErrFrameDeferred is returned; the slot stays usable.
func (s *Scheduler) BeginFrame(ctx context.Context) (Frame, error) {
	if s.failed != nil {
		return Frame{}, s.failed
	}
	if s.active {
		return Frame{}, fmt.Errorf("%w: frame %d not ended", ErrSlotMismatch, s.slot)
	}
	set := s.sets[s.slot]
	if err := s.dev.WaitFence(ctx, set.Fence); err != nil {
		return Frame{}, fmt.Errorf("wait frame %d: %w", s.slot, err)
	}

	image, err := s.dev.AcquireNextImage(s.rec.Swapchain(), set.ImageAvailable)
	switch {
	case errors.Is(err, gfx.ErrSurfaceOutOfDate):
		s.log.WithField("slot", s.slot).Info("swapchain out of date on acquire")
		if err := s.recreate(ctx); err != nil {
			return Frame{}, err
		}
		return Frame{}, ErrFrameDeferred
	case errors.Is(err, gfx.ErrSurfaceSuboptimal):
		s.pending = true
	case err != nil:
		return Frame{}, fmt.Errorf("acquire: %w", err)
	}

	if err := s.dev.ResetFence(set.Fence); err != nil {
		return Frame{}, fmt.Errorf("reset frame %d: %w", s.slot, err)
	}
	s.active = true
	return Frame{Slot: s.slot, Image: image, Sync: set}, nil
}

// EndFrame submits the frame's command buffer and presents its image.
// The swapchain is recreated afterwards when presentation reported it
// out of date or suboptimal, or the surface was resized. A failed
// submission leaves the scheduler failed.
func (s *Scheduler) EndFrame(ctx context.Context, f Frame) error {
	if s.failed != nil {
		return s.failed
	}
	if !s.active || f.Slot != s.slot {
		return fmt.Errorf("%w: ending %d, current %d", ErrSlotMismatch, f.Slot, s.slot)
	}
	s.active = false

	if err := s.dev.Submit(gfx.GraphicsQueue, gfx.SubmitInfo{
		Commands: []gfx.Handle{f.Sync.Commands},
		Wait:     []gfx.Handle{f.Sync.ImageAvailable},
		Signal:   []gfx.Handle{f.Sync.RenderDone},
		Fence:    f.Sync.Fence,
	}); err != nil {
		s.failed = fmt.Errorf("%w: submit frame %d: %v", ErrFailed, f.Slot, err)
		s.log.WithError(err).WithField("slot", f.Slot).Error("submit failed")
		return fmt.Errorf("submit frame %d: %w", f.Slot, err)
	}

	err := s.dev.Present(gfx.PresentInfo{
		Swapchain: s.rec.Swapchain(),
		Image:     f.Image,
		Wait:      []gfx.Handle{f.Sync.RenderDone},
	})
	s.slot = (s.slot + 1) % len(s.sets)

	recreate := s.pending || s.resize.Resized()
	switch {
	case errors.Is(err, gfx.ErrSurfaceOutOfDate), errors.Is(err, gfx.ErrSurfaceSuboptimal):
		recreate = true
	case err != nil:
		return fmt.Errorf("present: %w", err)
	}
	if !recreate {
		return nil
	}
	s.log.WithFields(logrus.Fields{
		"suboptimal": s.pending,
		"present":    fmt.Sprint(err),
	}).Debug("swapchain recreation after present")
	return s.recreate(ctx)
}

func (s *Scheduler) recreate(ctx context.Context) error {
	s.pending = false
	if err := s.rec.Recreate(ctx); err != nil {
		return err
	}
	if uint32(len(s.sets)) > s.rec.ImageCount() {
		return fmt.Errorf("%w: %d frames, %d images", ErrFrameBudget, len(s.sets), s.rec.ImageCount())
	}
	return nil
}

// Release destroys every sync set. No submission may be pending.
func (s *Scheduler) Release() {
	for _, set := range s.sets {
		s.destroySet(set)
	}
	s.sets = nil
}
