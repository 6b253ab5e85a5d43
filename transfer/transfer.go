// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package transfer moves data into device local buffers through host
// visible staging buffers and copies on the transfer queue.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/core"
	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/registry"
)

// ErrEmptyUpload is returned for uploads without data.
var ErrEmptyUpload = errors.New("transfer: empty upload")

// Device is the part of gfx.Device the uploader drives.
type Device interface {
	gfx.Sync
	gfx.Commands
}

type upload struct {
	staging  registry.Key
	dst      registry.Key
	commands gfx.Handle
	fence    gfx.Handle
}

// New creates an uploader that keeps at most maxInFlight copies pending.
// Staging record ids are taken from ids.
func New(dev Device, reg *registry.Registry, families gfx.QueueFamilies, ids *core.IDs, maxInFlight int, logger logrus.FieldLogger) *Uploader {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Uploader{
		dev:      dev,
		reg:      reg,
		families: families,
		ids:      ids,
		max:      maxInFlight,
		log:      logger,
	}
}

// Uploader performs staged uploads. It is used from the thread that
// submits work to the device.
type Uploader struct {
	dev      Device
	reg      *registry.Registry
	families gfx.QueueFamilies
	ids      *core.IDs
	max      int
	log      logrus.FieldLogger

	pending []upload
}

// Pending returns the number of copies not yet known to be complete.
func (u *Uploader) Pending() int {
	return len(u.pending)
}

// Upload creates the device local buffer dst holding data. The copy is
// submitted but not waited for; the buffer may be used by work that is
// submitted after Flush, or that waits on the transfer otherwise. When
// the maximum number of copies is pending the oldest is waited for
// first. On failure no record of the upload is left behind.
func (u *Uploader) Upload(ctx context.Context, dst registry.Key, usage gfx.BufferUsage, data []byte) (rec registry.Record, err error) {
	if len(data) == 0 {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrEmptyUpload, dst)
	}
	for len(u.pending) >= u.max {
		if err := u.complete(ctx); err != nil {
			return registry.Record{}, err
		}
	}

	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	size := uint64(len(data))
	p := upload{
		staging: registry.K(registry.Staging, u.ids.Next()),
		dst:     dst,
	}

	staging, err := u.reg.CreateBuffer(p.staging, size, gfx.BufferTransferSrc,
		gfx.MemoryHostVisible|gfx.MemoryHostCoherent, gfx.Exclusive())
	if err != nil {
		return registry.Record{}, err
	}
	undo = append(undo, func() { u.reg.Destroy(p.staging) })

	if err := u.reg.Write(p.staging, 0, data); err != nil {
		return registry.Record{}, err
	}

	rec, err = u.reg.CreateBuffer(dst, size, gfx.BufferTransferDst|usage,
		gfx.MemoryDeviceLocal, gfx.SharingFor(u.families))
	if err != nil {
		return registry.Record{}, err
	}
	undo = append(undo, func() { u.reg.Destroy(dst) })

	if p.commands, err = u.dev.AllocateCommands(gfx.TransferQueue); err != nil {
		return registry.Record{}, fmt.Errorf("transfer commands: %w", err)
	}
	undo = append(undo, func() { u.dev.FreeCommands(p.commands) })

	if err := u.dev.RecordCopy(p.commands, staging.Resource, rec.Resource, []gfx.CopyRegion{{Size: size}}); err != nil {
		return registry.Record{}, fmt.Errorf("record copy: %w", err)
	}

	if p.fence, err = u.dev.CreateFence(false); err != nil {
		return registry.Record{}, fmt.Errorf("transfer fence: %w", err)
	}
	undo = append(undo, func() { u.dev.DestroyFence(p.fence) })

	if err := u.dev.Submit(gfx.TransferQueue, gfx.SubmitInfo{
		Commands: []gfx.Handle{p.commands},
		Fence:    p.fence,
	}); err != nil {
		return registry.Record{}, fmt.Errorf("submit transfer: %w", err)
	}

	u.pending = append(u.pending, p)
	u.log.WithFields(logrus.Fields{
		"record":  dst.String(),
		"staging": p.staging.String(),
		"size":    size,
		"pending": len(u.pending),
	}).Debug("upload submitted")
	return rec, nil
}

// complete waits for the oldest pending copy and releases its staging buffer.
func (u *Uploader) complete(ctx context.Context) error {
	p := u.pending[0]
	if err := u.dev.WaitFence(ctx, p.fence); err != nil {
		return fmt.Errorf("wait transfer %s: %w", p.dst, err)
	}
	u.release(p)
	u.pending = u.pending[1:]
	return nil
}

func (u *Uploader) release(p upload) {
	u.dev.DestroyFence(p.fence)
	u.dev.FreeCommands(p.commands)
	if err := u.reg.Destroy(p.staging); err != nil {
		u.log.WithError(err).Warn("staging record missing")
	}
}

// Flush waits for every pending copy.
func (u *Uploader) Flush(ctx context.Context) error {
	for len(u.pending) > 0 {
		if err := u.complete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Release frees the staging resources of pending copies without waiting.
// The device must be idle.
func (u *Uploader) Release() {
	for _, p := range u.pending {
		u.release(p)
	}
	u.pending = nil
}
