// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transfer_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/gpures/core"
	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/gfx/gfxtest"
	"github.com/devblok/gpures/memory"
	"github.com/devblok/gpures/registry"
	"github.com/devblok/gpures/transfer"
)

func newUploader(families gfx.QueueFamilies, max int) (*gfxtest.Device, *registry.Registry, *transfer.Uploader) {
	logger, _ := test.NewNullLogger()
	dev := gfxtest.New()
	dev.SetFamilies(families)
	reg := registry.New(dev, memory.NewAllocator(dev, logger), logger)
	return dev, reg, transfer.New(dev, reg, dev.Families(), core.NewIDs(100), max, logger)
}

func fences(dev *gfxtest.Device) []gfx.Handle {
	var hs []gfx.Handle
	for _, call := range dev.Calls() {
		if call.Op == gfxtest.OpCreateFence {
			hs = append(hs, call.Handle)
		}
	}
	return hs
}

func TestUpload(t *testing.T) {
	c := qt.New(t)
	dev, reg, up := newUploader(gfx.QueueFamilies{}, 2)
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 100)

	rec, err := up.Upload(context.Background(), registry.K(registry.Vertex, 1), gfx.BufferVertex, data)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.BufferUsage, qt.Equals, gfx.BufferTransferDst|gfx.BufferVertex)
	c.Assert(rec.Flags.Has(gfx.MemoryDeviceLocal), qt.IsTrue)
	c.Assert(rec.Sharing.Mode, qt.Equals, gfx.SharingExclusive)
	c.Assert(dev.Contents(rec.Memory)[:len(data)], qt.DeepEquals, data)
	c.Assert(up.Pending(), qt.Equals, 1)
	c.Assert(reg.IDs(registry.Staging), qt.DeepEquals, []uint32{100})

	for _, call := range dev.Calls() {
		if call.Op == gfxtest.OpSubmit || call.Op == gfxtest.OpAllocateCommands {
			c.Assert(call.Queue, qt.Equals, gfx.TransferQueue)
		}
	}

	c.Assert(up.Flush(context.Background()), qt.IsNil)
	c.Assert(up.Pending(), qt.Equals, 0)
	c.Assert(reg.Count(registry.Staging), qt.Equals, 0)
	c.Assert(dev.Live(), qt.Equals, 2, qt.Commentf("destination buffer and its memory"))

	reg.Release()
	c.Assert(dev.Live(), qt.Equals, 0)
	c.Assert(dev.Err(), qt.IsNil)
}

func TestUploadSharesAcrossFamilies(t *testing.T) {
	c := qt.New(t)
	dev, reg, up := newUploader(gfx.QueueFamilies{Graphics: 0, Transfer: 1, Present: 0}, 2)

	rec, err := up.Upload(context.Background(), registry.K(registry.Index, 1), gfx.BufferIndex, []byte{1, 0, 2, 0})
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Sharing.Mode, qt.Equals, gfx.SharingConcurrent)
	c.Assert(rec.Sharing.Families, qt.DeepEquals, []uint32{0, 1})

	staging, err := reg.Get(registry.K(registry.Staging, 100))
	c.Assert(err, qt.IsNil)
	c.Assert(staging.Sharing.Mode, qt.Equals, gfx.SharingExclusive)
	c.Assert(dev.Err(), qt.IsNil)
}

func TestUploadBoundsInFlight(t *testing.T) {
	c := qt.New(t)
	dev, reg, up := newUploader(gfx.QueueFamilies{}, 2)
	dev.SetAutoSignal(false)

	for id := uint32(0); id < 2; id++ {
		_, err := up.Upload(context.Background(), registry.K(registry.Uniform, id), gfx.BufferUniform, []byte{byte(id)})
		c.Assert(err, qt.IsNil)
	}
	c.Assert(up.Pending(), qt.Equals, 2)

	done := make(chan error, 1)
	go func() {
		_, err := up.Upload(context.Background(), registry.K(registry.Uniform, 2), gfx.BufferUniform, []byte{2})
		done <- err
	}()
	select {
	case <-done:
		c.Fatal("upload went past the in flight limit")
	case <-time.After(50 * time.Millisecond):
	}

	dev.Signal(fences(dev)[0])
	select {
	case err := <-done:
		c.Assert(err, qt.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("upload did not proceed after the oldest copy completed")
	}
	c.Assert(up.Pending(), qt.Equals, 2)
	c.Assert(reg.IDs(registry.Staging), qt.DeepEquals, []uint32{101, 102})

	dev.SignalAll()
	c.Assert(up.Flush(context.Background()), qt.IsNil)
	c.Assert(reg.Count(registry.Staging), qt.Equals, 0)
	c.Assert(dev.Err(), qt.IsNil)
}

func TestUploadCancelledWhileWaiting(t *testing.T) {
	c := qt.New(t)
	dev, reg, up := newUploader(gfx.QueueFamilies{}, 1)
	dev.SetAutoSignal(false)

	_, err := up.Upload(context.Background(), registry.K(registry.Storage, 0), gfx.BufferStorage, []byte{1})
	c.Assert(err, qt.IsNil)
	live := dev.Live()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = up.Upload(ctx, registry.K(registry.Storage, 1), gfx.BufferStorage, []byte{1})
	c.Assert(err, qt.ErrorIs, context.Canceled)
	c.Assert(dev.Live(), qt.Equals, live)
	c.Assert(reg.Has(registry.K(registry.Storage, 1)), qt.IsFalse)

	dev.SignalAll()
	up.Release()
	reg.Release()
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestUploadRollsBack(t *testing.T) {
	tests := []struct {
		name string
		op   gfxtest.Op
	}{
		{"commands", gfxtest.OpAllocateCommands},
		{"copy", gfxtest.OpRecordCopy},
		{"fence", gfxtest.OpCreateFence},
		{"submit", gfxtest.OpSubmit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			dev, reg, up := newUploader(gfx.QueueFamilies{}, 2)
			dev.FailAfter(tt.op, 0)

			_, err := up.Upload(context.Background(), registry.K(registry.Vertex, 0), gfx.BufferVertex, []byte{1, 2})
			c.Assert(err, qt.ErrorIs, gfx.ErrResourceCreation)
			c.Assert(reg.Len(), qt.Equals, 0)
			c.Assert(up.Pending(), qt.Equals, 0)
			c.Assert(dev.Live(), qt.Equals, 0)
			c.Assert(dev.Err(), qt.IsNil)
		})
	}
}

func TestUploadExistingDestination(t *testing.T) {
	c := qt.New(t)
	dev, reg, up := newUploader(gfx.QueueFamilies{}, 2)

	_, err := reg.CreateBuffer(registry.K(registry.Vertex, 0), 4, gfx.BufferVertex, gfx.MemoryDeviceLocal, gfx.Exclusive())
	c.Assert(err, qt.IsNil)
	live := dev.Live()

	_, err = up.Upload(context.Background(), registry.K(registry.Vertex, 0), gfx.BufferVertex, []byte{1})
	c.Assert(err, qt.ErrorIs, registry.ErrRecordExists)
	c.Assert(reg.Count(registry.Staging), qt.Equals, 0)
	c.Assert(dev.Live(), qt.Equals, live)
}

func TestUploadEmpty(t *testing.T) {
	_, _, up := newUploader(gfx.QueueFamilies{}, 2)
	_, err := up.Upload(context.Background(), registry.K(registry.Vertex, 0), gfx.BufferVertex, nil)
	qt.Assert(t, err, qt.ErrorIs, transfer.ErrEmptyUpload)
}
