// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package chain owns the swap mechanism and every resource whose size
// follows the surface: the swapchain images, the depth and multisample
// targets and one framebuffer per swapchain image. It tears them down
// and rebuilds them in dependency order when the surface changes.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/registry"
)

// package errors
var (
	// ErrFrameBudget is returned when more frames may be in flight
	// than the swapchain has images.
	ErrFrameBudget = errors.New("chain: frames in flight exceed swapchain images")

	// ErrFormatChanged is returned when the surface format differs from
	// the one the render pass was created for.
	ErrFormatChanged = errors.New("chain: surface format changed")

	// ErrState is returned for operations the current state does not allow.
	ErrState = errors.New("chain: invalid state")
)

// Device is the part of gfx.Device the chain drives directly.
// Images, views and framebuffers go through the registry.
type Device interface {
	gfx.Presentation

	CreateRenderPass(gfx.RenderPassInfo) (gfx.Handle, error)
	DestroyRenderPass(gfx.Handle)

	Families() gfx.QueueFamilies
	WaitIdle() error
}

// Surface reports the drawable extent. It is satisfied by *surface.Manager.
type Surface interface {
	WaitDrawable(context.Context) (gfx.Extent2D, error)
	ClearResized()
}

// DeviceInfo describes the device and the surface as of the last build.
type DeviceInfo struct {
	Families      gfx.QueueFamilies
	SwapchainSize uint32
	Extent        gfx.Extent2D
	Format        gfx.Format
}

// SceneInfo holds the record ids the chain creates. Swapchain images
// and framebuffers take consecutive ids from their base.
type SceneInfo struct {
	SwapchainImageBase uint32
	DepthImage         uint32
	MultisampleImage   uint32
	FramebufferBase    uint32
}

// Config configures a chain.
type Config struct {
	// SwapchainSize is the number of images requested. The device
	// may create more.
	SwapchainSize     uint32
	MaxFramesInFlight int
	DepthFormat       gfx.Format
	Samples           uint32
	Scene             SceneInfo
}

// New creates an unbuilt chain.
func New(dev Device, reg *registry.Registry, surf Surface, cfg Config, logger logrus.FieldLogger) *Chain {
	return &Chain{
		dev:  dev,
		reg:  reg,
		surf: surf,
		cfg:  cfg,
		log:  logger,
		info: DeviceInfo{Families: dev.Families()},
	}
}

// Chain is the dependency ordered set of surface sized resources.
// It is driven from the single control thread that submits frames.
type Chain struct {
	dev  Device
	reg  *registry.Registry
	surf Surface
	cfg  Config
	log  logrus.FieldLogger

	state      State
	observers  []func(State)
	generation int

	info       DeviceInfo
	swapchain  gfx.Swapchain
	renderPass gfx.Handle

	// created lists the records of the rebuild in progress.
	created []registry.Key
}

// OnState registers f to be called on every state change.
func (c *Chain) OnState(f func(State)) {
	c.observers = append(c.observers, f)
}

func (c *Chain) setState(s State) {
	c.state = s
	c.log.WithField("state", s.String()).Debug("chain state")
	for _, f := range c.observers {
		f(s)
	}
}

// State returns the current state.
func (c *Chain) State() State { return c.state }

// Generation counts completed recreations.
func (c *Chain) Generation() int { return c.generation }

// Info returns the device info as of the last build.
func (c *Chain) Info() DeviceInfo { return c.info }

// Scene returns the record ids the chain uses.
func (c *Chain) Scene() SceneInfo { return c.cfg.Scene }

// Swapchain returns the handle of the current swap mechanism.
func (c *Chain) Swapchain() gfx.Handle { return c.swapchain.Handle }

// Extent returns the extent of the current swapchain.
func (c *Chain) Extent() gfx.Extent2D { return c.swapchain.Extent }

// ImageCount returns the number of images of the current swapchain.
func (c *Chain) ImageCount() uint32 { return uint32(len(c.swapchain.Images)) }

// RenderPass returns the render pass every framebuffer is built for.
func (c *Chain) RenderPass() gfx.Handle { return c.renderPass }

// Framebuffer returns the framebuffer record for a swapchain image.
func (c *Chain) Framebuffer(image uint32) (registry.Record, error) {
	return c.reg.Get(c.framebufferKey(image))
}

func (c *Chain) swapImageKey(i uint32) registry.Key {
	return registry.K(registry.SwapchainImage, c.cfg.Scene.SwapchainImageBase+i)
}

func (c *Chain) framebufferKey(i uint32) registry.Key {
	return registry.K(registry.Framebuffer, c.cfg.Scene.FramebufferBase+i)
}

func (c *Chain) depthKey() registry.Key {
	return registry.K(registry.DepthImage, c.cfg.Scene.DepthImage)
}

func (c *Chain) multisampleKey() registry.Key {
	return registry.K(registry.MultisampleImage, c.cfg.Scene.MultisampleImage)
}

// Build creates the render pass and the first generation of resources,
// waiting for a drawable surface first. A failed build leaves nothing
// behind and the chain Broken.
func (c *Chain) Build(ctx context.Context) error {
	if c.state != Unbuilt {
		return fmt.Errorf("%w: build in %s", ErrState, c.state)
	}
	c.setState(AwaitingNonzeroSize)
	extent, err := c.surf.WaitDrawable(ctx)
	if err != nil {
		c.setState(Unbuilt)
		return err
	}

	format, err := c.dev.SurfaceFormat()
	if err != nil {
		c.setState(Broken)
		return fmt.Errorf("surface format: %w", err)
	}
	c.info.Format = format

	c.renderPass, err = c.dev.CreateRenderPass(gfx.RenderPassInfo{
		ColorFormat: format,
		DepthFormat: c.cfg.DepthFormat,
		Samples:     c.cfg.Samples,
	})
	if err != nil {
		c.setState(Broken)
		return fmt.Errorf("render pass: %w", err)
	}
	c.log.WithField("format", format.String()).Debug("[OK] render pass")

	c.setState(Rebuild)
	if err := c.rebuild(extent); err != nil {
		c.dev.DestroyRenderPass(c.renderPass)
		c.renderPass = gfx.NullHandle
		c.setState(Broken)
		return err
	}
	c.surf.ClearResized()
	c.setState(Stable)
	return nil
}

// Recreate tears down and rebuilds every surface sized resource. It
// blocks while the surface has no drawable area and waits for the
// device to go idle before destroying anything. A failed rebuild is not
// retried, the chain is left Broken with nothing of the rebuild alive.
func (c *Chain) Recreate(ctx context.Context) error {
	if c.state != Stable {
		return fmt.Errorf("%w: recreate in %s", ErrState, c.state)
	}

	c.setState(AwaitingNonzeroSize)
	extent, err := c.surf.WaitDrawable(ctx)
	if err != nil {
		c.setState(Stable)
		return err
	}

	c.setState(Quiescing)
	if err := c.dev.WaitIdle(); err != nil {
		c.setState(Broken)
		return fmt.Errorf("wait idle: %w", err)
	}

	c.setState(Teardown)
	c.teardown()

	c.setState(Rebuild)
	if err := c.rebuild(extent); err != nil {
		c.setState(Broken)
		return err
	}

	c.generation++
	c.surf.ClearResized()
	c.setState(Stable)
	c.log.WithFields(logrus.Fields{
		"extent":     c.swapchain.Extent.String(),
		"images":     len(c.swapchain.Images),
		"generation": c.generation,
	}).Info("swapchain recreated")
	return nil
}

func (c *Chain) destroy(k registry.Key) {
	if err := c.reg.Destroy(k); err != nil {
		c.log.WithError(err).Warn("[DELETE] record missing")
		return
	}
	c.log.Debugf("[DELETE] %s", k)
}

// teardown destroys framebuffers, then the images they reference, then
// the swapchain owning the swap images.
func (c *Chain) teardown() {
	n := c.info.SwapchainSize
	for i := uint32(0); i < n; i++ {
		c.destroy(c.framebufferKey(i))
	}
	c.destroy(c.multisampleKey())
	c.destroy(c.depthKey())
	for i := uint32(0); i < n; i++ {
		c.destroy(c.swapImageKey(i))
	}
	c.dev.DestroySwapchain(c.swapchain.Handle)
	c.log.Debugf("[DELETE] swapchain %d", c.swapchain.Handle)
	c.swapchain = gfx.Swapchain{}
}

// rebuild creates the swapchain, adopts its images, then the depth and
// multisample targets and finally the framebuffers.
func (c *Chain) rebuild(extent gfx.Extent2D) error {
	c.created = c.created[:0]

	format, err := c.dev.SurfaceFormat()
	if err != nil {
		return fmt.Errorf("surface format: %w", err)
	}
	if format != c.info.Format {
		return fmt.Errorf("%w: %s to %s", ErrFormatChanged, c.info.Format, format)
	}

	sc, err := c.dev.CreateSwapchain(gfx.SwapchainInfo{
		Extent:    extent,
		MinImages: c.cfg.SwapchainSize,
		Format:    format,
		Old:       gfx.NullHandle,
	})
	if err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}
	c.swapchain = sc
	c.log.WithFields(logrus.Fields{
		"extent": sc.Extent.String(),
		"images": len(sc.Images),
	}).Debug("[OK] swapchain")

	if c.cfg.MaxFramesInFlight > len(sc.Images) {
		c.rollback()
		return fmt.Errorf("%w: %d frames, %d images", ErrFrameBudget, c.cfg.MaxFramesInFlight, len(sc.Images))
	}

	if err := c.populate(format); err != nil {
		c.rollback()
		return err
	}

	c.info.SwapchainSize = uint32(len(sc.Images))
	c.info.Extent = sc.Extent
	return nil
}

func (c *Chain) populate(format gfx.Format) error {
	sc := c.swapchain
	for i, img := range sc.Images {
		k := c.swapImageKey(uint32(i))
		if _, err := c.reg.AdoptImage(k, img, format, sc.Extent); err != nil {
			return err
		}
		c.created = append(c.created, k)
	}
	c.log.Debugf("[OK] %d swapchain images", len(sc.Images))

	depth := c.depthKey()
	if _, err := c.reg.CreateImage(depth, gfx.ImageInfo{
		Extent:  sc.Extent,
		Format:  c.cfg.DepthFormat,
		Usage:   gfx.ImageDepthStencilAttachment,
		Samples: c.cfg.Samples,
		Sharing: gfx.Exclusive(),
	}, gfx.AspectDepth, gfx.MemoryDeviceLocal); err != nil {
		return err
	}
	c.created = append(c.created, depth)
	c.log.Debugf("[OK] %s", depth)

	ms := c.multisampleKey()
	if _, err := c.reg.CreateImage(ms, gfx.ImageInfo{
		Extent:  sc.Extent,
		Format:  format,
		Usage:   gfx.ImageColorAttachment | gfx.ImageTransientAttachment,
		Samples: c.cfg.Samples,
		Sharing: gfx.Exclusive(),
	}, gfx.AspectColor, gfx.MemoryDeviceLocal); err != nil {
		return err
	}
	c.created = append(c.created, ms)
	c.log.Debugf("[OK] %s", ms)

	for i := range sc.Images {
		k := c.framebufferKey(uint32(i))
		attachments := []registry.Key{ms, depth, c.swapImageKey(uint32(i))}
		if _, err := c.reg.CreateFramebuffer(k, c.renderPass, attachments, sc.Extent); err != nil {
			return err
		}
		c.created = append(c.created, k)
	}
	c.log.Debugf("[OK] %d framebuffers", len(sc.Images))
	return nil
}

// rollback destroys what the failed rebuild created, newest first.
func (c *Chain) rollback() {
	for i := len(c.created) - 1; i >= 0; i-- {
		c.destroy(c.created[i])
	}
	c.created = c.created[:0]
	c.dev.DestroySwapchain(c.swapchain.Handle)
	c.swapchain = gfx.Swapchain{}
	c.log.Warn("rebuild rolled back")
}

// Release waits for the device to go idle and destroys everything the
// chain created, including the render pass.
func (c *Chain) Release() {
	if c.state == Unbuilt {
		return
	}
	if err := c.dev.WaitIdle(); err != nil {
		c.log.WithError(err).Error("wait idle before release")
	}
	if c.swapchain.Handle.Valid() {
		c.teardown()
	}
	c.dev.DestroyRenderPass(c.renderPass)
	c.renderPass = gfx.NullHandle
	c.info.SwapchainSize = 0
	c.setState(Unbuilt)
}
