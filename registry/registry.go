// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package registry owns every GPU resource record of the engine. Records
// are addressed by a category and an id, created and destroyed
// explicitly, and never created on lookup.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/memory"
)

// package errors
var (
	ErrRecordNotFound   = errors.New("registry: record not found")
	ErrRecordExists     = errors.New("registry: record already exists")
	ErrCategoryMismatch = errors.New("registry: operation does not apply to category")
	ErrNotHostVisible   = errors.New("registry: record is not host visible")
	ErrOutOfRange       = errors.New("registry: write exceeds record size")
)

// Category groups records by what they are used for.
type Category int

// Record categories.
const (
	Staging Category = iota
	Vertex
	Index
	Uniform
	Storage
	SwapchainImage
	DepthImage
	MultisampleImage
	Framebuffer
)

var categoryNames = [...]string{
	"staging", "vertex", "index", "uniform", "storage",
	"swapchain image", "depth image", "multisample image", "framebuffer",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Buffer reports whether records of the category are buffers.
func (c Category) Buffer() bool {
	return c >= Staging && c <= Storage
}

// Image reports whether records of the category are images with a view.
func (c Category) Image() bool {
	return c == SwapchainImage || c == DepthImage || c == MultisampleImage
}

// Key identifies a record. Equal ids in different categories are
// different records.
type Key struct {
	Category Category
	ID       uint32
}

// K is shorthand for a Key literal.
func K(c Category, id uint32) Key {
	return Key{Category: c, ID: id}
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d", k.Category, k.ID)
}

// Record is a resource owned by the registry.
type Record struct {
	Key Key

	// Size is the requested buffer size in bytes. For images it
	// is the size of the backing allocation.
	Size        uint64
	BufferUsage gfx.BufferUsage
	ImageUsage  gfx.ImageUsage
	Flags       gfx.MemoryPropertyFlags
	Sharing     gfx.Sharing

	// Resource is the buffer, image or framebuffer.
	Resource gfx.Handle

	// Memory is null for swapchain images and framebuffers.
	Memory gfx.Handle

	// View is set for image categories only.
	View   gfx.Handle
	Format gfx.Format
	Extent gfx.Extent2D

	// Attachments are the records a framebuffer was built from.
	Attachments []Key

	alloc memory.Allocation
}

// New creates an empty registry allocating through alloc.
func New(dev gfx.Resources, alloc *memory.Allocator, logger logrus.FieldLogger) *Registry {
	return &Registry{
		dev:     dev,
		alloc:   alloc,
		records: make(map[Key]*Record),
		log:     logger,
	}
}

// Registry maps keys to records. It is safe for concurrent use,
// every mutation is serialized by one mutex.
type Registry struct {
	dev   gfx.Resources
	alloc *memory.Allocator
	log   logrus.FieldLogger

	mutex   sync.Mutex
	records map[Key]*Record
}

// claim checks that key may be created. Must hold r.mutex.
func (r *Registry) claim(key Key, ok func(Category) bool) error {
	if !ok(key.Category) {
		return fmt.Errorf("%w: create %s", ErrCategoryMismatch, key)
	}
	if _, exists := r.records[key]; exists {
		return fmt.Errorf("%w: %s", ErrRecordExists, key)
	}
	return nil
}

// CreateBuffer creates a buffer record backed by its own allocation.
func (r *Registry) CreateBuffer(key Key, size uint64, usage gfx.BufferUsage, props gfx.MemoryPropertyFlags, sharing gfx.Sharing) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.claim(key, Category.Buffer); err != nil {
		return Record{}, err
	}
	a, err := r.alloc.CreateBuffer(gfx.BufferInfo{Size: size, Usage: usage, Sharing: sharing}, props)
	if err != nil {
		return Record{}, fmt.Errorf("create %s: %w", key, err)
	}
	rec := &Record{
		Key:         key,
		Size:        size,
		BufferUsage: usage,
		Flags:       a.Flags,
		Sharing:     sharing,
		Resource:    a.Resource,
		Memory:      a.Memory,
		alloc:       a,
	}
	r.records[key] = rec
	r.log.WithFields(logrus.Fields{
		"record":  key.String(),
		"size":    size,
		"sharing": sharing.String(),
	}).Debug("buffer created")
	return *rec, nil
}

// CreateImage creates a depth or multisample image record with its view.
func (r *Registry) CreateImage(key Key, info gfx.ImageInfo, aspect gfx.Aspect, props gfx.MemoryPropertyFlags) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.claim(key, func(c Category) bool {
		return c == DepthImage || c == MultisampleImage
	}); err != nil {
		return Record{}, err
	}
	a, err := r.alloc.CreateImage(info, props)
	if err != nil {
		return Record{}, fmt.Errorf("create %s: %w", key, err)
	}
	view, err := r.dev.CreateView(gfx.ViewInfo{Image: a.Resource, Format: info.Format, Aspect: aspect})
	if err != nil {
		r.alloc.FreeImage(a)
		return Record{}, fmt.Errorf("create %s view: %w", key, err)
	}
	rec := &Record{
		Key:        key,
		Size:       a.Size,
		ImageUsage: info.Usage,
		Flags:      a.Flags,
		Sharing:    info.Sharing,
		Resource:   a.Resource,
		Memory:     a.Memory,
		View:       view,
		Format:     info.Format,
		Extent:     info.Extent,
		alloc:      a,
	}
	r.records[key] = rec
	r.log.WithFields(logrus.Fields{
		"record": key.String(),
		"extent": info.Extent.String(),
		"format": info.Format.String(),
	}).Debug("image created")
	return *rec, nil
}

// AdoptImage records a swapchain image and creates a color view over it.
// The image stays owned by its swapchain and is never destroyed here.
func (r *Registry) AdoptImage(key Key, image gfx.Handle, format gfx.Format, extent gfx.Extent2D) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.claim(key, func(c Category) bool { return c == SwapchainImage }); err != nil {
		return Record{}, err
	}
	view, err := r.dev.CreateView(gfx.ViewInfo{Image: image, Format: format, Aspect: gfx.AspectColor})
	if err != nil {
		return Record{}, fmt.Errorf("adopt %s: %w", key, err)
	}
	rec := &Record{
		Key:        key,
		ImageUsage: gfx.ImageColorAttachment,
		Resource:   image,
		View:       view,
		Format:     format,
		Extent:     extent,
	}
	r.records[key] = rec
	r.log.WithField("record", key.String()).Debug("swapchain image adopted")
	return *rec, nil
}

// CreateFramebuffer creates a framebuffer over the views of the given
// image records, in order.
func (r *Registry) CreateFramebuffer(key Key, renderPass gfx.Handle, attachments []Key, extent gfx.Extent2D) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.claim(key, func(c Category) bool { return c == Framebuffer }); err != nil {
		return Record{}, err
	}
	views := make([]gfx.Handle, 0, len(attachments))
	for _, k := range attachments {
		rec, ok := r.records[k]
		if !ok {
			return Record{}, fmt.Errorf("%w: %s attachment %s", ErrRecordNotFound, key, k)
		}
		if !k.Category.Image() {
			return Record{}, fmt.Errorf("%w: %s attachment %s", ErrCategoryMismatch, key, k)
		}
		views = append(views, rec.View)
	}
	fb, err := r.dev.CreateFramebuffer(gfx.FramebufferInfo{
		RenderPass:  renderPass,
		Attachments: views,
		Extent:      extent,
	})
	if err != nil {
		return Record{}, fmt.Errorf("create %s: %w", key, err)
	}
	rec := &Record{
		Key:         key,
		Resource:    fb,
		Extent:      extent,
		Attachments: append([]Key(nil), attachments...),
	}
	r.records[key] = rec
	r.log.WithFields(logrus.Fields{
		"record":      key.String(),
		"attachments": fmt.Sprint(attachments),
	}).Debug("framebuffer created")
	return *rec, nil
}

// Get returns a copy of the record stored under key.
func (r *Registry) Get(key Key) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return *rec, nil
}

// Has reports whether a record is stored under key.
func (r *Registry) Has(key Key) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.records[key]
	return ok
}

// Write copies data into a host visible record at offset.
func (r *Registry) Write(key Key, offset uint64, data []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	if !key.Category.Buffer() {
		return fmt.Errorf("%w: write %s", ErrCategoryMismatch, key)
	}
	if !rec.Flags.Has(gfx.MemoryHostVisible) {
		return fmt.Errorf("%w: %s is %s", ErrNotHostVisible, key, rec.Flags)
	}
	size := uint64(len(data))
	if offset+size > rec.Size || offset+size < offset {
		return fmt.Errorf("%w: %s %d+%d > %d", ErrOutOfRange, key, offset, size, rec.Size)
	}
	if size == 0 {
		return nil
	}
	mapped, err := r.alloc.Map(rec.alloc, offset, size)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	copy(mapped, data)
	r.alloc.Unmap(rec.alloc)
	return nil
}

// Destroy destroys the record stored under key. Views are destroyed
// before their image, memory after its resource.
func (r *Registry) Destroy(key Key) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	r.destroy(rec)
	return nil
}

// destroy releases rec on the device. Must hold r.mutex.
func (r *Registry) destroy(rec *Record) {
	switch {
	case rec.Key.Category == Framebuffer:
		r.dev.DestroyFramebuffer(rec.Resource)
	case rec.Key.Category == SwapchainImage:
		r.dev.DestroyView(rec.View)
	case rec.Key.Category.Image():
		r.dev.DestroyView(rec.View)
		r.alloc.FreeImage(rec.alloc)
	default:
		r.alloc.FreeBuffer(rec.alloc)
	}
	delete(r.records, rec.Key)
	r.log.WithField("record", rec.Key.String()).Debug("record destroyed")
}

// IDs returns the ids stored in a category in ascending order.
func (r *Registry) IDs(c Category) []uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var ids []uint32
	for k := range r.records {
		if k.Category == c {
			ids = append(ids, k.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of records in a category.
func (r *Registry) Count(c Category) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	n := 0
	for k := range r.records {
		if k.Category == c {
			n++
		}
	}
	return n
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.records)
}

// releaseOrder lists categories so that nothing is destroyed
// while a record built on it is still alive.
var releaseOrder = []Category{
	Framebuffer,
	MultisampleImage, DepthImage, SwapchainImage,
	Staging, Vertex, Index, Uniform, Storage,
}

// Release destroys every remaining record. The device must still be valid.
func (r *Registry) Release() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, c := range releaseOrder {
		var keys []Key
		for k := range r.records {
			if k.Category == c {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
		for _, k := range keys {
			r.destroy(r.records[k])
		}
	}
}
