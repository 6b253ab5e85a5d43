// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx device contract on Vulkan.
package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// ErrNoDevice is returned when no physical device can serve the engine.
var ErrNoDevice = errors.New("vkr: no suitable physical device")

const validationLayer = "VK_LAYER_KHRONOS_validation"

// DefaultApplicationInfo is used when the caller has nothing better.
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   "gpures\x00",
	PEngineName:        "gpures\x00",
}

// Platform is the windowing layer an instance presents through.
type Platform interface {
	// ProcAddr returns vkGetInstanceProcAddr as loaded by the platform.
	ProcAddr() unsafe.Pointer
	InstanceExtensions() []string
	CreateSurface(vk.Instance) (vk.Surface, error)
}

// InstanceConfiguration holds options for the instance.
type InstanceConfiguration struct {
	Debug      bool
	Extensions []string
	Layers     []string
}

// NewInstance creates a Vulkan instance. With a nil platform the
// default loader is used and no surface is created, which is enough
// to inspect the physical devices.
func NewInstance(app *vk.ApplicationInfo, platform Platform, cfg InstanceConfiguration, logger logrus.FieldLogger) (*Instance, error) {
	if platform != nil && platform.ProcAddr() != nil {
		vk.SetGetInstanceProcAddr(platform.ProcAddr())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vk.SetDefaultGetInstanceProcAddr(): %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk.Init(): %w", err)
	}

	extensions := cfg.Extensions
	if platform != nil {
		extensions = append(extensions, platform.InstanceExtensions()...)
	}
	layers := cfg.Layers
	if cfg.Debug {
		layers = append(layers, validationLayer)
	}
	extensions, layers = cstrings(extensions), cstrings(layers)

	ici := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        app,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	var instance vk.Instance
	if err := check("CreateInstance", vk.CreateInstance(&ici, nil, &instance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vk.InitInstance(): %w", err)
	}

	i := &Instance{
		instance: instance,
		log:      logger,
	}
	if err := i.enumerateDevices(); err != nil {
		i.Destroy()
		return nil, err
	}
	if platform != nil {
		surface, err := platform.CreateSurface(instance)
		if err != nil {
			i.Destroy()
			return nil, fmt.Errorf("create surface: %w", err)
		}
		i.surface = surface
	}
	logger.WithFields(logrus.Fields{
		"devices":    len(i.devices),
		"extensions": len(extensions),
		"debug":      cfg.Debug,
	}).Info("vulkan instance created")
	return i, nil
}

// Instance owns the Vulkan instance and the surface bound to it.
type Instance struct {
	instance vk.Instance
	surface  vk.Surface
	devices  []vk.PhysicalDevice
	log      logrus.FieldLogger
}

func (i *Instance) enumerateDevices() error {
	var count uint32
	if err := check("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i.instance, &count, nil)); err != nil {
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i.instance, &count, devices)); err != nil {
		return err
	}
	i.devices = devices
	return nil
}

// Handle returns the native instance, as platforms need it for surfaces.
func (i *Instance) Handle() vk.Instance {
	return i.instance
}

// DeviceCount returns the number of physical devices.
func (i *Instance) DeviceCount() int {
	return len(i.devices)
}

// Destroy destroys the surface and the instance. Devices created from
// the instance must be destroyed first.
func (i *Instance) Destroy() {
	if i == nil {
		return
	}
	if i.surface != nullSurface {
		vk.DestroySurface(i.instance, i.surface, nil)
		i.surface = nullSurface
	}
	i.devices = nil
	vk.DestroyInstance(i.instance, nil)
}

// MemoryTypeInfo is one memory type of a physical device.
type MemoryTypeInfo struct {
	Flags string `json:"flags"`
	Heap  uint32 `json:"heap"`
}

// PhysicalDeviceInfo describes a physical device.
type PhysicalDeviceInfo struct {
	ID            uint32           `json:"id"`
	VendorID      uint32           `json:"vendorId"`
	DriverVersion uint32           `json:"driverVersion"`
	Name          string           `json:"name"`
	Invalid       bool             `json:"invalid,omitempty"`
	Extensions    []string         `json:"extensions"`
	Layers        []string         `json:"layers"`
	Memory        uint64           `json:"memory"`
	MemoryTypes   []MemoryTypeInfo `json:"memoryTypes"`
	MaxSamples    uint32           `json:"maxSamples"`
}

// PhysicalDevicesInfo describes every physical device. Devices that
// fail a query are reported with Invalid set.
func (i *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	infos := make([]PhysicalDeviceInfo, len(i.devices))
	for idx, pd := range i.devices {
		info := &infos[idx]

		var numExtensions uint32
		if err := check("EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &numExtensions, nil)); err != nil {
			info.Invalid = true
		}
		extensions := make([]vk.ExtensionProperties, numExtensions)
		if err := check("EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &numExtensions, extensions)); err != nil {
			info.Invalid = true
		}
		for _, ext := range extensions {
			ext.Deref()
			info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		var numLayers uint32
		if err := check("EnumerateDeviceLayerProperties", vk.EnumerateDeviceLayerProperties(pd, &numLayers, nil)); err != nil {
			info.Invalid = true
		}
		layers := make([]vk.LayerProperties, numLayers)
		if err := check("EnumerateDeviceLayerProperties", vk.EnumerateDeviceLayerProperties(pd, &numLayers, layers)); err != nil {
			info.Invalid = true
		}
		for _, layer := range layers {
			layer.Deref()
			info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
		}

		props := memoryProperties(pd)
		for _, heap := range props.Heaps {
			info.Memory += heap.Size
		}
		for _, t := range props.Types {
			info.MemoryTypes = append(info.MemoryTypes, MemoryTypeInfo{
				Flags: t.Flags.String(),
				Heap:  t.Heap,
			})
		}

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		properties.Limits.Deref()
		info.ID = properties.DeviceID
		info.VendorID = properties.VendorID
		info.DriverVersion = properties.DriverVersion
		info.Name = vk.ToString(properties.DeviceName[:])
		info.MaxSamples = usableSamples(properties.Limits.FramebufferColorSampleCounts&properties.Limits.FramebufferDepthSampleCounts, 64)
	}
	return infos
}

// memoryProperties reads the memory type and heap tables of pd.
func memoryProperties(pd vk.PhysicalDevice) gfx.MemoryProperties {
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &mp)
	mp.Deref()

	var props gfx.MemoryProperties
	for idx := uint32(0); idx < mp.MemoryTypeCount; idx++ {
		mp.MemoryTypes[idx].Deref()
		props.Types = append(props.Types, gfx.MemoryType{
			Flags: gfx.MemoryPropertyFlags(mp.MemoryTypes[idx].PropertyFlags),
			Heap:  mp.MemoryTypes[idx].HeapIndex,
		})
	}
	for idx := uint32(0); idx < mp.MemoryHeapCount; idx++ {
		mp.MemoryHeaps[idx].Deref()
		props.Heaps = append(props.Heaps, gfx.MemoryHeap{
			Size:  uint64(mp.MemoryHeaps[idx].Size),
			Flags: gfx.HeapFlags(mp.MemoryHeaps[idx].Flags),
		})
	}
	return props
}
