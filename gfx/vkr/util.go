// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"strings"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/gpures/gfx"
)

// Zero values of the non-dispatchable handle types.
var (
	nullSurface   vk.Surface
	nullSwapchain vk.Swapchain
	nullFence     vk.Fence
)

// check converts a failed result into an error naming the call.
func check(call string, res vk.Result) error {
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("vk.%s(): %w", call, err)
	}
	return nil
}

// created is check for creation calls, which fail with gfx.ErrResourceCreation.
func created(call string, res vk.Result) error {
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("vk.%s(): %w: %v", call, gfx.ErrResourceCreation, err)
	}
	return nil
}

// presented classifies the results of acquire and present.
// A suboptimal result is returned as an error even though the
// operation took place.
func presented(call string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return fmt.Errorf("vk.%s(): %w", call, gfx.ErrSurfaceSuboptimal)
	case vk.ErrorOutOfDate:
		return fmt.Errorf("vk.%s(): %w", call, gfx.ErrSurfaceOutOfDate)
	}
	return check(call, res)
}

// cstrings null terminates names for the C side, leaving
// already terminated ones alone.
func cstrings(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, "\x00") {
			name += "\x00"
		}
		out = append(out, name)
	}
	return out
}

// usableSamples returns the highest sample count in mask that does
// not exceed want, or 1.
func usableSamples(mask vk.SampleCountFlags, want uint32) uint32 {
	for s := uint32(64); s > 1; s >>= 1 {
		if s <= want && uint32(mask)&s != 0 {
			return s
		}
	}
	return 1
}

// selectFamilies picks queue families for graphics, transfer and
// present work. Transfer prefers a family without graphics, present
// prefers the graphics family.
func selectFamilies(props []vk.QueueFamilyProperties, canPresent func(uint32) bool) (gfx.QueueFamilies, error) {
	const unset = ^uint32(0)
	graphics, transfer, present := unset, unset, unset
	for idx, p := range props {
		i := uint32(idx)
		if p.QueueCount == 0 {
			continue
		}
		hasGraphics := p.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		hasTransfer := p.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0
		if hasGraphics && graphics == unset {
			graphics = i
		}
		if hasTransfer && !hasGraphics && transfer == unset {
			transfer = i
		}
		if canPresent(i) && (present == unset || (hasGraphics && i == graphics)) {
			present = i
		}
	}
	if graphics == unset || present == unset {
		return gfx.QueueFamilies{}, fmt.Errorf("%w: graphics family %d, present family %d", ErrNoDevice, int32(graphics), int32(present))
	}
	if transfer == unset {
		// graphics queues always support transfers
		transfer = graphics
	}
	return gfx.QueueFamilies{
		Graphics: graphics,
		Transfer: transfer,
		Present:  present,
	}, nil
}

// chooseFormat picks the swap image format. A surface without a
// preference gets B8G8R8A8_UNORM.
func chooseFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, bool) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, false
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: formats[0].ColorSpace,
		}, true
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm {
			return f, true
		}
	}
	return formats[0], true
}

func sharing(s gfx.Sharing) (vk.SharingMode, []uint32) {
	if s.Mode == gfx.SharingConcurrent && len(s.Families) > 1 {
		return vk.SharingModeConcurrent, s.Families
	}
	return vk.SharingModeExclusive, nil
}
