// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

const undefinedExtent = 0xFFFFFFFF

// ChooseExtent picks the swap image extent. A surface that reports its
// current extent dictates it, otherwise the wanted extent is clamped to
// the supported range.
func ChooseExtent(caps SurfaceCapabilities, want Extent2D) Extent2D {
	if caps.Current.Width != undefinedExtent {
		return caps.Current
	}
	return Extent2D{
		Width:  clamp(want.Width, caps.Min.Width, caps.Max.Width),
		Height: clamp(want.Height, caps.Min.Height, caps.Max.Height),
	}
}

// ChooseImageCount clamps the wanted swap image count to the surface limits.
func ChooseImageCount(caps SurfaceCapabilities, want uint32) uint32 {
	if want < caps.MinImages {
		want = caps.MinImages
	}
	if caps.MaxImages > 0 && want > caps.MaxImages {
		want = caps.MaxImages
	}
	return want
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
