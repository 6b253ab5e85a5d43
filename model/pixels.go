// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/devblok/gpures/gfx"
)

// Pixels returns img as tightly packed 8 bit RGBA rows, the layout of
// gfx.FormatR8G8B8A8Unorm, scaled to extent when the sizes differ.
func Pixels(img image.Image, extent gfx.Extent2D) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, int(extent.Width), int(extent.Height)))
	if img.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return dst.Pix
}

// PixelBytes returns the size of Pixels for extent.
func PixelBytes(extent gfx.Extent2D) uint64 {
	return uint64(extent.Width) * uint64(extent.Height) * 4
}
