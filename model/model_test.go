// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"image"
	"image/color"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/gpures/gfx"
	"github.com/devblok/gpures/model"
)

func TestLayoutSizes(t *testing.T) {
	c := qt.New(t)
	c.Assert(model.VertexSize, qt.Equals, uint64(7*4))
	c.Assert(model.UniformSize, qt.Equals, uint64(3*16*4))
	c.Assert(model.IndexSize, qt.Equals, uint64(2))
}

func TestQuadRequirements(t *testing.T) {
	c := qt.New(t)
	quad := model.Quad()

	req := quad.Requirements(3)
	c.Assert(req, qt.Equals, model.Requirements{
		SwapchainImages: 3,
		VertexBytes:     4 * model.VertexSize,
		IndexBytes:      6 * model.IndexSize,
		UniformBytes:    model.UniformSize,
	})
	c.Assert(uint64(len(quad.VertexBytes())), qt.Equals, req.VertexBytes)
	c.Assert(uint64(len(quad.IndexBytes())), qt.Equals, req.IndexBytes)
}

func TestUniform(t *testing.T) {
	c := qt.New(t)

	u := model.NewUniform(gfx.Extent2D{Width: 800, Height: 600}, 0)
	c.Assert(uint64(len(u.Bytes())), qt.Equals, model.UniformSize)
	c.Assert(u.Projection[5] < 0, qt.IsTrue)
	c.Assert(u.Model.ApproxEqual(u.Model.Mul4(u.Model)), qt.IsTrue)

	square := model.NewUniform(gfx.Extent2D{}, 0)
	c.Assert(square.Projection[0], qt.Equals, -square.Projection[5])
}

func TestPixels(t *testing.T) {
	c := qt.New(t)

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(1, 1, color.NRGBA{B: 255, A: 255})

	same := model.Pixels(src, gfx.Extent2D{Width: 2, Height: 2})
	c.Assert(uint64(len(same)), qt.Equals, model.PixelBytes(gfx.Extent2D{Width: 2, Height: 2}))
	c.Assert(same[:4], qt.DeepEquals, []byte{255, 0, 0, 255})
	c.Assert(same[12:], qt.DeepEquals, []byte{0, 0, 255, 255})

	scaled := model.Pixels(src, gfx.Extent2D{Width: 8, Height: 8})
	c.Assert(scaled, qt.HasLen, 8*8*4)
}
