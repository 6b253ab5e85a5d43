// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/gpures/assets"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = strings.Repeat("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb", 64)
)

func build(c *qt.C) []byte {
	builder := assets.NewBuilder(1)
	c.Assert(builder.Add("shaders/tri.vert.spv", strings.NewReader(testString1)), qt.IsNil)
	c.Assert(builder.Add("meshes/quad", strings.NewReader(testString2)), qt.IsNil)

	var buf bytes.Buffer
	n, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(buf.Len()))
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	c := qt.New(t)
	raw := build(c)

	b, err := assets.Open(bytes.NewReader(raw))
	c.Assert(err, qt.IsNil)
	c.Assert(b.Version(), qt.Equals, int64(1))
	c.Assert(b.Names(), qt.DeepEquals, []string{"meshes/quad", "shaders/tri.vert.spv"})

	data, err := b.Read("shaders/tri.vert.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, testString1)

	data, err = b.Read("meshes/quad")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, testString2)

	e, ok := b.Entry("meshes/quad")
	c.Assert(ok, qt.IsTrue)
	c.Assert(e.CompressedSize < e.Size, qt.IsTrue)

	_, err = b.Read("missing")
	c.Assert(err, qt.ErrorIs, assets.ErrNotFound)
	c.Assert(b.Close(), qt.IsNil)
}

func TestConcurrentReads(t *testing.T) {
	c := qt.New(t)
	b, err := assets.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Read("meshes/quad")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Assert(err, qt.IsNil)
	}
}

func TestOpenFile(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "test.bundle")
	c.Assert(os.WriteFile(path, build(c), 0o600), qt.IsNil)

	b, err := assets.OpenFile(path)
	c.Assert(err, qt.IsNil)
	defer b.Close()

	data, err := b.Read("meshes/quad")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, testString2)
}

func TestDuplicate(t *testing.T) {
	c := qt.New(t)
	builder := assets.NewBuilder(1)
	c.Assert(builder.Add("a", strings.NewReader("1")), qt.IsNil)
	c.Assert(builder.Add("a", strings.NewReader("2")), qt.ErrorIs, assets.ErrDuplicate)
	c.Assert(builder.Len(), qt.Equals, 1)
}

func TestOpenRejects(t *testing.T) {
	c := qt.New(t)

	_, err := assets.Open(strings.NewReader("KAR\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	c.Assert(err, qt.ErrorIs, assets.ErrFileFormat)

	_, err = assets.Open(strings.NewReader("GP"))
	c.Assert(err, qt.ErrorIs, assets.ErrFileFormat)

	raw := build(c)
	_, err = assets.Open(bytes.NewReader(raw[:20]))
	c.Assert(err, qt.ErrorIs, assets.ErrFileFormat)
}
