// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets packs named opaque blobs, such as compiled shaders and
// mesh bytes, into a single bundle. Every blob is compressed on its own
// with lz4 and the index is known before any blob is read, so a bundle
// can be memory mapped and read from concurrently.
package assets

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/pierrec/lz4"
	"golang.org/x/exp/mmap"
)

// package errors
var (
	ErrFileFormat = errors.New("assets: corrupted or not a bundle")
	ErrNotFound   = errors.New("assets: no such entry")
	ErrDuplicate  = errors.New("assets: duplicate entry")
)

// Sizes relevant to the start of a bundle.
const (
	MagicLength      = 4
	HeaderSizeLength = 8
)

var magic = [MagicLength]byte{'G', 'P', 'R', '\x00'}

const maxHeaderSize = 64 << 20

// IndexEntry is info for one blob in the index. Offset is relative to
// the end of the header.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the gob encoded bundle header.
type Header struct {
	Version     int64
	DateCreated int64
	Index       []IndexEntry
}

// Open reads the header of the bundle in r.
func Open(r io.ReaderAt) (*Bundle, error) {
	start := make([]byte, MagicLength+HeaderSizeLength)
	if n, err := r.ReadAt(start, 0); n < len(start) {
		return nil, fmt.Errorf("%w: %v", ErrFileFormat, err)
	}
	if !bytes.Equal(start[:MagicLength], magic[:]) {
		return nil, ErrFileFormat
	}
	size := int64(binary.LittleEndian.Uint64(start[MagicLength:]))
	if size <= 0 || size > maxHeaderSize {
		return nil, ErrFileFormat
	}

	raw := make([]byte, size)
	if n, err := r.ReadAt(raw, MagicLength+HeaderSizeLength); int64(n) < size {
		return nil, fmt.Errorf("%w: header: %v", ErrFileFormat, err)
	}
	var header Header
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFileFormat, err)
	}

	b := &Bundle{
		reader: r,
		header: header,
		data:   MagicLength + HeaderSizeLength + size,
		index:  make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		b.index[e.Name] = e
	}
	return b, nil
}

// OpenFile memory maps the bundle at path.
func OpenFile(path string) (*Bundle, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	b, err := Open(m)
	if err != nil {
		m.Close()
		return nil, err
	}
	b.closer = m
	return b, nil
}

// Bundle reads blobs from a bundle. It is safe for concurrent use.
type Bundle struct {
	reader io.ReaderAt
	closer io.Closer
	header Header
	data   int64
	index  map[string]IndexEntry
}

// Version returns the version the bundle was built with.
func (b *Bundle) Version() int64 {
	return b.header.Version
}

// Names returns the names of all entries in ascending order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.index))
	for name := range b.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry returns the index entry for name.
func (b *Bundle) Entry(name string) (IndexEntry, bool) {
	e, ok := b.index[name]
	return e, ok
}

// Read returns the decompressed contents of an entry.
func (b *Bundle) Read(name string) ([]byte, error) {
	e, ok := b.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	section := io.NewSectionReader(b.reader, b.data+e.Offset, e.CompressedSize)
	data, err := io.ReadAll(lz4.NewReader(section))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFileFormat, name, err)
	}
	if int64(len(data)) != e.Size {
		return nil, fmt.Errorf("%w: %s is %d bytes, index says %d", ErrFileFormat, name, len(data), e.Size)
	}
	return data, nil
}

// Close releases the mapping of a bundle opened with OpenFile.
func (b *Bundle) Close() error {
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	return err
}
