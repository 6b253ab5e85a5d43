// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder for a bundle of the given version.
func NewBuilder(version int64) *Builder {
	return &Builder{
		version: version,
		names:   make(map[string]bool),
	}
}

type blob struct {
	name       string
	size       int64
	compressed []byte
}

// Builder is the way to create a bundle. Bundles cannot be appended
// to; blobs are compressed as they are added and written out together
// with the index by WriteTo.
type Builder struct {
	version int64

	mutex sync.Mutex
	blobs []blob
	names map[string]bool
}

// Add compresses everything read from r under name. Will block until
// lz4 finishes compression. Is safe to use concurrently in different
// goroutines.
func (b *Builder) Add(name string, r io.Reader) error {
	b.mutex.Lock()
	if b.names[name] {
		b.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	b.names[name] = true
	b.mutex.Unlock()

	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	written, err := io.Copy(writer, r)
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		b.mutex.Lock()
		delete(b.names, name)
		b.mutex.Unlock()
		return fmt.Errorf("compress %s: %w", name, err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.blobs = append(b.blobs, blob{
		name:       name,
		size:       written,
		compressed: buf.Bytes(),
	})
	return nil
}

// Len returns the number of blobs added.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.blobs)
}

// WriteTo writes the bundle with every blob added so far.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := Header{
		Version:     b.version,
		DateCreated: time.Now().Unix(),
	}
	var offset int64
	for _, bl := range b.blobs {
		size := int64(len(bl.compressed))
		header.Index = append(header.Index, IndexEntry{
			Name:           bl.name,
			Offset:         offset,
			Size:           bl.size,
			CompressedSize: size,
		})
		offset += size
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(header); err != nil {
		return 0, err
	}
	start := make([]byte, MagicLength+HeaderSizeLength)
	copy(start, magic[:])
	binary.LittleEndian.PutUint64(start[MagicLength:], uint64(raw.Len()))

	var total int64
	chunks := [][]byte{start, raw.Bytes()}
	for _, bl := range b.blobs {
		chunks = append(chunks, bl.compressed)
	}
	for _, chunk := range chunks {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
