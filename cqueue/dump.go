// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cqueue

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/klauspost/compress/s2"
)

// Word is the set of element types a Queue can Dump/Load directly:
// the tuple-stream key and value widths used throughout the build
// pipeline.
type Word interface {
	~uint32 | ~uint64
}

func wordSize[T Word]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func asBytes[T Word](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*wordSize[T]())
}

// Dump writes size, then the live contents of q compactly as a
// sequence of count-prefixed, optionally S2-compressed blocks. S2 is
// klauspost/compress's LZ4-class codec, chosen (as in the teacher's
// compr package) for fast block spill rather than maximal ratio.
//
// Dump reads q's blocks in place and leaves q unmodified, matching
// the original cqueue_t::dump()'s read-only iteration over blocks.
func Dump[T Word](w io.Writer, q *Queue[T], compress bool) error {
	var hdr [9]byte
	binary.LittleEndian.PutUint64(hdr[:8], uint64(q.Size()))
	if compress {
		hdr[8] = 1
	}
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("cqueue: dump header: %w", err)
	}
	for i := q.head; i < len(q.blocks); i++ {
		b := q.blocks[i]
		data := b.data[b.start:b.end]
		if len(data) == 0 {
			continue
		}
		raw := asBytes(data)
		payload := raw
		if compress {
			payload = s2.Encode(nil, raw)
		}
		var lenbuf [8]byte
		binary.LittleEndian.PutUint32(lenbuf[0:4], uint32(len(data)))
		binary.LittleEndian.PutUint32(lenbuf[4:8], uint32(len(payload)))
		if _, err := w.Write(lenbuf[:]); err != nil {
			return fmt.Errorf("cqueue: dump block header: %w", err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("cqueue: dump block: %w", err)
		}
	}
	return nil
}

// Load reads a Dump'd stream into q, which must be empty.
func Load[T Word](r io.Reader, q *Queue[T]) error {
	if !q.Empty() {
		panic("cqueue: load into non-empty queue")
	}
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("cqueue: load header: %w", err)
	}
	total := binary.LittleEndian.Uint64(hdr[:8])
	compress := hdr[8] == 1

	var read uint64
	for read < total {
		var lenbuf [8]byte
		if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
			return fmt.Errorf("cqueue: load block header: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenbuf[0:4])
		plen := binary.LittleEndian.Uint32(lenbuf[4:8])
		payload := make([]byte, plen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("cqueue: load block: %w", err)
		}
		raw := payload
		if compress {
			var err error
			raw, err = s2.Decode(nil, payload)
			if err != nil {
				return fmt.Errorf("cqueue: s2 decode: %w", err)
			}
		}
		elems := make([]T, n)
		elemBytes := asBytes(elems)
		if len(raw) != len(elemBytes) {
			return fmt.Errorf("cqueue: load block: decoded %d bytes, want %d", len(raw), len(elemBytes))
		}
		copy(elemBytes, raw)
		q.PushBack(elems)
		read += uint64(n)
	}
	return nil
}
