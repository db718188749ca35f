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

package cidx

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"collinear.example/kidx/cqueue"
)

// blockSizeFor picks a block size for the transient queue values are
// staged through on their way to/from disk. It doesn't need to match
// the build's sort block size -- only to be large enough that the
// whole array fits in one block, so dump/load does a single write.
func blockSizeFor(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// dumpValues writes values as a single queue-dump block, optionally
// wrapped in a zstd stream. The queue dump itself is written with
// cqueue's per-block s2 option off, since the static values array
// here is written as exactly one block and gains nothing from s2's
// per-block framing; zstd is the only compression applied.
func dumpValues[T cqueue.Word](w io.Writer, values []T, compressed bool) error {
	dst := w
	var enc *zstd.Encoder
	if compressed {
		var err error
		enc, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("cidx: create zstd encoder: %w", err)
		}
		dst = enc
	}
	q := cqueue.New[T](blockSizeFor(len(values)), nil)
	if len(values) > 0 {
		q.PushBack(values)
	}
	if err := cqueue.Dump(dst, q, false); err != nil {
		return fmt.Errorf("cidx: dump values: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("cidx: close zstd encoder: %w", err)
		}
	}
	return nil
}

func loadValues[T cqueue.Word](r io.Reader, n int, compressed bool) ([]T, error) {
	src := r
	var dec *zstd.Decoder
	if compressed {
		var err error
		dec, err = zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("cidx: create zstd decoder: %w", err)
		}
		defer dec.Close()
		src = dec
	}
	q := cqueue.New[T](blockSizeFor(n), nil)
	if err := cqueue.Load(src, q); err != nil {
		return nil, fmt.Errorf("cidx: load values: %w", err)
	}
	out := make([]T, q.Size())
	q.PopFront(out)
	return out, nil
}
