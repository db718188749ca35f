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

package index

// TieredVector is a two-level segmented vector: a directory of
// fixed-capacity segments, each grown independently and split on
// overflow. InsertAt moves elements only within the target segment
// (and, on split, its immediate successor), never the whole backing
// array. Get and InsertAt find their segment by a linear scan of the
// segment directory, so both cost O(n/segSize), plus O(segSize) for
// InsertAt's in-segment shift. The dynamic index stores each shard's
// postings in one; its merge step fills a fresh vector with Append.
type TieredVector[T any] struct {
	segSize int
	segs    [][]T
	n       int
}

// DefaultSegSize is the segment capacity used when a shard's merge
// step builds a fresh TieredVector.
const DefaultSegSize = 4096

// NewTieredVector returns an empty vector with the given segment
// capacity.
func NewTieredVector[T any](segSize int) *TieredVector[T] {
	if segSize < 1 {
		segSize = DefaultSegSize
	}
	return &TieredVector[T]{segSize: segSize}
}

// Len returns the number of elements.
func (t *TieredVector[T]) Len() int { return t.n }

func (t *TieredVector[T]) locate(i int) (segIdx, local int) {
	for si, seg := range t.segs {
		if i < len(seg) {
			return si, i
		}
		i -= len(seg)
	}
	return len(t.segs), 0
}

// Get returns the element at logical index i.
func (t *TieredVector[T]) Get(i int) T {
	if i < 0 || i >= t.n {
		panic("index: TieredVector: index out of bounds")
	}
	si, local := t.locate(i)
	return t.segs[si][local]
}

// Append adds v at the end.
func (t *TieredVector[T]) Append(v T) { t.InsertAt(t.n, v) }

// InsertAt splices v into logical position i, shifting everything at
// or after i by one. Splits the target segment when it is full.
func (t *TieredVector[T]) InsertAt(i int, v T) {
	if i < 0 || i > t.n {
		panic("index: TieredVector: insert index out of bounds")
	}
	if len(t.segs) == 0 {
		t.segs = append(t.segs, make([]T, 0, t.segSize))
	}
	si, local := t.locate(i)
	if si == len(t.segs) {
		si--
		local = len(t.segs[si])
	}
	seg := t.segs[si]
	if len(seg) == cap(seg) {
		mid := len(seg) / 2
		left := make([]T, mid, t.segSize)
		copy(left, seg[:mid])
		right := make([]T, len(seg)-mid, t.segSize)
		copy(right, seg[mid:])

		t.segs = append(t.segs, nil)
		copy(t.segs[si+2:], t.segs[si+1:])
		t.segs[si] = left
		t.segs[si+1] = right

		if local > mid {
			si++
			local -= mid
		}
		seg = t.segs[si]
	}
	seg = append(seg, v)
	copy(seg[local+1:], seg[local:len(seg)-1])
	seg[local] = v
	t.segs[si] = seg
	t.n++
}

// ToSlice flattens the vector into a single contiguous slice.
func (t *TieredVector[T]) ToSlice() []T {
	out := make([]T, 0, t.n)
	for _, seg := range t.segs {
		out = append(out, seg...)
	}
	return out
}
