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

import "testing"

func seqInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestQueuePushPopRoundTrip(t *testing.T) {
	q := New[int](4, nil)
	src := seqInts(37) // spans several partial blocks
	q.PushBack(src)
	if q.Size() != len(src) {
		t.Fatalf("Size = %d, want %d", q.Size(), len(src))
	}
	dst := make([]int, len(src))
	if n := q.PopFront(dst); n != len(src) {
		t.Fatalf("PopFront returned %d, want %d", n, len(src))
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], src[i])
		}
	}
	if q.Size() != 0 || !q.Empty() {
		t.Fatalf("queue not empty after full drain: size=%d", q.Size())
	}
}

func TestQueuePartialPop(t *testing.T) {
	q := New[int](4, nil)
	q.PushBack(seqInts(10))
	first := make([]int, 3)
	if n := q.PopFront(first); n != 3 {
		t.Fatalf("PopFront = %d, want 3", n)
	}
	if q.Size() != 7 {
		t.Fatalf("Size after partial pop = %d, want 7", q.Size())
	}
	rest := make([]int, 7)
	if n := q.PopFront(rest); n != 7 {
		t.Fatalf("PopFront = %d, want 7", n)
	}
	want := seqInts(10)
	got := append(first, rest...)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestQueuePopFrontShortOnEmpty(t *testing.T) {
	q := New[int](4, nil)
	q.PushBack([]int{1, 2})
	dst := make([]int, 5)
	if n := q.PopFront(dst); n != 2 {
		t.Fatalf("PopFront = %d, want 2 (short pop)", n)
	}
}

func TestQueueAt(t *testing.T) {
	q := New[int](4, nil)
	src := seqInts(25)
	q.PushBack(src)
	// partially drain the head so At must account for the head offset.
	q.PopFront(make([]int, 5))
	for i := 0; i < q.Size(); i++ {
		if got := q.At(i); got != src[5+i] {
			t.Errorf("At(%d) = %d, want %d", i, got, src[5+i])
		}
	}
}

func TestQueueAtOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("At: expected panic on out-of-bounds index")
		}
	}()
	q := New[int](4, nil)
	q.PushBack([]int{1})
	q.At(1)
}

func TestQueueClear(t *testing.T) {
	q := New[int](4, nil)
	q.PushBack(seqInts(20))
	q.Clear()
	if !q.Empty() || q.Size() != 0 {
		t.Fatalf("queue not empty after Clear")
	}
	q.PushBack([]int{9, 9, 9})
	if q.Size() != 3 {
		t.Fatalf("Size after reuse post-Clear = %d, want 3", q.Size())
	}
}

func TestQueuePopFrontInto(t *testing.T) {
	src := New[int](4, nil)
	src.PushBack(seqInts(15))
	dst := New[int](4, nil)
	n := src.PopFrontInto(dst, 10)
	if n != 10 {
		t.Fatalf("PopFrontInto = %d, want 10", n)
	}
	if src.Size() != 5 || dst.Size() != 10 {
		t.Fatalf("src.Size=%d dst.Size=%d, want 5,10", src.Size(), dst.Size())
	}
	out := make([]int, 10)
	dst.PopFront(out)
	want := seqInts(10)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestNewDefaultsBlockSize(t *testing.T) {
	q := New[int](0, nil)
	if q.BlockSize() != DefaultBlockSize {
		t.Fatalf("BlockSize = %d, want %d", q.BlockSize(), DefaultBlockSize)
	}
}

func TestPoolReserveRelease(t *testing.T) {
	p := NewPool[int](8)
	blk := p.Reserve()
	if len(blk) != 8 {
		t.Fatalf("Reserve: len = %d, want 8", len(blk))
	}
	inUse, _ := p.Stats()
	if inUse != 1 {
		t.Fatalf("Stats: reservedInUse = %d, want 1", inUse)
	}
	p.Release(blk)
	inUse, _ = p.Stats()
	if inUse != 0 {
		t.Fatalf("Stats after Release: reservedInUse = %d, want 0", inUse)
	}
}
