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

package sortmerge

import (
	"math/rand"
	"sort"
	"testing"

	"collinear.example/kidx/cqueue"
)

func isSortedU32(s []uint32) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestSortByKeySmallerThanM(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 50
	keys := cqueue.New[uint32](8, nil)
	values := cqueue.New[uint64](8, nil)
	k := make([]uint32, n)
	v := make([]uint64, n)
	for i := range k {
		k[i] = uint32(rng.Intn(1000))
		v[i] = uint64(i) // distinguishes the permutation applied to values
	}
	keys.PushBack(k)
	values.PushBack(v)

	SortByKey(keys, values, 1<<20, 2) // n <= m: the in-memory path

	gotK := make([]uint32, n)
	gotV := make([]uint64, n)
	keys.PopFront(gotK)
	values.PopFront(gotV)
	if !isSortedU32(gotK) {
		t.Fatalf("SortByKey: keys not sorted: %v", gotK)
	}
	for i, orig := range gotV {
		if k[orig] != gotK[i] {
			t.Fatalf("SortByKey: value %d permuted to key %d, want %d", orig, gotK[i], k[orig])
		}
	}
}

func TestSortByKeyMultiRunMerge(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 5000
	keys := cqueue.New[uint32](64, nil)
	values := cqueue.New[uint64](64, nil)
	k := make([]uint32, n)
	v := make([]uint64, n)
	for i := range k {
		k[i] = uint32(rng.Intn(200))
		v[i] = uint64(i)
	}
	keys.PushBack(k)
	values.PushBack(v)

	SortByKey(keys, values, 64, 4) // forces many runs + pairwise merges

	gotK := make([]uint32, n)
	gotV := make([]uint64, n)
	if keys.PopFront(gotK) != n || values.PopFront(gotV) != n {
		t.Fatalf("SortByKey: output size mismatch")
	}
	if !isSortedU32(gotK) {
		t.Fatalf("SortByKey: keys not sorted ascending")
	}
	for i, orig := range gotV {
		if k[orig] != gotK[i] {
			t.Fatalf("SortByKey: value %d permuted to key %d, want %d", orig, gotK[i], k[orig])
		}
	}
	// same multiset of keys, just reordered
	wantSorted := append([]uint32(nil), k...)
	sort.Slice(wantSorted, func(i, j int) bool { return wantSorted[i] < wantSorted[j] })
	for i := range wantSorted {
		if wantSorted[i] != gotK[i] {
			t.Fatalf("SortByKey: key multiset mismatch at %d: got %d want %d", i, gotK[i], wantSorted[i])
		}
	}
}

func TestCountUnique(t *testing.T) {
	keys := cqueue.New[uint32](16, nil)
	values := cqueue.New[uint64](16, nil)
	raw := []uint32{1, 1, 1, 2, 3, 3, 5, 5, 5, 5, 9}
	vals := make([]uint64, len(raw))
	keys.PushBack(raw)
	values.PushBack(vals)
	SortByKey(keys, values, 4, 2)

	uniq, counts := CountUnique(keys, 4, 3)
	n := uniq.Size()
	if n != counts.Size() {
		t.Fatalf("CountUnique: uniq.Size=%d counts.Size=%d", n, counts.Size())
	}
	gotK := make([]uint32, n)
	gotC := make([]uint32, n)
	uniq.PopFront(gotK)
	counts.PopFront(gotC)

	want := map[uint32]uint32{1: 3, 2: 1, 3: 2, 5: 4, 9: 1}
	if len(gotK) != len(want) {
		t.Fatalf("CountUnique: %d distinct keys, want %d", len(gotK), len(want))
	}
	var total uint32
	for i, k := range gotK {
		if gotC[i] != want[k] {
			t.Errorf("key %d: count = %d, want %d", k, gotC[i], want[k])
		}
		total += gotC[i]
		if i > 0 && gotK[i-1] >= k {
			t.Fatalf("CountUnique: keys not strictly ascending at %d", i)
		}
	}
	if int(total) != len(raw) {
		t.Fatalf("CountUnique: counts sum to %d, want %d", total, len(raw))
	}
}

func TestUpperLowerBoundSlice(t *testing.T) {
	s := []uint32{1, 3, 3, 3, 7, 9}
	if got := LowerBoundSlice(s, 3); got != 1 {
		t.Errorf("LowerBoundSlice(3) = %d, want 1", got)
	}
	if got := UpperBoundSlice(s, 3); got != 4 {
		t.Errorf("UpperBoundSlice(3) = %d, want 4", got)
	}
	if got := LowerBoundSlice(s, 0); got != 0 {
		t.Errorf("LowerBoundSlice(0) = %d, want 0", got)
	}
	if got := UpperBoundSlice(s, 100); got != len(s) {
		t.Errorf("UpperBoundSlice(100) = %d, want %d", got, len(s))
	}
}

func TestBoundOverQueue(t *testing.T) {
	q := cqueue.New[uint32](4, nil)
	q.PushBack([]uint32{1, 3, 3, 3, 7, 9})
	if got := LowerBound(q, 0, q.Size(), 3); got != 1 {
		t.Errorf("LowerBound(3) = %d, want 1", got)
	}
	if got := UpperBound(q, 0, q.Size(), 3); got != 4 {
		t.Errorf("UpperBound(3) = %d, want 4", got)
	}
}
