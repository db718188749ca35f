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

import "collinear.example/kidx/cqueue"

// MergePartition is one step of a two-queue merge: how many elements
// to take from A and from B so the combined step fits within M.
type MergePartition struct {
	NA, NB int
}

// GetPartitions splits keys' logical sequence into contiguous runs of
// size <= M such that no duplicate key straddles a run boundary: take
// up to M elements, then shrink the tail back to the first occurrence
// of the last key (a lower-bound on that key). When one key fills the
// whole M-element window, the run instead extends to that key's last
// occurrence, so it can be longer than M.
func GetPartitions[T cqueue.Word](keys *cqueue.Queue[T], m int) []int {
	n := keys.Size()
	var out []int
	off := 0
	for off < n {
		if n-off <= m {
			out = append(out, n-off)
			break
		}
		np := min(n-off, m)
		key := keys.At(off + np - 1)
		np = LowerBound(keys, off, off+np, key) - off
		if np == 0 {
			np = UpperBound(keys, off, n, key) - off
		}
		out = append(out, np)
		off += np
	}
	return out
}

// GetMergePartitions emits per-step (nA, nB) work sizes for merging
// two sorted queues so each step fits in M.
func GetMergePartitions[T cqueue.Word](a, b *cqueue.Queue[T], m int) []MergePartition {
	na, nb := a.Size(), b.Size()
	offA, offB := 0, 0
	var out []MergePartition

	for offA < na && offB < nb {
		npa := min(na-offA, m/2)
		npb := min(nb-offB, m/2)

		if npa < m/2 && npb < m/2 {
			out = append(out, MergePartition{npa, npb})
			offA += npa
			offB += npb
			break
		}

		lastA := a.At(offA + npa - 1)
		firstB := b.At(offB)
		lastB := b.At(offB + npb - 1)
		firstA := a.At(offA)

		switch {
		case lastA <= firstB:
			// all of A's window is <= B's first: emit A alone
			out = append(out, MergePartition{npa, 0})
			offA += npa
		case lastB <= firstA:
			// all of B's window is <= A's first: emit B alone
			out = append(out, MergePartition{0, npb})
			offB += npb
		default:
			if lastA < lastB {
				npb = UpperBound(b, offB, offB+npb, lastA) - offB
			} else if lastB < lastA {
				npa = UpperBound(a, offA, offA+npa, lastB) - offA
			}
			out = append(out, MergePartition{npa, npb})
			offA += npa
			offB += npb
		}
	}

	if offA == na && offB < nb {
		out = append(out, MergePartition{0, nb - offB})
	} else if offB == nb && offA < na {
		out = append(out, MergePartition{na - offA, 0})
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
