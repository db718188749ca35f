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

// Package sortmerge implements the out-of-core sort-merge pipeline:
// partitioning, binary search over a chunked queue's random-access
// view, sort-by-key, and count-unique. Callers choose the partition
// size M; each function allocates its own M-sized scratch buffers and
// takes no caller-supplied buffer.
package sortmerge

import "collinear.example/kidx/cqueue"

// UpperBound returns the first index in q[start,end) whose element is
// strictly greater than key, assuming that range is sorted ascending.
func UpperBound[T cqueue.Word](q *cqueue.Queue[T], start, end int, key T) int {
	if q.Size() < end {
		panic("sortmerge: upper_bound range exceeds queue size")
	}
	for start < end {
		mid := (start + end) / 2
		if key < q.At(mid) {
			end = mid
		} else {
			start = mid + 1
		}
	}
	return start
}

// LowerBound returns the first index in q[start,end) whose element is
// not less than key, assuming that range is sorted ascending.
func LowerBound[T cqueue.Word](q *cqueue.Queue[T], start, end int, key T) int {
	if q.Size() < end {
		panic("sortmerge: lower_bound range exceeds queue size")
	}
	for start < end {
		mid := (start + end) / 2
		if key > q.At(mid) {
			start = mid + 1
		} else {
			end = mid
		}
	}
	return start
}

// UpperBoundSlice is the plain in-memory-slice counterpart of
// UpperBound, used by the Jaccard index's fragment-id -> reference
// resolution.
func UpperBoundSlice[T cqueue.Word](s []T, key T) int {
	start, end := 0, len(s)
	for start < end {
		mid := (start + end) / 2
		if key < s[mid] {
			end = mid
		} else {
			start = mid + 1
		}
	}
	return start
}

// LowerBoundSlice is the lower-bound counterpart of UpperBoundSlice
// over a plain in-memory slice.
func LowerBoundSlice[T cqueue.Word](s []T, key T) int {
	start, end := 0, len(s)
	for start < end {
		mid := (start + end) / 2
		if key > s[mid] {
			start = mid + 1
		} else {
			end = mid
		}
	}
	return start
}
