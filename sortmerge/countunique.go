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
	"collinear.example/kidx/cqueue"
	"collinear.example/kidx/parallel"
)

// CountUnique consumes keys (which must already be sorted ascending)
// and returns its distinct values with their multiplicities, via
// GetPartitions + a parallel histogram-by-key per partition. Keys are
// always the 32-bit k-mer/fragment-id key type used throughout the
// build pipeline. The input queue is empty on return; the output is
// strictly ascending and its counts sum to the original size.
func CountUnique(keys *cqueue.Queue[uint32], m, nworkers int) (uniq *cqueue.Queue[uint32], counts *cqueue.Queue[uint32]) {
	parts := GetPartitions(keys, m)
	uniq = cqueue.New[uint32](keys.BlockSize(), nil)
	counts = cqueue.New[uint32](keys.BlockSize(), nil)

	buf := make([]uint32, m)
	for _, np := range parts {
		n := keys.PopFront(buf[:np])
		if n != np {
			panic("sortmerge: CountUnique: short pop of partition")
		}
		hist := parallel.HistogramByKey(buf[:np], nworkers)
		outK := make([]uint32, len(hist))
		outC := make([]uint32, len(hist))
		for i, kc := range hist {
			outK[i] = kc.Key
			outC[i] = kc.Count
		}
		uniq.PushBack(outK)
		counts.PushBack(outC)
	}
	if keys.Size() != 0 {
		panic("sortmerge: CountUnique: input not drained")
	}
	return uniq, counts
}
