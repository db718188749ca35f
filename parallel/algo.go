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

package parallel

import (
	"sort"
	"sync"

	"golang.org/x/exp/slices"
)

// For splits [0,n) into nworkers contiguous chunks and runs body(lo,hi)
// for each chunk concurrently, blocking until all chunks complete.
func For(n, nworkers int, body func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if nworkers < 1 {
		nworkers = 1
	}
	if nworkers > n {
		nworkers = n
	}
	chunk := (n + nworkers - 1) / nworkers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// ReduceUint32 partitions data across nworkers and combines each
// partition's fold with combine, seeded by zero.
func ReduceUint32(data []uint32, nworkers int, zero uint64, fold func(acc uint64, v uint32) uint64, combine func(a, b uint64) uint64) uint64 {
	if len(data) == 0 {
		return zero
	}
	if nworkers < 1 {
		nworkers = 1
	}
	if nworkers > len(data) {
		nworkers = len(data)
	}
	partials := make([]uint64, nworkers)
	chunk := (len(data) + nworkers - 1) / nworkers
	var wg sync.WaitGroup
	for w := 0; w < nworkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(data) {
			hi = len(data)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			acc := zero
			for _, v := range data[lo:hi] {
				acc = fold(acc, v)
			}
			partials[w] = acc
		}(w, lo, hi)
	}
	wg.Wait()
	acc := zero
	for _, p := range partials {
		acc = combine(acc, p)
	}
	return acc
}

// KeyCount is one (key, count) pair of a histogram.
type KeyCount struct {
	Key   uint32
	Count uint32
}

// HistogramByKey computes, in parallel, the count of each distinct
// value in keys and returns the pairs sorted ascending by key. It
// mirrors the source's parlay::histogram_by_key + sort_inplace
// sequence used ahead of every partition's offset assignment.
func HistogramByKey(keys []uint32, nworkers int) []KeyCount {
	if len(keys) == 0 {
		return nil
	}
	if nworkers < 1 {
		nworkers = 1
	}
	if nworkers > len(keys) {
		nworkers = len(keys)
	}
	partials := make([]map[uint32]uint32, nworkers)
	chunk := (len(keys) + nworkers - 1) / nworkers
	var wg sync.WaitGroup
	for w := 0; w < nworkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(keys) {
			hi = len(keys)
		}
		if lo >= hi {
			partials[w] = map[uint32]uint32{}
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			m := make(map[uint32]uint32, hi-lo)
			for _, k := range keys[lo:hi] {
				m[k]++
			}
			partials[w] = m
		}(w, lo, hi)
	}
	wg.Wait()

	merged := make(map[uint32]uint32, len(partials[0]))
	for _, m := range partials {
		for k, c := range m {
			merged[k] += c
		}
	}
	out := make([]KeyCount, 0, len(merged))
	for k, c := range merged {
		out = append(out, KeyCount{Key: k, Count: c})
	}
	slices.SortFunc(out, func(a, b KeyCount) bool { return a.Key < b.Key })
	return out
}

// Percentile99 returns the 99th percentile of non-zero counts,
// exactly, by sorting a copy -- mirroring calc_max_occ in the
// reference builder (which also logs min/median/max/99%).
//
// logf may be nil.
func Percentile99(counts []uint32, logf func(string, ...any)) uint32 {
	f := make([]uint32, 0, len(counts))
	for _, c := range counts {
		if c != 0 {
			f = append(f, c)
		}
	}
	if len(f) == 0 {
		return 0
	}
	sort.Slice(f, func(i, j int) bool { return f[i] < f[j] })
	if logf != nil {
		logf("min occ. = %d", f[0])
		logf("median occ. = %d", f[len(f)/2])
		logf("max occ. = %d", f[len(f)-1])
	}
	p99 := f[len(f)*99/100]
	if logf != nil {
		logf("99%% occ. = %d", p99)
	}
	return p99
}
