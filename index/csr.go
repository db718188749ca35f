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

import (
	"collinear.example/kidx/cqueue"
	"collinear.example/kidx/kmer"
	"collinear.example/kidx/parallel"
	"collinear.example/kidx/sortmerge"
)

// CSR is the static dense index: a monotone value_offsets array over
// the full σᵏ key space plus a single contiguous posting array.
type CSR struct {
	NKeys        uint32
	ValueOffsets []uint64
	Values       []uint64
	MaxOcc       uint32
}

// Get returns the posting list for key, or nil if key is out of range
// or has no postings.
func (c *CSR) Get(key uint32) []uint64 {
	if key >= c.NKeys {
		return nil
	}
	return c.Values[c.ValueOffsets[key]:c.ValueOffsets[key+1]]
}

// EmitKmers windows seq at width k over alphabet sigma and pushes one
// (key, posting) tuple per k-mer onto kq/vq. Sequences shorter than k
// are silently skipped, matching the build's "reference shorter than
// k is skipped" boundary case.
func EmitKmers(kq *cqueue.Queue[uint32], vq *cqueue.Queue[uint64], seq []byte, refID uint64, k int, sigma uint32, enc kmer.Encoder) {
	keys := kmer.Window(seq, k, sigma, enc)
	if keys == nil {
		return
	}
	vals := make([]uint64, len(keys))
	for i := range keys {
		vals[i] = kmer.Pack(refID, uint64(i))
	}
	kq.PushBack(keys)
	vq.PushBack(vals)
}

// BuildCSR consumes kq/vq destructively (per the chunked-queue
// lifecycle contract) and returns the static dense index over the
// σᵏ-sized key space nKeys. m is the sort-merge scratch size in
// tuples; nworkers bounds build-time parallelism; logf receives the
// max_occ percentile report (nil is a valid, silent logger).
func BuildCSR(kq *cqueue.Queue[uint32], vq *cqueue.Queue[uint64], nKeys uint32, m, nworkers int, logf func(string, ...any)) *CSR {
	if kq.Size() != vq.Size() {
		panic("index: BuildCSR: key/value length mismatch")
	}
	sortmerge.SortByKey(kq, vq, m, nworkers)

	uniq, counts := sortmerge.CountUnique(kq, m, nworkers)
	n := uniq.Size()
	ukeys := make([]uint32, n)
	ucounts := make([]uint32, n)
	if uniq.PopFront(ukeys) != n || counts.PopFront(ucounts) != n {
		panic("index: BuildCSR: short pop of count-unique output")
	}

	valueOffsets := make([]uint64, nKeys+1)
	for i, k := range ukeys {
		if k >= nKeys {
			panic("index: BuildCSR: key exceeds key space")
		}
		valueOffsets[k] = uint64(ucounts[i])
	}

	maxOcc := parallel.Percentile99(ucounts, logf)

	var running uint64
	for i := range valueOffsets {
		c := valueOffsets[i]
		valueOffsets[i] = running
		running += c
	}

	values := make([]uint64, vq.Size())
	if vq.PopFront(values) != len(values) {
		panic("index: BuildCSR: short pop of sorted values")
	}

	return &CSR{NKeys: nKeys, ValueOffsets: valueOffsets, Values: values, MaxOcc: maxOcc}
}
