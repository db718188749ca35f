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

// Jaccard is the fragment-based index: references are cut into
// overlapping fragments and postings are bare fragment-ids rather
// than (ref,pos) pairs. It shares the static CSR's build and query
// shape: keys are k-mers, values are fragment ids.
type Jaccard struct {
	NKeys        uint32
	ValueOffsets []uint64
	Values       []uint32 // fragment ids
	FragOffsets  []uint32
	FragLen      int
	FragOvlpLen  int
	MaxOcc       uint32
}

// Get returns the fragment-id posting list for key.
func (j *Jaccard) Get(key uint32) []uint32 {
	if key >= j.NKeys {
		return nil
	}
	return j.Values[j.ValueOffsets[key]:j.ValueOffsets[key+1]]
}

// Resolve maps a fragment-id back to its owning reference index and
// in-reference stride position. FragOffsets[r] is the id of
// reference r's first fragment, so r is the largest index whose
// FragOffsets[r] <= fragID: an upper-bound search minus one, which is
// the data model's literal definition (§3's "frag_offsets[r] is the
// first fragment-id belonging to reference r") rather than the
// "lower-bound" wording used informally elsewhere -- the reference
// implementation itself is inconsistent about which bound it means at
// this call site.
func (j *Jaccard) Resolve(fragID uint32) (refIdx int, pos uint64) {
	ub := sortmerge.UpperBoundSlice(j.FragOffsets, fragID)
	r := ub - 1
	stride := uint64(j.FragLen - j.FragOvlpLen)
	return r, uint64(fragID-j.FragOffsets[r]) * stride
}

// EmitFragments windows seq once into its full k-mer sequence, then
// chunks that sequence into fragments of frag_len k-mers with a
// stride of frag_len-frag_ovlp_len (the tail fragment may be shorter
// than frag_len), pushing one (key, fragment-id) tuple per k-mer onto
// kq/vq. fragOffsets is extended with the new reference's boundary
// and returned; pass nil for the first call.
func EmitFragments(kq *cqueue.Queue[uint32], vq *cqueue.Queue[uint32], fragOffsets []uint32, seq []byte, k int, sigma uint32, enc kmer.Encoder, fragLen, fragOvlpLen int) []uint32 {
	if fragOvlpLen >= fragLen {
		panic("index: EmitFragments: frag_ovlp_len must be less than frag_len")
	}
	if len(fragOffsets) == 0 {
		fragOffsets = []uint32{0}
	}
	base := fragOffsets[len(fragOffsets)-1]
	stride := fragLen - fragOvlpLen

	keys := kmer.Window(seq, k, sigma, enc)
	var j uint32
	for i := 0; i < len(keys); i += stride {
		count := fragLen
		if remaining := len(keys) - i; remaining < count {
			count = remaining
		}
		fragID := base + j
		vals := make([]uint32, count)
		for x := range vals {
			vals[x] = fragID
		}
		kq.PushBack(keys[i : i+count])
		vq.PushBack(vals)
		j++
	}
	return append(fragOffsets, base+j)
}

// BuildJaccard consumes kq/vq destructively and returns the fragment
// index over the σᵏ-sized key space nKeys.
func BuildJaccard(kq *cqueue.Queue[uint32], vq *cqueue.Queue[uint32], nKeys uint32, fragOffsets []uint32, fragLen, fragOvlpLen, m, nworkers int, logf func(string, ...any)) *Jaccard {
	if kq.Size() != vq.Size() {
		panic("index: BuildJaccard: key/value length mismatch")
	}
	sortmerge.SortByKey(kq, vq, m, nworkers)

	uniq, counts := sortmerge.CountUnique(kq, m, nworkers)
	n := uniq.Size()
	ukeys := make([]uint32, n)
	ucounts := make([]uint32, n)
	if uniq.PopFront(ukeys) != n || counts.PopFront(ucounts) != n {
		panic("index: BuildJaccard: short pop of count-unique output")
	}

	valueOffsets := make([]uint64, nKeys+1)
	for i, k := range ukeys {
		if k >= nKeys {
			panic("index: BuildJaccard: key exceeds key space")
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

	values := make([]uint32, vq.Size())
	if vq.PopFront(values) != len(values) {
		panic("index: BuildJaccard: short pop of sorted values")
	}

	return &Jaccard{
		NKeys: nKeys, ValueOffsets: valueOffsets, Values: values,
		FragOffsets: fragOffsets, FragLen: fragLen, FragOvlpLen: fragOvlpLen,
		MaxOcc: maxOcc,
	}
}
