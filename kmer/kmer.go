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

// Package kmer encodes fixed-length substrings of a sequence into
// fixed-width integer keys, and packs/unpacks reference postings.
package kmer

import "fmt"

// MaxK is the largest k-mer length representable in a 32-bit key
// for the DNA alphabet (sigma=4): every 16-mer key is below
// 4^16 = 2^32, so it fits in a uint32.
const MaxK = 16

// RefIDBits is the width of the ref_id field of a packed posting.
// RefPosBits is the width of the ref_pos field.
//
// The split is a fixed design choice; Pack/ref_id/ref_pos stay symmetric
// no matter how these constants are tuned, so long as they sum to 64.
const (
	RefIDBits  = 20
	RefPosBits = 64 - RefIDBits

	MaxRefID  = uint64(1) << RefIDBits
	MaxRefPos = uint64(1) << RefPosBits

	refPosMask = MaxRefPos - 1
)

// Pack constructs a posting from a reference id and an in-reference
// position. It panics if refID or refPos overflow their fields --
// this is a programmer invariant, not an input error.
func Pack(refID, refPos uint64) uint64 {
	if refID >= MaxRefID {
		panic(fmt.Sprintf("kmer: ref_id %d exceeds %d-bit field", refID, RefIDBits))
	}
	if refPos >= MaxRefPos {
		panic(fmt.Sprintf("kmer: ref_pos %d exceeds %d-bit field", refPos, RefPosBits))
	}
	return refID<<RefPosBits | refPos
}

// RefID extracts the reference id from a packed posting.
func RefID(posting uint64) uint64 { return posting >> RefPosBits }

// RefPos extracts the in-reference position from a packed posting.
func RefPos(posting uint64) uint64 { return posting & refPosMask }

// Encoder maps a single symbol to its 0..sigma-1 code.
type Encoder func(c byte) uint32

// EncodeDNA maps {A,C,G,T} (and their lowercase forms) onto {0,1,2,3}
// via (c>>1)&3, matching the 2-bit packing used throughout the DNA
// index path. It is deterministic for any input byte, so callers do
// not need to pre-validate the alphabet.
func EncodeDNA(c byte) uint32 {
	return uint32(c>>1) & 3
}

// EncodeRaw is the identity encoder used for pre-quantized raw-signal
// query bytes: the upstream signal quantizer has already mapped events
// onto 0..sigma-1, so the k-mer encoder just forwards the byte.
func EncodeRaw(c byte) uint32 {
	return uint32(c)
}

// revTable is the complement table used by ReverseComplement,
// indexed the same way EncodeDNA maps symbols: "TGAC"[(c>>1)&3].
var revTable = [4]byte{'T', 'G', 'A', 'C'}

// ReverseComplement returns the reverse complement of a DNA sequence.
// Non-ACGT bytes are mapped through the same (c>>1)&3 reduction as
// EncodeDNA, so callers must only pass sequences drawn from the same
// alphabet used to build the index.
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, c := range seq {
		out[n-1-i] = revTable[(c>>1)&3]
	}
	return out
}

// Window computes the k-mer keys of s using encoder enc and alphabet
// size sigma, one pass, via the sliding-window recurrence
//
//	k[i+1] = (k[i] - encode(s[i])*sigma^(k-1)) * sigma + encode(s[i+k])
//
// It returns nil if len(s) < k.
func Window(s []byte, k int, sigma uint32, enc Encoder) []uint32 {
	n := len(s)
	if n < k {
		return nil
	}
	out := make([]uint32, n-k+1)
	hi := uint32(1)
	for i := 0; i < k-1; i++ {
		hi *= sigma
	}
	var key uint32
	for i := 0; i < k; i++ {
		key = key*sigma + enc(s[i])
	}
	out[0] = key
	for i := 1; i <= n-k; i++ {
		key = (key-enc(s[i-1])*hi)*sigma + enc(s[i+k-1])
		out[i] = key
	}
	return out
}

// MinimizerIndices returns the indices (into keys) of the minimum key
// in every window of width w, deduplicated and in ascending order.
//
// This is a downsampling helper carried over from the reference
// implementation's index builder; nothing in the default build path
// calls it yet, but it is kept as a library-level primitive for a
// future minimizer-sampled index variant.
func MinimizerIndices(keys []uint32, w int) []int {
	n := len(keys)
	if w <= 0 || w > n {
		return nil
	}
	out := make([]int, 0, n-w+1)
	var last = -1
	for i := 0; i+w <= n; i++ {
		minKey := keys[i]
		minIdx := i
		for j := i + 1; j < i+w; j++ {
			if keys[j] < minKey {
				minKey = keys[j]
				minIdx = j
			}
		}
		if minIdx != last {
			out = append(out, minIdx)
			last = minIdx
		}
	}
	return out
}
