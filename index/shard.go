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

// Package index builds and queries the inverted k-mer index: the
// dense CSR coordinate form, the sharded form, the dynamic
// (insert-then-merge) form, and the Jaccard-fragment form. The sharded
// and dynamic forms share the shard/subkey-map building block; the CSR
// and Jaccard forms index a dense offsets array by the raw key.
package index

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// shardMask returns the low-n_shard_bits mask selecting a key's shard;
// the remaining high bits (key >> nShardBits) are its subkey. This
// mirrors the original's SHARD/SKEY macros exactly -- shard routing is
// a fixed bit split, not a hash, so that the dense and sharded layouts
// stay interchangeable at the key level.
func shardMask(nShardBits int) uint32 { return uint32(1)<<uint(nShardBits) - 1 }

func shardOf(key uint32, nShardBits int) uint32 { return key & shardMask(nShardBits) }
func subkeyOf(key uint32, nShardBits int) uint32 { return key >> uint(nShardBits) }

func packOC(offset, count uint64) uint64 { return offset<<32 | count }
func unpackOC(p uint64) (offset, count uint64) { return p >> 32, p & 0xffffffff }

// subkeyMap is an open-addressing hash map from subkey to a packed
// (offset,count) pair, hashed with siphash rather than Go's built-in
// map hash. This mirrors the original's use of a custom hash map
// (emhash8::HashMap, not std::unordered_map) for the per-shard tuple
// table: a fixed, inspectable hash function lets dump/load and the
// dynamic merge step reconstruct deterministic bucket layouts instead
// of depending on the runtime's randomized map seed.
type subkeyMap struct {
	keys []uint32
	vals []uint64
	used []bool
	n    int
}

const subkeyHashK0 uint64 = 0x6c62272e07bb0142
const subkeyHashK1 uint64 = 0x62b821756295c58d

func subkeyHash(k uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], k)
	return siphash.Hash(subkeyHashK0, subkeyHashK1, buf[:])
}

func nextPow2(n int) int {
	p := 16
	for p < n {
		p <<= 1
	}
	return p
}

func newSubkeyMap(capHint int) *subkeyMap {
	sz := nextPow2(capHint * 2)
	return &subkeyMap{
		keys: make([]uint32, sz),
		vals: make([]uint64, sz),
		used: make([]bool, sz),
	}
}

func (m *subkeyMap) indexFor(k uint32) int {
	return int(subkeyHash(k) & uint64(len(m.used)-1))
}

func (m *subkeyMap) Put(k uint32, v uint64) {
	if (m.n+1)*2 >= len(m.used) {
		m.grow()
	}
	i := m.indexFor(k)
	for m.used[i] {
		if m.keys[i] == k {
			m.vals[i] = v
			return
		}
		i = (i + 1) & (len(m.used) - 1)
	}
	m.keys[i], m.vals[i], m.used[i] = k, v, true
	m.n++
}

func (m *subkeyMap) Get(k uint32) (uint64, bool) {
	i := m.indexFor(k)
	for m.used[i] {
		if m.keys[i] == k {
			return m.vals[i], true
		}
		i = (i + 1) & (len(m.used) - 1)
	}
	return 0, false
}

func (m *subkeyMap) Len() int { return m.n }

// Keys returns the map's subkeys in unspecified order.
func (m *subkeyMap) Keys() []uint32 {
	out := make([]uint32, 0, m.n)
	for i, u := range m.used {
		if u {
			out = append(out, m.keys[i])
		}
	}
	return out
}

func (m *subkeyMap) grow() {
	old := m
	nm := newSubkeyMap(old.n * 2)
	for i, u := range old.used {
		if u {
			nm.Put(old.keys[i], old.vals[i])
		}
	}
	*m = *nm
}

// Shard is one of 2^n_shard_bits disjoint partitions of the static
// index's key space, storing packed (offset,count) pairs for its
// subkeys and the contiguous posting values they index into.
type Shard struct {
	Tuples *subkeyMap
	Values []uint64
}

// Get returns the posting list for subkey, or nil if absent.
func (s *Shard) Get(subkey uint32) []uint64 {
	packed, ok := s.Tuples.Get(subkey)
	if !ok {
		return nil
	}
	offset, count := unpackOC(packed)
	return s.Values[offset : offset+count]
}

// Subkeys returns the shard's subkeys in unspecified order, for
// serialization by the cidx package.
func (s *Shard) Subkeys() []uint32 { return s.Tuples.Keys() }

// Packed returns the packed (offset,count) value stored for subkey.
func (s *Shard) Packed(subkey uint32) (uint64, bool) { return s.Tuples.Get(subkey) }

// NewShardFromDump rebuilds a Shard from the parallel subkey/packed
// arrays and value array written by .cidx's sharded layout.
func NewShardFromDump(subkeys []uint32, packed []uint64, values []uint64) *Shard {
	m := newSubkeyMap(len(subkeys))
	for i, sk := range subkeys {
		m.Put(sk, packed[i])
	}
	return &Shard{Tuples: m, Values: values}
}

// PackOffsetCount and UnpackOffsetCount expose the shard value table's
// packed-pair encoding to the cidx package, which must read and write
// it without reaching into Shard's unexported fields.
func PackOffsetCount(offset, count uint64) uint64      { return packOC(offset, count) }
func UnpackOffsetCount(p uint64) (offset, count uint64) { return unpackOC(p) }
