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
	"collinear.example/kidx/parallel"
	"collinear.example/kidx/sortmerge"
)

// Sharded is the build-and-query-concurrent form of the static index:
// postings are routed into one of 2^NShardBits independent shards by
// the key's low bits, each shard holding its own subkey map and value
// array. BuildSharded fills the shards in one sequential pass, and a
// Shard carries no lock.
type Sharded struct {
	NShardBits int
	Shards     []*Shard
	MaxOcc     uint32
}

// Get returns the posting list for key, or nil if absent.
func (s *Sharded) Get(key uint32) []uint64 {
	shard := s.Shards[shardOf(key, s.NShardBits)]
	return shard.Get(subkeyOf(key, s.NShardBits))
}

// BuildSharded consumes kq/vq destructively and returns the sharded
// form of the static index. Global ascending order over the full key
// visits each shard's members in ascending subkey order (since, for a
// fixed low-bit remainder, the high bits increase monotonically with
// the key) -- so a single forward pass suffices to both bucket
// postings by shard and keep each shard's values contiguous in
// subkey order.
func BuildSharded(kq *cqueue.Queue[uint32], vq *cqueue.Queue[uint64], nShardBits int, m, nworkers int, logf func(string, ...any)) *Sharded {
	if kq.Size() != vq.Size() {
		panic("index: BuildSharded: key/value length mismatch")
	}
	sortmerge.SortByKey(kq, vq, m, nworkers)

	uniq, counts := sortmerge.CountUnique(kq, m, nworkers)
	n := uniq.Size()
	ukeys := make([]uint32, n)
	ucounts := make([]uint32, n)
	if uniq.PopFront(ukeys) != n || counts.PopFront(ucounts) != n {
		panic("index: BuildSharded: short pop of count-unique output")
	}

	values := make([]uint64, vq.Size())
	if vq.PopFront(values) != len(values) {
		panic("index: BuildSharded: short pop of sorted values")
	}

	nShards := 1 << nShardBits
	shards := make([]*Shard, nShards)
	localOffset := make([]uint64, nShards)
	approxPerShard := n/nShards + 1
	for i := range shards {
		shards[i] = &Shard{Tuples: newSubkeyMap(approxPerShard)}
	}

	var globalOffset uint64
	for i, key := range ukeys {
		count := uint64(ucounts[i])
		shard := shardOf(key, nShardBits)
		subkey := subkeyOf(key, nShardBits)
		sh := shards[shard]
		sh.Values = append(sh.Values, values[globalOffset:globalOffset+count]...)
		sh.Tuples.Put(subkey, packOC(localOffset[shard], count))
		localOffset[shard] += count
		globalOffset += count
	}

	maxOcc := parallel.Percentile99(ucounts, logf)
	return &Sharded{NShardBits: nShardBits, Shards: shards, MaxOcc: maxOcc}
}
