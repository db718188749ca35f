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
	"sort"
	"sync"

	"collinear.example/kidx/kmer"
	"collinear.example/kidx/parallel"
	"collinear.example/kidx/sortmerge"
)

// dynShard is one shard of the dynamic index: a subkey map over a
// TieredVector of postings. Merge rebuilds a touched shard by
// appending its existing and newly staged postings, key by key, into
// a fresh TieredVector.
type dynShard struct {
	mu     sync.RWMutex
	tuples *subkeyMap
	values *TieredVector[uint64]
}

// Dynamic is the insert-then-merge index variant: Add stages tuples
// in memory; Merge periodically redistributes the staging buffers
// into the sharded, query-ready form. Between merges, newly added
// references are not yet searchable -- callers merge before querying.
type Dynamic struct {
	NShardBits int
	Headers    []string
	MaxOcc     uint32

	nameToID      map[string]int
	headerNextPos []uint64

	stagingKeys   []uint32
	stagingValues []uint64

	shards []*dynShard
}

// NewDynamic returns an empty dynamic index with 2^nShardBits shards.
func NewDynamic(nShardBits int) *Dynamic {
	d := &Dynamic{
		NShardBits: nShardBits,
		nameToID:   make(map[string]int),
		shards:     make([]*dynShard, 1<<nShardBits),
	}
	for i := range d.shards {
		d.shards[i] = &dynShard{tuples: newSubkeyMap(16), values: NewTieredVector[uint64](DefaultSegSize)}
	}
	return d
}

// Add windows seq at width k over alphabet sigma and stages one
// posting per k-mer. Repeated calls for the same name extend that
// reference's position counter rather than starting a new one, so a
// reference may be indexed incrementally across calls.
func (d *Dynamic) Add(name string, seq []byte, k int, sigma uint32, enc kmer.Encoder) {
	id, ok := d.nameToID[name]
	if !ok {
		id = len(d.Headers)
		if uint64(id) >= kmer.MaxRefID {
			panic("index: Dynamic.Add: reference id exceeds 20-bit cap")
		}
		d.Headers = append(d.Headers, name)
		d.headerNextPos = append(d.headerNextPos, 0)
		d.nameToID[name] = id
	}
	startPos := d.headerNextPos[id]
	keys := kmer.Window(seq, k, sigma, enc)
	for j, key := range keys {
		d.stagingKeys = append(d.stagingKeys, key)
		d.stagingValues = append(d.stagingValues, kmer.Pack(uint64(id), startPos+uint64(j)))
	}
	d.headerNextPos[id] = startPos + uint64(len(seq))
}

// Merge redistributes the staging buffers across shards and clears
// them; after Merge, Get reflects everything staged since the last
// call.
func (d *Dynamic) Merge(logf func(string, ...any)) {
	if len(d.stagingKeys) == 0 {
		return
	}
	keys := d.stagingKeys
	values := d.stagingValues
	sortmerge.SortPairs(keys, values)

	nShards := len(d.shards)
	type group struct {
		subkey uint32
		vals   []uint64
	}
	byShard := make([][]group, nShards)

	var allCounts []uint32
	i := 0
	for i < len(keys) {
		j := i + 1
		for j < len(keys) && keys[j] == keys[i] {
			j++
		}
		key := keys[i]
		shard := shardOf(key, d.NShardBits)
		subkey := subkeyOf(key, d.NShardBits)
		byShard[shard] = append(byShard[shard], group{subkey, values[i:j]})
		allCounts = append(allCounts, uint32(j-i))
		i = j
	}

	for s, groups := range byShard {
		if len(groups) == 0 {
			continue
		}
		sh := d.shards[s]
		sh.mu.Lock()
		mergeIntoShard(sh, groups)
		sh.mu.Unlock()
	}

	d.MaxOcc = parallel.Percentile99(allCounts, logf)
	d.stagingKeys = nil
	d.stagingValues = nil
}

func mergeIntoShard(sh *dynShard, groups []struct {
	subkey uint32
	vals   []uint64
}) {
	existing := sh.tuples.Keys()
	sort.Slice(existing, func(a, b int) bool { return existing[a] < existing[b] })

	newMap := newSubkeyMap(sh.tuples.Len() + len(groups))
	newValues := NewTieredVector[uint64](DefaultSegSize)

	ei, gi := 0, 0
	appendExisting := func(subkey uint32) {
		packed, _ := sh.tuples.Get(subkey)
		offset, count := unpackOC(packed)
		start := newValues.Len()
		for k := uint64(0); k < count; k++ {
			newValues.Append(sh.values.Get(int(offset) + int(k)))
		}
		newMap.Put(subkey, packOC(uint64(start), count))
	}
	appendGroup := func(g struct {
		subkey uint32
		vals   []uint64
	}, mergeWithExisting bool) {
		if mergeWithExisting {
			packed, _ := newMap.Get(g.subkey)
			offset, count := unpackOC(packed)
			for _, v := range g.vals {
				newValues.Append(v)
			}
			newMap.Put(g.subkey, packOC(offset, count+uint64(len(g.vals))))
			return
		}
		start := newValues.Len()
		for _, v := range g.vals {
			newValues.Append(v)
		}
		newMap.Put(g.subkey, packOC(uint64(start), uint64(len(g.vals))))
	}

	for ei < len(existing) || gi < len(groups) {
		switch {
		case ei >= len(existing):
			appendGroup(groups[gi], false)
			gi++
		case gi >= len(groups):
			appendExisting(existing[ei])
			ei++
		case existing[ei] < groups[gi].subkey:
			appendExisting(existing[ei])
			ei++
		case groups[gi].subkey < existing[ei]:
			appendGroup(groups[gi], false)
			gi++
		default:
			appendExisting(existing[ei])
			appendGroup(groups[gi], true)
			ei++
			gi++
		}
	}

	sh.tuples = newMap
	sh.values = newValues
}

// ToSharded snapshots the dynamic index, as of the last Merge, into
// the static Sharded form. There is no dedicated on-disk layout for
// the dynamic variant: persistence always goes through this
// conversion, since a merged dynamic index and a freshly built static
// sharded index have identical query semantics.
func (d *Dynamic) ToSharded() *Sharded {
	shards := make([]*Shard, len(d.shards))
	for i, sh := range d.shards {
		sh.mu.RLock()
		shards[i] = &Shard{Tuples: sh.tuples, Values: sh.values.ToSlice()}
		sh.mu.RUnlock()
	}
	return &Sharded{NShardBits: d.NShardBits, Shards: shards, MaxOcc: d.MaxOcc}
}

// Get returns the posting list for key as of the last Merge.
func (d *Dynamic) Get(key uint32) []uint64 {
	shard := shardOf(key, d.NShardBits)
	subkey := subkeyOf(key, d.NShardBits)
	sh := d.shards[shard]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	packed, ok := sh.tuples.Get(subkey)
	if !ok {
		return nil
	}
	offset, count := unpackOC(packed)
	out := make([]uint64, count)
	for i := range out {
		out[i] = sh.values.Get(int(offset) + i)
	}
	return out
}
