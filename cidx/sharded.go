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

package cidx

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"collinear.example/kidx/index"
)

// DumpSharded atomically writes the sharded index. Per shard, subkeys
// are sorted ascending before the flat keys/packed arrays are
// written, matching the CSR layout's monotone ordering even though
// the in-memory subkey map itself has no intrinsic order.
func DumpSharded(path string, cfg Config, headers []string, s *index.Sharded) error {
	return atomicWrite(path, func(w io.Writer) error {
		if err := writeConfig(w, cfg); err != nil {
			return err
		}
		if err := writeHeaders(w, headers); err != nil {
			return err
		}

		nShards := len(s.Shards)
		shardOffsets := make([]uint32, nShards+1)
		var nUnique uint32
		for i, sh := range s.Shards {
			shardOffsets[i] = nUnique
			nUnique += uint32(len(sh.Subkeys()))
		}
		shardOffsets[nShards] = nUnique

		if err := binary.Write(w, binary.LittleEndian, nUnique); err != nil {
			return fmt.Errorf("cidx: write n_unique: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, shardOffsets); err != nil {
			return fmt.Errorf("cidx: write shard_offsets: %w", err)
		}

		keys := make([]uint32, 0, nUnique)
		packed := make([]uint64, 0, nUnique)
		for _, sh := range s.Shards {
			sk := sh.Subkeys()
			sort.Slice(sk, func(a, b int) bool { return sk[a] < sk[b] })
			for _, k := range sk {
				p, _ := sh.Packed(k)
				keys = append(keys, k)
				packed = append(packed, p)
			}
		}
		if err := binary.Write(w, binary.LittleEndian, keys); err != nil {
			return fmt.Errorf("cidx: write shard keys: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, packed); err != nil {
			return fmt.Errorf("cidx: write shard packed offsets: %w", err)
		}

		for _, sh := range s.Shards {
			if err := dumpValues(w, sh.Values, cfg.Compressed); err != nil {
				return err
			}
		}
		return binary.Write(w, binary.LittleEndian, s.MaxOcc)
	})
}

// LoadSharded loads a sharded index, rejecting a file whose config
// fails CheckCompatible against want.
func LoadSharded(path string, want Config) (*index.Sharded, []string, Config, error) {
	var s *index.Sharded
	var headers []string
	var cfg Config
	err := readFile(path, func(r io.Reader) error {
		var err error
		cfg, err = readConfig(r)
		if err != nil {
			return err
		}
		if err := CheckCompatible(cfg, want); err != nil {
			return err
		}
		headers, err = readHeaders(r)
		if err != nil {
			return err
		}

		var nUnique uint32
		if err := binary.Read(r, binary.LittleEndian, &nUnique); err != nil {
			return fmt.Errorf("cidx: read n_unique: %w", err)
		}
		nShards := 1 << cfg.NShardBits
		shardOffsets := make([]uint32, nShards+1)
		if err := binary.Read(r, binary.LittleEndian, shardOffsets); err != nil {
			return fmt.Errorf("cidx: read shard_offsets: %w", err)
		}
		keys := make([]uint32, nUnique)
		if nUnique > 0 {
			if err := binary.Read(r, binary.LittleEndian, keys); err != nil {
				return fmt.Errorf("cidx: read shard keys: %w", err)
			}
		}
		packed := make([]uint64, nUnique)
		if nUnique > 0 {
			if err := binary.Read(r, binary.LittleEndian, packed); err != nil {
				return fmt.Errorf("cidx: read shard packed offsets: %w", err)
			}
		}

		shards := make([]*index.Shard, nShards)
		for i := 0; i < nShards; i++ {
			lo, hi := shardOffsets[i], shardOffsets[i+1]
			var total uint64
			if hi > lo {
				offset, count := index.UnpackOffsetCount(packed[hi-1])
				total = offset + count
			}
			values, err := loadValues[uint64](r, int(total), cfg.Compressed)
			if err != nil {
				return err
			}
			shards[i] = index.NewShardFromDump(keys[lo:hi], packed[lo:hi], values)
		}

		var maxOcc uint32
		if err := binary.Read(r, binary.LittleEndian, &maxOcc); err != nil {
			return fmt.Errorf("cidx: read max_occ: %w", err)
		}
		s = &index.Sharded{NShardBits: int(cfg.NShardBits), Shards: shards, MaxOcc: maxOcc}
		return nil
	})
	return s, headers, cfg, err
}
