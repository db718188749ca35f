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

// Package cidx reads and writes the on-disk .cidx format: a fixed
// config block, a header table, one of the postings layouts (CSR,
// sharded, or Jaccard-fragment CSR), and a tail. Every dump is written
// atomically (temp file + fsync + rename) and closed with a blake2b
// checksum over the whole body; loads mmap the file on platforms that
// support it and verify the checksum before touching a single field.
package cidx

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	flagJaccard    uint32 = 1 << 0
	flagFwdRev     uint32 = 1 << 1
	flagCompressed uint32 = 1 << 2
	flagDynamic    uint32 = 1 << 3
)

// Config is the fixed-size config block at the start of every .cidx
// file, exactly as laid out in the format's field order.
type Config struct {
	K                uint32
	Sigma            uint32
	Bandwidth        uint32
	FragLen          uint32
	FragOvlpLen      uint32
	NShardBits       uint32
	PresenceFraction float32
	Jaccard          bool
	FwdRev           bool
	Compressed       bool
	Dynamic          bool
	SortBlockSize    uint64
}

func (c Config) flags() uint32 {
	var f uint32
	if c.Jaccard {
		f |= flagJaccard
	}
	if c.FwdRev {
		f |= flagFwdRev
	}
	if c.Compressed {
		f |= flagCompressed
	}
	if c.Dynamic {
		f |= flagDynamic
	}
	return f
}

func writeConfig(w io.Writer, cfg Config) error {
	fields := []any{
		cfg.K, cfg.Sigma, cfg.Bandwidth, cfg.FragLen, cfg.FragOvlpLen,
		cfg.NShardBits, cfg.PresenceFraction, cfg.flags(), cfg.SortBlockSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("cidx: write config block: %w", err)
		}
	}
	return nil
}

func readConfig(r io.Reader) (Config, error) {
	var cfg Config
	var flags uint32
	fields := []any{
		&cfg.K, &cfg.Sigma, &cfg.Bandwidth, &cfg.FragLen, &cfg.FragOvlpLen,
		&cfg.NShardBits, &cfg.PresenceFraction, &flags, &cfg.SortBlockSize,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return cfg, fmt.Errorf("cidx: read config block: %w", err)
		}
	}
	cfg.Jaccard = flags&flagJaccard != 0
	cfg.FwdRev = flags&flagFwdRev != 0
	cfg.Compressed = flags&flagCompressed != 0
	cfg.Dynamic = flags&flagDynamic != 0
	return cfg, nil
}

// CheckCompatible rejects a loaded config that disagrees with the
// build-critical parameters the caller was invoked with. A zero K or
// Sigma in want is treated as "caller has no opinion" and is not
// checked; the Jaccard and Dynamic flags are always compared.
func CheckCompatible(got, want Config) error {
	if want.K != 0 && got.K != want.K {
		return fmt.Errorf("cidx: k mismatch: file built with k=%d, requested k=%d", got.K, want.K)
	}
	if want.Sigma != 0 && got.Sigma != want.Sigma {
		return fmt.Errorf("cidx: sigma mismatch: file built with sigma=%d, requested sigma=%d", got.Sigma, want.Sigma)
	}
	if got.Jaccard != want.Jaccard {
		return fmt.Errorf("cidx: jaccard flag mismatch: file has %v, requested %v", got.Jaccard, want.Jaccard)
	}
	if got.Dynamic != want.Dynamic {
		return fmt.Errorf("cidx: dynamic flag mismatch: file has %v, requested %v", got.Dynamic, want.Dynamic)
	}
	return nil
}
