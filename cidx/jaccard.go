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

	"collinear.example/kidx/index"
)

// DumpJaccard atomically writes the fragment index: the CSR-shaped
// key/value tables (k-mer keys, fragment-id values), followed by the
// fragment geometry tail (frag_len, frag_ovlp_len, frag_offsets).
func DumpJaccard(path string, cfg Config, headers []string, j *index.Jaccard) error {
	return atomicWrite(path, func(w io.Writer) error {
		if err := writeConfig(w, cfg); err != nil {
			return err
		}
		if err := writeHeaders(w, headers); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(j.ValueOffsets))); err != nil {
			return fmt.Errorf("cidx: write value_offsets length: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, j.ValueOffsets); err != nil {
			return fmt.Errorf("cidx: write value_offsets: %w", err)
		}
		if cfg.Compressed {
			if err := dumpValuesElias(w, j.Values); err != nil {
				return err
			}
		} else if err := dumpValues(w, j.Values, false); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, j.MaxOcc); err != nil {
			return fmt.Errorf("cidx: write max_occ: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(j.FragLen)); err != nil {
			return fmt.Errorf("cidx: write frag_len: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(j.FragOvlpLen)); err != nil {
			return fmt.Errorf("cidx: write frag_ovlp_len: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(j.FragOffsets))); err != nil {
			return fmt.Errorf("cidx: write n_frag_offsets: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, j.FragOffsets); err != nil {
			return fmt.Errorf("cidx: write frag_offsets: %w", err)
		}
		return nil
	})
}

// LoadJaccard loads a fragment index, rejecting a file whose config
// block fails CheckCompatible against want.
func LoadJaccard(path string, want Config) (*index.Jaccard, []string, Config, error) {
	var j *index.Jaccard
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
		var nOff uint64
		if err := binary.Read(r, binary.LittleEndian, &nOff); err != nil {
			return fmt.Errorf("cidx: read value_offsets length: %w", err)
		}
		offsets := make([]uint64, nOff)
		if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
			return fmt.Errorf("cidx: read value_offsets: %w", err)
		}
		if nOff == 0 {
			return fmt.Errorf("cidx: empty value_offsets table")
		}
		total := offsets[nOff-1]
		var values []uint32
		if cfg.Compressed {
			values, err = loadValuesElias(r, int(total))
		} else {
			values, err = loadValues[uint32](r, int(total), false)
		}
		if err != nil {
			return err
		}
		var maxOcc uint32
		if err := binary.Read(r, binary.LittleEndian, &maxOcc); err != nil {
			return fmt.Errorf("cidx: read max_occ: %w", err)
		}
		var fragLen, fragOvlpLen uint32
		if err := binary.Read(r, binary.LittleEndian, &fragLen); err != nil {
			return fmt.Errorf("cidx: read frag_len: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &fragOvlpLen); err != nil {
			return fmt.Errorf("cidx: read frag_ovlp_len: %w", err)
		}
		var nFragOff uint64
		if err := binary.Read(r, binary.LittleEndian, &nFragOff); err != nil {
			return fmt.Errorf("cidx: read n_frag_offsets: %w", err)
		}
		fragOffsets := make([]uint32, nFragOff)
		if err := binary.Read(r, binary.LittleEndian, fragOffsets); err != nil {
			return fmt.Errorf("cidx: read frag_offsets: %w", err)
		}
		j = &index.Jaccard{
			NKeys: uint32(nOff - 1), ValueOffsets: offsets, Values: values,
			FragOffsets: fragOffsets, FragLen: int(fragLen), FragOvlpLen: int(fragOvlpLen),
			MaxOcc: maxOcc,
		}
		return nil
	})
	return j, headers, cfg, err
}
