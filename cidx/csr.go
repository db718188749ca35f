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

// DumpCSR atomically writes the dense index in CSR form.
func DumpCSR(path string, cfg Config, headers []string, idx *index.CSR) error {
	return atomicWrite(path, func(w io.Writer) error {
		if err := writeConfig(w, cfg); err != nil {
			return err
		}
		if err := writeHeaders(w, headers); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(idx.ValueOffsets))); err != nil {
			return fmt.Errorf("cidx: write value_offsets length: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, idx.ValueOffsets); err != nil {
			return fmt.Errorf("cidx: write value_offsets: %w", err)
		}
		if err := dumpValues(w, idx.Values, cfg.Compressed); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, idx.MaxOcc); err != nil {
			return fmt.Errorf("cidx: write max_occ: %w", err)
		}
		return nil
	})
}

// LoadCSR loads a dense CSR index, rejecting a file whose config
// block fails CheckCompatible against want.
func LoadCSR(path string, want Config) (*index.CSR, []string, Config, error) {
	var idx *index.CSR
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
		total := uint64(0)
		if nOff > 0 {
			total = offsets[nOff-1]
		}
		values, err := loadValues[uint64](r, int(total), cfg.Compressed)
		if err != nil {
			return err
		}
		var maxOcc uint32
		if err := binary.Read(r, binary.LittleEndian, &maxOcc); err != nil {
			return fmt.Errorf("cidx: read max_occ: %w", err)
		}
		if nOff == 0 {
			return fmt.Errorf("cidx: empty value_offsets table")
		}
		idx = &index.CSR{NKeys: uint32(nOff - 1), ValueOffsets: offsets, Values: values, MaxOcc: maxOcc}
		return nil
	})
	return idx, headers, cfg, err
}
