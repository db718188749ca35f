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

	"collinear.example/kidx/bitcode"
)

// dumpValuesElias writes a Jaccard fragment-id array as a bitcode
// Elias-delta stream rather than through dumpValues' zstd layer:
// fragment ids are small, densely packed integers, a better fit for a
// universal code than a general-purpose byte compressor.
func dumpValuesElias(w io.Writer, values []uint32) error {
	u64 := make([]uint64, len(values))
	for i, v := range values {
		u64[i] = uint64(v)
	}
	packed, idx := bitcode.BuildIndex(u64, (*bitcode.Writer).WriteDelta)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(idx.Samples))); err != nil {
		return fmt.Errorf("cidx: write elias sample count: %w", err)
	}
	samples := make([]int64, len(idx.Samples))
	for i, s := range idx.Samples {
		samples[i] = int64(s)
	}
	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("cidx: write elias samples: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(packed))); err != nil {
		return fmt.Errorf("cidx: write elias payload length: %w", err)
	}
	if _, err := w.Write(packed); err != nil {
		return fmt.Errorf("cidx: write elias payload: %w", err)
	}
	return nil
}

// loadValuesElias reads back a stream written by dumpValuesElias,
// decoding all n values through the sampled random-access reader
// (bitcode.At) rather than a plain sequential scan, so the index this
// module builds is actually exercised on the read path too.
func loadValuesElias(r io.Reader, n int) ([]uint32, error) {
	var nSamples uint64
	if err := binary.Read(r, binary.LittleEndian, &nSamples); err != nil {
		return nil, fmt.Errorf("cidx: read elias sample count: %w", err)
	}
	samples64 := make([]int64, nSamples)
	if err := binary.Read(r, binary.LittleEndian, samples64); err != nil {
		return nil, fmt.Errorf("cidx: read elias samples: %w", err)
	}
	idx := bitcode.Index{Samples: make([]int, nSamples)}
	for i, s := range samples64 {
		idx.Samples[i] = int(s)
	}
	var plen uint64
	if err := binary.Read(r, binary.LittleEndian, &plen); err != nil {
		return nil, fmt.Errorf("cidx: read elias payload length: %w", err)
	}
	packed := make([]byte, plen)
	if _, err := io.ReadFull(r, packed); err != nil {
		return nil, fmt.Errorf("cidx: read elias payload: %w", err)
	}

	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(bitcode.At(packed, idx, i, (*bitcode.Reader).ReadDelta))
	}
	return out, nil
}
