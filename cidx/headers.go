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
)

func writeHeaders(w io.Writer, headers []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headers))); err != nil {
		return fmt.Errorf("cidx: write header count: %w", err)
	}
	lens := make([]uint16, len(headers))
	for i, h := range headers {
		if len(h) > 0xffff {
			panic("cidx: header name exceeds 65535 bytes")
		}
		lens[i] = uint16(len(h))
	}
	if len(lens) > 0 {
		if err := binary.Write(w, binary.LittleEndian, lens); err != nil {
			return fmt.Errorf("cidx: write header lengths: %w", err)
		}
	}
	for _, h := range headers {
		if _, err := io.WriteString(w, h); err != nil {
			return fmt.Errorf("cidx: write header bytes: %w", err)
		}
	}
	return nil
}

func readHeaders(r io.Reader) ([]string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("cidx: read header count: %w", err)
	}
	lens := make([]uint16, n)
	if n > 0 {
		if err := binary.Read(r, binary.LittleEndian, lens); err != nil {
			return nil, fmt.Errorf("cidx: read header lengths: %w", err)
		}
	}
	headers := make([]string, n)
	for i, l := range lens {
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("cidx: read header bytes: %w", err)
		}
		headers[i] = string(buf)
	}
	return headers, nil
}
