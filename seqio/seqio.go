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

// Package seqio defines the sequence-source interfaces that the
// indexer and query path read from. FASTA is implemented directly;
// FASTQ and raw-signal (squiggle) streams are named but left as
// external collaborators behind the same Reader interface.
package seqio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Record is one named sequence, either a reference or a query.
type Record struct {
	Name string
	Seq  []byte
}

// Reader yields Records one at a time until io.EOF.
type Reader interface {
	Next() (Record, error)
}

// FastaReader streams FASTA records from r, one sequence per '>'
// header line. Sequence lines are concatenated verbatim (no alphabet
// validation); callers pass the result through kmer.Window, which
// tolerates any byte value.
type FastaReader struct {
	s       *bufio.Scanner
	pending []byte // the '>' line that ended the previous record, if any
	done    bool
}

// NewFastaReader wraps r for FASTA streaming.
func NewFastaReader(r io.Reader) *FastaReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<24)
	return &FastaReader{s: s}
}

// Next returns the next record, or io.EOF once the stream is
// exhausted. It returns an error for a non-empty stream that does not
// begin with a '>' header.
func (f *FastaReader) Next() (Record, error) {
	if f.done {
		return Record{}, io.EOF
	}

	header := f.pending
	f.pending = nil
	if header == nil {
		for {
			if !f.s.Scan() {
				f.done = true
				if err := f.s.Err(); err != nil {
					return Record{}, fmt.Errorf("seqio: %w", err)
				}
				return Record{}, io.EOF
			}
			line := bytes.TrimSpace(f.s.Bytes())
			if len(line) == 0 {
				continue
			}
			header = append([]byte(nil), line...)
			break
		}
	}
	if header[0] != '>' {
		return Record{}, fmt.Errorf("seqio: expected FASTA header, got %q", header)
	}
	fields := bytes.Fields(header[1:])
	name := ""
	if len(fields) > 0 {
		name = string(fields[0])
	}

	var seq []byte
	for f.s.Scan() {
		line := bytes.TrimSpace(f.s.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			f.pending = append([]byte(nil), line...)
			return Record{Name: name, Seq: seq}, nil
		}
		seq = append(seq, line...)
	}
	f.done = true
	if err := f.s.Err(); err != nil {
		return Record{}, fmt.Errorf("seqio: %w", err)
	}
	return Record{Name: name, Seq: seq}, nil
}

// ReadAll drains r into a slice, for callers that need the whole
// corpus in memory (index build, small query batches).
func ReadAll(r Reader) ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
