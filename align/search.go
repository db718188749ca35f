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

package align

import (
	"collinear.example/kidx/index"
	"collinear.example/kidx/kmer"
)

// Result is one query's search outcome. Unmapped is represented as
// Header == "*", Strand == '+', Position == 0, Presence == 0.
type Result struct {
	Header   string
	Strand   byte
	Position uint64
	Presence float64
}

func unmapped() Result { return Result{Header: "*", Strand: '+'} }

// CoordIndex is the capability shared by the static CSR, sharded, and
// dynamic index shapes: a posting lookup by k-mer key. Search is
// written against this interface so the same voting logic runs
// unmodified over whichever concrete shape the caller built.
type CoordIndex interface {
	Get(key uint32) []uint64
}

const interceptBits = kmer.RefPosBits
const interceptMask = uint64(1)<<interceptBits - 1

func packIntercept(refID, intercept uint64) uint64 { return refID<<interceptBits | intercept }
func unpackIntercept(v uint64) (refID, intercept uint64) {
	return v >> interceptBits, v & interceptMask
}

// Config bundles the parameters a search needs beyond the index and
// query itself.
type Config struct {
	K                int
	Sigma            uint32
	Enc              kmer.Encoder // nil defaults to kmer.EncodeDNA
	Bandwidth        uint64
	PresenceFraction float64
	FwdRev           bool // true if the index was built over both strands
}

func (c Config) encoder() kmer.Encoder {
	if c.Enc != nil {
		return c.Enc
	}
	return kmer.EncodeDNA
}

// Search runs the coordinate-index voting algorithm against seq,
// trying the reverse complement as a second pass when the index was
// built single-stranded. Reverse-complementing only makes sense for
// the DNA alphabet (sigma=4); raw-signal queries (sigma=16) always
// take the forward-only path regardless of cfg.FwdRev. hh is the
// caller's scratch heavy-hitter, reused across queries by the same
// worker.
func Search(idx CoordIndex, headers []string, seq []byte, cfg Config, hh *HeavyHitter) Result {
	if len(seq) <= 2*cfg.K {
		return unmapped()
	}
	enc := cfg.encoder()
	fwd := searchStrand(idx, headers, seq, cfg, enc, hh)
	fwd.Strand = '+'
	if cfg.FwdRev || cfg.Sigma != 4 {
		return fwd
	}
	rc := kmer.ReverseComplement(seq)
	rev := searchStrand(idx, headers, rc, cfg, enc, hh)
	rev.Strand = '-'
	if rev.Presence > fwd.Presence {
		return rev
	}
	return fwd
}

func searchStrand(idx CoordIndex, headers []string, seq []byte, cfg Config, enc kmer.Encoder, hh *HeavyHitter) Result {
	hh.Reset()
	keys := kmer.Window(seq, cfg.K, cfg.Sigma, enc)
	if len(keys) == 0 {
		return unmapped()
	}
	for j, key := range keys {
		for _, v := range idx.Get(key) {
			refID := kmer.RefID(v)
			refPos := kmer.RefPos(v)
			var diff uint64
			if refPos > uint64(j) {
				diff = refPos - uint64(j)
			}
			intercept := diff / cfg.Bandwidth
			hh.Insert(packIntercept(refID, intercept))
			if intercept >= cfg.Bandwidth {
				hh.Insert(packIntercept(refID, intercept-cfg.Bandwidth))
			}
		}
	}
	topKey, topCount, ok := hh.Top()
	if !ok {
		return unmapped()
	}
	presence := float64(topCount) / float64(len(keys))
	if presence < cfg.PresenceFraction {
		return unmapped()
	}
	refID, intercept := unpackIntercept(topKey)
	if refID >= uint64(len(headers)) {
		return unmapped()
	}
	return Result{Header: headers[refID], Position: intercept * cfg.Bandwidth, Presence: presence}
}

// SearchJaccard runs the fragment-id voting algorithm against the
// Jaccard index: postings are bare fragment-ids, and the winning
// fragment is resolved back to (reference, position) via idx.Resolve.
func SearchJaccard(idx *index.Jaccard, headers []string, seq []byte, cfg Config, hh *HeavyHitter) Result {
	if len(seq) <= 2*cfg.K {
		return unmapped()
	}
	hh.Reset()
	keys := kmer.Window(seq, cfg.K, cfg.Sigma, cfg.encoder())
	if len(keys) == 0 {
		return unmapped()
	}
	for _, key := range keys {
		for _, fragID := range idx.Get(key) {
			hh.Insert(uint64(fragID))
		}
	}
	topKey, topCount, ok := hh.Top()
	if !ok {
		return unmapped()
	}
	presence := float64(topCount) / float64(len(keys))
	if presence < cfg.PresenceFraction {
		return unmapped()
	}
	refIdx, pos := idx.Resolve(uint32(topKey))
	if refIdx < 0 || refIdx >= len(headers) {
		return unmapped()
	}
	return Result{Header: headers[refIdx], Strand: '+', Position: pos, Presence: presence}
}
