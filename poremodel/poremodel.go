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

// Package poremodel loads a raw-signal pore model: a table mapping
// every sigma=4 DNA k-mer to its expected normalized current level,
// used to translate a reference or query sequence into a synthetic
// signal trace before it is re-encoded at sigma=16 for raw-signal
// indexing.
package poremodel

import (
	"fmt"
	"math"
	"os"

	"sigs.k8s.io/yaml"

	"collinear.example/kidx/kmer"
)

// Model is a pore model's k-mer -> normalized-level table, keyed by
// the sigma=4 packed k-mer integer.
type Model struct {
	K      int
	Levels []float64
}

// file is the YAML document shape: a flat map of k-mer string to its
// mean current level, the same two columns as the original's
// tab-separated pore-model file.
type file struct {
	Kmers map[string]float64 `json:"kmers"`
}

// Load reads a YAML pore-model file, z-score normalizes its levels
// the way the original's ref-loading path does, and returns a table
// indexed by the sigma=4 packed k-mer integer. It errors unless every
// k-mer of the inferred width k is present exactly once.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("poremodel: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("poremodel: parse %s: %w", path, err)
	}
	if len(f.Kmers) == 0 {
		return nil, fmt.Errorf("poremodel: %s: no k-mers", path)
	}

	k := 0
	for s := range f.Kmers {
		k = len(s)
		break
	}
	expected := 1 << uint(2*k)
	if len(f.Kmers) != expected {
		return nil, fmt.Errorf("poremodel: %s: expected %d k-mers of width %d, got %d", path, expected, k, len(f.Kmers))
	}

	levels := make([]float64, expected)
	seen := make([]bool, expected)
	for s, level := range f.Kmers {
		if len(s) != k {
			return nil, fmt.Errorf("poremodel: %s: k-mer %q has inconsistent width", path, s)
		}
		key := packDNA(s)
		if seen[key] {
			return nil, fmt.Errorf("poremodel: %s: duplicate k-mer %q", path, s)
		}
		seen[key] = true
		levels[key] = level
	}

	normalize(levels)
	return &Model{K: k, Levels: levels}, nil
}

func packDNA(s string) uint32 {
	var key uint32
	for i := 0; i < len(s); i++ {
		key = key<<2 | kmer.EncodeDNA(s[i])
	}
	return key
}

func normalize(levels []float64) {
	n := float64(len(levels))
	var sum float64
	for _, v := range levels {
		sum += v
	}
	mean := sum / n

	var sqSum float64
	for _, v := range levels {
		d := v - mean
		sqSum += d * d
	}
	stdev := math.Sqrt(sqSum / n)
	if stdev == 0 {
		return
	}
	for i, v := range levels {
		levels[i] = (v - mean) / stdev
	}
}

// Squiggle maps seq (sigma=4 DNA) through the model, producing one
// normalized level per k-mer window, mirroring the original's
// sequence2squiggles.
func (m *Model) Squiggle(seq []byte) []float64 {
	keys := kmer.Window(seq, m.K, 4, kmer.EncodeDNA)
	out := make([]float64, len(keys))
	for i, key := range keys {
		out[i] = m.Levels[key]
	}
	return out
}
