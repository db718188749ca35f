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

package poremodel

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeModelFile writes a YAML pore model covering every k=2 DNA
// k-mer (16 entries), with distinct levels so normalization is
// exercised non-trivially.
func writeModelFile(t *testing.T) string {
	t.Helper()
	const doc = `
kmers:
  AA: 10
  AC: 20
  AG: 30
  AT: 40
  CA: 50
  CC: 60
  CG: 70
  CT: 80
  GA: 90
  GC: 100
  GG: 110
  GT: 120
  TA: 130
  TC: 140
  TG: 150
  TT: 160
`
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return path
}

func TestLoadNormalizesToZeroMeanUnitVariance(t *testing.T) {
	m, err := Load(writeModelFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.K != 2 {
		t.Fatalf("K = %d, want 2", m.K)
	}
	if len(m.Levels) != 16 {
		t.Fatalf("len(Levels) = %d, want 16", len(m.Levels))
	}

	var sum, sqSum float64
	for _, v := range m.Levels {
		sum += v
	}
	mean := sum / float64(len(m.Levels))
	for _, v := range m.Levels {
		d := v - mean
		sqSum += d * d
	}
	stdev := math.Sqrt(sqSum / float64(len(m.Levels)))

	if math.Abs(mean) > 1e-9 {
		t.Fatalf("normalized mean = %v, want ~0", mean)
	}
	if math.Abs(stdev-1) > 1e-9 {
		t.Fatalf("normalized stdev = %v, want ~1", stdev)
	}
}

func TestLoadRejectsIncompleteKmerSpace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incomplete.yaml")
	// only 3 of the 16 required k=2 entries
	doc := "kmers:\n  AA: 1\n  AC: 2\n  AG: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for incomplete k-mer space, got nil")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load: expected error for missing file, got nil")
	}
}

func TestSquiggleLooksUpEveryWindow(t *testing.T) {
	m, err := Load(writeModelFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	seq := []byte("AACGTT") // 5 overlapping 2-mers: AA, AC, CG, GT, TT
	got := m.Squiggle(seq)
	if len(got) != len(seq)-m.K+1 {
		t.Fatalf("Squiggle len = %d, want %d", len(got), len(seq)-m.K+1)
	}
	// the level at the first window must equal the table entry for "AA"
	want := m.Levels[packDNA("AA")]
	if got[0] != want {
		t.Fatalf("Squiggle[0] = %v, want %v (level of AA)", got[0], want)
	}
}

func TestSquiggleShorterThanKReturnsEmpty(t *testing.T) {
	m, err := Load(writeModelFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Squiggle([]byte("A")); len(got) != 0 {
		t.Fatalf("Squiggle of sequence shorter than K = %v, want empty", got)
	}
}
