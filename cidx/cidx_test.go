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
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"collinear.example/kidx/cqueue"
	"collinear.example/kidx/index"
	"collinear.example/kidx/kmer"
)

func sigmaSpace(k int) uint32 {
	n := uint32(1)
	for i := 0; i < k; i++ {
		n *= 4
	}
	return n
}

func buildTestCSR(k int, refs [][]byte) *index.CSR {
	kq := cqueue.New[uint32](64, nil)
	vq := cqueue.New[uint64](64, nil)
	for i, seq := range refs {
		index.EmitKmers(kq, vq, seq, uint64(i), k, 4, kmer.EncodeDNA)
	}
	return index.BuildCSR(kq, vq, sigmaSpace(k), 1<<20, 1, nil)
}

func sameCSR(t *testing.T, a, b *index.CSR) {
	t.Helper()
	if a.NKeys != b.NKeys || a.MaxOcc != b.MaxOcc {
		t.Fatalf("CSR headers differ: (%d,%d) vs (%d,%d)", a.NKeys, a.MaxOcc, b.NKeys, b.MaxOcc)
	}
	if !equalU64(a.ValueOffsets, b.ValueOffsets) {
		t.Fatalf("CSR ValueOffsets differ")
	}
	if !equalU64(a.Values, b.Values) {
		t.Fatalf("CSR Values differ")
	}
}

func equalU64(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCSRDumpLoadRoundTripUncompressed(t *testing.T) {
	refs := [][]byte{[]byte("ACGTACGTACGTACGT"), []byte("GGGGCCCCAAAATTTT")}
	idx := buildTestCSR(6, refs)
	headers := []string{"ref0", "ref1"}
	cfg := Config{K: 6, Sigma: 4, Bandwidth: 16, NShardBits: 0, PresenceFraction: 0.5}

	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpCSR(path, cfg, headers, idx); err != nil {
		t.Fatalf("DumpCSR: %v", err)
	}
	got, gotHeaders, gotCfg, err := LoadCSR(path, Config{K: 6, Sigma: 4})
	if err != nil {
		t.Fatalf("LoadCSR: %v", err)
	}
	if len(gotHeaders) != 2 || gotHeaders[0] != "ref0" || gotHeaders[1] != "ref1" {
		t.Fatalf("LoadCSR headers = %v, want [ref0 ref1]", gotHeaders)
	}
	if gotCfg.K != 6 || gotCfg.Sigma != 4 {
		t.Fatalf("LoadCSR cfg = %+v", gotCfg)
	}
	sameCSR(t, idx, got)
}

func TestCSRDumpLoadRoundTripCompressed(t *testing.T) {
	refs := [][]byte{[]byte("ACGTACGTACGTACGTACGTACGTACGTACGT")}
	idx := buildTestCSR(5, refs)
	headers := []string{"ref0"}
	cfg := Config{K: 5, Sigma: 4, Bandwidth: 16, PresenceFraction: 0.5, Compressed: true}

	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpCSR(path, cfg, headers, idx); err != nil {
		t.Fatalf("DumpCSR: %v", err)
	}
	got, _, gotCfg, err := LoadCSR(path, Config{K: 5, Sigma: 4})
	if err != nil {
		t.Fatalf("LoadCSR: %v", err)
	}
	if !gotCfg.Compressed {
		t.Fatal("LoadCSR: Compressed flag lost across round trip")
	}
	sameCSR(t, idx, got)
}

func TestLoadCSRRejectsConfigMismatch(t *testing.T) {
	idx := buildTestCSR(4, [][]byte{[]byte("ACGTACGTACGT")})
	cfg := Config{K: 4, Sigma: 4, Bandwidth: 8, PresenceFraction: 0.5}
	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpCSR(path, cfg, []string{"r0"}, idx); err != nil {
		t.Fatalf("DumpCSR: %v", err)
	}
	if _, _, _, err := LoadCSR(path, Config{K: 5}); err == nil {
		t.Fatal("LoadCSR: expected k mismatch error, got nil")
	}
}

func TestLoadCSRRejectsCorruptChecksum(t *testing.T) {
	idx := buildTestCSR(4, [][]byte{[]byte("ACGTACGTACGT")})
	cfg := Config{K: 4, Sigma: 4, Bandwidth: 8, PresenceFraction: 0.5}
	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpCSR(path, cfg, []string{"r0"}, idx); err != nil {
		t.Fatalf("DumpCSR: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw file: %v", err)
	}
	data[0] ^= 0xff // corrupt a byte inside the checksummed body
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}
	if _, _, _, err := LoadCSR(path, Config{}); err == nil {
		t.Fatal("LoadCSR: expected checksum error on corrupted file, got nil")
	}
}

func TestShardedDumpLoadRoundTrip(t *testing.T) {
	refs := [][]byte{[]byte("ACGTACGTACGTACGTACGT"), []byte("TTTTGGGGCCCCAAAATTTT")}
	kq := cqueue.New[uint32](64, nil)
	vq := cqueue.New[uint64](64, nil)
	for i, seq := range refs {
		index.EmitKmers(kq, vq, seq, uint64(i), 5, 4, kmer.EncodeDNA)
	}
	sharded := index.BuildSharded(kq, vq, 3, 1<<20, 1, nil)
	headers := []string{"ref0", "ref1"}
	cfg := Config{K: 5, Sigma: 4, NShardBits: 3, Bandwidth: 16, PresenceFraction: 0.5}

	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpSharded(path, cfg, headers, sharded); err != nil {
		t.Fatalf("DumpSharded: %v", err)
	}
	got, gotHeaders, _, err := LoadSharded(path, Config{K: 5, Sigma: 4})
	if err != nil {
		t.Fatalf("LoadSharded: %v", err)
	}
	if len(gotHeaders) != 2 {
		t.Fatalf("headers = %v", gotHeaders)
	}
	keys := kmer.Window(refs[0], 5, 4, kmer.EncodeDNA)
	for _, key := range keys {
		want := append([]uint64(nil), sharded.Get(key)...)
		gotPostings := append([]uint64(nil), got.Get(key)...)
		if len(want) != len(gotPostings) {
			t.Fatalf("key %d: want %d postings, got %d", key, len(want), len(gotPostings))
		}
	}
}

func TestJaccardDumpLoadRoundTripBothCompressionModes(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGT")
		kq := cqueue.New[uint32](64, nil)
		vq := cqueue.New[uint32](64, nil)
		fragOffsets := index.EmitFragments(kq, vq, nil, seq, 6, 4, kmer.EncodeDNA, 6, 2)
		jac := index.BuildJaccard(kq, vq, sigmaSpace(6), fragOffsets, 6, 2, 1<<20, 1, nil)
		headers := []string{"ref0"}
		cfg := Config{K: 6, Sigma: 4, Bandwidth: 16, PresenceFraction: 0.5, Jaccard: true, Compressed: compressed}

		path := filepath.Join(t.TempDir(), "test.cidx")
		if err := DumpJaccard(path, cfg, headers, jac); err != nil {
			t.Fatalf("compressed=%v: DumpJaccard: %v", compressed, err)
		}
		got, _, gotCfg, err := LoadJaccard(path, Config{K: 6, Sigma: 4, Jaccard: true})
		if err != nil {
			t.Fatalf("compressed=%v: LoadJaccard: %v", compressed, err)
		}
		if gotCfg.Compressed != compressed {
			t.Fatalf("compressed=%v: round-tripped Compressed flag = %v", compressed, gotCfg.Compressed)
		}
		if !equalU32(got.Values, jac.Values) {
			t.Fatalf("compressed=%v: Jaccard.Values mismatch: got %v want %v", compressed, got.Values, jac.Values)
		}
		if !equalU64(got.ValueOffsets, jac.ValueOffsets) {
			t.Fatalf("compressed=%v: Jaccard.ValueOffsets mismatch", compressed)
		}
	}
}

func equalU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHeadersWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []string{"alpha", "", "a-much-longer-reference-name-than-the-others"}
	if err := writeHeaders(&buf, want); err != nil {
		t.Fatalf("writeHeaders: %v", err)
	}
	got, err := readHeaders(&buf)
	if err != nil {
		t.Fatalf("readHeaders: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("readHeaders: %d headers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("header %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Config{
		K: 12, Sigma: 4, Bandwidth: 64, FragLen: 100, FragOvlpLen: 20,
		NShardBits: 4, PresenceFraction: 0.75, Jaccard: true, FwdRev: true,
		Compressed: true, Dynamic: false, SortBlockSize: 1 << 20,
	}
	if err := writeConfig(&buf, want); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	got, err := readConfig(&buf)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if got != want {
		t.Fatalf("readConfig = %+v, want %+v", got, want)
	}
}

func TestCheckCompatibleIgnoresZeroFields(t *testing.T) {
	got := Config{K: 8, Sigma: 4, Jaccard: false, Dynamic: false}
	if err := CheckCompatible(got, Config{}); err != nil {
		t.Fatalf("CheckCompatible with all-zero want: %v", err)
	}
	if err := CheckCompatible(got, Config{K: 8}); err != nil {
		t.Fatalf("CheckCompatible matching K: %v", err)
	}
	if err := CheckCompatible(got, Config{K: 9}); err == nil {
		t.Fatal("CheckCompatible: expected K mismatch error")
	}
	if err := CheckCompatible(got, Config{Jaccard: true}); err == nil {
		t.Fatal("CheckCompatible: expected Jaccard mismatch error")
	}
}

func TestDumpValuesLoadValuesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	values := make([]uint64, 1000)
	for i := range values {
		values[i] = uint64(rng.Int63())
	}
	for _, compressed := range []bool{false, true} {
		var buf bytes.Buffer
		if err := dumpValues(&buf, values, compressed); err != nil {
			t.Fatalf("compressed=%v: dumpValues: %v", compressed, err)
		}
		got, err := loadValues[uint64](&buf, len(values), compressed)
		if err != nil {
			t.Fatalf("compressed=%v: loadValues: %v", compressed, err)
		}
		if !equalU64(got, values) {
			t.Fatalf("compressed=%v: round trip mismatch", compressed)
		}
	}
}

func TestDumpDynamicLoadsAsSharded(t *testing.T) {
	d := index.NewDynamic(2)
	d.Add("r0", []byte("ACGTACGTACGTACGT"), 5, 4, kmer.EncodeDNA)
	d.Merge(nil)
	cfg := Config{K: 5, Sigma: 4, NShardBits: 2, Bandwidth: 16, PresenceFraction: 0.5}

	path := filepath.Join(t.TempDir(), "test.cidx")
	if err := DumpDynamic(path, cfg, d); err != nil {
		t.Fatalf("DumpDynamic: %v", err)
	}
	got, headers, gotCfg, err := LoadSharded(path, Config{K: 5, Sigma: 4, Dynamic: true})
	if err != nil {
		t.Fatalf("LoadSharded(dynamic dump): %v", err)
	}
	if !gotCfg.Dynamic {
		t.Fatal("LoadSharded: Dynamic flag lost across round trip")
	}
	if len(headers) != 1 || headers[0] != "r0" {
		t.Fatalf("headers = %v, want [r0]", headers)
	}
	keys := kmer.Window([]byte("ACGTACGTACGTACGT"), 5, 4, kmer.EncodeDNA)
	for _, key := range keys {
		if len(got.Get(key)) == 0 {
			t.Fatalf("key %d missing after DumpDynamic/LoadSharded round trip", key)
		}
	}
}

func TestDumpValuesEliasRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	values := make([]uint32, 2*128+5) // spans multiple Elias sample boundaries
	for i := range values {
		values[i] = uint32(rng.Intn(1 << 20))
	}
	var buf bytes.Buffer
	if err := dumpValuesElias(&buf, values); err != nil {
		t.Fatalf("dumpValuesElias: %v", err)
	}
	got, err := loadValuesElias(&buf, len(values))
	if err != nil {
		t.Fatalf("loadValuesElias: %v", err)
	}
	if !equalU32(got, values) {
		t.Fatalf("loadValuesElias round trip mismatch")
	}
}
