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

// Command kidx builds and queries the k-mer collinear-chain index:
// given --ref alone it builds and writes a .cidx; given
// --idx/--qry/--out it loads that index and streams queries; given
// --ref/--qry/--out it builds and queries in one "both" run. Query
// runs produce a tab-separated hit table.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"collinear.example/kidx/align"
	"collinear.example/kidx/cidx"
	"collinear.example/kidx/cqueue"
	"collinear.example/kidx/index"
	"collinear.example/kidx/kmer"
	"collinear.example/kidx/poremodel"
	"collinear.example/kidx/seqio"
)

const (
	kibi = 1024
	mebi = 1024 * kibi
	gibi = 1024 * mebi
)

var (
	refPath       string
	idxPath       string
	qryPath       string
	outPath       string
	poremodelPath string

	dashK                int
	presenceFraction     float64
	bandwidth            int
	fwdRev               bool
	jaccard              bool
	compressed           bool
	dynamic              bool
	jcFragLen            int
	jcFragOvlpLen        int
	sortBlkszStr         string
	numShardBits         int
	nThreads             int
	verbose              bool
)

func init() {
	flag.StringVar(&refPath, "ref", "", "reference FASTA path")
	flag.StringVar(&idxPath, "idx", "", ".cidx path to load (query phase) or write (index phase, defaults to <ref>.cidx)")
	flag.StringVar(&qryPath, "qry", "", "query FASTA path")
	flag.StringVar(&outPath, "out", "", "TSV output path (query/both phase)")
	flag.StringVar(&poremodelPath, "poremodel", "", "YAML pore-model path, enables raw-signal (sigma=16) mode")

	flag.IntVar(&dashK, "k", 0, "k-mer length (default 15 for DNA, 8 for raw-signal)")
	flag.Float64Var(&presenceFraction, "pf", 0.1, "minimum vote fraction to report a mapped query")
	flag.IntVar(&bandwidth, "bw", 15, "intercept bucket width")
	flag.BoolVar(&fwdRev, "fr", false, "index both strands instead of searching forward and reverse-complement")
	flag.BoolVar(&jaccard, "jaccard", false, "build the fragment-based Jaccard index instead of coordinate postings")
	flag.BoolVar(&compressed, "compressed", false, "compress the .cidx posting arrays (zstd; Elias-delta codes for --jaccard)")
	flag.BoolVar(&dynamic, "dynamic", false, "build via the insert-then-merge dynamic index")
	flag.IntVar(&jcFragLen, "jc-frag-len", 180, "Jaccard fragment length in k-mers")
	flag.IntVar(&jcFragOvlpLen, "jc-frag-ovlp-len", 120, "Jaccard fragment overlap length in k-mers")
	flag.StringVar(&sortBlkszStr, "sort-blksz", "", "sort-merge scratch size (SIZE: digits + optional K/M/G)")
	flag.IntVar(&numShardBits, "num-shard-bits", 10, "log2 of the number of index shards")
	flag.IntVar(&nThreads, "n_threads", 0, "worker count (default: hardware threads, or PARLAY_NUM_THREADS)")
	flag.BoolVar(&verbose, "v", false, "log build diagnostics to stderr")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	phase, err := derivePhase()
	if err != nil {
		flag.Usage()
		exitf("kidx: %v", err)
	}

	nworkers := resolveWorkers()
	logf := func(string, ...any) {}
	if verbose {
		logf = func(f string, args ...any) { fmt.Fprintf(os.Stderr, "kidx: "+f+"\n", args...) }
	}

	k, sigma, enc, pm := resolveEncoding(logf)

	switch phase {
	case phaseIndex:
		runIndex(k, sigma, enc, pm, nworkers, logf)
	case phaseQuery:
		runQueryFromDisk(k, sigma, enc, pm, nworkers)
	case phaseBoth:
		runBoth(k, sigma, enc, pm, nworkers, logf)
	}
}

type phase int

const (
	phaseIndex phase = iota
	phaseQuery
	phaseBoth
)

func derivePhase() (phase, error) {
	switch {
	case refPath != "" && qryPath != "" && outPath != "":
		return phaseBoth, nil
	case idxPath != "" && qryPath != "" && outPath != "":
		return phaseQuery, nil
	case refPath != "" && qryPath == "" && outPath == "":
		return phaseIndex, nil
	default:
		return 0, fmt.Errorf("invalid flag combination: need --ref alone (index), --idx+--qry+--out (query), or --ref+--qry+--out (both)")
	}
}

func resolveWorkers() int {
	if nThreads > 0 {
		return nThreads
	}
	if s := os.Getenv("PARLAY_NUM_THREADS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// resolveEncoding applies the raw-signal vs. DNA phase-derived k/sigma
// clamping rule: raw mode (poremodel given) uses sigma=16, k in
// [1,10] default 8; DNA mode uses sigma=4, k in [1,16] default 15.
func resolveEncoding(logf func(string, ...any)) (k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model) {
	if poremodelPath != "" {
		var err error
		pm, err = poremodel.Load(poremodelPath)
		if err != nil {
			exitf("kidx: %v", err)
		}
		if dashK < 1 || dashK > 10 {
			dashK = 8
		}
		return dashK, 16, kmer.EncodeRaw, pm
	}
	if dashK < 1 || dashK > kmer.MaxK {
		dashK = 15
	}
	return dashK, 4, kmer.EncodeDNA, nil
}

func parseSortBlksz(blockSize int) int {
	if sortBlkszStr == "" {
		return 4 * 1024 * 1024
	}
	n, err := parseSize(sortBlkszStr)
	if err != nil {
		exitf("kidx: --sort-blksz: %v", err)
	}
	if n < blockSize {
		n = blockSize
	}
	return n
}

// parseSize parses the SIZE syntax: decimal digits optionally followed
// by a case-insensitive K/M/G binary-unit suffix; no suffix is bytes.
func parseSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := 1
	last := s[len(s)-1]
	switch last {
	case 'k', 'K':
		mult, s = kibi, s[:len(s)-1]
	case 'm', 'M':
		mult, s = mebi, s[:len(s)-1]
	case 'g', 'G':
		mult, s = gibi, s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

func config(k int, sigma uint32) cidx.Config {
	return cidx.Config{
		K: uint32(k), Sigma: sigma, Bandwidth: uint32(bandwidth),
		FragLen: uint32(jcFragLen), FragOvlpLen: uint32(jcFragOvlpLen),
		NShardBits: uint32(numShardBits), PresenceFraction: float32(presenceFraction),
		Jaccard: jaccard, FwdRev: fwdRev, Compressed: compressed, Dynamic: dynamic,
		SortBlockSize: uint64(parseSortBlksz(cqueue.DefaultBlockSize)),
	}
}

func searchConfig(k int, sigma uint32, enc kmer.Encoder) align.Config {
	return align.Config{
		K: k, Sigma: sigma, Enc: enc, Bandwidth: uint64(bandwidth),
		PresenceFraction: presenceFraction, FwdRev: fwdRev,
	}
}

func readRecords(path string) []seqio.Record {
	f, err := os.Open(path)
	if err != nil {
		exitf("kidx: %v", err)
	}
	defer f.Close()
	recs, err := seqio.ReadAll(seqio.NewFastaReader(f))
	if err != nil {
		exitf("kidx: %v", err)
	}
	return recs
}

// maybeSquiggle re-encodes a DNA reference/query through the pore
// model into a quantized synthetic signal, when raw-signal mode is
// active; otherwise it returns seq unchanged.
func maybeSquiggle(seq []byte, pm *poremodel.Model) []byte {
	if pm == nil {
		return seq
	}
	levels := pm.Squiggle(seq)
	out := make([]byte, len(levels))
	for i, lv := range levels {
		out[i] = quantizeLevel(lv)
	}
	return out
}

// quantizeLevel buckets a normalized pore-model level into one of 16
// bins via the fixed 15-edge table used throughout the raw-signal
// path, matching the original's bin_edges-based quantizer.
func quantizeLevel(level float64) byte {
	edges := [15]float64{-1.605, -1.23, -0.995, -0.745, -0.576, -0.408, -0.188,
		0.068, 0.277, 0.471, 0.637, 0.796, 0.946, 1.133, 1.4}
	for i, e := range edges {
		if level < e {
			return byte(i)
		}
	}
	return byte(len(edges))
}

func runIndex(k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model, nworkers int, logf func(string, ...any)) {
	if refPath == "" {
		exitf("kidx: --ref is required")
	}
	path := idxPath
	if path == "" {
		path = refPath + ".cidx"
	}
	cfg := config(k, sigma)
	headers, coord, dyn, jac := buildIndex(refPath, k, sigma, enc, pm, nworkers, logf)
	if err := dumpIndex(path, cfg, headers, coord, dyn, jac); err != nil {
		exitf("kidx: %v", err)
	}
}

func runQueryFromDisk(k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model, nworkers int) {
	cfg := config(k, sigma)
	var ci align.CoordIndex
	var jac *index.Jaccard
	var headers []string
	var err error
	switch {
	case jaccard:
		jac, headers, _, err = cidx.LoadJaccard(idxPath, cfg)
	case dynamic:
		var sh *index.Sharded
		sh, headers, _, err = cidx.LoadSharded(idxPath, cfg)
		ci = sh
	default:
		var c *index.CSR
		c, headers, _, err = cidx.LoadCSR(idxPath, cfg)
		ci = c
	}
	if err != nil {
		exitf("kidx: %v", err)
	}
	runQueries(k, sigma, enc, pm, ci, jac, headers, nworkers)
}

func runBoth(k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model, nworkers int, logf func(string, ...any)) {
	headers, coord, dyn, jac := buildIndex(refPath, k, sigma, enc, pm, nworkers, logf)
	var ci align.CoordIndex
	switch {
	case coord != nil:
		ci = coord
	case dyn != nil:
		ci = dyn
	}
	runQueries(k, sigma, enc, pm, ci, jac, headers, nworkers)
}

func buildIndex(path string, k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model, nworkers int, logf func(string, ...any)) (headers []string, coord *index.CSR, dyn *index.Dynamic, jac *index.Jaccard) {
	recs := readRecords(path)
	nKeys := uint32(1) << uint(2*k)
	if sigma != 4 {
		nKeys = uint32(pow(int(sigma), k))
	}
	blockSize := cqueue.DefaultBlockSize
	m := parseSortBlksz(blockSize)

	// Reverse-complementing is a DNA-alphabet operation; raw-signal
	// builds (sigma != 4) always index forward-only, matching
	// align.Search's symmetric choice to skip the reverse-complement
	// pass whenever sigma != 4.
	doubleStrand := fwdRev && sigma == 4
	if doubleStrand && 2*uint64(len(recs)) >= kmer.MaxRefID {
		exitf("kidx: --fr: 2*n_refs (%d) exceeds the 20-bit ref_id space", 2*len(recs))
	}

	if dynamic {
		dyn = index.NewDynamic(numShardBits)
		for _, r := range recs {
			seq := maybeSquiggle(r.Seq, pm)
			if doubleStrand {
				dyn.Add(r.Name+"+", seq, k, sigma, enc)
				dyn.Add(r.Name+"-", kmer.ReverseComplement(seq), k, sigma, enc)
			} else {
				dyn.Add(r.Name, seq, k, sigma, enc)
			}
		}
		dyn.Merge(logf)
		return dyn.Headers, nil, dyn, nil
	}

	kq := cqueue.New[uint32](blockSize, nil)
	vq := cqueue.New[uint64](blockSize, nil)
	var jkq *cqueue.Queue[uint32]
	var jvq *cqueue.Queue[uint32]
	var fragOffsets []uint32
	if jaccard {
		jkq = cqueue.New[uint32](blockSize, nil)
		jvq = cqueue.New[uint32](blockSize, nil)
	}

	emit := func(name string, seq []byte) {
		refID := uint64(len(headers))
		headers = append(headers, name)
		if jaccard {
			fragOffsets = index.EmitFragments(jkq, jvq, fragOffsets, seq, k, sigma, enc, jcFragLen, jcFragOvlpLen)
		} else {
			index.EmitKmers(kq, vq, seq, refID, k, sigma, enc)
		}
	}

	for _, r := range recs {
		seq := maybeSquiggle(r.Seq, pm)
		if doubleStrand {
			emit(r.Name+"+", seq)
			emit(r.Name+"-", kmer.ReverseComplement(seq))
		} else {
			emit(r.Name, seq)
		}
	}

	if jaccard {
		jac = index.BuildJaccard(jkq, jvq, nKeys, fragOffsets, jcFragLen, jcFragOvlpLen, m, nworkers, logf)
	} else {
		coord = index.BuildCSR(kq, vq, nKeys, m, nworkers, logf)
	}
	return headers, coord, dyn, jac
}

func pow(base, exp int) int {
	r := 1
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

func dumpIndex(path string, cfg cidx.Config, headers []string, coord *index.CSR, dyn *index.Dynamic, jac *index.Jaccard) error {
	switch {
	case jac != nil:
		return cidx.DumpJaccard(path, cfg, headers, jac)
	case dyn != nil:
		return cidx.DumpDynamic(path, cfg, dyn)
	default:
		return cidx.DumpCSR(path, cfg, headers, coord)
	}
}

func runQueries(k int, sigma uint32, enc kmer.Encoder, pm *poremodel.Model, ci align.CoordIndex, jac *index.Jaccard, headers []string, nworkers int) {
	qf, err := os.Open(qryPath)
	if err != nil {
		exitf("kidx: %v", err)
	}
	defer qf.Close()
	queries, err := seqio.ReadAll(seqio.NewFastaReader(qf))
	if err != nil {
		exitf("kidx: %v", err)
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		exitf("kidx: %v", err)
	}
	defer outFile.Close()
	w := bufio.NewWriter(outFile)
	defer w.Flush()

	cfg := searchConfig(k, sigma, enc)
	aqs := make([]align.Query, len(queries))
	for i, r := range queries {
		aqs[i] = align.Query{Name: r.Name, Seq: maybeSquiggle(r.Seq, pm)}
	}

	var results []align.QueryResult
	for lo := 0; lo < len(aqs); lo += align.DefaultBatchSize {
		hi := lo + align.DefaultBatchSize
		if hi > len(aqs) {
			hi = len(aqs)
		}
		batch := align.RunBatch(aqs[lo:hi], nworkers, func(hh *align.HeavyHitter, seq []byte) align.Result {
			if jac != nil {
				return align.SearchJaccard(jac, headers, seq, cfg, hh)
			}
			return align.Search(ci, headers, seq, cfg, hh)
		})
		results = append(results, batch...)
	}

	for _, qr := range results {
		r := qr.Result
		strand := r.Strand
		if strand == 0 {
			strand = '+'
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%c\t%d\t%g\n", qr.Name, qr.QryLen, r.Header, strand, r.Position, r.Presence)
	}
}
