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

import "collinear.example/kidx/parallel"

// DefaultBatchSize is the number of query sequences the front end
// reads before dispatching a parallel search pass.
const DefaultBatchSize = 4096

// Query is one sequence awaiting search, carrying its name through to
// the output line.
type Query struct {
	Name string
	Seq  []byte
}

// QueryResult pairs a Query with its search outcome.
type QueryResult struct {
	Name   string
	QryLen int
	Result Result
}

// RunBatch partitions queries across nworkers contiguous chunks, each
// chunk searched sequentially by its own HeavyHitter instance so no
// worker ever touches another's state, and returns results in input
// order.
func RunBatch(queries []Query, nworkers int, search func(hh *HeavyHitter, seq []byte) Result) []QueryResult {
	out := make([]QueryResult, len(queries))
	parallel.For(len(queries), nworkers, func(lo, hi int) {
		hh := NewHeavyHitter()
		for i := lo; i < hi; i++ {
			out[i] = QueryResult{
				Name:   queries[i].Name,
				QryLen: len(queries[i].Seq),
				Result: search(hh, queries[i].Seq),
			}
		}
	})
	return out
}
