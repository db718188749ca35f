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

// Package align implements the per-query voting search: a heavy-hitter
// frequency counter fed by posting lookups, the banded intercept
// projection and its double-vote rule, and batch dispatch across
// workers.
package align

import "golang.org/x/exp/maps"

// HeavyHitter tracks per-key counts and the current maximum without
// sorting, so a worker's winning bin can be read off in O(1) after a
// query's postings have all been inserted. Workers never share a
// HeavyHitter -- each holds its own, reset between queries.
type HeavyHitter struct {
	counts   map[uint64]uint32
	topKey   uint64
	topCount uint32
	hasTop   bool
}

// NewHeavyHitter returns an empty counter.
func NewHeavyHitter() *HeavyHitter {
	return &HeavyHitter{counts: make(map[uint64]uint32)}
}

// Reset clears the counter for a fresh query.
func (h *HeavyHitter) Reset() {
	maps.Clear(h.counts)
	h.topCount = 0
	h.hasTop = false
}

// Insert increments key's count and updates the top if it is now
// strictly the largest.
func (h *HeavyHitter) Insert(key uint64) {
	c := h.counts[key] + 1
	h.counts[key] = c
	if !h.hasTop || c > h.topCount {
		h.topKey, h.topCount, h.hasTop = key, c, true
	}
}

// Top returns the current leading key and its count; ok is false if
// nothing has been inserted since the last Reset.
func (h *HeavyHitter) Top() (key uint64, count uint32, ok bool) {
	return h.topKey, h.topCount, h.hasTop
}
