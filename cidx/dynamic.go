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

import "collinear.example/kidx/index"

// DumpDynamic persists a merged dynamic index using the sharded
// layout: the dynamic flag in cfg records which builder produced the
// file, but the bytes on disk are indistinguishable from a static
// Sharded dump, and LoadSharded can read either back.
func DumpDynamic(path string, cfg Config, d *index.Dynamic) error {
	cfg.Dynamic = true
	return DumpSharded(path, cfg, d.Headers, d.ToSharded())
}
