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
	"bufio"
	"bytes"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// atomicWrite calls fn with a buffered writer over a sibling temp
// file, appends a blake2b-256 checksum over everything fn wrote, syncs,
// and renames the temp file into place. A failure at any step leaves
// path untouched.
func atomicWrite(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	f, createErr := os.Create(tmp)
	if createErr != nil {
		return fmt.Errorf("cidx: create temp file: %w", createErr)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	var h hash.Hash
	h, err = blake2b.New256(nil)
	if err != nil {
		f.Close()
		return fmt.Errorf("cidx: init checksum: %w", err)
	}
	bw := bufio.NewWriter(io.MultiWriter(f, h))

	if err = fn(bw); err != nil {
		f.Close()
		return err
	}
	if err = bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("cidx: flush temp file: %w", err)
	}
	if _, err = f.Write(h.Sum(nil)); err != nil {
		f.Close()
		return fmt.Errorf("cidx: write checksum: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("cidx: fsync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("cidx: close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cidx: rename temp file into place: %w", err)
	}
	return nil
}

// readFile maps path into memory, verifies its trailing blake2b-256
// checksum, and hands the checksum-stripped body to fn.
func readFile(path string, fn func(r io.Reader) error) error {
	data, closer, err := mapFile(path)
	if err != nil {
		return fmt.Errorf("cidx: open %s: %w", path, err)
	}
	defer closer()

	if len(data) < blake2b.Size256 {
		return fmt.Errorf("cidx: %s: truncated file", path)
	}
	body, sum := data[:len(data)-blake2b.Size256], data[len(data)-blake2b.Size256:]
	h, err := blake2b.New256(nil)
	if err != nil {
		return fmt.Errorf("cidx: init checksum: %w", err)
	}
	h.Write(body)
	if !bytes.Equal(h.Sum(nil), sum) {
		return fmt.Errorf("cidx: %s: checksum mismatch (corrupt or truncated)", path)
	}
	return fn(bytes.NewReader(body))
}
