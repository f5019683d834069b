/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package util

import (
	"errors"
	"io/fs"
	"os"
)

const Megabyte = 1 << 20

// FileExists reports whether path names an existing regular file.
// Errors other than non-existence are treated as the file being present so that
// a transient permission problem does not evict a registry entry.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}

	return !info.IsDir()
}

// AtLeastMegabytes reports whether size is greater than or equal to mb megabytes.
func AtLeastMegabytes(size int64, mb int) bool {
	return size >= int64(mb)*Megabyte
}
