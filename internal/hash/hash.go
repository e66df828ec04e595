/*
Copyright © 2026 the Downscale authors.
This file is part of Downscale.

Downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash creates identity keys for cacheable objects.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
)

// Hash returns a hash key for the specified object. If the object
// implements fmt.Stringer, its String method is used as the key directly.
func Hash(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return s.String()
	}
	h := fnv.New128a()
	e := gob.NewEncoder(h)
	if err := e.Encode(object); err != nil {
		panic(fmt.Errorf("hash: while encoding %#v: %v", object, err))
	}
	bKey := h.Sum(nil)
	return fmt.Sprintf("%x", bKey[0:h.Size()])
}
