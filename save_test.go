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

package downscale

import (
	"bytes"
	"testing"
)

func TestGridSaveLoad(t *testing.T) {
	mask := make([]bool, 16)
	for i := range mask {
		mask[i] = i%3 != 0
	}
	g, err := NewGridDefinition("g", uniformAxis(0.5, 1, 4), uniformAxis(10.5, 1, 4), LonLatProj, mask)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := SaveGrid(&buf, g); err != nil {
		t.Fatal(err)
	}
	g2, err := LoadGrid(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !g.Equal(g2) {
		t.Error("a reloaded grid should equal the original")
	}
	if g.Key() != g2.Key() {
		t.Error("a reloaded grid should produce the same cache key")
	}
	if g2.Name() != "g" {
		t.Errorf("name was %q, but should be g", g2.Name())
	}
}

func TestFieldSaveLoad(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 3, 2)
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, 2))
	for i := range fs.Data.Elements {
		fs.Data.Elements[i] = float64(i)
	}
	fs.Set(NoData, 1, 0, 0)

	var buf bytes.Buffer
	if err := SaveField(&buf, fs); err != nil {
		t.Fatal(err)
	}
	fs2, err := LoadField(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if fs2.Variable != "tas" || fs2.Units != "degC" {
		t.Errorf("metadata was %s/%s, but should be tas/degC", fs2.Variable, fs2.Units)
	}
	if !fs2.Grid.Equal(fs.Grid) {
		t.Error("a reloaded field should keep its grid")
	}
	if !fs2.Time.Equal(fs.Time) {
		t.Error("a reloaded field should keep its time axis")
	}
	for i, v := range fs.Data.Elements {
		if different(fs2.Data.Elements[i], v) {
			t.Errorf("element %d was %g, but should be %g", i, fs2.Data.Elements[i], v)
		}
	}
}
