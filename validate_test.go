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
	"errors"
	"strings"
	"testing"
)

func TestValidateGridMismatch(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	grid := testGrid(t, "g", 0.5, 0.5, 1, 2, 2)
	other := testGrid(t, "o", 0.25, 0.25, 0.5, 4, 4)
	fs := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 1), 10)
	_, err := v.Check(fs, other)
	var gmErr GridMismatchError
	if !errors.As(err, &gmErr) {
		t.Fatalf("validating against the wrong grid should give a GridMismatchError; got %v", err)
	}
}

func TestValidateEmptyTimeAxis(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	grid := testGrid(t, "g", 0.5, 0.5, 1, 2, 2)
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, 0))
	warnings, err := v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("an empty field should pass with no warnings; got %v", warnings)
	}
}

func TestValidateAllNoData(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	grid := testGrid(t, "g", 0.5, 0.5, 1, 2, 2)
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, 2))
	if _, err := v.Check(fs, grid); err == nil {
		t.Error("an entirely empty output should be fatal")
	}
}

func TestValidateCoverage(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	fs := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 1), 10)
	// 2 of 16 cells empty: 12.5%, above the 5% default threshold.
	fs.Set(NoData, 0, 0, 0)
	fs.Set(NoData, 0, 0, 1)
	warnings, err := v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(warnings, "coverage") {
		t.Errorf("warnings were %v, but should include a coverage warning", warnings)
	}

	// One empty cell (6.25%) still warns; none does not.
	fs.Set(10, 0, 0, 0)
	fs.Set(10, 0, 0, 1)
	warnings, err = v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if hasWarning(warnings, "coverage") {
		t.Errorf("warnings were %v, but full coverage should not warn", warnings)
	}
}

func TestValidateCoverageIgnoresMaskedCells(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	mask := make([]bool, 16)
	for i := range mask {
		mask[i] = i >= 8 // half the grid is masked out
	}
	grid, err := NewGridDefinition("g", uniformAxis(0.5, 1, 4), uniformAxis(0.5, 1, 4), LonLatProj, mask)
	if err != nil {
		t.Fatal(err)
	}
	// Masked cells hold no data but must not count against coverage.
	fs := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 1), 10)
	warnings, err := v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if hasWarning(warnings, "coverage") {
		t.Errorf("warnings were %v, but masked cells should not count as missing", warnings)
	}
}

func TestValidatePhysicalBounds(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)

	// A few outliers warn. tas is valid between -95 and 60 degC.
	fs := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 1), 10)
	fs.Set(1000, 0, 0, 0)
	warnings, err := v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(warnings, "physical-bounds") {
		t.Errorf("warnings were %v, but should include a physical-bounds warning", warnings)
	}

	// Mostly-nonsensical output is fatal.
	bad := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 1), 1000)
	if _, err := v.Check(bad, grid); err == nil {
		t.Error("output mostly outside the physical range should be fatal")
	}

	// Unknown variables have no bounds, so anything passes.
	unknown := NewConstantFieldStore("mystery", "?", grid, testAxis(t, 1), 1.e12)
	warnings, err = v.Check(unknown, grid)
	if err != nil {
		t.Fatal(err)
	}
	if hasWarning(warnings, "physical-bounds") {
		t.Errorf("warnings were %v, but unknown variables should pass the bounds check", warnings)
	}
}

func TestValidateTemporalSmoothness(t *testing.T) {
	v := NewConsistencyValidator(NewVariableRegistry())
	v.SmoothnessFactor = 2
	grid := testGrid(t, "g", 0.5, 0.5, 1, 2, 2)
	nt := 8
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, nt))
	// Means alternate gently around 10, then jump at the last step.
	means := []float64{10, 11, 10, 11, 10, 11, 10, 50}
	for it := 0; it < nt; it++ {
		for iy := 0; iy < 2; iy++ {
			for ix := 0; ix < 2; ix++ {
				fs.Set(means[it], it, iy, ix)
			}
		}
	}
	warnings, err := v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, w := range warnings {
		if w.Check == "temporal-smoothness" {
			found = true
			if w.Timestep != nt-1 {
				t.Errorf("the jump was flagged at timestep %d, but should be %d", w.Timestep, nt-1)
			}
		}
	}
	if !found {
		t.Errorf("warnings were %v, but should flag the jump", warnings)
	}

	// Volatile variables are exempt.
	fs.Variable = "pr"
	fs.Units = "mm"
	for i, val := range fs.Data.Elements {
		if val < 0 {
			fs.Data.Elements[i] = 0 // keep within the pr physical range
		}
	}
	warnings, err = v.Check(fs, grid)
	if err != nil {
		t.Fatal(err)
	}
	if hasWarning(warnings, "temporal-smoothness") {
		t.Errorf("warnings were %v, but volatile variables should be exempt", warnings)
	}
}

func hasWarning(warnings []Warning, check string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w.Check, check) {
			return true
		}
	}
	return false
}
