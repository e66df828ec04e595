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
	"math"
	"testing"
	"time"
)

// testTolerance is the tolerance for comparing floating-point results.
const testTolerance = 1.e-8

// different reports whether a and b differ by more than the test
// tolerance, relative to their magnitude.
func different(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) != math.IsNaN(b)
	}
	c := math.Abs(a - b)
	d := math.Max(math.Abs(a), math.Abs(b))
	if d == 0 {
		return c > testTolerance
	}
	return c/d > testTolerance
}

// uniformAxis returns n evenly spaced coordinates starting at x0 with
// spacing d.
func uniformAxis(x0, d float64, n int) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = x0 + float64(i)*d
	}
	return a
}

// testGrid creates an unmasked lon-lat grid for tests: nx×ny cells with
// spacing d, with the first cell center at (x0, y0).
func testGrid(t *testing.T, name string, x0, y0, d float64, nx, ny int) *GridDefinition {
	t.Helper()
	g, err := NewGridDefinition(name, uniformAxis(x0, d, nx), uniformAxis(y0, d, ny), LonLatProj, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// testAxis creates an hourly time axis with n timestamps starting at
// 2020-01-01T00:00:00Z.
func testAxis(t *testing.T, n int) *TimeAxis {
	t.Helper()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	a, err := NewTimeAxis(times)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
