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
	"testing"
	"time"
)

func TestNewTimeAxis(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewTimeAxis([]time.Time{start, start}); err == nil {
		t.Error("duplicate timestamps should be rejected")
	}
	if _, err := NewTimeAxis([]time.Time{start.Add(time.Hour), start}); err == nil {
		t.Error("decreasing timestamps should be rejected")
	}
	empty, err := NewTimeAxis(nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty axis length was %d, but should be 0", empty.Len())
	}

	// Timestamps in other zones normalize to UTC.
	loc := time.FixedZone("UTC+2", 2*3600)
	a, err := NewTimeAxis([]time.Time{start.In(loc), start.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if a.Time(0).Location() != time.UTC {
		t.Errorf("timestamps should be stored in UTC; got %v", a.Time(0).Location())
	}
}

func TestTimeAxisFreq(t *testing.T) {
	a := testAxis(t, 5)
	freq, ok := a.Freq()
	if !ok || freq != time.Hour {
		t.Errorf("cadence was (%v, %v), but should be (1h, true)", freq, ok)
	}

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b, err := NewTimeAxis([]time.Time{start, start.Add(time.Hour), start.Add(3 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Freq(); ok {
		t.Error("a non-uniform axis should report no cadence")
	}
	if _, ok := testAxis(t, 1).Freq(); ok {
		t.Error("a single-timestamp axis should report no cadence")
	}
}

func TestTimeAxisEqual(t *testing.T) {
	a := testAxis(t, 3)
	b := testAxis(t, 3)
	if !a.Equal(b) {
		t.Error("axes with the same timestamps should be equal")
	}
	if a.Equal(testAxis(t, 4)) {
		t.Error("axes of different length should not be equal")
	}
	if a.Equal(nil) {
		t.Error("no axis equals nil")
	}
}
