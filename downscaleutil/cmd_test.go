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

package downscaleutil

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spatialmodel/downscale"
)

// The grid subcommand reads the destination grid from TargetGridFile and
// summarizes its shape, resolution, and bounds.
func TestGridCommand(t *testing.T) {
	x := []float64{0.5, 1.5, 2.5, 3.5}
	y := []float64{0.5, 1.5, 2.5}
	grid, err := downscale.NewGridDefinition("target", x, y, downscale.LonLatProj, nil)
	if err != nil {
		t.Fatal(err)
	}
	axis, err := downscale.NewTimeAxis([]time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "grid.nc")
	fs := downscale.NewConstantFieldStore("tas", "degC", grid, axis, 0)
	if err := downscale.WriteFieldNC(path, fs); err != nil {
		t.Fatal(err)
	}

	Cfg.Set("TargetGridFile", path)
	defer Cfg.Set("TargetGridFile", "")
	var buf bytes.Buffer
	gridCmd.SetOut(&buf)
	gridCmd.SetErr(&buf)
	if err := gridCmd.RunE(gridCmd, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "grid: 3×4 cells") {
		t.Errorf("output was %q, but should report 3×4 cells", out)
	}
	if !strings.Contains(out, "cell size: 1 × 1") {
		t.Errorf("output was %q, but should report the cell size", out)
	}
	if !strings.Contains(out, "bounds: (0, 0) – (4, 3)") {
		t.Errorf("output was %q, but should report the bounds", out)
	}
}
