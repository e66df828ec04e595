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
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
)

// Seconds from the Unix epoch back to 1900-01-01T00:00:00Z, the epoch
// used for the output time coordinate.
const unixSecs1900 = -2208988800

// ncFillValue marks no-data cells in output files; NaN is not portable
// across NetCDF readers.
const ncFillValue = -9.e9

// WriteFieldNC writes one or more fields sharing a grid and time axis to
// a NetCDF file. The time coordinate is encoded as hours since
// 1900-01-01 and no-data cells are written as the _FillValue attribute
// of each variable.
func WriteFieldNC(path string, fields ...*FieldStore) error {
	if len(fields) == 0 {
		return fmt.Errorf("downscale: no fields to write")
	}
	grid, axis := fields[0].Grid, fields[0].Time
	for _, fs := range fields[1:] {
		if !fs.Grid.Equal(grid) {
			return GridMismatchError{Want: grid.Name(), Have: fs.Grid.Name()}
		}
		if !fs.Time.Equal(axis) {
			return fmt.Errorf("downscale: field %s has a different time axis", fs.Variable)
		}
	}
	ny, nx := grid.Shape()
	nt := axis.Len()

	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{nt, ny, nx})
	h.AddAttribute("", "crs", grid.ProjString())
	h.AddAttribute("", "grid", grid.Name())
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "hours since 1900-01-01 00:00:00.0")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddVariable("x", []string{"x"}, []float64{0})
	for _, fs := range fields {
		h.AddVariable(fs.Variable, []string{"time", "y", "x"}, []float32{0})
		h.AddAttribute(fs.Variable, "units", fs.Units)
		h.AddAttribute(fs.Variable, "_FillValue", []float32{ncFillValue})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("downscale: while defining %s: %v", path, errs)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("downscale: while creating %s: %v", path, err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("downscale: while creating %s: %v", path, err)
	}

	hours := make([]float64, nt)
	for i := 0; i < nt; i++ {
		hours[i] = float64(axis.Time(i).Unix()-unixSecs1900) / 3600
	}
	x, y := grid.Coords()
	if err := writeNCVar(f, "time", hours); err != nil {
		return err
	}
	if err := writeNCVar(f, "y", y); err != nil {
		return err
	}
	if err := writeNCVar(f, "x", x); err != nil {
		return err
	}
	for _, fs := range fields {
		data := make([]float32, len(fs.Data.Elements))
		for i, v := range fs.Data.Elements {
			if IsNoData(v) || math.IsInf(v, 0) {
				data[i] = ncFillValue
			} else {
				data[i] = float32(v)
			}
		}
		if err := writeNCVar(f, fs.Variable, data); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("downscale: while finalizing %s: %v", path, err)
	}
	return nil
}

func writeNCVar(f *cdf.File, name string, data interface{}) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("downscale: while writing variable %s: %v", name, err)
	}
	return nil
}
