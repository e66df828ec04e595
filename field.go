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

	"github.com/ctessum/sparse"
)

// NoData is the marker for cells with no valid measurement or estimate.
var NoData = math.NaN()

// IsNoData reports whether v is the no-data marker.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// FieldStore holds a gridded variable over a sequence of timestamps.
// Values are indexed [time, y, x] and cells without valid data hold the
// no-data marker. A FieldStore is mutated only by the pipeline stage that
// owns it; once handed to the next stage it is treated as read-only.
type FieldStore struct {
	Variable string
	Units    string
	Grid     *GridDefinition
	Time     *TimeAxis
	Data     *sparse.DenseArray
}

// NewFieldStore creates a field holding the given data, which must have
// shape [time, y, x] matching the time axis and grid.
func NewFieldStore(variable, units string, grid *GridDefinition, axis *TimeAxis, data *sparse.DenseArray) (*FieldStore, error) {
	ny, nx := grid.Shape()
	if len(data.Shape) != 3 || data.Shape[0] != axis.Len() || data.Shape[1] != ny || data.Shape[2] != nx {
		return nil, fmt.Errorf("downscale: field %s has shape %v; want [%d %d %d]",
			variable, data.Shape, axis.Len(), ny, nx)
	}
	return &FieldStore{Variable: variable, Units: units, Grid: grid, Time: axis, Data: data}, nil
}

// NewEmptyFieldStore creates a field of the correct shape with every cell
// set to the no-data marker.
func NewEmptyFieldStore(variable, units string, grid *GridDefinition, axis *TimeAxis) *FieldStore {
	ny, nx := grid.Shape()
	data := sparse.ZerosDense(axis.Len(), ny, nx)
	for i := range data.Elements {
		data.Elements[i] = NoData
	}
	return &FieldStore{Variable: variable, Units: units, Grid: grid, Time: axis, Data: data}
}

// NewConstantFieldStore creates a field holding val at every valid grid
// cell and the no-data marker at masked cells.
func NewConstantFieldStore(variable, units string, grid *GridDefinition, axis *TimeAxis, val float64) *FieldStore {
	fs := NewEmptyFieldStore(variable, units, grid, axis)
	ny, nx := grid.Shape()
	for it := 0; it < axis.Len(); it++ {
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				if grid.Valid(iy, ix) {
					fs.Data.Set(val, it, iy, ix)
				}
			}
		}
	}
	return fs
}

// At returns the value at timestamp index it and cell [iy][ix].
func (fs *FieldStore) At(it, iy, ix int) float64 { return fs.Data.Get(it, iy, ix) }

// Set sets the value at timestamp index it and cell [iy][ix].
func (fs *FieldStore) Set(v float64, it, iy, ix int) { fs.Data.Set(v, it, iy, ix) }

// TimeSlice returns a copy of the 2-D spatial field at timestamp index it.
// The copy is independent of the store, so ownership of it can be handed
// to a model without sharing mutable state.
func (fs *FieldStore) TimeSlice(it int) *sparse.DenseArray {
	ny, nx := fs.Grid.Shape()
	out := sparse.ZerosDense(ny, nx)
	copy(out.Elements, fs.Data.Elements[it*ny*nx:(it+1)*ny*nx])
	return out
}

// SetTimeSlice overwrites the spatial field at timestamp index it.
func (fs *FieldStore) SetTimeSlice(it int, slice *sparse.DenseArray) error {
	ny, nx := fs.Grid.Shape()
	if len(slice.Shape) != 2 || slice.Shape[0] != ny || slice.Shape[1] != nx {
		return ShapeMismatchError{Want: []int{ny, nx}, Have: slice.Shape}
	}
	copy(fs.Data.Elements[it*ny*nx:(it+1)*ny*nx], slice.Elements)
	return nil
}

// FillTimeSlice sets every cell at timestamp index it to the no-data
// marker.
func (fs *FieldStore) FillTimeSlice(it int) {
	ny, nx := fs.Grid.Shape()
	for i := it * ny * nx; i < (it+1)*ny*nx; i++ {
		fs.Data.Elements[i] = NoData
	}
}

// NoDataFraction returns the fraction of cells holding the no-data marker.
// Fields with no cells have a no-data fraction of zero.
func (fs *FieldStore) NoDataFraction() float64 {
	if len(fs.Data.Elements) == 0 {
		return 0
	}
	var n int
	for _, v := range fs.Data.Elements {
		if IsNoData(v) {
			n++
		}
	}
	return float64(n) / float64(len(fs.Data.Elements))
}

// denseFromParts rebuilds a dense array from a shape and its flattened
// elements, validating that the sizes agree.
func denseFromParts(shape []int, elements []float64) (*sparse.DenseArray, error) {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(elements) {
		return nil, fmt.Errorf("shape %v needs %d elements; have %d", shape, n, len(elements))
	}
	arr := sparse.ZerosDense(shape...)
	copy(arr.Elements, elements)
	return arr, nil
}

// Copy returns a deep copy of the field data. The grid and time axis are
// shared because they are immutable.
func (fs *FieldStore) Copy() *FieldStore {
	return &FieldStore{
		Variable: fs.Variable,
		Units:    fs.Units,
		Grid:     fs.Grid,
		Time:     fs.Time,
		Data:     fs.Data.Copy(),
	}
}
