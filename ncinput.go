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
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"
)

// Coordinate names that source datasets use for the spatial axes.
var (
	lonNames  = []string{"lon", "longitude", "x"}
	latNames  = []string{"lat", "latitude", "y"}
	timeNames = []string{"time", "valid_time"}
)

// IngestConfig selects what to read from a source dataset file.
type IngestConfig struct {
	// Variable is the canonical variable name; the dataset's native
	// name is resolved through the registry.
	Variable string

	// Dataset identifies the source dataset (e.g. "ERA5") for alias
	// resolution.
	Dataset string

	// Registry resolves names and units. If nil, the built-in registry
	// is used.
	Registry *VariableRegistry

	// Start and End bound the timestamps to ingest (inclusive). Zero
	// values leave the corresponding end unbounded.
	Start, End time.Time
}

// ReadFieldNC ingests a gridded variable from a NetCDF file into a
// FieldStore, normalizing it to the engine's invariants: latitude axis
// ascending, longitudes rewrapped from 0–360 to −180–180 where needed,
// fill values replaced by the no-data marker, the variable renamed to its
// canonical name, and values converted to canonical units. The resulting
// time axis is guaranteed monotonic.
func ReadFieldNC(path string, cfg IngestConfig) (*FieldStore, error) {
	if cfg.Registry == nil {
		cfg.Registry = NewVariableRegistry()
	}
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("downscale: while opening %s: %v", path, err)
	}
	defer nc.Close()

	lon, err := coordValues(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: %v", path, err)
	}
	lat, err := coordValues(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: %v", path, err)
	}
	times, err := timeValues(nc)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: %v", path, err)
	}

	native := cfg.Registry.NativeName(cfg.Variable, cfg.Dataset)
	vg, err := nc.GetVarGetter(native)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: variable %s (%s): %v", path, cfg.Variable, native, err)
	}
	units, _ := attrString(vg.Attributes(), "units")
	data, err := readValues(vg, len(times), len(lat), len(lon))
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: variable %s: %v", path, native, err)
	}

	// Normalize axis order and longitude convention before building
	// the grid, which requires strictly increasing coordinates.
	if len(lat) > 1 && lat[1] < lat[0] {
		flipLat(lat, data)
	}
	if needsLonRewrap(lon) {
		rewrapLon(lon, data)
	}

	it0, it1 := timeRange(times, cfg.Start, cfg.End)
	times = times[it0:it1]
	ny, nx := len(lat), len(lon)
	sub := sparse.ZerosDense(len(times), ny, nx)
	copy(sub.Elements, data.Elements[it0*ny*nx:it1*ny*nx])

	grid, err := NewGridDefinition(cfg.Dataset, lon, lat, LonLatProj, nil)
	if err != nil {
		return nil, err
	}
	axis, err := NewTimeAxis(times)
	if err != nil {
		return nil, err
	}
	fs, err := NewFieldStore(cfg.Variable, units, grid, axis, sub)
	if err != nil {
		return nil, err
	}
	if err := cfg.Registry.ConvertUnits(fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// ReadGridNC builds a GridDefinition from the coordinate axes of a
// NetCDF file, independent of any data variable. This is how the
// destination dataset's coverage and resolution are established without
// retrieving a field.
func ReadGridNC(path, name string) (*GridDefinition, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("downscale: while opening %s: %v", path, err)
	}
	defer nc.Close()
	lon, err := coordValues(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: %v", path, err)
	}
	lat, err := coordValues(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("downscale: %s: %v", path, err)
	}
	if len(lat) > 1 && lat[1] < lat[0] {
		reverse(lat)
	}
	if needsLonRewrap(lon) {
		for i, v := range lon {
			if v > 180 {
				lon[i] = v - 360
			}
		}
		rotateToAscending(lon)
	}
	return NewGridDefinition(name, lon, lat, LonLatProj, nil)
}

// coordValues reads the first present coordinate variable among names as
// float64 values.
func coordValues(nc api.Group, names []string) ([]float64, error) {
	for _, name := range names {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		v, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("while reading coordinate %s: %v", name, err)
		}
		return toFloat64s(v)
	}
	return nil, fmt.Errorf("no coordinate variable found among %v", names)
}

// timeValues reads and decodes the time coordinate using its CF-style
// units attribute ("<unit> since <epoch>").
func timeValues(nc api.Group) ([]time.Time, error) {
	for _, name := range timeNames {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		units, ok := attrString(vg.Attributes(), "units")
		if !ok {
			return nil, fmt.Errorf("time variable %s has no units attribute", name)
		}
		step, epoch, err := parseCFTimeUnits(units)
		if err != nil {
			return nil, err
		}
		v, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("while reading time variable %s: %v", name, err)
		}
		offsets, err := toFloat64s(v)
		if err != nil {
			return nil, err
		}
		times := make([]time.Time, len(offsets))
		for i, o := range offsets {
			times[i] = epoch.Add(time.Duration(o * float64(step))).UTC()
		}
		return times, nil
	}
	return nil, fmt.Errorf("no time variable found among %v", timeNames)
}

// parseCFTimeUnits parses a CF time units string such as
// "hours since 1900-01-01 00:00:00.0".
func parseCFTimeUnits(units string) (time.Duration, time.Time, error) {
	fields := strings.SplitN(units, " since ", 2)
	if len(fields) != 2 {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}
	var step time.Duration
	switch strings.TrimSpace(fields[0]) {
	case "seconds":
		step = time.Second
	case "minutes":
		step = time.Minute
	case "hours":
		step = time.Hour
	case "days":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", fields[0])
	}
	epochStr := strings.TrimSpace(fields[1])
	for _, layout := range []string{"2006-01-02 15:04:05.0", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z", "2006-01-02"} {
		if epoch, err := time.ParseInLocation(layout, epochStr, time.UTC); err == nil {
			return step, epoch, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported time epoch %q", epochStr)
}

// readValues reads the full [time, y, x] data block of vg into a dense
// array, applying packing (scale_factor, add_offset) and replacing fill
// values with the no-data marker.
func readValues(vg api.VarGetter, nt, ny, nx int) (*sparse.DenseArray, error) {
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	flat := make([]float64, 0, nt*ny*nx)
	flat, err = flatten(v, flat)
	if err != nil {
		return nil, err
	}
	if len(flat) != nt*ny*nx {
		return nil, fmt.Errorf("data has %d values; want %d×%d×%d", len(flat), nt, ny, nx)
	}

	attrs := vg.Attributes()
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, hasOffset := attrFloat(attrs, "add_offset")
	fill, hasFill := attrFloat(attrs, "_FillValue")
	if !hasFill {
		fill, hasFill = attrFloat(attrs, "missing_value")
	}
	for i, val := range flat {
		if hasFill && val == fill {
			flat[i] = NoData
			continue
		}
		if hasScale {
			val = val * scale
		}
		if hasOffset {
			val = val + offset
		}
		flat[i] = val
	}
	return denseFromParts([]int{nt, ny, nx}, flat)
}

// flatten appends the values of arbitrarily nested numeric slices to dst
// in row-major order.
func flatten(v interface{}, dst []float64) ([]float64, error) {
	switch vv := v.(type) {
	case []float64:
		return append(dst, vv...), nil
	case []float32:
		for _, x := range vv {
			dst = append(dst, float64(x))
		}
		return dst, nil
	case []int64:
		for _, x := range vv {
			dst = append(dst, float64(x))
		}
		return dst, nil
	case []int32:
		for _, x := range vv {
			dst = append(dst, float64(x))
		}
		return dst, nil
	case []int16:
		for _, x := range vv {
			dst = append(dst, float64(x))
		}
		return dst, nil
	case []interface{}:
		var err error
		for _, x := range vv {
			if dst, err = flatten(x, dst); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case [][]float64, [][]float32, [][]int64, [][]int32, [][]int16,
		[][][]float64, [][][]float32, [][][]int64, [][][]int32, [][][]int16:
		return flattenNested(vv, dst)
	default:
		return nil, fmt.Errorf("unsupported data type %T", v)
	}
}

func flattenNested(v interface{}, dst []float64) ([]float64, error) {
	var err error
	switch vv := v.(type) {
	case [][]float64:
		for _, row := range vv {
			if dst, err = flatten(row, dst); err != nil {
				return nil, err
			}
		}
	case [][]float32:
		for _, row := range vv {
			if dst, err = flatten(row, dst); err != nil {
				return nil, err
			}
		}
	case [][]int64:
		for _, row := range vv {
			if dst, err = flatten(row, dst); err != nil {
				return nil, err
			}
		}
	case [][]int32:
		for _, row := range vv {
			if dst, err = flatten(row, dst); err != nil {
				return nil, err
			}
		}
	case [][]int16:
		for _, row := range vv {
			if dst, err = flatten(row, dst); err != nil {
				return nil, err
			}
		}
	case [][][]float64:
		for _, plane := range vv {
			if dst, err = flattenNested(plane, dst); err != nil {
				return nil, err
			}
		}
	case [][][]float32:
		for _, plane := range vv {
			if dst, err = flattenNested(plane, dst); err != nil {
				return nil, err
			}
		}
	case [][][]int64:
		for _, plane := range vv {
			if dst, err = flattenNested(plane, dst); err != nil {
				return nil, err
			}
		}
	case [][][]int32:
		for _, plane := range vv {
			if dst, err = flattenNested(plane, dst); err != nil {
				return nil, err
			}
		}
	case [][][]int16:
		for _, plane := range vv {
			if dst, err = flattenNested(plane, dst); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", v)
	}
	return dst, nil
}

func toFloat64s(v interface{}) ([]float64, error) {
	return flatten(v, nil)
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, has := attrs.Get(key)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, has := attrs.Get(key)
	if !has {
		return 0, false
	}
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case int32:
		return float64(vv), true
	case int16:
		return float64(vv), true
	case []float64:
		if len(vv) == 1 {
			return vv[0], true
		}
	case []float32:
		if len(vv) == 1 {
			return float64(vv[0]), true
		}
	case []int16:
		if len(vv) == 1 {
			return float64(vv[0]), true
		}
	}
	return 0, false
}

// flipLat reverses the latitude axis in place, for datasets stored
// north-to-south.
func flipLat(lat []float64, data *sparse.DenseArray) {
	reverse(lat)
	nt, ny, nx := data.Shape[0], data.Shape[1], data.Shape[2]
	for it := 0; it < nt; it++ {
		for iy := 0; iy < ny/2; iy++ {
			jy := ny - 1 - iy
			a := data.Elements[(it*ny+iy)*nx : (it*ny+iy)*nx+nx]
			b := data.Elements[(it*ny+jy)*nx : (it*ny+jy)*nx+nx]
			for k := range a {
				a[k], b[k] = b[k], a[k]
			}
		}
	}
}

// needsLonRewrap reports whether the longitude axis uses the 0–360
// convention.
func needsLonRewrap(lon []float64) bool {
	if len(lon) == 0 {
		return false
	}
	var minV, maxV = math.Inf(1), math.Inf(-1)
	for _, v := range lon {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	return maxV > 180 && minV >= 0
}

// rewrapLon converts a 0–360 longitude axis to −180–180 in place and
// rotates the data columns so the axis stays strictly increasing.
func rewrapLon(lon []float64, data *sparse.DenseArray) {
	// Count the columns that wrap to the negative side; they move to
	// the front.
	var wrapped int
	for i, v := range lon {
		if v > 180 {
			lon[i] = v - 360
			wrapped++
		}
	}
	if wrapped == 0 {
		return
	}
	pivot := len(lon) - wrapped
	rotated := make([]float64, 0, len(lon))
	rotated = append(rotated, lon[pivot:]...)
	rotated = append(rotated, lon[:pivot]...)
	copy(lon, rotated)

	nt, ny, nx := data.Shape[0], data.Shape[1], data.Shape[2]
	row := make([]float64, nx)
	for it := 0; it < nt; it++ {
		for iy := 0; iy < ny; iy++ {
			r := data.Elements[(it*ny+iy)*nx : (it*ny+iy)*nx+nx]
			copy(row, r[pivot:])
			copy(row[wrapped:], r[:pivot])
			copy(r, row)
		}
	}
}

// rotateToAscending rotates a rewrapped longitude axis so it is strictly
// increasing.
func rotateToAscending(lon []float64) {
	pivot := 0
	for i := 1; i < len(lon); i++ {
		if lon[i] < lon[i-1] {
			pivot = i
			break
		}
	}
	if pivot == 0 {
		return
	}
	rotated := make([]float64, 0, len(lon))
	rotated = append(rotated, lon[pivot:]...)
	rotated = append(rotated, lon[:pivot]...)
	copy(lon, rotated)
}

// reverse reverses s in place.
func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// timeRange returns the half-open index range of times within [start,
// end]. Zero bounds are unbounded.
func timeRange(times []time.Time, start, end time.Time) (int, int) {
	i0, i1 := 0, len(times)
	if !start.IsZero() {
		for i0 < len(times) && times[i0].Before(start) {
			i0++
		}
	}
	if !end.IsZero() {
		for i1 > i0 && times[i1-1].After(end) {
			i1--
		}
	}
	return i0, i1
}
