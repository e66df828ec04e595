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
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// InterpMethod is a spatial interpolation method for regridding.
type InterpMethod string

// The supported regridding methods.
const (
	// Nearest assigns each target cell the value of the closest valid
	// source cell within the search radius.
	Nearest InterpMethod = "nearest"
	// Bilinear interpolates each target cell from the four surrounding
	// source cells, weighted by normalized distance.
	Bilinear InterpMethod = "bilinear"
	// Conservative weights each intersecting source cell by its
	// fractional overlap area with the target cell, preserving the
	// domain integral of the field.
	Conservative InterpMethod = "conservative"
)

// ParseInterpMethod converts a configuration string to an InterpMethod.
func ParseInterpMethod(s string) (InterpMethod, error) {
	switch InterpMethod(s) {
	case Nearest, Bilinear, Conservative:
		return InterpMethod(s), nil
	default:
		return "", fmt.Errorf("downscale: unknown regridding method %q; choose nearest, bilinear, or conservative", s)
	}
}

// RegridOptions holds tunable parameters for building a regridding.
type RegridOptions struct {
	// MaxSearchRadius is the maximum distance, in source-grid coordinate
	// units, that nearest regridding will search for a valid source
	// cell. Target cells with no valid source cell within the radius
	// get no mapping. If zero, twice the larger source cell dimension
	// is used.
	MaxSearchRadius float64
}

// regridWeight is one term of the weighted combination of source cells
// contributing to a target cell. Idx indexes the flattened [y][x] source
// grid.
type regridWeight struct {
	Idx int
	W   float64
}

// RegridMapping maps each target grid cell to a weighted combination of
// source grid cells. It depends only on the two grid geometries, never on
// field values, so it is reusable across all fields and timestamps on the
// same grid pair. Weights reference only valid source cells and sum to 1
// for every mapped target cell.
type RegridMapping struct {
	source, target *GridDefinition
	method         InterpMethod
	rows           [][]regridWeight
}

// Source returns the grid the mapping resamples from.
func (m *RegridMapping) Source() *GridDefinition { return m.source }

// Target returns the grid the mapping resamples to.
func (m *RegridMapping) Target() *GridDefinition { return m.target }

// Method returns the interpolation method the mapping was built with.
func (m *RegridMapping) Method() InterpMethod { return m.method }

// MappedCells returns the number of target cells with a non-empty
// mapping.
func (m *RegridMapping) MappedCells() int {
	var n int
	for _, row := range m.rows {
		if len(row) > 0 {
			n++
		}
	}
	return n
}

// BuildMapping computes a reusable regridding from source to target using
// the given method. It returns an IncompatibleDomainError when the two
// grids' bounding boxes do not overlap at all. Building is geometry-only
// work proportional to the number of target cells, so callers should
// memoize the result per grid pair; see MappingCache.
func BuildMapping(source, target *GridDefinition, method InterpMethod, opts RegridOptions) (*RegridMapping, error) {
	tb, err := target.boundsIn(source)
	if err != nil {
		return nil, err
	}
	if !source.bounds.Overlaps(tb) {
		return nil, IncompatibleDomainError{Source: source.name, Target: target.name}
	}
	trans, err := target.transformTo(source)
	if err != nil {
		return nil, err
	}
	m := &RegridMapping{
		source: source,
		target: target,
		method: method,
		rows:   make([][]regridWeight, len(target.x)*len(target.y)),
	}
	switch method {
	case Nearest:
		err = m.buildNearest(trans, opts)
	case Bilinear:
		err = m.buildBilinear(trans)
	case Conservative:
		err = m.buildConservative(trans)
	default:
		err = fmt.Errorf("downscale: unknown regridding method %q", method)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// targetCenterInSource returns the center of target cell [iy][ix]
// expressed in the source grid's coordinate system.
func (m *RegridMapping) targetCenterInSource(trans proj.Transformer, iy, ix int) (geom.Point, error) {
	p := geom.Point{X: m.target.x[ix], Y: m.target.y[iy]}
	if trans == nil {
		return p, nil
	}
	g, err := p.Transform(trans)
	if err != nil {
		return geom.Point{}, fmt.Errorf("downscale: while transforming cell center of grid %s: %v", m.target.name, err)
	}
	return g.(geom.Point), nil
}

func (m *RegridMapping) buildNearest(trans proj.Transformer, opts RegridOptions) error {
	src := m.source
	radius := opts.MaxSearchRadius
	if radius <= 0 {
		radius = 2 * math.Max(src.Dx(), src.Dy())
	}
	// Cap the ring search so a huge radius over a sparse mask stays
	// bounded by the grid size.
	maxRing := int(math.Ceil(radius/math.Min(src.Dx(), src.Dy()))) + 1
	nx := len(src.x)
	ny := len(src.y)

	for iy := 0; iy < len(m.target.y); iy++ {
		for ix := 0; ix < len(m.target.x); ix++ {
			if !m.target.Valid(iy, ix) {
				continue
			}
			p, err := m.targetCenterInSource(trans, iy, ix)
			if err != nil {
				return err
			}
			// Start the ring search at the cell whose edges a
			// clamped copy of the point falls within.
			cx := edgeIndex(src.xEdges, math.Min(math.Max(p.X, src.bounds.Min.X), src.bounds.Max.X))
			cy := edgeIndex(src.yEdges, math.Min(math.Max(p.Y, src.bounds.Min.Y), src.bounds.Max.Y))

			best := -1
			bestDist := math.Inf(1)
			for ring := 0; ring <= maxRing; ring++ {
				// Once a match is found, one further ring is
				// enough: no cell beyond it can be closer.
				if best >= 0 && float64(ring-1)*math.Min(src.Dx(), src.Dy()) > bestDist {
					break
				}
				for _, c := range ringCells(cy, cx, ring, ny, nx) {
					if !src.Valid(c[0], c[1]) {
						continue
					}
					d := math.Hypot(src.x[c[1]]-p.X, src.y[c[0]]-p.Y)
					if d <= radius && d < bestDist {
						bestDist = d
						best = c[0]*nx + c[1]
					}
				}
			}
			if best >= 0 {
				m.rows[iy*len(m.target.x)+ix] = []regridWeight{{Idx: best, W: 1}}
			}
		}
	}
	return nil
}

// ringCells returns the in-grid cells on the square ring of Chebyshev
// radius ring around (cy, cx).
func ringCells(cy, cx, ring, ny, nx int) [][2]int {
	if ring == 0 {
		return [][2]int{{cy, cx}}
	}
	var cells [][2]int
	for iy := cy - ring; iy <= cy+ring; iy++ {
		if iy < 0 || iy >= ny {
			continue
		}
		for ix := cx - ring; ix <= cx+ring; ix++ {
			if ix < 0 || ix >= nx {
				continue
			}
			if iy != cy-ring && iy != cy+ring && ix != cx-ring && ix != cx+ring {
				continue
			}
			cells = append(cells, [2]int{iy, ix})
		}
	}
	return cells
}

func (m *RegridMapping) buildBilinear(trans proj.Transformer) error {
	src := m.source
	nx := len(src.x)

	for iy := 0; iy < len(m.target.y); iy++ {
		for ix := 0; ix < len(m.target.x); ix++ {
			if !m.target.Valid(iy, ix) {
				continue
			}
			p, err := m.targetCenterInSource(trans, iy, ix)
			if err != nil {
				return err
			}
			if !src.Contains(p.X, p.Y) {
				continue
			}
			ix0, fx := bracket(src.x, p.X)
			iy0, fy := bracket(src.y, p.Y)
			corners := [4]struct {
				iy, ix int
				w      float64
			}{
				{iy0, ix0, (1 - fx) * (1 - fy)},
				{iy0, ix0 + 1, fx * (1 - fy)},
				{iy0 + 1, ix0, (1 - fx) * fy},
				{iy0 + 1, ix0 + 1, fx * fy},
			}
			var row []regridWeight
			var wsum float64
			for _, c := range corners {
				if c.w <= 0 || !src.Valid(c.iy, c.ix) {
					continue
				}
				row = append(row, regridWeight{Idx: c.iy*nx + c.ix, W: c.w})
				wsum += c.w
			}
			if wsum == 0 {
				continue
			}
			// Weight dropped from masked neighbors is redistributed
			// proportionally among the remaining valid ones.
			for i := range row {
				row[i].W /= wsum
			}
			m.rows[iy*len(m.target.x)+ix] = row
		}
	}
	return nil
}

// bracket returns the index i of the greatest coordinate ≤ v such that
// i+1 is still a valid index, along with v's normalized position within
// [coord[i], coord[i+1]]. Positions are clamped to [0, 1] so that points
// between a domain edge and the outermost cell center interpolate from
// the edge cells only.
func bracket(coords []float64, v float64) (int, float64) {
	i := sort.SearchFloat64s(coords, v) - 1
	if i < 0 {
		i = 0
	}
	if i > len(coords)-2 {
		i = len(coords) - 2
	}
	f := (v - coords[i]) / (coords[i+1] - coords[i])
	return i, math.Min(math.Max(f, 0), 1)
}

// sourceCellGeom is an entry in the spatial index of source cells used for
// conservative regridding.
type sourceCellGeom struct {
	geom.Polygonal
	idx int
}

func (m *RegridMapping) buildConservative(trans proj.Transformer) error {
	src := m.source
	nx := len(src.x)

	// Load the valid source cells into an rtree for fast intersection
	// searching.
	tree := rtree.NewTree(25, 50)
	for iy := 0; iy < len(src.y); iy++ {
		for ix := 0; ix < nx; ix++ {
			if !src.Valid(iy, ix) {
				continue
			}
			tree.Insert(&sourceCellGeom{Polygonal: src.CellPolygon(iy, ix), idx: iy*nx + ix})
		}
	}

	for iy := 0; iy < len(m.target.y); iy++ {
		for ix := 0; ix < len(m.target.x); ix++ {
			if !m.target.Valid(iy, ix) {
				continue
			}
			var poly geom.Polygon = m.target.CellPolygon(iy, ix)
			if trans != nil {
				g, err := poly.Transform(trans)
				if err != nil {
					return fmt.Errorf("downscale: while transforming cell polygon of grid %s: %v", m.target.name, err)
				}
				poly = g.(geom.Polygon)
			}
			var row []regridWeight
			var wsum float64
			for _, s := range tree.SearchIntersect(poly.Bounds()) {
				sc := s.(*sourceCellGeom)
				isect := poly.Intersection(sc.Polygonal)
				if isect == nil {
					continue
				}
				a := isect.Area()
				if a <= 0 {
					continue
				}
				row = append(row, regridWeight{Idx: sc.idx, W: a})
				wsum += a
			}
			if wsum == 0 {
				continue
			}
			for i := range row {
				row[i].W /= wsum
			}
			m.rows[iy*len(m.target.x)+ix] = row
		}
	}
	return nil
}

// Apply resamples fs onto the mapping's target grid. The input field must
// be on the mapping's source grid; otherwise a GridMismatchError is
// returned, which indicates a caller bug rather than a data condition.
// Apply is a pure function: the input field is not modified, and the
// result shares the input's time axis. Target cells with no mapping, and
// mapped cells whose every contributing source value is no-data at a given
// timestamp, hold the no-data marker.
func (m *RegridMapping) Apply(fs *FieldStore) (*FieldStore, error) {
	if !fs.Grid.Equal(m.source) {
		return nil, GridMismatchError{Want: m.source.name, Have: fs.Grid.name}
	}
	out := NewEmptyFieldStore(fs.Variable, fs.Units, m.target, fs.Time)
	ny, nx := m.target.Shape()
	sny, snx := m.source.Shape()
	for it := 0; it < fs.Time.Len(); it++ {
		srcVals := fs.Data.Elements[it*sny*snx : (it+1)*sny*snx]
		dstVals := out.Data.Elements[it*ny*nx : (it+1)*ny*nx]
		for i, row := range m.rows {
			if len(row) == 0 {
				continue
			}
			var sum, wsum float64
			for _, w := range row {
				v := srcVals[w.Idx]
				if IsNoData(v) {
					continue
				}
				sum += w.W * v
				wsum += w.W
			}
			if wsum > 0 {
				dstVals[i] = sum / wsum
			}
		}
	}
	return out, nil
}
