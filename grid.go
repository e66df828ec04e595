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
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/spatialmodel/downscale/internal/hash"
)

// LonLatProj is the spatial reference definition used for grids whose
// coordinates are unprojected degrees.
const LonLatProj = "+proj=longlat +datum=WGS84 +no_defs"

// GridDefinition describes a regular spatial grid: cell-center coordinate
// arrays, a spatial reference, and an optional validity mask marking which
// cells hold physically meaningful data. A GridDefinition is immutable
// after construction and is shared by reference among all fields that use
// the same grid.
type GridDefinition struct {
	name string
	x, y []float64 // cell centers, strictly increasing
	sr   string    // Proj4 spatial reference definition

	// mask is a row-major [y][x] validity mask; nil means all cells
	// are valid.
	mask []bool

	xEdges, yEdges []float64
	bounds         *geom.Bounds
	srDef          *proj.SR
	key            string
}

// NewGridDefinition creates a grid from cell-center coordinates x and y,
// a Proj4 spatial reference definition (LonLatProj if empty), and an
// optional row-major [y][x] validity mask. Coordinates must be strictly
// increasing and each axis must have at least two cells so that cell edges
// can be located.
func NewGridDefinition(name string, x, y []float64, srDef string, mask []bool) (*GridDefinition, error) {
	if len(x) < 2 || len(y) < 2 {
		return nil, fmt.Errorf("downscale: grid %s must have at least 2 cells per axis; have %d×%d", name, len(x), len(y))
	}
	for _, axis := range [][]float64{x, y} {
		for i := 0; i < len(axis)-1; i++ {
			if axis[i+1] <= axis[i] {
				return nil, fmt.Errorf("downscale: grid %s coordinates must be strictly increasing; axis value %g follows %g", name, axis[i+1], axis[i])
			}
		}
	}
	if mask != nil && len(mask) != len(x)*len(y) {
		return nil, fmt.Errorf("downscale: grid %s mask has %d cells but the grid has %d", name, len(mask), len(x)*len(y))
	}
	if srDef == "" {
		srDef = LonLatProj
	}
	sr, err := proj.Parse(srDef)
	if err != nil {
		return nil, fmt.Errorf("downscale: while parsing spatial reference for grid %s: %v", name, err)
	}
	g := &GridDefinition{
		name:   name,
		x:      append([]float64(nil), x...),
		y:      append([]float64(nil), y...),
		sr:     srDef,
		srDef:  sr,
		xEdges: cellEdges(x),
		yEdges: cellEdges(y),
	}
	if mask != nil {
		g.mask = append([]bool(nil), mask...)
	}
	g.bounds = &geom.Bounds{
		Min: geom.Point{X: g.xEdges[0], Y: g.yEdges[0]},
		Max: geom.Point{X: g.xEdges[len(g.xEdges)-1], Y: g.yEdges[len(g.yEdges)-1]},
	}
	g.key = hash.Hash(gridGob{Name: g.name, X: g.x, Y: g.y, SR: g.sr, Mask: g.mask})
	return g, nil
}

// cellEdges converts cell-center coordinates to the len(centers)+1 cell
// edge coordinates, extrapolating half a cell beyond the first and last
// centers.
func cellEdges(centers []float64) []float64 {
	e := make([]float64, len(centers)+1)
	for i := 1; i < len(centers); i++ {
		e[i] = (centers[i-1] + centers[i]) / 2
	}
	e[0] = centers[0] - (centers[1]-centers[0])/2
	e[len(centers)] = centers[len(centers)-1] + (centers[len(centers)-1]-centers[len(centers)-2])/2
	return e
}

// Name returns the grid's name.
func (g *GridDefinition) Name() string { return g.name }

// Shape returns the number of cells in the y and x directions.
func (g *GridDefinition) Shape() (ny, nx int) { return len(g.y), len(g.x) }

// ProjString returns the grid's Proj4 spatial reference definition.
func (g *GridDefinition) ProjString() string { return g.sr }

// Coords returns copies of the cell-center coordinate arrays.
func (g *GridDefinition) Coords() (x, y []float64) {
	return append([]float64(nil), g.x...), append([]float64(nil), g.y...)
}

// Bounds returns a copy of the grid's bounding box (cell edges, not
// centers).
func (g *GridDefinition) Bounds() *geom.Bounds { return g.bounds.Copy() }

// Dx returns the average cell size in the x direction.
func (g *GridDefinition) Dx() float64 {
	return (g.x[len(g.x)-1] - g.x[0]) / float64(len(g.x)-1)
}

// Dy returns the average cell size in the y direction.
func (g *GridDefinition) Dy() float64 {
	return (g.y[len(g.y)-1] - g.y[0]) / float64(len(g.y)-1)
}

// Key returns an identity key for the grid. Two grids with equal
// coordinates, spatial reference, and mask have equal keys; the key drives
// regridding cache hits.
func (g *GridDefinition) Key() string { return g.key }

// Valid reports whether the cell at [iy][ix] is marked usable.
func (g *GridDefinition) Valid(iy, ix int) bool {
	if g.mask == nil {
		return true
	}
	return g.mask[iy*len(g.x)+ix]
}

// Contains reports whether the point (x, y), given in the grid's own
// coordinate system, falls inside the grid's bounding box.
func (g *GridDefinition) Contains(x, y float64) bool {
	return x >= g.bounds.Min.X && x <= g.bounds.Max.X &&
		y >= g.bounds.Min.Y && y <= g.bounds.Max.Y
}

// CellIndex returns the indices of the cell containing the point (x, y),
// given in the grid's own coordinate system. It returns an
// OutOfDomainError if the point is outside the grid's bounding box.
func (g *GridDefinition) CellIndex(x, y float64) (iy, ix int, err error) {
	if !g.Contains(x, y) {
		return -1, -1, OutOfDomainError{X: x, Y: y, Grid: g.name}
	}
	ix = edgeIndex(g.xEdges, x)
	iy = edgeIndex(g.yEdges, y)
	return iy, ix, nil
}

// edgeIndex locates the cell whose [edge[i], edge[i+1]) interval contains
// v. v is assumed to be within the overall edge range.
func edgeIndex(edges []float64, v float64) int {
	i := sort.SearchFloat64s(edges, v)
	if i > 0 && (i == len(edges) || edges[i] != v) {
		i--
	}
	if i > len(edges)-2 {
		i = len(edges) - 2
	}
	return i
}

// CellPolygon returns the rectangular outline of the cell at [iy][ix] in
// the grid's own coordinate system.
func (g *GridDefinition) CellPolygon(iy, ix int) geom.Polygon {
	return geom.Polygon{{
		{X: g.xEdges[ix], Y: g.yEdges[iy]},
		{X: g.xEdges[ix+1], Y: g.yEdges[iy]},
		{X: g.xEdges[ix+1], Y: g.yEdges[iy+1]},
		{X: g.xEdges[ix], Y: g.yEdges[iy+1]},
	}}
}

// Equal reports whether g and o have exactly the same coordinates, spatial
// reference, and validity mask.
func (g *GridDefinition) Equal(o *GridDefinition) bool {
	if g == o {
		return true
	}
	if o == nil || g.sr != o.sr || len(g.x) != len(o.x) || len(g.y) != len(o.y) {
		return false
	}
	for i, v := range g.x {
		if o.x[i] != v {
			return false
		}
	}
	for i, v := range g.y {
		if o.y[i] != v {
			return false
		}
	}
	if (g.mask == nil) != (o.mask == nil) {
		return false
	}
	for i, v := range g.mask {
		if o.mask[i] != v {
			return false
		}
	}
	return true
}

// transformTo returns a transform from g's coordinate system to o's, or
// nil if the two grids share a spatial reference.
func (g *GridDefinition) transformTo(o *GridDefinition) (proj.Transformer, error) {
	if g.sr == o.sr {
		return nil, nil
	}
	t, err := g.srDef.NewTransform(o.srDef)
	if err != nil {
		return nil, fmt.Errorf("downscale: while creating transform from grid %s to grid %s: %v", g.name, o.name, err)
	}
	return t, nil
}

// boundsIn returns g's bounding box expressed in o's coordinate system.
// All four corners are transformed because a rectangle generally does not
// stay axis-aligned under reprojection.
func (g *GridDefinition) boundsIn(o *GridDefinition) (*geom.Bounds, error) {
	t, err := g.transformTo(o)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return g.Bounds(), nil
	}
	b := geom.NewBounds()
	for _, p := range []geom.Point{
		{X: g.bounds.Min.X, Y: g.bounds.Min.Y},
		{X: g.bounds.Max.X, Y: g.bounds.Min.Y},
		{X: g.bounds.Max.X, Y: g.bounds.Max.Y},
		{X: g.bounds.Min.X, Y: g.bounds.Max.Y},
	} {
		pt, err := p.Transform(t)
		if err != nil {
			return nil, fmt.Errorf("downscale: while transforming bounds of grid %s: %v", g.name, err)
		}
		b.Extend(pt.Bounds())
	}
	return b, nil
}

// Intersection returns the overlapping bounding box of g and o, expressed
// in g's coordinate system. It returns an IncompatibleDomainError when the
// two grids do not overlap at all.
func (g *GridDefinition) Intersection(o *GridDefinition) (*geom.Bounds, error) {
	ob, err := o.boundsIn(g)
	if err != nil {
		return nil, err
	}
	if !g.bounds.Overlaps(ob) {
		return nil, IncompatibleDomainError{Source: g.name, Target: o.name}
	}
	return &geom.Bounds{
		Min: geom.Point{X: max(g.bounds.Min.X, ob.Min.X), Y: max(g.bounds.Min.Y, ob.Min.Y)},
		Max: geom.Point{X: min(g.bounds.Max.X, ob.Max.X), Y: min(g.bounds.Max.Y, ob.Max.Y)},
	}, nil
}

// gridGob is the serialized form of a GridDefinition.
type gridGob struct {
	Name string
	X, Y []float64
	SR   string
	Mask []bool
}

// GobEncode implements the gob.GobEncoder interface.
func (g *GridDefinition) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(gridGob{Name: g.name, X: g.x, Y: g.y, SR: g.sr, Mask: g.mask})
	return b.Bytes(), err
}

// GobDecode implements the gob.GobDecoder interface.
func (g *GridDefinition) GobDecode(data []byte) error {
	var gg gridGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gg); err != nil {
		return err
	}
	g2, err := NewGridDefinition(gg.Name, gg.X, gg.Y, gg.SR, gg.Mask)
	if err != nil {
		return err
	}
	*g = *g2
	return nil
}
