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

import "fmt"

// OutOfDomainError happens when a coordinate lookup falls outside the
// bounding box of a grid. It is recoverable by the caller.
type OutOfDomainError struct {
	X, Y float64
	Grid string
}

func (e OutOfDomainError) Error() string {
	return fmt.Sprintf("downscale: point (%g, %g) is outside the domain of grid %s", e.X, e.Y, e.Grid)
}

// IncompatibleDomainError happens when the bounding boxes of two grids do
// not overlap at all, so no regridding between them is possible. It is
// fatal to a pipeline run but not to the process.
type IncompatibleDomainError struct {
	Source, Target string
}

func (e IncompatibleDomainError) Error() string {
	return fmt.Sprintf("downscale: grids %s and %s do not overlap", e.Source, e.Target)
}

// GridMismatchError happens when a precomputed regridding is applied to a
// field on a different grid than the one it was built for. It indicates a
// contract violation between pipeline stages, so it always propagates.
type GridMismatchError struct {
	Want, Have string
}

func (e GridMismatchError) Error() string {
	return fmt.Sprintf("downscale: regridding built for grid %s applied to field on grid %s", e.Want, e.Have)
}

// ShapeMismatchError happens when a model receives a field whose shape
// differs from the grid the model was configured for. During a pipeline
// run it degrades the affected timestamp to no-data rather than aborting.
type ShapeMismatchError struct {
	Want, Have []int
}

func (e ShapeMismatchError) Error() string {
	return fmt.Sprintf("downscale: field shape %v does not match expected shape %v", e.Have, e.Want)
}
