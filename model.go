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
	"time"

	"github.com/ctessum/sparse"
)

// Model enhances the effective resolution of a coarse field that has
// already been aligned onto the model's target grid. A Model never changes
// grid geometry; alignment is the regridder's job and runs first.
//
// Implementations must be deterministic given fixed parameters and input:
// no hidden randomness at inference time. A variant that supports
// stochastic infilling must take an explicit seed as configuration rather
// than consulting global state. Parameters are read-only during inference.
type Model interface {
	// Name identifies the model variant in logs and run reports.
	Name() string

	// Grid is the target grid the model expects input and output
	// fields to be on.
	Grid() *GridDefinition

	// TemporalContext is the number of previous aligned fields the
	// model needs as context. Zero means every timestamp is inferred
	// independently, which lets the pipeline parallelize across
	// timestamps.
	TemporalContext() int

	// Infer produces the fine-resolution field for one timestamp from
	// the coarse-aligned field at that timestamp. window holds up to
	// TemporalContext previous aligned fields, most recent last; it is
	// empty when TemporalContext is zero. Infer must not modify field
	// or window, and must return a ShapeMismatchError if field's shape
	// does not match the model grid.
	Infer(t time.Time, field *sparse.DenseArray, window []*sparse.DenseArray) (*sparse.DenseArray, error)
}

// checkModelShape verifies that field has the 2-D shape of grid.
func checkModelShape(grid *GridDefinition, field *sparse.DenseArray) error {
	ny, nx := grid.Shape()
	if len(field.Shape) != 2 || field.Shape[0] != ny || field.Shape[1] != nx {
		return ShapeMismatchError{Want: []int{ny, nx}, Have: field.Shape}
	}
	return nil
}

// Identity is the reference no-op model: its output equals the regridded
// input unchanged. It exists as the baseline for exercising the pipeline
// harness independent of any learned model.
type Identity struct {
	grid *GridDefinition
}

// NewIdentity creates an Identity model for the given target grid.
func NewIdentity(grid *GridDefinition) *Identity {
	return &Identity{grid: grid}
}

// Name implements the Model interface.
func (m *Identity) Name() string { return "identity" }

// Grid implements the Model interface.
func (m *Identity) Grid() *GridDefinition { return m.grid }

// TemporalContext implements the Model interface.
func (m *Identity) TemporalContext() int { return 0 }

// Infer implements the Model interface, returning a copy of the input
// field.
func (m *Identity) Infer(_ time.Time, field *sparse.DenseArray, _ []*sparse.DenseArray) (*sparse.DenseArray, error) {
	if err := checkModelShape(m.grid, field); err != nil {
		return nil, err
	}
	return field.Copy(), nil
}
