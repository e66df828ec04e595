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
	"time"

	"github.com/ctessum/sparse"
)

// BiasCorrectionParams holds the fitted per-cell affine correction of a
// StatisticalBiasCorrection model: corrected = value×Scale + Offset.
// Both arrays have the 2-D shape of the target grid.
type BiasCorrectionParams struct {
	Scale  *sparse.DenseArray
	Offset *sparse.DenseArray
}

// StatisticalBiasCorrection corrects the systematic bias of a regridded
// coarse field with a per-cell affine mapping fitted offline against the
// high-resolution reference product.
type StatisticalBiasCorrection struct {
	grid   *GridDefinition
	params BiasCorrectionParams
}

// NewStatisticalBiasCorrection creates a bias-correction model for the
// given target grid. The parameter arrays must match the grid shape.
func NewStatisticalBiasCorrection(grid *GridDefinition, params BiasCorrectionParams) (*StatisticalBiasCorrection, error) {
	ny, nx := grid.Shape()
	for name, arr := range map[string]*sparse.DenseArray{"scale": params.Scale, "offset": params.Offset} {
		if arr == nil {
			return nil, fmt.Errorf("downscale: bias correction %s parameters are missing", name)
		}
		if len(arr.Shape) != 2 || arr.Shape[0] != ny || arr.Shape[1] != nx {
			return nil, fmt.Errorf("downscale: bias correction %s parameters have shape %v; want [%d %d]",
				name, arr.Shape, ny, nx)
		}
	}
	return &StatisticalBiasCorrection{grid: grid, params: params}, nil
}

// Name implements the Model interface.
func (m *StatisticalBiasCorrection) Name() string { return "bias-correction" }

// Grid implements the Model interface.
func (m *StatisticalBiasCorrection) Grid() *GridDefinition { return m.grid }

// TemporalContext implements the Model interface.
func (m *StatisticalBiasCorrection) TemporalContext() int { return 0 }

// Infer implements the Model interface. No-data cells stay no-data.
func (m *StatisticalBiasCorrection) Infer(_ time.Time, field *sparse.DenseArray, _ []*sparse.DenseArray) (*sparse.DenseArray, error) {
	if err := checkModelShape(m.grid, field); err != nil {
		return nil, err
	}
	out := field.Copy()
	for i, v := range field.Elements {
		if IsNoData(v) {
			continue
		}
		out.Elements[i] = v*m.params.Scale.Elements[i] + m.params.Offset.Elements[i]
	}
	return out, nil
}
