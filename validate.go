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
	"time"

	"gonum.org/v1/gonum/stat"
)

// Warning is a non-fatal finding from a consistency check. Timestep is the
// index of the affected timestamp, or -1 for findings about the whole
// field.
type Warning struct {
	Check    string
	Timestep int
	Message  string
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Check, w.Message) }

// ConsistencyValidator runs post-hoc checks on pipeline output. Only
// catastrophic findings (wrong grid, entirely empty output, nonsensical
// values in most cells) are fatal; everything else is reported as
// warnings.
type ConsistencyValidator struct {
	// CoverageThreshold is the no-data fraction over valid cells above
	// which a coverage warning is produced.
	CoverageThreshold float64

	// BoundsFatalFraction is the fraction of out-of-range cells above
	// which the physical bounds check becomes fatal, signaling that
	// the model produced nonsensical output.
	BoundsFatalFraction float64

	// SmoothnessFactor is the multiple of the typical step-to-step
	// variability beyond which a jump in the per-timestamp mean is
	// flagged.
	SmoothnessFactor float64

	// Registry supplies physical bounds and volatility flags per
	// variable.
	Registry *VariableRegistry
}

// NewConsistencyValidator creates a validator with the default thresholds:
// 5% coverage warning, 50% out-of-bounds fatal, smoothness factor 3.
func NewConsistencyValidator(registry *VariableRegistry) *ConsistencyValidator {
	return &ConsistencyValidator{
		CoverageThreshold:   0.05,
		BoundsFatalFraction: 0.5,
		SmoothnessFactor:    3,
		Registry:            registry,
	}
}

// Check validates fs against the pipeline's target grid. The returned
// error, if any, is fatal to the run; warnings are not. A field with an
// empty time axis passes all checks with no warnings.
func (v *ConsistencyValidator) Check(fs *FieldStore, target *GridDefinition) ([]Warning, error) {
	if !fs.Grid.Equal(target) {
		return nil, GridMismatchError{Want: target.Name(), Have: fs.Grid.Name()}
	}
	if fs.Time.Len() == 0 {
		return nil, nil
	}

	var warnings []Warning

	valid, noData := v.coverage(fs)
	if valid > 0 && noData == valid {
		return nil, fmt.Errorf("downscale: output of %s is entirely no-data", fs.Variable)
	}
	if frac := float64(noData) / float64(valid); valid > 0 && frac > v.CoverageThreshold {
		warnings = append(warnings, Warning{
			Check:    "coverage",
			Timestep: -1,
			Message:  fmt.Sprintf("%.1f%% of valid cells hold no data (threshold %.1f%%)", frac*100, v.CoverageThreshold*100),
		})
	}

	w, err := v.physicalBounds(fs)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, w...)
	warnings = append(warnings, v.temporalSmoothness(fs)...)
	return warnings, nil
}

// coverage counts the cells the grid marks valid and, of those, the cells
// holding no data.
func (v *ConsistencyValidator) coverage(fs *FieldStore) (valid, noData int) {
	ny, nx := fs.Grid.Shape()
	for it := 0; it < fs.Time.Len(); it++ {
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				if !fs.Grid.Valid(iy, ix) {
					continue
				}
				valid++
				if IsNoData(fs.At(it, iy, ix)) {
					noData++
				}
			}
		}
	}
	return valid, noData
}

func (v *ConsistencyValidator) physicalBounds(fs *FieldStore) ([]Warning, error) {
	lo, hi := v.Registry.ValidRange(fs.Variable)
	var outside, total int
	for _, val := range fs.Data.Elements {
		if IsNoData(val) {
			continue
		}
		total++
		if val < lo || val > hi {
			outside++
		}
	}
	if outside == 0 || total == 0 {
		return nil, nil
	}
	frac := float64(outside) / float64(total)
	if frac > v.BoundsFatalFraction {
		return nil, fmt.Errorf("downscale: %.1f%% of %s values fall outside [%g, %g]; the model output is nonsensical",
			frac*100, fs.Variable, lo, hi)
	}
	return []Warning{{
		Check:    "physical-bounds",
		Timestep: -1,
		Message: fmt.Sprintf("%d of %d cells (%.2f%%) outside the valid range [%g, %g] for %s",
			outside, total, frac*100, lo, hi, fs.Variable),
	}}, nil
}

// temporalSmoothness flags timestamps whose mean field value jumps from
// the previous timestamp by more than SmoothnessFactor times the typical
// step-to-step variability. Variables registered as volatile are exempt.
func (v *ConsistencyValidator) temporalSmoothness(fs *FieldStore) []Warning {
	if def, err := v.Registry.Lookup(fs.Variable); err == nil && def.Volatile {
		return nil
	}
	nt := fs.Time.Len()
	if nt < 3 {
		return nil
	}
	means := make([]float64, nt)
	for it := 0; it < nt; it++ {
		var sum float64
		var n int
		ny, nx := fs.Grid.Shape()
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				if val := fs.At(it, iy, ix); !IsNoData(val) {
					sum += val
					n++
				}
			}
		}
		if n == 0 {
			means[it] = math.NaN()
			continue
		}
		means[it] = sum / float64(n)
	}
	diffs := make([]float64, 0, nt-1)
	for i := 1; i < nt; i++ {
		if !math.IsNaN(means[i]) && !math.IsNaN(means[i-1]) {
			diffs = append(diffs, means[i]-means[i-1])
		}
	}
	if len(diffs) < 2 {
		return nil
	}
	sigma := stat.StdDev(diffs, nil)
	if sigma == 0 {
		return nil
	}
	var warnings []Warning
	for i := 1; i < nt; i++ {
		if math.IsNaN(means[i]) || math.IsNaN(means[i-1]) {
			continue
		}
		if d := math.Abs(means[i] - means[i-1]); d > v.SmoothnessFactor*sigma {
			warnings = append(warnings, Warning{
				Check:    "temporal-smoothness",
				Timestep: i,
				Message: fmt.Sprintf("mean at %s jumped by %g (> %g× typical variability %g)",
					fs.Time.Time(i).Format(time.RFC3339), d, v.SmoothnessFactor, sigma),
			})
		}
	}
	return warnings
}
