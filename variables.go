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
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// VariableDef describes a climate variable: its canonical name, the units
// fields on it must end up in, its physically meaningful value range, the
// names it goes by in specific source datasets, and whether it is expected
// to be volatile from one timestamp to the next (volatile variables are
// exempt from the temporal smoothness check).
type VariableDef struct {
	Name     string            `yaml:"name"`
	Units    string            `yaml:"units"`
	ValidMin float64           `yaml:"validMin"`
	ValidMax float64           `yaml:"validMax"`
	Volatile bool              `yaml:"volatile"`
	Aliases  map[string]string `yaml:"aliases"` // dataset ID → native variable name
}

// unitConversion converts values as v×Scale + Offset, relabeling to the
// To units.
type unitConversion struct {
	Scale, Offset float64
	To            string
}

// unitConversions maps native units to the conversion bringing them to
// canonical units.
var unitConversions = map[string]unitConversion{
	"K":          {1, -273.15, "degC"},
	"Kelvin":     {1, -273.15, "degC"},
	"Fahrenheit": {5. / 9., -32 * 5. / 9., "degC"},
	"Celsius":    {1, 0, "degC"},
	"degC":       {1, 0, "degC"},
	"m":          {1000, 0, "mm"},
	"mm":         {1, 0, "mm"},
	"m hour**-1": {1000 * 24, 0, "mm"},
	"mm day**-1": {1, 0, "mm"},
	"mm s**-1":   {3600 * 24, 0, "mm"},
	"kg m**-2":   {1, 0, "mm"},
	"kg m-2":     {1, 0, "mm"},
	"kg m-2 s-1": {3600 * 24, 0, "mm"},
	"m s**-1":    {1, 0, "m s-1"},
	"m s-1":      {1, 0, "m s-1"},
	"km h**-1":   {10. / 36., 0, "m s-1"},
	"knots":      {0.51, 0, "m s-1"},
	"kts":        {0.51, 0, "m s-1"},
	"%":          {1, 0, "%"},
	"1":          {1, 0, "1"},
	"Pa":         {1, 0, "Pa"},
	"W m**-2":    {1, 0, "W m-2"},
	"W m-2":      {1, 0, "W m-2"},
	"m**2 s**-2": {1, 0, "m**2 s**-2"},
}

// defaultVariables is the built-in variable registry. ValidMin/ValidMax
// are in canonical units and drive the physical bounds check.
var defaultVariables = []VariableDef{
	{Name: "tas", Units: "degC", ValidMin: -95, ValidMax: 60,
		Aliases: map[string]string{"ERA5": "t2m", "CERRA": "t2m"}},
	{Name: "tasmax", Units: "degC", ValidMin: -95, ValidMax: 60,
		Aliases: map[string]string{"ERA5": "mx2t"}},
	{Name: "tasmin", Units: "degC", ValidMin: -95, ValidMax: 60,
		Aliases: map[string]string{"ERA5": "mn2t"}},
	{Name: "pr", Units: "mm", ValidMin: 0, ValidMax: 2000, Volatile: true,
		Aliases: map[string]string{"ERA5": "tp", "CERRA": "tp"}},
	{Name: "prsn", Units: "mm", ValidMin: 0, ValidMax: 2000, Volatile: true,
		Aliases: map[string]string{"ERA5": "sf"}},
	{Name: "sfcwind", Units: "m s-1", ValidMin: 0, ValidMax: 120, Volatile: true,
		Aliases: map[string]string{"ERA5": "si10", "CERRA": "si10"}},
	{Name: "hurs", Units: "%", ValidMin: 0, ValidMax: 100,
		Aliases: map[string]string{"ERA5": "r2"}},
	{Name: "clt", Units: "%", ValidMin: 0, ValidMax: 100, Volatile: true,
		Aliases: map[string]string{"ERA5": "tcc"}},
	{Name: "psl", Units: "Pa", ValidMin: 85000, ValidMax: 110000,
		Aliases: map[string]string{"ERA5": "msl"}},
	{Name: "rsds", Units: "W m-2", ValidMin: 0, ValidMax: 1500, Volatile: true,
		Aliases: map[string]string{"ERA5": "ssrd"}},
	{Name: "rlds", Units: "W m-2", ValidMin: 0, ValidMax: 800,
		Aliases: map[string]string{"ERA5": "strd"}},
	{Name: "huss", Units: "1", ValidMin: 0, ValidMax: 0.1,
		Aliases: map[string]string{"ERA5": "q"}},
}

// VariableRegistry resolves canonical variable names, per-dataset native
// names, canonical units, and physical valid ranges.
type VariableRegistry struct {
	vars map[string]VariableDef
}

// NewVariableRegistry returns a registry holding the built-in variable
// definitions.
func NewVariableRegistry() *VariableRegistry {
	r := &VariableRegistry{vars: make(map[string]VariableDef)}
	for _, v := range defaultVariables {
		r.vars[v.Name] = v
	}
	return r
}

// LoadOverrides merges YAML-encoded variable definitions into the
// registry, replacing built-in definitions with the same name.
func (r *VariableRegistry) LoadOverrides(rd io.Reader) error {
	var defs []VariableDef
	dec := yaml.NewDecoder(rd)
	if err := dec.Decode(&defs); err != nil && err != io.EOF {
		return fmt.Errorf("downscale: while decoding variable definitions: %v", err)
	}
	for _, v := range defs {
		if v.Name == "" {
			return fmt.Errorf("downscale: variable definition is missing a name")
		}
		r.vars[v.Name] = v
	}
	return nil
}

// Lookup returns the definition of the named variable.
func (r *VariableRegistry) Lookup(name string) (VariableDef, error) {
	v, ok := r.vars[name]
	if !ok {
		return VariableDef{}, fmt.Errorf("downscale: unknown variable %q", name)
	}
	return v, nil
}

// NativeName returns the name the variable goes by in the given dataset,
// falling back to the canonical name when no alias is registered.
func (r *VariableRegistry) NativeName(name, dataset string) string {
	if v, ok := r.vars[name]; ok {
		if alias, ok := v.Aliases[dataset]; ok {
			return alias
		}
	}
	return name
}

// ConvertUnits converts fs in place to the canonical units of its
// variable. Fields already in canonical units pass through unchanged;
// unknown native units are an error.
func (r *VariableRegistry) ConvertUnits(fs *FieldStore) error {
	def, err := r.Lookup(fs.Variable)
	if err != nil {
		return err
	}
	if fs.Units == def.Units {
		return nil
	}
	conv, ok := unitConversions[fs.Units]
	if !ok {
		return fmt.Errorf("downscale: no unit conversion from %q for variable %s", fs.Units, fs.Variable)
	}
	if conv.To != def.Units {
		return fmt.Errorf("downscale: units %q for variable %s convert to %q, but %q is required",
			fs.Units, fs.Variable, conv.To, def.Units)
	}
	for i, v := range fs.Data.Elements {
		if !IsNoData(v) {
			fs.Data.Elements[i] = v*conv.Scale + conv.Offset
		}
	}
	fs.Units = conv.To
	return nil
}

// ValidRange returns the physically meaningful value range of the named
// variable, or (-Inf, +Inf) when the variable is unknown so that the
// bounds check passes vacuously.
func (r *VariableRegistry) ValidRange(name string) (lo, hi float64) {
	v, ok := r.vars[name]
	if !ok {
		return math.Inf(-1), math.Inf(1)
	}
	return v.ValidMin, v.ValidMax
}
