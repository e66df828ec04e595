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

	"github.com/Knetic/govaluate"
)

// Exporter writes downscaled fields to a NetCDF file, optionally
// deriving additional output variables from expressions over the field
// variables.
//
// outputVariables maps output variable names to expressions over input
// variable names, e.g. {"tas_F": "tas * 9/5 + 32"}. An empty map writes
// the input fields unchanged.
type Exporter struct {
	fileName        string
	outputVariables map[string]string
	inputVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewExporter initializes an Exporter and adds a set of default
// expression functions: 'exp(x)', 'log(x)', 'abs(x)', 'min(x, y)' and
// 'max(x, y)'. Functions in outputFunctions are added to, and may
// shadow, the defaults.
func NewExporter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Exporter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("downscale: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return math.Exp(arg[0].(float64)), nil
		},
		"log": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("downscale: got %d arguments for function 'log', but needs 1", len(arg))
			}
			return math.Log(arg[0].(float64)), nil
		},
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("downscale: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return math.Abs(arg[0].(float64)), nil
		},
		"min": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("downscale: got %d arguments for function 'min', but needs 2", len(args))
			}
			return math.Min(args[0].(float64), args[1].(float64)), nil
		},
		"max": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("downscale: got %d arguments for function 'max', but needs 2", len(args))
			}
			return math.Max(args[0].(float64), args[1].(float64)), nil
		},
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	e := &Exporter{
		fileName:        fileName,
		outputVariables: outputVariables,
		outputFunctions: defaultOutputFuncs,
	}
	// Compile expressions up front so configuration errors surface
	// before any work is done.
	inputs := make(map[string]struct{})
	for name, exprStr := range outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(exprStr, e.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("downscale: output variable %s: %v", name, err)
		}
		for _, v := range expression.Vars() {
			inputs[v] = struct{}{}
		}
	}
	e.inputVariables = make([]string, 0, len(inputs))
	for v := range inputs {
		e.inputVariables = append(e.inputVariables, v)
	}
	sort.Strings(e.inputVariables)
	return e, nil
}

// InputVariables returns the sorted set of field variables the output
// expressions reference.
func (e *Exporter) InputVariables() []string {
	return append([]string(nil), e.inputVariables...)
}

// Export derives the configured output variables from fields and writes
// them to the output file. If no output variables are configured, the
// input fields are written unchanged. Cells where any referenced input
// is no-data are no-data in the output.
func (e *Exporter) Export(fields ...*FieldStore) error {
	if len(e.outputVariables) == 0 {
		return WriteFieldNC(e.fileName, fields...)
	}
	byName := make(map[string]*FieldStore, len(fields))
	for _, fs := range fields {
		byName[fs.Variable] = fs
	}
	names := make([]string, 0, len(e.outputVariables))
	for name := range e.outputVariables {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*FieldStore, 0, len(names))
	for _, name := range names {
		fs, err := e.derive(name, e.outputVariables[name], byName)
		if err != nil {
			return err
		}
		out = append(out, fs)
	}
	return WriteFieldNC(e.fileName, out...)
}

func (e *Exporter) derive(name, exprStr string, fields map[string]*FieldStore) (*FieldStore, error) {
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(exprStr, e.outputFunctions)
	if err != nil {
		return nil, fmt.Errorf("downscale: output variable %s: %v", name, err)
	}
	vars := expression.Vars()
	if len(vars) == 0 {
		return nil, fmt.Errorf("downscale: output variable %s references no field variables", name)
	}
	inputs := make([]*FieldStore, 0, len(vars))
	for _, v := range vars {
		fs, ok := fields[v]
		if !ok {
			return nil, fmt.Errorf("downscale: output variable %s: undefined variable name '%s'", name, v)
		}
		inputs = append(inputs, fs)
	}
	first := inputs[0]
	for _, fs := range inputs[1:] {
		if !fs.Grid.Equal(first.Grid) {
			return nil, GridMismatchError{Want: first.Grid.Name(), Have: fs.Grid.Name()}
		}
		if !fs.Time.Equal(first.Time) {
			return nil, fmt.Errorf("downscale: output variable %s: inputs have different time axes", name)
		}
	}

	// A passthrough of a single input keeps its units; anything else
	// has units only the expression author knows.
	units := ""
	if len(inputs) == 1 && exprStr == inputs[0].Variable {
		units = inputs[0].Units
	}
	out := NewEmptyFieldStore(name, units, first.Grid, first.Time)
	params := make(map[string]interface{}, len(inputs))
	for i := range out.Data.Elements {
		nodata := false
		for _, fs := range inputs {
			v := fs.Data.Elements[i]
			if IsNoData(v) {
				nodata = true
				break
			}
			params[fs.Variable] = v
		}
		if nodata {
			continue
		}
		result, err := expression.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("downscale: output variable %s: %v", name, err)
		}
		v, ok := result.(float64)
		if !ok {
			return nil, fmt.Errorf("downscale: output variable %s: expression yields %T; want float64", name, result)
		}
		out.Data.Elements[i] = v
	}
	return out, nil
}
