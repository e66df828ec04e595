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

package downscaleutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/downscale"
	"github.com/spf13/cast"
)

// ConfigData holds the parsed run configuration.
type ConfigData struct {
	SourceFile          string
	TargetGridFile      string
	OutputFile          string
	OutputVariables     map[string]string
	Variable            string
	Dataset             string
	VariableDefinitions string
	Begin, End          time.Time

	RegridMethod    downscale.InterpMethod
	MaxSearchRadius float64

	ModelType       string
	ModelParamsFile string

	CoverageThreshold   float64
	BoundsFatalFraction float64
	SmoothnessFactor    float64

	FailFast      bool
	NumProcessors int
	CacheEntries  int
}

// ParseConfig reads the configuration from cfg, expanding environment
// variables and validating values that would otherwise fail deep inside
// a run.
func ParseConfig(cfg *viper.Viper) (*ConfigData, error) {
	c := &ConfigData{
		SourceFile:          os.ExpandEnv(cfg.GetString("SourceFile")),
		TargetGridFile:      os.ExpandEnv(cfg.GetString("TargetGridFile")),
		OutputVariables:     GetStringMapString("OutputVariables", cfg),
		Variable:            cfg.GetString("Variable"),
		Dataset:             cfg.GetString("Dataset"),
		VariableDefinitions: os.ExpandEnv(cfg.GetString("VariableDefinitions")),
		MaxSearchRadius:     cfg.GetFloat64("Regrid.MaxSearchRadius"),
		ModelType:           cfg.GetString("Model.Type"),
		ModelParamsFile:     os.ExpandEnv(cfg.GetString("Model.ParamsFile")),
		CoverageThreshold:   cfg.GetFloat64("Validate.CoverageThreshold"),
		BoundsFatalFraction: cfg.GetFloat64("Validate.BoundsFatalFraction"),
		SmoothnessFactor:    cfg.GetFloat64("Validate.SmoothnessFactor"),
		FailFast:            cfg.GetBool("FailFast"),
		NumProcessors:       cfg.GetInt("NumProcessors"),
		CacheEntries:        cfg.GetInt("CacheEntries"),
	}
	if c.TargetGridFile == "" {
		return nil, fmt.Errorf("downscale: you need to specify a TargetGridFile configuration variable")
	}
	var err error
	c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile"))
	if err != nil {
		return nil, err
	}
	c.RegridMethod, err = downscale.ParseInterpMethod(cfg.GetString("Regrid.Method"))
	if err != nil {
		return nil, err
	}
	switch c.ModelType {
	case "identity", "biascorrection", "superresolution":
	default:
		return nil, fmt.Errorf("downscale: the Model.Type variable needs to be set to "+
			"identity, biascorrection, or superresolution, but is currently set to `%s`", c.ModelType)
	}
	if c.ModelType != "identity" && c.ModelParamsFile == "" {
		return nil, fmt.Errorf("downscale: Model.Type=%s requires a Model.ParamsFile", c.ModelType)
	}
	if c.Begin, err = parseTime(cfg.GetString("Begin")); err != nil {
		return nil, fmt.Errorf("downscale: parsing Begin: %v", err)
	}
	if c.End, err = parseTime(cfg.GetString("End")); err != nil {
		return nil, fmt.Errorf("downscale: parsing End: %v", err)
	}
	return c, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`downscale: you need to specify an output file configuration variable (for example: OutputFile="downscaled.nc")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("downscale: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// GetStringMapString returns a map[string]string from a viper
// configuration, accounting for the fact that it might be a json object
// if it was set from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			return nil
		}
		return o
	}
	return nil
}
