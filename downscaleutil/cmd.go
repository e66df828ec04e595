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

	"github.com/lnashier/viper"
	"github.com/spatialmodel/downscale"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Downscale.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SourceFile",
			usage: `
              SourceFile is the path to the NetCDF file holding the
              coarse-resolution source dataset. Can include environment
              variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "TargetGridFile",
			usage: `
              TargetGridFile is the path to a NetCDF file whose coordinate
              axes define the fine-resolution destination grid. Can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the downscaled NetCDF output
              will be saved. Can include environment variables.`,
			defaultVal: "downscaled.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables maps the names of the variables for which
              data should be written to expressions defining how they are
              calculated from the downscaled field, for example
              {"tas_F": "tas * 9/5 + 32"}. If empty, the downscaled field
              is written unchanged.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Variable",
			usage: `
              Variable is the canonical name of the variable to downscale
              (e.g. tas, pr).`,
			shorthand:  "v",
			defaultVal: "tas",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Dataset",
			usage: `
              Dataset identifies the source dataset (e.g. ERA5, CERRA) for
              native variable name resolution.`,
			defaultVal: "ERA5",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "VariableDefinitions",
			usage: `
              VariableDefinitions is the path to an optional YAML file
              overriding the built-in variable registry (units, valid
              ranges, dataset aliases).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Begin",
			usage: `
              Begin bounds the timestamps to ingest (inclusive), in RFC3339
              format (e.g. 2020-01-01T00:00:00Z). Empty means unbounded.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "End",
			usage: `
              End bounds the timestamps to ingest (inclusive), in RFC3339
              format. Empty means unbounded.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Regrid.Method",
			usage: `
              Regrid.Method selects the spatial alignment method: nearest,
              bilinear, or conservative.`,
			defaultVal: "bilinear",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Regrid.MaxSearchRadius",
			usage: `
              Regrid.MaxSearchRadius is the maximum distance, in target
              grid coordinate units, that nearest-neighbor regridding will
              search for a valid source cell. Zero uses twice the source
              cell size.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Model.Type",
			usage: `
              Model.Type selects the downscaling model: identity,
              biascorrection, or superresolution.`,
			shorthand:  "m",
			defaultVal: "identity",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Model.ParamsFile",
			usage: `
              Model.ParamsFile is the path to the Gob-format parameter file
              for the biascorrection and superresolution models. Can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Validate.CoverageThreshold",
			usage: `
              Validate.CoverageThreshold is the no-data fraction above
              which the validator warns about incomplete coverage.`,
			defaultVal: 0.05,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Validate.BoundsFatalFraction",
			usage: `
              Validate.BoundsFatalFraction is the fraction of cells outside
              the variable's physical range above which validation fails
              the run instead of warning.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Validate.SmoothnessFactor",
			usage: `
              Validate.SmoothnessFactor is the number of standard
              deviations a timestep-to-timestep mean change may reach
              before it is flagged as a temporal discontinuity.`,
			defaultVal: 3.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FailFast",
			usage: `
              FailFast aborts the whole run on the first per-timestamp
              inference failure instead of degrading that timestamp to
              no-data.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NumProcessors",
			usage: `
              NumProcessors bounds the number of concurrent per-timestamp
              inferences. Zero uses all available processors.`,
			shorthand:  "n",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CacheEntries",
			usage: `
              CacheEntries is the number of regridding mappings to hold in
              the in-memory cache.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("DOWNSCALE")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(gridCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("downscale: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "downscale",
	Short: "A spatio-temporal downscaling engine for gridded fields.",
	Long: `Downscale regrids coarse-resolution gridded geophysical fields onto a
finer destination grid and enhances them with a downscaling model.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'DOWNSCALE_var' where 'var'
is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Downscale.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Downscale v%s\n", downscale.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Downscale a variable onto the destination grid.",
	Long: `run ingests the configured variable from the source dataset, aligns it
with the destination grid, applies the downscaling model, validates the
result, and writes the output variables to a NetCDF file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ParseConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd.Context(), cfg)
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Describe the destination grid.",
	Long: `grid reads the destination grid definition from TargetGridFile and
prints a summary of its coverage and resolution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ParseConfig(Cfg)
		if err != nil {
			return err
		}
		grid, err := downscale.ReadGridNC(cfg.TargetGridFile, "target")
		if err != nil {
			return err
		}
		ny, nx := grid.Shape()
		b := grid.Bounds()
		cmd.Printf("grid: %d×%d cells\n", ny, nx)
		cmd.Printf("cell size: %g × %g\n", grid.Dx(), grid.Dy())
		cmd.Printf("bounds: (%g, %g) – (%g, %g)\n", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
		cmd.Printf("projection: %s\n", grid.ProjString())
		return nil
	},
	DisableAutoGenTag: true,
}
