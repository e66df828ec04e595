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
	"testing"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/downscale"
)

func testConfig() *viper.Viper {
	cfg := viper.New()
	cfg.Set("SourceFile", "era5.nc")
	cfg.Set("TargetGridFile", "cerra_grid.nc")
	cfg.Set("OutputFile", "out.nc")
	cfg.Set("Variable", "tas")
	cfg.Set("Dataset", "ERA5")
	cfg.Set("Regrid.Method", "bilinear")
	cfg.Set("Model.Type", "identity")
	cfg.Set("Validate.CoverageThreshold", 0.05)
	cfg.Set("Validate.BoundsFatalFraction", 0.5)
	cfg.Set("Validate.SmoothnessFactor", 3.0)
	return cfg
}

func TestParseConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Set("Begin", "2020-01-01T00:00:00Z")
	c, err := ParseConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.RegridMethod != downscale.Bilinear {
		t.Errorf("method was %v, but should be bilinear", c.RegridMethod)
	}
	if !c.Begin.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("begin was %v, but should be 2020-01-01T00:00:00Z", c.Begin)
	}
	if !c.End.IsZero() {
		t.Errorf("end was %v, but should be unbounded", c.End)
	}
}

func TestParseConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Set("TargetGridFile", "")
	if _, err := ParseConfig(cfg); err == nil {
		t.Error("a missing TargetGridFile should be rejected")
	}

	cfg = testConfig()
	cfg.Set("Regrid.Method", "cubic")
	if _, err := ParseConfig(cfg); err == nil {
		t.Error("an unknown regrid method should be rejected")
	}

	cfg = testConfig()
	cfg.Set("Model.Type", "superresolution") // no params file
	if _, err := ParseConfig(cfg); err == nil {
		t.Error("a parameterized model without a params file should be rejected")
	}

	cfg = testConfig()
	cfg.Set("Begin", "yesterday")
	if _, err := ParseConfig(cfg); err == nil {
		t.Error("an unparsable Begin time should be rejected")
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	cfg.Set("OutputVariables", `{"tas_F": "tas * 9/5 + 32"}`)
	got := GetStringMapString("OutputVariables", cfg)
	if got["tas_F"] != "tas * 9/5 + 32" {
		t.Errorf("map was %v, but should decode the JSON flag value", got)
	}

	cfg.Set("OutputVariables", map[string]interface{}{"a": "b"})
	got = GetStringMapString("OutputVariables", cfg)
	if got["a"] != "b" {
		t.Errorf("map was %v, but should pass through", got)
	}
}
