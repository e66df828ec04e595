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
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

// flakyModel fails inference at one configured timestamp and copies its
// input otherwise.
type flakyModel struct {
	grid   *GridDefinition
	failAt time.Time
}

func (m *flakyModel) Name() string          { return "flaky" }
func (m *flakyModel) Grid() *GridDefinition { return m.grid }
func (m *flakyModel) TemporalContext() int  { return 0 }

func (m *flakyModel) Infer(t time.Time, field *sparse.DenseArray, _ []*sparse.DenseArray) (*sparse.DenseArray, error) {
	if t.Equal(m.failAt) {
		return nil, fmt.Errorf("flaky model failure at %v", t)
	}
	return field.Copy(), nil
}

func newTestPipeline(t *testing.T, cfg PipelineConfig) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// Downscaling a field onto its own grid with the identity model must be a
// no-op.
func TestPipelineIdentity(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, 3))
	for i := range fs.Data.Elements {
		fs.Data.Elements[i] = 10 + float64(i%7)
	}
	p := newTestPipeline(t, PipelineConfig{
		Source: fs,
		Target: grid,
		Model:  NewIdentity(grid),
		Method: Nearest,
	})
	if p.State() != Initialized {
		t.Errorf("state was %v, but should be %v", p.State(), Initialized)
	}
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != Completed || p.State() != Completed {
		t.Fatalf("run ended in state %v / report %v, but should be completed", p.State(), report.Status)
	}
	out := p.Output()
	if out == nil {
		t.Fatal("a completed run should have output")
	}
	for i, v := range out.Data.Elements {
		if different(v, fs.Data.Elements[i]) {
			t.Errorf("element %d was %g, but should be %g", i, v, fs.Data.Elements[i])
		}
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings were %v, but an identity run should be clean", report.Warnings)
	}
	for it, ts := range report.Timesteps {
		if ts.Status != TimestepOK {
			t.Errorf("timestep %d was %v, but should be ok", it, ts.Status)
		}
	}
	if report.MappedCells != 16 {
		t.Errorf("%d cells mapped, but should be 16", report.MappedCells)
	}
	if report.Cache.Misses != 1 {
		t.Errorf("cache misses were %d, but should be 1", report.Cache.Misses)
	}
}

func TestPipelineEmptyTimeAxis(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	fs := NewEmptyFieldStore("tas", "degC", grid, testAxis(t, 0))
	p := newTestPipeline(t, PipelineConfig{
		Source: fs,
		Target: grid,
		Model:  NewIdentity(grid),
		Method: Bilinear,
	})
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != Completed {
		t.Errorf("status was %v, but an empty run should complete", report.Status)
	}
	if len(report.Timesteps) != 0 || len(report.Warnings) != 0 {
		t.Errorf("report was %+v, but should have no timesteps and no warnings", report)
	}
}

func TestPipelineDisjointDomains(t *testing.T) {
	source := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	target := testGrid(t, "target", 100.5, 100.5, 1, 4, 4)
	fs := NewConstantFieldStore("tas", "degC", source, testAxis(t, 2), 10)
	p := newTestPipeline(t, PipelineConfig{
		Source: fs,
		Target: target,
		Model:  NewIdentity(target),
		Method: Conservative,
	})
	report, err := p.Run(context.Background())
	var incErr IncompatibleDomainError
	if !errors.As(err, &incErr) {
		t.Fatalf("disjoint domains should give an IncompatibleDomainError; got %v", err)
	}
	if report.Status != Failed || p.State() != Failed {
		t.Errorf("run ended in state %v / report %v, but should be failed", p.State(), report.Status)
	}
	if report.Error == "" {
		t.Error("a failed report should carry the error message")
	}
	if p.Output() != nil {
		t.Error("a failed run should have no output")
	}
}

func TestPipelineModelGridMismatch(t *testing.T) {
	source := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	target := testGrid(t, "target", 0.25, 0.25, 0.5, 8, 8)
	fs := NewConstantFieldStore("tas", "degC", source, testAxis(t, 1), 10)
	_, err := NewPipeline(PipelineConfig{
		Source: fs,
		Target: target,
		Model:  NewIdentity(source), // wrong grid
		Method: Nearest,
	})
	var gmErr GridMismatchError
	if !errors.As(err, &gmErr) {
		t.Fatalf("a model on the wrong grid should give a GridMismatchError; got %v", err)
	}
}

// An inference failure degrades that timestamp to no-data; the rest of
// the run carries on.
func TestPipelineDegradedTimestep(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	axis := testAxis(t, 3)
	fs := NewConstantFieldStore("tas", "degC", grid, axis, 10)
	msgChan := make(chan string, 16)
	p := newTestPipeline(t, PipelineConfig{
		Source:  fs,
		Target:  grid,
		Model:   &flakyModel{grid: grid, failAt: axis.Time(1)},
		Method:  Nearest,
		MsgChan: msgChan,
	})
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != Completed {
		t.Fatalf("status was %v, but a degraded run should still complete", report.Status)
	}
	if report.Timesteps[0].Status != TimestepOK ||
		report.Timesteps[1].Status != TimestepDegraded ||
		report.Timesteps[2].Status != TimestepOK {
		t.Errorf("timestep statuses were %v %v %v, but should be ok degraded ok",
			report.Timesteps[0].Status, report.Timesteps[1].Status, report.Timesteps[2].Status)
	}
	if report.Timesteps[1].Error == "" {
		t.Error("the degraded timestep should carry its error")
	}
	out := p.Output()
	for iy := 0; iy < 4; iy++ {
		for ix := 0; ix < 4; ix++ {
			if !IsNoData(out.At(1, iy, ix)) {
				t.Fatal("the degraded timestamp should be entirely no-data")
			}
			if different(out.At(0, iy, ix), 10) || different(out.At(2, iy, ix), 10) {
				t.Fatal("healthy timestamps should be untouched")
			}
		}
	}
	// A third of the cells are empty, so coverage must warn.
	if !hasRunWarning(report.Warnings, "coverage") {
		t.Errorf("warnings were %v, but should include a coverage warning", report.Warnings)
	}
}

func TestPipelineFailFast(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	axis := testAxis(t, 3)
	fs := NewConstantFieldStore("tas", "degC", grid, axis, 10)
	p := newTestPipeline(t, PipelineConfig{
		Source:   fs,
		Target:   grid,
		Model:    &flakyModel{grid: grid, failAt: axis.Time(1)},
		Method:   Nearest,
		FailFast: true,
	})
	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("fail-fast should surface the inference error")
	}
	if report.Status != Failed {
		t.Errorf("status was %v, but should be failed", report.Status)
	}
}

func TestPipelineCancellation(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	fs := NewConstantFieldStore("tas", "degC", grid, testAxis(t, 4), 10)
	p := newTestPipeline(t, PipelineConfig{
		Source: fs,
		Target: grid,
		Model:  NewIdentity(grid),
		Method: Nearest,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.Run(ctx)
	if err == nil {
		t.Fatal("a cancelled run should fail")
	}
	if report.Status != Failed {
		t.Errorf("status was %v, but should be failed", report.Status)
	}
}

// Models with temporal context run serially over a sliding window of
// previous aligned fields.
func TestPipelineWindowedModel(t *testing.T) {
	grid := testGrid(t, "g", 0.5, 0.5, 1, 4, 4)
	axis := testAxis(t, 3)
	fs := NewEmptyFieldStore("tas", "degC", grid, axis)
	for it := 0; it < 3; it++ {
		for iy := 0; iy < 4; iy++ {
			for ix := 0; ix < 4; ix++ {
				fs.Set(float64(10*(it+1)), it, iy, ix)
			}
		}
	}
	kernel := sparse.ZerosDense(1, 1)
	kernel.Elements[0] = 1
	model, err := NewLearnedSpatialSuperResolution(grid, SuperResolutionParams{
		Kernel:        kernel,
		ContextSteps:  1,
		ContextWeight: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := newTestPipeline(t, PipelineConfig{
		Source: fs,
		Target: grid,
		Model:  model,
		Method: Nearest,
	})
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != Completed {
		t.Fatalf("status was %v, but should be completed", report.Status)
	}
	out := p.Output()
	// t0 has no context; t1 blends 20 with 10; t2 blends 30 with 20.
	want := []float64{10, 15, 25}
	for it, w := range want {
		if v := out.At(it, 0, 0); different(v, w) {
			t.Errorf("timestep %d was %g, but should be %g", it, v, w)
		}
	}
}

func hasRunWarning(warnings []string, prefix string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}
