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
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctessum/sparse"
)

// State is the phase a pipeline run is in.
type State string

// The pipeline states. A run moves Initialized → Aligning → Inferring →
// Validating → Completed; Failed is reachable from any non-terminal
// state.
const (
	Initialized State = "initialized"
	Aligning    State = "aligning"
	Inferring   State = "inferring"
	Validating  State = "validating"
	Completed   State = "completed"
	Failed      State = "failed"
)

// Timestep statuses in a run report.
const (
	TimestepOK       = "ok"
	TimestepDegraded = "degraded" // inference failed; output is no-data
)

// TimestepReport records the outcome of one timestamp of a run.
type TimestepReport struct {
	Time     time.Time
	Status   string
	Error    string
	Warnings []string
}

// Report is the structured result of a pipeline run. A run always
// produces a report, even when it fails; only domain incompatibility or
// stage-contract violations surface as run-level failures.
type Report struct {
	Status    State
	Error     string
	Variable  string
	Model     string
	Method    InterpMethod
	Timesteps []TimestepReport
	Warnings  []string
	Cache     CacheStats

	// MappedCells is the number of target cells the regridding could
	// map; the rest are no-data.
	MappedCells int
}

// PipelineConfig holds everything a pipeline run needs.
type PipelineConfig struct {
	// Source is the coarse-resolution input field.
	Source *FieldStore

	// Target is the fine-resolution destination grid. It must equal
	// Model.Grid().
	Target *GridDefinition

	// Model enhances resolution after alignment.
	Model Model

	// Method is the regridding method used for alignment.
	Method InterpMethod

	// Regrid holds regridding tunables.
	Regrid RegridOptions

	// Cache memoizes the regridding. Required; inject a fresh cache
	// in tests for deterministic hit counts.
	Cache *MappingCache

	// Validator runs the post-hoc consistency checks.
	Validator *ConsistencyValidator

	// FailFast aborts the whole run on the first per-timestamp
	// inference failure instead of degrading that timestamp to
	// no-data.
	FailFast bool

	// Workers bounds the number of concurrent per-timestamp
	// inferences. Zero means GOMAXPROCS.
	Workers int

	// MsgChan receives progress and degradation messages if non-nil.
	MsgChan chan string
}

// Pipeline orchestrates regridding, model inference, and validation over
// a time series. Each Pipeline is good for one Run.
type Pipeline struct {
	cfg PipelineConfig

	mx     sync.Mutex
	state  State
	output *FieldStore
}

// NewPipeline creates a pipeline in the Initialized state. The model's
// grid must equal the target grid; a mismatch is a caller bug, reported
// as a GridMismatchError.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Target == nil || cfg.Model == nil {
		return nil, fmt.Errorf("downscale: pipeline needs a source field, a target grid, and a model")
	}
	if !cfg.Model.Grid().Equal(cfg.Target) {
		return nil, GridMismatchError{Want: cfg.Target.Name(), Have: cfg.Model.Grid().Name()}
	}
	if _, err := ParseInterpMethod(string(cfg.Method)); err != nil {
		return nil, err
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMappingCache(0)
	}
	if cfg.Validator == nil {
		cfg.Validator = NewConsistencyValidator(NewVariableRegistry())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{cfg: cfg, state: Initialized}, nil
}

// State returns the phase the run is currently in.
func (p *Pipeline) State() State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mx.Lock()
	p.state = s
	p.mx.Unlock()
}

// Output returns the downscaled field after a Completed run, or nil.
func (p *Pipeline) Output() *FieldStore {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.output
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.cfg.MsgChan != nil {
		p.cfg.MsgChan <- fmt.Sprintf(format, args...)
	}
}

// Run executes the pipeline. The returned report is non-nil in every
// case, including failure; err is non-nil exactly when the run ends in
// the Failed state. Cancelling ctx stops the run between timestamps;
// in-flight timestamps finish first, and cancellation during validation
// lets validation finish rather than discarding results.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Variable: p.cfg.Source.Variable,
		Model:    p.cfg.Model.Name(),
		Method:   p.cfg.Method,
	}
	fail := func(err error) (*Report, error) {
		p.setState(Failed)
		report.Status = Failed
		report.Error = err.Error()
		report.Cache = p.cfg.Cache.Stats()
		return report, err
	}

	// Aligning: resample the coarse field onto the target grid.
	p.setState(Aligning)
	p.logf("aligning %s from grid %s to grid %s (%s)",
		p.cfg.Source.Variable, p.cfg.Source.Grid.Name(), p.cfg.Target.Name(), p.cfg.Method)
	mapping, err := p.cfg.Cache.Mapping(ctx, p.cfg.Source.Grid, p.cfg.Target, p.cfg.Method, p.cfg.Regrid)
	if err != nil {
		return fail(err)
	}
	report.MappedCells = mapping.MappedCells()
	aligned, err := mapping.Apply(p.cfg.Source)
	if err != nil {
		return fail(err)
	}

	// Inferring: enhance resolution one timestamp at a time.
	p.setState(Inferring)
	out := NewEmptyFieldStore(aligned.Variable, aligned.Units, p.cfg.Target, aligned.Time)
	nt := aligned.Time.Len()
	report.Timesteps = make([]TimestepReport, nt)
	for it := 0; it < nt; it++ {
		report.Timesteps[it] = TimestepReport{Time: aligned.Time.Time(it), Status: TimestepOK}
	}

	if p.cfg.Model.TemporalContext() == 0 {
		err = p.inferParallel(ctx, aligned, out, report.Timesteps)
	} else {
		err = p.inferWindowed(ctx, aligned, out, report.Timesteps)
	}
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Validating: cheap and bounded, so it always runs to completion
	// once started, even under cancellation.
	p.setState(Validating)
	warnings, err := p.cfg.Validator.Check(out, p.cfg.Target)
	if err != nil {
		return fail(err)
	}
	for _, w := range warnings {
		if w.Timestep >= 0 && w.Timestep < nt {
			report.Timesteps[w.Timestep].Warnings = append(report.Timesteps[w.Timestep].Warnings, w.String())
		} else {
			report.Warnings = append(report.Warnings, w.String())
		}
	}

	p.mx.Lock()
	p.state = Completed
	p.output = out
	p.mx.Unlock()
	report.Status = Completed
	report.Cache = p.cfg.Cache.Stats()
	p.logf("completed %s: %d timesteps, %d warnings", out.Variable, nt, len(report.Warnings))
	return report, nil
}

// inferParallel runs independent per-timestamp inferences over a strided
// worker pool. The aligned field and the regridding are shared read-only;
// each worker writes only its own timestamps of out, so no locking is
// needed on the field data.
func (p *Pipeline) inferParallel(ctx context.Context, aligned, out *FieldStore, reports []TimestepReport) error {
	nt := aligned.Time.Len()
	var stop int32
	var failErr error
	var failOnce sync.Once
	var wg sync.WaitGroup
	wg.Add(p.cfg.Workers)
	for pp := 0; pp < p.cfg.Workers; pp++ {
		go func(pp int) {
			defer wg.Done()
			for it := pp; it < nt; it += p.cfg.Workers {
				if ctx.Err() != nil || atomic.LoadInt32(&stop) != 0 {
					return
				}
				if err := p.inferOne(it, aligned, out, reports, nil); err != nil {
					failOnce.Do(func() { failErr = err })
					atomic.StoreInt32(&stop, 1)
					return
				}
			}
		}(pp)
	}
	wg.Wait()
	return failErr
}

// inferWindowed runs inferences in time order, maintaining a bounded ring
// of the previous TemporalContext aligned fields as model context.
func (p *Pipeline) inferWindowed(ctx context.Context, aligned, out *FieldStore, reports []TimestepReport) error {
	n := p.cfg.Model.TemporalContext()
	window := make([]*sparse.DenseArray, 0, n)
	for it := 0; it < aligned.Time.Len(); it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.inferOne(it, aligned, out, reports, window); err != nil {
			return err
		}
		window = append(window, aligned.TimeSlice(it))
		if len(window) > n {
			window = window[1:]
		}
	}
	return nil
}

// inferOne processes a single timestamp. An inference failure or
// non-finite output degrades the timestamp to no-data and is recorded in
// the report; it only propagates as an error when FailFast is set.
func (p *Pipeline) inferOne(it int, aligned, out *FieldStore, reports []TimestepReport, window []*sparse.DenseArray) error {
	t := aligned.Time.Time(it)
	res, err := p.cfg.Model.Infer(t, aligned.TimeSlice(it), window)
	if err == nil && !finite(res) {
		err = fmt.Errorf("downscale: model %s produced non-finite values at %s",
			p.cfg.Model.Name(), t.Format(time.RFC3339))
	}
	if err != nil {
		p.logf("degrading timestep %s: %v", t.Format(time.RFC3339), err)
		reports[it].Status = TimestepDegraded
		reports[it].Error = err.Error()
		out.FillTimeSlice(it)
		if p.cfg.FailFast {
			return err
		}
		return nil
	}
	return out.SetTimeSlice(it, res)
}

// finite reports whether arr is free of infinities. No-data (NaN) cells
// are allowed.
func finite(arr *sparse.DenseArray) bool {
	for _, v := range arr.Elements {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
