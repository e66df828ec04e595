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
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/downscale"
)

// Run executes a downscaling run: ingest, align, infer, validate,
// export.
func Run(ctx context.Context, cfg *ConfigData) error {
	log := logrus.StandardLogger()

	registry := downscale.NewVariableRegistry()
	if cfg.VariableDefinitions != "" {
		f, err := os.Open(cfg.VariableDefinitions)
		if err != nil {
			return fmt.Errorf("downscale: while opening variable definitions: %v", err)
		}
		err = registry.LoadOverrides(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"file":     cfg.SourceFile,
		"variable": cfg.Variable,
		"dataset":  cfg.Dataset,
	}).Info("ingesting source field")
	source, err := downscale.ReadFieldNC(cfg.SourceFile, downscale.IngestConfig{
		Variable: cfg.Variable,
		Dataset:  cfg.Dataset,
		Registry: registry,
		Start:    cfg.Begin,
		End:      cfg.End,
	})
	if err != nil {
		return err
	}
	target, err := downscale.ReadGridNC(cfg.TargetGridFile, "target")
	if err != nil {
		return err
	}

	model, err := newModel(cfg, target)
	if err != nil {
		return err
	}

	validator := downscale.NewConsistencyValidator(registry)
	validator.CoverageThreshold = cfg.CoverageThreshold
	validator.BoundsFatalFraction = cfg.BoundsFatalFraction
	validator.SmoothnessFactor = cfg.SmoothnessFactor

	// Forward pipeline progress messages to the logger.
	msgChan := make(chan string)
	go func() {
		for msg := range msgChan {
			log.Info(msg)
		}
	}()
	defer close(msgChan)

	pipe, err := downscale.NewPipeline(downscale.PipelineConfig{
		Source:    source,
		Target:    target,
		Model:     model,
		Method:    cfg.RegridMethod,
		Regrid:    downscale.RegridOptions{MaxSearchRadius: cfg.MaxSearchRadius},
		Cache:     downscale.NewMappingCache(cfg.CacheEntries),
		Validator: validator,
		FailFast:  cfg.FailFast,
		Workers:   cfg.NumProcessors,
		MsgChan:   msgChan,
	})
	if err != nil {
		return err
	}
	report, err := pipe.Run(ctx)
	if report != nil {
		for _, w := range report.Warnings {
			log.Warn(w)
		}
		for _, ts := range report.Timesteps {
			for _, w := range ts.Warnings {
				log.WithField("time", ts.Time).Warn(w)
			}
		}
		log.WithFields(logrus.Fields{
			"status":      report.Status,
			"model":       report.Model,
			"method":      report.Method,
			"timesteps":   len(report.Timesteps),
			"mappedCells": report.MappedCells,
			"cacheHits":   report.Cache.Hits,
			"cacheMisses": report.Cache.Misses,
		}).Info("run finished")
	}
	if err != nil {
		return err
	}

	exporter, err := downscale.NewExporter(cfg.OutputFile, cfg.OutputVariables, nil)
	if err != nil {
		return err
	}
	if err := exporter.Export(pipe.Output()); err != nil {
		return err
	}
	log.WithField("file", cfg.OutputFile).Info("output written")
	return nil
}

// newModel builds the configured downscaling model on the destination
// grid.
func newModel(cfg *ConfigData, target *downscale.GridDefinition) (downscale.Model, error) {
	switch cfg.ModelType {
	case "identity":
		return downscale.NewIdentity(target), nil
	case "biascorrection":
		var p downscale.BiasCorrectionParams
		if err := downscale.LoadParameters(cfg.ModelParamsFile, &p); err != nil {
			return nil, err
		}
		return downscale.NewStatisticalBiasCorrection(target, p)
	case "superresolution":
		var p downscale.SuperResolutionParams
		if err := downscale.LoadParameters(cfg.ModelParamsFile, &p); err != nil {
			return nil, err
		}
		return downscale.NewLearnedSpatialSuperResolution(target, p)
	}
	return nil, fmt.Errorf("downscale: unknown model type %s", cfg.ModelType)
}
