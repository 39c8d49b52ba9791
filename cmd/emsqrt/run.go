// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/cost"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/engine"
	"github.com/logannye/emsqrt/internal/physical"
	"github.com/logannye/emsqrt/internal/pipeline"
	"github.com/logannye/emsqrt/internal/spill"
	"github.com/logannye/emsqrt/internal/te"
	"github.com/logannye/emsqrt/internal/types"
)

func newRunCmd() *cobra.Command {
	var (
		pipelinePath string
		memCapBytes  int64
		spillDir     string
		maxParallel  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a pipeline to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flagConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("memory-cap") {
				cfg.MemCapBytes = memCapBytes
			}
			if cmd.Flags().Changed("spill-dir") {
				cfg.SpillDir = spillDir
			}
			if cmd.Flags().Changed("max-parallel") {
				cfg.MaxParallel = maxParallel
			}

			prog, plan, _, err := compile(pipelinePath, cfg)
			if err != nil {
				return err
			}

			opts := engine.Options{Budget: budget.New(uint64(cfg.MemCapBytes)), Logger: logger}
			if cfg.SpillDir != "" {
				store, err := spill.NewFileStore(cfg.SpillDir)
				if err != nil {
					return emerrors.Wrap(err, "opening spill dir "+cfg.SpillDir)
				}
				codec, err := spill.ParseCodec(cfg.Codec)
				if err != nil {
					return err
				}
				opts.Spill = spill.NewManager(store, codec)
			}

			manifest, err := engine.Run(prog, plan, opts)
			if err != nil {
				return err
			}
			fmt.Printf("duration_ms=%d plan_hash=%s te_hash=%s\n",
				manifest.FinishedMs-manifest.StartedMs, manifest.PlanHash, manifest.TEHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "path to the pipeline YAML document")
	cmd.Flags().Int64Var(&memCapBytes, "memory-cap", defaultMemCapBytes, "memory budget in bytes")
	cmd.Flags().StringVar(&spillDir, "spill-dir", "", "directory for spilled segments (empty disables spilling)")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 1, "maximum frontier parallelism (currently single-threaded, §5)")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck
	return cmd
}

// compile turns a pipeline document on disk into a ready-to-run
// (PhysicalProgram, te.Plan, WorkEstimate) triple, the shared path
// run/explain both need.
func compile(pipelinePath string, cfg config) (*physical.PhysicalProgram, *te.Plan, cost.WorkEstimate, error) {
	doc, err := pipeline.LoadFile(pipelinePath)
	if err != nil {
		return nil, nil, cost.WorkEstimate{}, err
	}
	plan, err := pipeline.Build(doc)
	if err != nil {
		return nil, nil, cost.WorkEstimate{}, err
	}

	ids := types.NewIDAllocator()
	prog, err := physical.Lower(plan, ids)
	if err != nil {
		return nil, nil, cost.WorkEstimate{}, err
	}

	est := cost.Estimate(prog.Root.Logical)
	tePlan, err := te.PlanTE(prog, est, cfg.MemCapBytes, nil, types.NewIDAllocator())
	if err != nil {
		return nil, nil, cost.WorkEstimate{}, err
	}
	return prog, tePlan, est, nil
}
