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
)

func newExplainCmd() *cobra.Command {
	var (
		pipelinePath string
		memCapBytes  int64
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "print the work estimate, block plan, and dependency summary for a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flagConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("memory-cap") {
				cfg.MemCapBytes = memCapBytes
			}

			prog, plan, est, err := compile(pipelinePath, cfg)
			if err != nil {
				return err
			}

			fmt.Printf("memory_cap_bytes: %d\n", cfg.MemCapBytes)
			fmt.Printf("work_estimate: total_rows=%d total_bytes=%d max_fan_in=%d confidence=%.2f\n",
				est.TotalRows, est.TotalBytes, est.MaxFanIn, est.Confidence)
			fmt.Printf("rows_per_block: %d\n", plan.BlockSize.RowsPerBlock)
			fmt.Printf("total_blocks: %d\n", len(plan.Order))
			fmt.Printf("max_frontier_hint: %d\n", plan.MaxFrontierHint)
			fmt.Println("blocks:")
			for _, b := range plan.Order {
				key := "?"
				if binding, ok := prog.Bindings[b.Op]; ok {
					key = binding.Key
				}
				fmt.Printf("  block=%d op=%d(%s) deps=%v\n", b.Id, b.Op, key, b.Deps)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "path to the pipeline YAML document")
	cmd.Flags().Int64Var(&memCapBytes, "memory-cap", defaultMemCapBytes, "memory budget in bytes")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck
	return cmd
}
