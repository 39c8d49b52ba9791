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

	"github.com/logannye/emsqrt/internal/pipeline"
)

func newValidateCmd() *cobra.Command {
	var pipelinePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "parse and validate a pipeline document without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pipeline.LoadFile(pipelinePath)
			if err != nil {
				return err
			}
			if _, err := pipeline.Build(doc); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "path to the pipeline YAML document")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck
	return cmd
}
