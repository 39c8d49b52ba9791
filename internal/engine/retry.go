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

package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/logannye/emsqrt/internal/budget"
	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/exec"
	"github.com/logannye/emsqrt/internal/types"
)

// maxRetries is the retry budget for a Recoverable eval_block error
// (§4.J step 4): up to 3 retries, exponential back-off 2^attempt ms.
const maxRetries = 3

// evalWithRetry calls op.EvalBlock, retrying only errors classified
// emerrors.IsRecoverable with exponential back-off, bounded at maxRetries
// attempts. Any other error (including an exhausted retry budget) is
// returned immediately to abort the run.
func evalWithRetry(op exec.Operator, inputs []types.RowBatch, b *budget.Budget, logger *zap.Logger) (types.RowBatch, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := op.EvalBlock(inputs, b)
		if err == nil {
			return out, nil
		}
		if !emerrors.IsRecoverable(err) {
			return types.RowBatch{}, err
		}
		lastErr = err
		if attempt >= maxRetries {
			return types.RowBatch{}, lastErr
		}
		backoff := time.Duration(1<<uint(attempt+1)) * time.Millisecond
		logger.Warn("retrying recoverable operator error",
			zap.String("operator", op.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		time.Sleep(backoff)
	}
}
