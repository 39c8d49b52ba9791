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

package exec

import (
	"encoding/json"
	"fmt"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/physical"
)

// Registry maps a physical binding's key (physical.Key*) to the Maker that
// constructs the matching kernel, mirroring the dispatch table tinysql's
// executor builder keeps from plan node tag to executor constructor.
type Registry struct {
	makers map[string]Maker
}

// NewRegistry returns a Registry pre-populated with all nine operator
// kernels named in §4.I.
func NewRegistry() *Registry {
	r := &Registry{makers: make(map[string]Maker, 8)}
	r.Register(physical.KeySource, NewScan)
	r.Register(physical.KeyFilter, NewFilter)
	r.Register(physical.KeyProject, NewProject)
	r.Register(physical.KeyMap, NewMap)
	r.Register(physical.KeyAggregate, NewAggregate)
	r.Register(physical.KeySortExternal, NewExternalSort)
	r.Register(physical.KeyJoinHash, NewHashJoin)
	r.Register(physical.KeyJoinMerge, NewMergeJoin)
	r.Register(physical.KeySink, NewSink)
	return r
}

// Register adds or replaces the Maker for key.
func (r *Registry) Register(key string, maker Maker) {
	r.makers[key] = maker
}

// Make constructs the operator bound to key, threading deps through to the
// kernel constructor.
func (r *Registry) Make(key string, config json.RawMessage, deps Deps) (Operator, error) {
	maker, ok := r.makers[key]
	if !ok {
		return nil, emerrors.New(emerrors.KindConfig, "exec: no operator kernel registered for key %q", key)
	}
	op, err := maker(config, deps)
	if err != nil {
		return nil, emerrors.Wrap(err, fmt.Sprintf("exec: constructing operator %q", key))
	}
	return op, nil
}
