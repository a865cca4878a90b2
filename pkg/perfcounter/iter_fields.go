// Copyright 2023 LunarisDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package perfcounter

import (
	"reflect"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/util/stats"
)

var counterType = reflect.TypeOf(stats.Counter{})

// IterFields visits every counter in the set, depth first, with its
// field path.
func (c *CounterSet) IterFields(fn func(path []string, counter *stats.Counter) error) error {
	return iterFields(reflect.ValueOf(c).Elem(), nil, fn)
}

func iterFields(v reflect.Value, path []string, fn func(path []string, counter *stats.Counter) error) error {
	t := v.Type()
	if t == counterType {
		return fn(path, v.Addr().Interface().(*stats.Counter))
	}
	if t.Kind() != reflect.Struct {
		return mqerr.NewInternalErrorNoCtx("unexpected counter set field kind: %v", t.Kind())
	}
	for i := 0; i < t.NumField(); i++ {
		sub := append(path[:len(path):len(path)], t.Field(i).Name)
		if err := iterFields(v.Field(i), sub, fn); err != nil {
			return err
		}
	}
	return nil
}
