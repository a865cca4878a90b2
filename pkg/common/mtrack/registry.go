// Copyright 2024 LunarisDB
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

package mtrack

import (
	"encoding/json"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/logutil"
)

// globalPools holds every live SharedPool by name, for ReportMemUsage.
var globalPools sync.Map

func registerPool(p *SharedPool) error {
	if _, loaded := globalPools.LoadOrStore(p.name, p); loaded {
		return mqerr.NewInvalidStateNoCtx("memory pool %s already registered", p.name)
	}
	return nil
}

// GetPool returns the registered pool of that name, or nil.
func GetPool(name string) *SharedPool {
	v, ok := globalPools.Load(name)
	if !ok {
		return nil
	}
	return v.(*SharedPool)
}

// DeletePool closes the pool and removes it from the registry.  An
// outstanding balance is the owner's bug, it is logged and the bytes
// are gone.
func DeletePool(p *SharedPool) {
	if p == nil {
		return
	}
	p.Close()
	globalPools.Delete(p.name)
	if inuse := p.InUse(); inuse != 0 {
		logutil.Warnf("delete memory pool %s with %d bytes still in use", p.name, inuse)
	}
}

// ReportMemUsage returns a json report of the named pool, or of every
// registered pool when name is empty.
func ReportMemUsage(name string) string {
	var usages []PoolUsage
	globalPools.Range(func(_, v any) bool {
		p := v.(*SharedPool)
		if len(name) == 0 || p.name == name {
			usages = append(usages, p.usage())
		}
		return true
	})
	slices.SortFunc(usages, func(a, b PoolUsage) bool {
		return a.Name < b.Name
	})
	data, err := json.Marshal(usages)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
