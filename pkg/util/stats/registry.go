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

package stats

import (
	"sync"

	"go.uber.org/zap"
)

// LogExporter renders a stats family as loggable fields.
type LogExporter interface {
	Export() []zap.Field
}

// Family groups the attributes registered under one name.  Currently it
// only has LogExporter.
type Family struct {
	logExporter LogExporter
}

type FamilyOption func(*Family)

func WithLogExporter(exporter LogExporter) FamilyOption {
	return func(f *Family) {
		f.logExporter = exporter
	}
}

type Registry struct {
	mu       sync.Mutex
	families map[string]*Family
}

// DefaultRegistry is the process wide registry.
var DefaultRegistry Registry

// Register adds a family under name.  Registering a name again replaces
// the earlier family.
func (r *Registry) Register(name string, opts ...FamilyOption) {
	f := &Family{}
	for _, opt := range opts {
		opt(f)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.families == nil {
		r.families = make(map[string]*Family)
	}
	r.families[name] = f
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.families, name)
}

// ExportLog gathers every family's loggable fields.
func (r *Registry) ExportLog() map[string][]zap.Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make(map[string][]zap.Field, len(r.families))
	for name, family := range r.families {
		if family.logExporter == nil {
			continue
		}
		ret[name] = family.logExporter.Export()
	}
	return ret
}

func Register(name string, opts ...FamilyOption) {
	DefaultRegistry.Register(name, opts...)
}

func Unregister(name string) {
	DefaultRegistry.Unregister(name)
}
