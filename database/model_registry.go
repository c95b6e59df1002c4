/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomoncle/strata/errors"
)

// SQLModel represents a database model used for automatic migration/initialization.
// Instance should return a struct pointer compatible with Bun, and Priority controls
// ordering when initializing models (lower values first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// Column describes one persisted field.
type Column struct {
	Name     string
	Nullable bool
	Default  string
	Sortable bool
	Mutable  bool
}

// Relation describes a has-many link from the owning resource to Target.
// ForeignKey is the column on Target, References the column on the owner.
type Relation struct {
	Name       string
	Target     *ResourceDescriptor
	ForeignKey string
	References string
	OnDelete   string
}

// SortOrder is one ORDER BY term.
type SortOrder struct {
	Column     string
	Descending bool
}

func (o SortOrder) String() string {
	if o.Descending {
		return o.Column + " DESC"
	}
	return o.Column + " ASC"
}

// ParseSortOrder parses "column", "column ASC" or "column DESC".
func ParseSortOrder(expr string) (SortOrder, error) {
	fields := strings.Fields(expr)
	switch {
	case len(fields) == 1:
		return SortOrder{Column: fields[0]}, nil
	case len(fields) == 2 && strings.EqualFold(fields[1], "asc"):
		return SortOrder{Column: fields[0]}, nil
	case len(fields) == 2 && strings.EqualFold(fields[1], "desc"):
		return SortOrder{Column: fields[0], Descending: true}, nil
	}
	return SortOrder{}, errors.NewArgumentError("order", expr, "expected \"column [ASC|DESC]\"")
}

// ResourceDescriptor is the static schema of one resource: where it lives,
// which columns can be sorted or written, and how it relates to others.
type ResourceDescriptor struct {
	Name             string
	Table            string
	Alias            string
	PrimaryKey       string
	SoftDeleteColumn string
	Columns          []Column
	Relations        []Relation
	DefaultOrder     []SortOrder
	CreateOrder      int
	Model            func() interface{}
}

var _ SQLModel = (*ResourceDescriptor)(nil)

func (d *ResourceDescriptor) Instance() interface{} {
	if d.Model == nil {
		return nil
	}
	return d.Model()
}

func (d *ResourceDescriptor) Priority() int { return d.CreateOrder }

func (d *ResourceDescriptor) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (d *ResourceDescriptor) Relation(name string) (Relation, bool) {
	for _, r := range d.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Sortable reports whether name may appear in an ORDER BY.
func (d *ResourceDescriptor) Sortable(name string) bool {
	c, ok := d.Column(name)
	return ok && c.Sortable
}

// MutableColumns lists the columns an update may write.
func (d *ResourceDescriptor) MutableColumns() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Mutable {
			out = append(out, c.Name)
		}
	}
	return out
}

// ResolvePath walks a dotted relation path such as "Subcategories.Products".
func (d *ResourceDescriptor) ResolvePath(path string) ([]Relation, error) {
	if path == "" {
		return nil, errors.NewArgumentError("relation", path, "empty relation path")
	}
	var (
		out     []Relation
		current = d
	)
	for _, name := range strings.Split(path, ".") {
		rel, ok := current.Relation(name)
		if !ok || rel.Target == nil {
			return nil, errors.NewArgumentError("relation", path, fmt.Sprintf("%s has no relation %q", current.Name, name))
		}
		out = append(out, rel)
		current = rel.Target
	}
	return out, nil
}

// Validate checks the descriptor is internally consistent.
func (d *ResourceDescriptor) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("resource descriptor: name is required")
	case d.Table == "":
		return fmt.Errorf("resource %s: table is required", d.Name)
	case d.PrimaryKey == "":
		return fmt.Errorf("resource %s: primary key is required", d.Name)
	case d.Model == nil:
		return fmt.Errorf("resource %s: model constructor is required", d.Name)
	}
	if _, ok := d.Column(d.PrimaryKey); !ok {
		return fmt.Errorf("resource %s: primary key %s is not a column", d.Name, d.PrimaryKey)
	}
	if d.SoftDeleteColumn != "" {
		if _, ok := d.Column(d.SoftDeleteColumn); !ok {
			return fmt.Errorf("resource %s: soft delete column %s is not a column", d.Name, d.SoftDeleteColumn)
		}
	}
	for _, o := range d.DefaultOrder {
		if !d.Sortable(o.Column) {
			return fmt.Errorf("resource %s: default order column %s is not sortable", d.Name, o.Column)
		}
	}
	for _, r := range d.Relations {
		if r.Target == nil {
			return fmt.Errorf("resource %s: relation %s has no target", d.Name, r.Name)
		}
		if _, ok := r.Target.Column(r.ForeignKey); !ok {
			return fmt.Errorf("resource %s: relation %s foreign key %s not found on %s", d.Name, r.Name, r.ForeignKey, r.Target.Name)
		}
	}
	return nil
}

// ModelRegistry is an ordered set of resource descriptors. Registries are
// built explicitly and handed to factories; there is no global instance.
type ModelRegistry struct {
	resources []*ResourceDescriptor
	mutex     sync.RWMutex
}

// NewModelRegistry registers every descriptor, panicking on an invalid one.
func NewModelRegistry(resources ...*ResourceDescriptor) *ModelRegistry {
	r := &ModelRegistry{}
	for _, d := range resources {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register validates and adds d. Names must be unique.
func (r *ModelRegistry) Register(d *ResourceDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, existing := range r.resources {
		if existing.Name == d.Name {
			return fmt.Errorf("resource %s already registered", d.Name)
		}
	}
	r.resources = append(r.resources, d)
	return nil
}

// Resources returns descriptors sorted by ascending CreateOrder, keeping
// registration order for ties.
func (r *ModelRegistry) Resources() []*ResourceDescriptor {
	if r == nil {
		return nil
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*ResourceDescriptor, len(r.resources))
	copy(result, r.resources)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Models returns the registered resources as SQLModels in creation order.
func (r *ModelRegistry) Models() []SQLModel {
	resources := r.Resources()
	models := make([]SQLModel, len(resources))
	for i, d := range resources {
		models[i] = d
	}
	return models
}

// Lookup finds a descriptor by name.
func (r *ModelRegistry) Lookup(name string) (*ResourceDescriptor, bool) {
	if r == nil {
		return nil, false
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, d := range r.resources {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
