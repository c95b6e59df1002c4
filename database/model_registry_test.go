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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/strata/errors"
)

func TestRegistryOrdersByCreateOrder(t *testing.T) {
	gadgets, parts := testDescriptors()
	r := NewModelRegistry(parts, gadgets)

	resources := r.Resources()
	require.Len(t, resources, 2)
	assert.Equal(t, "gadget", resources[0].Name)
	assert.Equal(t, "gadget_part", resources[1].Name)

	found, ok := r.Lookup("gadget_part")
	require.True(t, ok)
	assert.Same(t, parts, found)

	assert.Error(t, r.Register(gadgets), "duplicate names are rejected")
}

func TestDescriptorHelpers(t *testing.T) {
	gadgets, _ := testDescriptors()

	assert.True(t, gadgets.Sortable("name"))
	assert.False(t, gadgets.Sortable("deleted"))
	assert.False(t, gadgets.Sortable("nope"))
	assert.Equal(t, []string{"name"}, gadgets.MutableColumns())

	path, err := gadgets.ResolvePath("Parts")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, "gadget_parts", path[0].Target.Table)

	_, err = gadgets.ResolvePath("Parts.Screws")
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestDescriptorValidate(t *testing.T) {
	gadgets, _ := testDescriptors()
	require.NoError(t, gadgets.Validate())

	broken := *gadgets
	broken.SoftDeleteColumn = "removed"
	assert.Error(t, broken.Validate())

	broken = *gadgets
	broken.DefaultOrder = []SortOrder{{Column: "deleted"}}
	assert.Error(t, broken.Validate())

	broken = *gadgets
	broken.Model = nil
	assert.Error(t, broken.Validate())
}

func TestParseSortOrder(t *testing.T) {
	o, err := ParseSortOrder("name DESC")
	require.NoError(t, err)
	assert.Equal(t, SortOrder{Column: "name", Descending: true}, o)
	assert.Equal(t, "name DESC", o.String())

	o, err = ParseSortOrder("id")
	require.NoError(t, err)
	assert.Equal(t, "id ASC", o.String())

	_, err = ParseSortOrder("name sideways")
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestConstraintsFromRegistry(t *testing.T) {
	gadgets, parts := testDescriptors()
	constraints := ConstraintsFromRegistry(NewModelRegistry(gadgets, parts))
	require.Len(t, constraints, 1)

	fk := constraints[0]
	assert.Equal(t, "fk_gadget_parts_gadget_id", fk.GenerateConstraintName())
	assert.Equal(t,
		"ALTER TABLE gadget_parts ADD CONSTRAINT fk_gadget_parts_gadget_id FOREIGN KEY (gadget_id) REFERENCES gadgets(id) ON DELETE CASCADE",
		fk.GenerateSQL())
	assert.Empty(t, NewForeignKeyManager(constraints, nil).Validate())
}

func TestLoadForeignKeyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
foreign_keys:
  - table: gadget_parts
    column: gadget_id
    reference_table: gadgets
    reference_column: id
    on_delete: explode
`), 0o644))

	constraints, err := LoadForeignKeyConfig(path)
	require.NoError(t, err)
	m := NewForeignKeyManager(constraints, nil)
	assert.Len(t, m.ByTable("GADGET_PARTS"), 1)
	assert.Len(t, m.Validate(), 1)
}
