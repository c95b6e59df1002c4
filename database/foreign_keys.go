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
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string
	ConstraintName  string
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement to add the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		sql += fmt.Sprintf(" ON DELETE %s", strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		sql += fmt.Sprintf(" ON UPDATE %s", strings.ToUpper(fk.OnUpdate))
	}
	return sql
}

// ConstraintsFromRegistry derives one constraint per relation descriptor.
func ConstraintsFromRegistry(registry *ModelRegistry) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, d := range registry.Resources() {
		for _, rel := range d.Relations {
			ref := rel.References
			if ref == "" {
				ref = d.PrimaryKey
			}
			out = append(out, ForeignKeyConstraint{
				Table:           rel.Target.Table,
				Column:          rel.ForeignKey,
				ReferenceTable:  d.Table,
				ReferenceColumn: ref,
				OnDelete:        rel.OnDelete,
			})
		}
	}
	return out
}

// LoadForeignKeyConfig reads constraints from a YAML file.
func LoadForeignKeyConfig(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file %s: %w", path, err)
	}
	var cfg ForeignKeyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file %s: %w", path, err)
	}
	out := make([]ForeignKeyConstraint, len(cfg.ForeignKeys))
	for i := range cfg.ForeignKeys {
		out[i] = cfg.ForeignKeys[i].ToForeignKeyConstraint()
	}
	return out, nil
}

// ForeignKeyManager manages adding and validating foreign key constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager creates a manager for the given constraints.
func NewForeignKeyManager(constraints []ForeignKeyConstraint, logger Logger) *ForeignKeyManager {
	if logger == nil {
		logger = NopLogger()
	}
	return &ForeignKeyManager{constraints: constraints, logger: logger}
}

// AddAll adds every constraint. Constraints that already exist are skipped;
// any other failure stops and is returned.
func (fkm *ForeignKeyManager) AddAll(ctx context.Context, db bun.IDB) error {
	if errs := fkm.Validate(); len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	for _, constraint := range fkm.constraints {
		name := constraint.GenerateConstraintName()
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			if ok, kind := IsSqlError(err); ok && (kind == ExistIndexErr || kind == ExistTableErr) {
				fkm.logger.Debug("foreign key constraint already exists", "constraint", name)
				continue
			}
			return fmt.Errorf("failed to add foreign key %s: %w", name, err)
		}
		fkm.logger.Debug("added foreign key constraint", "constraint", name)
	}
	return nil
}

// ByTable returns the constraints defined for a table.
func (fkm *ForeignKeyManager) ByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// Constraints returns all managed constraints.
func (fkm *ForeignKeyManager) Constraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// Validate checks the configured constraints for common issues.
func (fkm *ForeignKeyManager) Validate() []error {
	var errs []error
	for _, constraint := range fkm.constraints {
		if constraint.Table == "" {
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		}
		if constraint.Column == "" {
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", constraint.Table))
		}
		if constraint.ReferenceTable == "" {
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", constraint.Table, constraint.Column))
		}
		if constraint.ReferenceColumn == "" {
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", constraint.Table, constraint.Column, constraint.ReferenceTable))
		}
		if constraint.OnDelete != "" && !validAction(constraint.OnDelete) {
			errs = append(errs, fmt.Errorf("invalid delete policy: %s, constraint: %s", constraint.OnDelete, constraint.GenerateConstraintName()))
		}
	}
	return errs
}

func validAction(action string) bool {
	for _, valid := range []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"} {
		if strings.EqualFold(action, valid) {
			return true
		}
	}
	return false
}
