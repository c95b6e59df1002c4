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
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:strata_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name,notnull"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// Migrator creates the schema of a registry inside one storage context.
// Applied versions are recorded so reruns are no-ops.
type Migrator struct {
	sc       *StorageContext
	registry *ModelRegistry
	config   DataMigrateConfig
	logger   Logger
	extra    []MigrationItem
}

// NewMigrator returns a migrator for registry on sc.
func NewMigrator(sc *StorageContext, registry *ModelRegistry, config DataMigrateConfig) *Migrator {
	return &Migrator{sc: sc, registry: registry, config: config, logger: sc.Logger()}
}

// Add appends custom steps. Versions must sort after the built-in ones.
func (m *Migrator) Add(items ...MigrationItem) *Migrator {
	m.extra = append(m.extra, items...)
	return m
}

// Run creates the migration table if needed and executes pending steps
// in ascending version order, each in its own transaction.
func (m *Migrator) Run(ctx context.Context) error {
	db, err := m.sc.DB()
	if err != nil {
		return err
	}
	ctx, cancel := m.sc.Bind(ctx)
	defer cancel()

	if _, err := db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return m.sc.Wrap("strata_migrations", "create", err)
	}

	migrations := m.migrations()
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, migration := range migrations {
		if err := m.runMigration(ctx, db, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	m.logger.Debug("database migrations completed", "steps", len(migrations))
	return nil
}

// Applied returns migration records ordered by version.
func (m *Migrator) Applied(ctx context.Context) ([]Migration, error) {
	db, err := m.sc.DB()
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	err = db.NewSelect().Model(&migrations).Order("version ASC").Scan(ctx)
	return migrations, m.sc.Wrap("strata_migrations", "select", err)
}

func (m *Migrator) migrations() []MigrationItem {
	migrations := []MigrationItem{
		{
			Version:     "001",
			Name:        "create_base_tables",
			Description: "Create base table structure",
			Up:          m.createBaseTables,
		},
	}
	if m.config.EnableForeignKey && !isSQLite(m.sc.config.Type) {
		migrations = append(migrations, MigrationItem{
			Version:     "002",
			Name:        "add_foreign_keys",
			Description: "Add table foreign key constraints",
			Up:          m.addForeignKeys,
		})
	}
	return append(migrations, m.extra...)
}

func (m *Migrator) runMigration(ctx context.Context, db bun.IDB, migration MigrationItem) error {
	exists, err := db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return m.sc.Wrap("strata_migrations", "select", err)
	}
	if exists {
		return nil
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return m.sc.Wrap("strata_migrations", migration.Name, err)
	}
	m.logger.Info("migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

func (m *Migrator) createBaseTables(ctx context.Context, db bun.IDB) error {
	for _, model := range m.registry.Models() {
		if _, err := db.NewCreateTable().Model(model.Instance()).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model.Instance(), err)
		}
	}
	return nil
}

func (m *Migrator) addForeignKeys(ctx context.Context, db bun.IDB) error {
	constraints := ConstraintsFromRegistry(m.registry)
	if m.config.ForeignKeyFile != "" {
		fromFile, err := LoadForeignKeyConfig(m.config.ForeignKeyFile)
		if err != nil {
			return err
		}
		m.logger.Debug("using foreign key constraints from file", "path", m.config.ForeignKeyFile)
		constraints = fromFile
	}
	return NewForeignKeyManager(constraints, m.logger).AddAll(ctx, db)
}
