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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

var fileOrderPattern = regexp.MustCompile(`^(\d+)_`)

// Seeder discovers ordered SQL files and executes them, one transaction
// per file. Files live under <root>/common and <root>/environments/<env>.
type Seeder struct {
	sc          *StorageContext
	environment string
	root        string
	logger      Logger
}

// SQLFileInfo describes a SQL file to be executed during seeding.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// ExecutionResult contains the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
	Statements   int
}

// NewSeeder creates a seeder for cfg. An empty root defaults to
// "configs/sql" and an empty environment to "development".
func NewSeeder(sc *StorageContext, cfg DataInitConfig) *Seeder {
	s := &Seeder{sc: sc, environment: cfg.Environment, root: cfg.Filepath, logger: sc.Logger()}
	if s.root == "" {
		s.root = "configs/sql"
	}
	if s.environment == "" {
		s.environment = "development"
	}
	return s
}

// Run executes every discovered file and stops at the first failure.
func (s *Seeder) Run(ctx context.Context) ([]ExecutionResult, error) {
	db, err := s.sc.DB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.sc.Bind(ctx)
	defer cancel()

	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	results := make([]ExecutionResult, 0, len(files))
	for _, file := range files {
		result, err := s.executeFile(ctx, db, file)
		if err != nil {
			s.logger.Error("sql file execution failed", "file", file.Path, "error", err)
			return results, fmt.Errorf("sql file execution failed %s: %w", file.Path, err)
		}
		s.logger.Debug("sql file executed",
			"file", result.File,
			"duration", result.Duration.String(),
			"rows_affected", result.RowsAffected,
		)
		results = append(results, result)
	}
	s.logger.Info("sql seeding completed", "files", len(results), "environment", s.environment)
	return results, nil
}

// Files returns common files first, then the environment's, each group
// ordered by its numeric prefix.
func (s *Seeder) Files() ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	commonDir := filepath.Join(s.root, "common")
	if _, err := os.Stat(commonDir); err == nil {
		commonFiles, err := filesFromDir(commonDir, "common")
		if err != nil {
			return nil, fmt.Errorf("failed to list common sql files: %w", err)
		}
		files = append(files, commonFiles...)
	}

	envDir := filepath.Join(s.root, "environments", s.environment)
	if _, err := os.Stat(envDir); err == nil {
		envFiles, err := filesFromDir(envDir, s.environment)
		if err != nil {
			return nil, fmt.Errorf("failed to list environment sql files: %w", err)
		}
		files = append(files, envFiles...)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == "common"
		}
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func filesFromDir(dir, environment string) ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, SQLFileInfo{
			Path:        path,
			Name:        d.Name(),
			Order:       fileOrder(d.Name()),
			Environment: environment,
			ModTime:     info.ModTime(),
		})
		return nil
	})
	return files, err
}

// fileOrder reads the NNN_ prefix; unnumbered files run last.
func fileOrder(filename string) int {
	if m := fileOrderPattern.FindStringSubmatch(filename); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

func (s *Seeder) executeFile(ctx context.Context, db bun.IDB, file SQLFileInfo) (ExecutionResult, error) {
	start := time.Now()
	result := ExecutionResult{File: file.Path}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		return result, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)
	if strings.Contains(text, "{{") {
		if text, err = s.expandTemplate(text); err != nil {
			return result, err
		}
	}
	statements := splitSQLStatements(text)
	result.Statements = len(statements)
	if len(statements) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute statement %q: %w", stmt, err)
			}
			n, _ := res.RowsAffected()
			result.RowsAffected += n
		}
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, s.sc.Wrap(file.Name, "seed", err)
	}
	return result, nil
}

// expandTemplate substitutes {{.VAR}} with environment variables, plus
// ENVIRONMENT and TIMESTAMP.
func (s *Seeder) expandTemplate(content string) (string, error) {
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, env := range os.Environ() {
		if k, v, ok := strings.Cut(env, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// splitSQLStatements splits on trailing semicolons and drops "--" comment
// lines. Statements spanning lines are joined with a space.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
