// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const toolColumns = `id, name, description, source_directory, is_active, schema_version, created_at, updated_at`

// Register validates inputs, inserts the catalog row, and provisions the
// tool's documents/vectors tables in a single transaction.
func (s *Store) Register(ctx context.Context, name, description, sourceDir string) (*store.Tool, error) {
	if err := store.ValidateToolName(name); err != nil {
		return nil, err
	}
	sourceDir, err := store.ResolveSourceDirectory(sourceDir)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const ins = `INSERT INTO tools (name, description, source_directory, is_active, schema_version, created_at, updated_at)
VALUES (?, ?, ?, 1, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins,
		name, description, sourceDir, store.CurrentSchemaVersion, formatTime(now), formatTime(now))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, grimerr.Errorf(grimerr.CodeRegistryToolConflict, "tool %q already exists", name)
		}
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "inserting tool %s: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "reading tool id: %w", err)
	}

	for _, ddl := range toolSchemaDDL(id) {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "provisioning schema for tool %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "committing tool registration: %w", err)
	}

	return &store.Tool{
		ID:              id,
		Name:            name,
		Description:     description,
		SourceDirectory: sourceDir,
		Active:          true,
		SchemaVersion:   store.CurrentSchemaVersion,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// toolSchemaDDL returns the statements creating one tool's table pair and
// indexes. Identifiers embed the integer tool id only.
func toolSchemaDDL(toolID int64) []string {
	docs := documentsTable(toolID)
	vecs := vectorsTable(toolID)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_id      INTEGER NOT NULL,
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content      TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	FOREIGN KEY (tool_id) REFERENCES tools(id) ON DELETE CASCADE
)`, docs),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_path_hash ON %s(tool_id, file_path, content_hash)`, docs, docs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tool_path ON %s(tool_id, file_path)`, docs, docs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tool ON %s(tool_id)`, docs, docs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_id        INTEGER NOT NULL,
	document_id    INTEGER NOT NULL,
	chunk_text     TEXT NOT NULL,
	start_position INTEGER NOT NULL,
	end_position   INTEGER NOT NULL,
	embedding      BLOB NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (tool_id) REFERENCES tools(id) ON DELETE CASCADE,
	FOREIGN KEY (document_id) REFERENCES %s(id) ON DELETE CASCADE
)`, vecs, docs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s(embedding)`, vecs, vecs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tool_doc ON %s(tool_id, document_id)`, vecs, vecs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_position ON %s(document_id, start_position, end_position)`, vecs, vecs),
	}
}

// Resolve returns the tool by exact name, checking that its stored schema
// version is one this build understands.
func (s *Store) Resolve(ctx context.Context, name string) (*store.Tool, error) {
	q := `SELECT ` + toolColumns + ` FROM tools WHERE name = ?`

	tool, err := scanTool(s.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, grimerr.Errorf(grimerr.CodeRegistryToolNotFound, "tool %q not found", name)
	}
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "resolving tool %s: %w", name, err)
	}

	if tool.SchemaVersion > store.CurrentSchemaVersion {
		return nil, grimerr.Errorf(grimerr.CodeRegistrySchemaIncompatible,
			"tool %q uses schema version %d, this build supports up to %d",
			name, tool.SchemaVersion, store.CurrentSchemaVersion)
	}

	return tool, nil
}

// List returns tools in creation order, skipping inactive ones unless asked.
func (s *Store) List(ctx context.Context, includeInactive bool) ([]*store.Tool, error) {
	q := `SELECT ` + toolColumns + ` FROM tools`
	if !includeInactive {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "listing tools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tools []*store.Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "scanning tool row: %w", err)
		}
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "iterating tool rows: %w", err)
	}

	return tools, nil
}

// Update applies the non-nil fields. No fields set is a successful no-op.
func (s *Store) Update(ctx context.Context, name string, upd store.ToolUpdate) (*store.Tool, error) {
	if upd.Description == nil && upd.SourceDirectory == nil {
		return s.Resolve(ctx, name)
	}

	if upd.SourceDirectory != nil {
		abs, err := store.ResolveSourceDirectory(*upd.SourceDirectory)
		if err != nil {
			return nil, err
		}
		upd.SourceDirectory = &abs
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.SourceDirectory != nil {
		sets = append(sets, "source_directory = ?")
		args = append(args, *upd.SourceDirectory)
	}
	args = append(args, name)

	res, err := s.db.ExecContext(ctx, `UPDATE tools SET `+strings.Join(sets, ", ")+` WHERE name = ?`, args...)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "updating tool %s: %w", name, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "checking rows affected for tool %s: %w", name, err)
	}
	if rows == 0 {
		return nil, grimerr.Errorf(grimerr.CodeRegistryToolNotFound, "tool %q not found", name)
	}

	return s.Resolve(ctx, name)
}

// SetActive flips the active flag; stored documents are untouched.
func (s *Store) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tools SET is_active = ?, updated_at = ? WHERE name = ?`,
		active, formatTime(time.Now()), name)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "setting active for tool %s: %w", name, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "checking rows affected for tool %s: %w", name, err)
	}
	if rows == 0 {
		return grimerr.Errorf(grimerr.CodeRegistryToolNotFound, "tool %q not found", name)
	}
	return nil
}

// Delete removes the catalog row and drops both per-tool tables in one
// transaction.
func (s *Store) Delete(ctx context.Context, name string) error {
	tool, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}

	lock := s.toolLock(tool.ID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Vectors reference documents; drop them first.
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+vectorsTable(tool.ID)); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "dropping vectors table for tool %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+documentsTable(tool.ID)); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "dropping documents table for tool %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, tool.ID); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "deleting tool %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "committing tool deletion: %w", err)
	}
	return nil
}

// scanner is the common subset of sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row scanner) (*store.Tool, error) {
	var tool store.Tool
	var createdAt, updatedAt string

	err := row.Scan(
		&tool.ID,
		&tool.Name,
		&tool.Description,
		&tool.SourceDirectory,
		&tool.Active,
		&tool.SchemaVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	tool.CreatedAt = parseTime(createdAt)
	tool.UpdatedAt = parseTime(updatedAt)
	return &tool, nil
}
