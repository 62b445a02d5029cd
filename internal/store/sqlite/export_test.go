// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite

import "context"

// TableExists exposes a sqlite_master lookup for white-box schema tests.
var TableExists = func(ctx context.Context, s *Store, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DocumentsTableName exposes per-tool table naming for schema tests.
var DocumentsTableName = documentsTable

// VectorsTableName exposes per-tool table naming for schema tests.
var VectorsTableName = vectorsTable
