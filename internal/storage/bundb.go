// Copyright 2026 Davwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"davwatch/internal/common"
)

// BunDB wraps a Bun database instance for type-safe queries.
type BunDB struct {
	*bun.DB
}

// NewBunDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewBunDB(sqlDB *sql.DB) *BunDB {
	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	return &BunDB{DB: bunDB}
}

// --- Schema info ---

// GetSchemaInfo retrieves a schema info value by key.
func (db *BunDB) GetSchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := db.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// SetSchemaInfo sets a schema info value (upserts).
func (db *BunDB) SetSchemaInfo(ctx context.Context, key, value string) error {
	_, err := db.NewInsert().
		Model(&SchemaInfoModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// --- Folder Operations ---

// FolderExists reports whether a folder row exists for path.
func (db *BunDB) FolderExists(ctx context.Context, path string) (bool, error) {
	return db.NewSelect().
		Model((*FolderModel)(nil)).
		Where("path = ?", path).
		Exists(ctx)
}

// InsertFolder records a folder. Inserting an existing path is a no-op.
func (db *BunDB) InsertFolder(ctx context.Context, path string) error {
	_, err := db.NewInsert().
		Model(&FolderModel{Path: path}).
		On("CONFLICT (path) DO NOTHING").
		Exec(ctx)
	return err
}

// ListFolders returns all folder rows ordered by path.
func (db *BunDB) ListFolders(ctx context.Context) ([]FolderModel, error) {
	var folders []FolderModel
	err := db.NewSelect().
		Model(&folders).
		Order("path ASC").
		Scan(ctx)
	return folders, err
}

// --- File Operations ---

// GetFile retrieves a file row by path.
// Returns common.ErrNotFound if no row exists.
func (db *BunDB) GetFile(ctx context.Context, path string) (*FileModel, error) {
	var file FileModel
	err := db.NewSelect().
		Model(&file).
		Where("path = ?", path).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// UpsertFile inserts a file row or updates its last_modified and size.
func (db *BunDB) UpsertFile(ctx context.Context, file *FileModel) error {
	_, err := db.NewInsert().
		Model(file).
		On("CONFLICT (path) DO UPDATE").
		Set("last_modified = EXCLUDED.last_modified").
		Set("size = EXCLUDED.size").
		Exec(ctx)
	return err
}

// ListFiles returns all file rows ordered by path.
func (db *BunDB) ListFiles(ctx context.Context) ([]FileModel, error) {
	var files []FileModel
	err := db.NewSelect().
		Model(&files).
		Order("path ASC").
		Scan(ctx)
	return files, err
}

// Counts returns the number of file and folder rows.
func (db *BunDB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	n, err := db.NewSelect().Model((*FileModel)(nil)).Count(ctx)
	if err != nil {
		return c, err
	}
	c.Files = n
	n, err = db.NewSelect().Model((*FolderModel)(nil)).Count(ctx)
	if err != nil {
		return c, err
	}
	c.Folders = n
	return c, nil
}
