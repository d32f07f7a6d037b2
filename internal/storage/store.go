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
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"

	"davwatch/internal/common"
	"davwatch/internal/util"
)

// Store is the durable record of reported containers and leaves.
// All operations are synchronous: a nil error means the write is committed.
type Store struct {
	path  string
	db    *sql.DB
	bunDB *BunDB
}

// Open opens the state database at path, creating the file and its tables
// if they don't exist. Opening an existing database is a no-op for the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One logical thread of control; a single connection keeps the
	// write ordering simple.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := execStatements(db, stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{path: path, db: db, bunDB: NewBunDB(db)}
	if err := s.checkSchemaInfo(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkSchemaInfo stamps a fresh database and rejects foreign ones.
func (s *Store) checkSchemaInfo(ctx context.Context) error {
	fileType, err := s.bunDB.GetSchemaInfo(ctx, "type")
	if err != nil {
		return fmt.Errorf("failed to read schema info: %w", err)
	}
	switch fileType {
	case "":
		if err := s.bunDB.SetSchemaInfo(ctx, "type", SchemaType); err != nil {
			return fmt.Errorf("failed to write schema info: %w", err)
		}
		if err := s.bunDB.SetSchemaInfo(ctx, "version", SchemaVersion); err != nil {
			return fmt.Errorf("failed to write schema info: %w", err)
		}
	case SchemaType:
	default:
		return fmt.Errorf("not a davwatch database (type=%s)", fileType)
	}
	return nil
}

// Close checkpoints the WAL into the main database and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	// PRAGMA wal_checkpoint returns rows, so use Query() not Exec()
	rows, err := s.db.Query("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		log.Warnf("storage: WAL checkpoint failed: %v", err)
	} else {
		rows.Close()
	}
	err = s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// DB returns the Bun wrapper for direct queries.
func (s *Store) DB() *BunDB {
	return s.bunDB
}

// HasContainer reports whether a container has been reported.
func (s *Store) HasContainer(ctx context.Context, path string) (bool, error) {
	path = common.NormalizePath(path)
	ok, err := util.RetryWithResult(ctx, func() (bool, error) {
		return s.bunDB.FolderExists(ctx, path)
	}, util.StoreRetryOptions(ctx)...)
	if err != nil {
		return false, storeErr("has container", path, err)
	}
	return ok, nil
}

// RecordContainer marks a container as reported.
func (s *Store) RecordContainer(ctx context.Context, path string) error {
	path = common.NormalizePath(path)
	err := util.Retry(ctx, func() error {
		return s.bunDB.InsertFolder(ctx, path)
	}, util.StoreRetryOptions(ctx)...)
	if err != nil {
		return storeErr("record container", path, err)
	}
	return nil
}

// GetLeaf returns the stored record for a leaf.
// Returns common.ErrNotFound if the leaf has never been reported.
func (s *Store) GetLeaf(ctx context.Context, path string) (*FileModel, error) {
	path = common.NormalizePath(path)
	file, err := util.RetryWithResult(ctx, func() (*FileModel, error) {
		return s.bunDB.GetFile(ctx, path)
	}, util.StoreRetryOptions(ctx)...)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get leaf", path, err)
	}
	return file, nil
}

// UpsertLeaf records that a leaf has been reported at lastModified.
func (s *Store) UpsertLeaf(ctx context.Context, path, lastModified, size string) error {
	path = common.NormalizePath(path)
	err := util.Retry(ctx, func() error {
		return s.bunDB.UpsertFile(ctx, &FileModel{Path: path, LastModified: lastModified, Size: size})
	}, util.StoreRetryOptions(ctx)...)
	if err != nil {
		return storeErr("upsert leaf", path, err)
	}
	return nil
}

// ListFolders returns every reported container.
func (s *Store) ListFolders(ctx context.Context) ([]FolderModel, error) {
	folders, err := s.bunDB.ListFolders(ctx)
	if err != nil {
		return nil, storeErr("list folders", "", err)
	}
	return folders, nil
}

// ListLeaves returns every reported leaf.
func (s *Store) ListLeaves(ctx context.Context) ([]FileModel, error) {
	files, err := s.bunDB.ListFiles(ctx)
	if err != nil {
		return nil, storeErr("list leaves", "", err)
	}
	return files, nil
}

// Counts returns the number of reported leaves and containers.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	c, err := s.bunDB.Counts(ctx)
	if err != nil {
		return c, storeErr("count", "", err)
	}
	return c, nil
}

func storeErr(op, path string, err error) error {
	if path == "" {
		return fmt.Errorf("%w: %s: %v", common.ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s %q: %v", common.ErrStore, op, path, err)
}
