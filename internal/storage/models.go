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
	"github.com/uptrace/bun"
)

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// FileModel represents a row of the files table: a leaf that has been
// reported at LastModified.
type FileModel struct {
	bun.BaseModel `bun:"table:files"`

	Path         string `bun:"path,pk"`
	LastModified string `bun:"last_modified"` // opaque token, compared for equality only
	Size         string `bun:"size"`
}

// FolderModel represents a row of the folders table. Its existence is the
// "already reported" flag for a container.
type FolderModel struct {
	bun.BaseModel `bun:"table:folders"`

	Path string `bun:"path,pk"`
}

// Counts summarizes the contents of the state database.
type Counts struct {
	Files   int
	Folders int
}
