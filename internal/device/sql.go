// Copyright 2025 lxfs Authors
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

package device

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// pageSize is the row granularity of the SQLite backend. Independent of the
// filesystem block size; block I/O is translated into page spans here.
const pageSize = 4096

// sqlBusyTimeout in milliseconds.
const sqlBusyTimeout = 30000

type pageModel struct {
	bun.BaseModel `bun:"table:pages"`

	Idx  int64  `bun:"idx,pk"`
	Data []byte `bun:"data,notnull"`
}

type metaModel struct {
	bun.BaseModel `bun:"table:meta"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// SQLDevice is a volume image stored as pages in a SQLite database. Sparse:
// pages that were never written read back as zeros.
type SQLDevice struct {
	path string
	db   *sql.DB
	bun  *bun.DB
	size int64
}

var _ Device = (*SQLDevice)(nil)

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	return rows.Close()
}

// applyPragmas sets essential PRAGMAs after opening a libsql connection.
// libsql ignores DSN-based _pragma=value parameters, so all PRAGMAs must be
// set explicitly via SQL statements after the connection is opened.
func applyPragmas(db *sql.DB) error {
	// Busy timeout first: journal_mode=WAL below needs exclusive access and
	// should wait for locks instead of failing immediately.
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", sqlBusyTimeout)); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous=NORMAL: %w", err)
	}
	return nil
}

const sqlDeviceSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
	idx INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);
`

func openSQLDB(path string) (*sql.DB, *bun.DB, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open device database: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, bun.NewDB(db, sqlitedialect.New()), nil
}

// CreateSQL creates a new SQLite-backed volume image of the given byte size.
func CreateSQL(path string, size int64) (*SQLDevice, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("volume image already exists: %s", path)
	}

	db, bunDB, err := openSQLDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqlDeviceSchema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create device schema: %w", err)
	}

	ctx := context.Background()
	for _, kv := range []metaModel{
		{Key: "type", Value: "lxfs-device"},
		{Key: "size", Value: strconv.FormatInt(size, 10)},
	} {
		if _, err := bunDB.NewInsert().Model(&kv).Exec(ctx); err != nil {
			db.Close()
			os.Remove(path)
			return nil, fmt.Errorf("failed to write device metadata: %w", err)
		}
	}

	return &SQLDevice{path: path, db: db, bun: bunDB, size: size}, nil
}

// OpenSQL opens an existing SQLite-backed volume image.
func OpenSQL(path string) (*SQLDevice, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("volume image not found: %s", path)
	}

	db, bunDB, err := openSQLDB(path)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var meta metaModel
	if err := bunDB.NewSelect().Model(&meta).Where("key = ?", "type").Scan(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read device metadata: %w", err)
	}
	if meta.Value != "lxfs-device" {
		db.Close()
		return nil, fmt.Errorf("not an lxfs device image (type=%s)", meta.Value)
	}

	var sizeMeta metaModel
	if err := bunDB.NewSelect().Model(&sizeMeta).Where("key = ?", "size").Scan(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read device size: %w", err)
	}
	size, err := strconv.ParseInt(sizeMeta.Value, 10, 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("corrupt device size %q: %w", sizeMeta.Value, err)
	}

	return &SQLDevice{path: path, db: db, bun: bunDB, size: size}, nil
}

func (d *SQLDevice) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("device read out of range: off=%d len=%d size=%d", off, len(p), d.size)
	}
	if len(p) == 0 {
		return nil
	}

	// Unwritten pages read as zeros.
	for i := range p {
		p[i] = 0
	}

	ctx := context.Background()
	firstPage := off / pageSize
	lastPage := (off + int64(len(p)) - 1) / pageSize

	var pages []pageModel
	err := d.bun.NewSelect().
		Model(&pages).
		Where("idx BETWEEN ? AND ?", firstPage, lastPage).
		Order("idx ASC").
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("device read error: %w", err)
	}

	for _, page := range pages {
		pageStart := page.Idx * pageSize
		src := page.Data
		dstOff := pageStart - off
		srcOff := int64(0)
		if dstOff < 0 {
			srcOff = -dstOff
			dstOff = 0
		}
		if srcOff >= int64(len(src)) {
			continue
		}
		copy(p[dstOff:], src[srcOff:])
	}
	return nil
}

func (d *SQLDevice) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("device write out of range: off=%d len=%d size=%d", off, len(p), d.size)
	}
	if len(p) == 0 {
		return nil
	}

	ctx := context.Background()
	err := d.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pos := int64(0)
		for pos < int64(len(p)) {
			pageIdx := (off + pos) / pageSize
			pageOff := (off + pos) % pageSize
			span := pageSize - pageOff
			if rest := int64(len(p)) - pos; rest < span {
				span = rest
			}

			buf := make([]byte, pageSize)
			if pageOff != 0 || span != pageSize {
				// Partial page write: merge with the existing page.
				var existing pageModel
				err := tx.NewSelect().Model(&existing).Where("idx = ?", pageIdx).Scan(ctx)
				if err != nil && err != sql.ErrNoRows {
					return err
				}
				copy(buf, existing.Data)
			}
			copy(buf[pageOff:], p[pos:pos+span])

			_, err := tx.NewInsert().
				Model(&pageModel{Idx: pageIdx, Data: buf}).
				On("CONFLICT (idx) DO UPDATE").
				Set("data = EXCLUDED.data").
				Exec(ctx)
			if err != nil {
				return err
			}
			pos += span
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("device write error: %w", err)
	}
	return nil
}

// Sync checkpoints the WAL so committed pages reach the main database file.
func (d *SQLDevice) Sync() error {
	return execPragma(d.db, "PRAGMA wal_checkpoint(FULL)")
}

func (d *SQLDevice) Size() int64 {
	return d.size
}

func (d *SQLDevice) Close() error {
	if d.db == nil {
		return nil
	}
	// Merge the WAL before closing; the -wal/-shm siblings are removed so the
	// image stays a single file.
	_ = execPragma(d.db, "PRAGMA wal_checkpoint(TRUNCATE)")
	err := d.db.Close()
	os.Remove(d.path + "-wal")
	os.Remove(d.path + "-shm")
	return err
}
