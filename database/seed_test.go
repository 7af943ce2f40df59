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
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func openSeedDB(t *testing.T, name string) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite error: %v", err)
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writeSeedFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file error: %v", err)
	}
}

func TestSeedManagerExecutesFilesInOrder(t *testing.T) {
	root := t.TempDir()
	writeSeedFile(t, filepath.Join(root, "common"), "001_schema.sql", `
-- base schema
CREATE TABLE seed_items (id INTEGER PRIMARY KEY, label TEXT NOT NULL);
INSERT INTO seed_items (label) VALUES ('common-a');
`)
	writeSeedFile(t, filepath.Join(root, "common"), "002_more.sql", `
INSERT INTO seed_items (label) VALUES ('common-b');
`)
	writeSeedFile(t, filepath.Join(root, "environments", "testenv"), "001_env.sql", `
INSERT INTO seed_items (label) VALUES ('env-a');
`)
	// another environment must not be picked up
	writeSeedFile(t, filepath.Join(root, "environments", "prod"), "001_env.sql", `
INSERT INTO seed_items (label) VALUES ('prod-a');
`)

	db := openSeedDB(t, "seed_order")
	seeder := NewSeedManager(db, "testenv")
	seeder.SetSQLRootPath(root)

	files, err := seeder.GetSQLFiles()
	if err != nil {
		t.Fatalf("get sql files error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
	if files[0].Environment != "common" || files[1].Environment != "common" || files[2].Environment != "testenv" {
		t.Errorf("file order wrong: %+v", files)
	}
	if files[0].Order != 1 || files[1].Order != 2 {
		t.Errorf("numeric prefix order wrong: %d, %d", files[0].Order, files[1].Order)
	}

	if err := seeder.ExecuteInitialization(); err != nil {
		t.Fatalf("execute initialization error: %v", err)
	}

	var labels []string
	if err := db.NewSelect().Table("seed_items").Column("label").Order("id ASC").Scan(context.Background(), &labels); err != nil {
		t.Fatalf("select error: %v", err)
	}
	if len(labels) != 3 {
		t.Fatalf("got %d rows, want 3", len(labels))
	}
	if labels[0] != "common-a" || labels[1] != "common-b" || labels[2] != "env-a" {
		t.Errorf("labels = %v, want common-a, common-b, env-a", labels)
	}
}

func TestSeedManagerMissingRootIsNoOp(t *testing.T) {
	db := openSeedDB(t, "seed_missing")
	seeder := NewSeedManager(db, "testenv")
	seeder.SetSQLRootPath(filepath.Join(t.TempDir(), "does-not-exist"))

	if err := seeder.ExecuteInitialization(); err != nil {
		t.Errorf("missing seed root should be a no-op, got %v", err)
	}
}

func TestSeedManagerFailureStopsRun(t *testing.T) {
	root := t.TempDir()
	writeSeedFile(t, filepath.Join(root, "common"), "001_bad.sql", `
INSERT INTO missing_table (x) VALUES (1);
`)
	writeSeedFile(t, filepath.Join(root, "common"), "002_never.sql", `
CREATE TABLE never_created (id INTEGER PRIMARY KEY);
`)

	db := openSeedDB(t, "seed_failure")
	seeder := NewSeedManager(db, "testenv")
	seeder.SetSQLRootPath(root)

	if err := seeder.ExecuteInitialization(); err == nil {
		t.Fatal("seeding against a missing table should fail")
	}

	exists, err := tableExists(db, "never_created")
	if err != nil {
		t.Fatalf("table lookup error: %v", err)
	}
	if exists {
		t.Error("files after the failing one must not execute")
	}
}

func tableExists(db *bun.DB, name string) (bool, error) {
	var count int
	err := db.NewSelect().
		Table("sqlite_master").
		ColumnExpr("count(*)").
		Where("type = 'table' AND name = ?", name).
		Scan(context.Background(), &count)
	return count > 0, err
}

func TestSplitSQLStatements(t *testing.T) {
	seeder := NewSeedManager(nil, "testenv")
	statements := seeder.splitSQLStatements(`
-- comment line
CREATE TABLE t (id INTEGER);

INSERT INTO t (id)
VALUES (1);
INSERT INTO t (id) VALUES (2);
`)
	if len(statements) != 3 {
		t.Fatalf("got %d statements, want 3: %v", len(statements), statements)
	}
	if statements[1] != "INSERT INTO t (id) VALUES (1);" {
		t.Errorf("multi-line statement joined wrong: %q", statements[1])
	}
}
