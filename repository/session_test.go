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

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/tomoncle/marmot/database"
	"github.com/tomoncle/marmot/types"
)

func TestStagingDecoupledFromFlush(t *testing.T) {
	session, repo := newUserRepo(t)
	ctx := context.Background()

	repo.Insert(&testUser{Name: "jack", Email: "jack@example.com", Age: 30})
	if session.StagedCount() != 1 {
		t.Fatalf("staged count = %d, want 1", session.StagedCount())
	}

	// nothing hits the store before the flush
	total, err := repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if total != 0 {
		t.Fatalf("count before flush = %d, want 0", total)
	}

	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if affected < 1 {
		t.Errorf("affected = %d, want >= 1", affected)
	}

	total, err = repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if total != 1 {
		t.Errorf("count after flush = %d, want 1", total)
	}
}

func TestInsertAssignsKeyAndStaysTracked(t *testing.T) {
	session, repo := newUserRepo(t)
	ctx := context.Background()

	user := repo.Insert(&testUser{Name: "rose", Email: "rose@example.com"})
	if _, err := session.Flush(ctx); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if user.ID == 0 {
		t.Error("primary key not assigned on insert")
	}
	if !session.Tracks(user) {
		t.Error("inserted entity should stay tracked after flush")
	}

	// a second flush with no further changes writes nothing
	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("second flush error: %v", err)
	}
	if affected != 0 {
		t.Errorf("second flush affected = %d, want 0", affected)
	}
}

func TestTrackedMutationFlushed(t *testing.T) {
	session, repo := newUserRepo(t)
	seedUsers(t, session, repo, 1)
	ctx := context.Background()

	user, err := repo.First(ctx, types.NewQuery().Where("name = ?", "user-001"))
	if err != nil || user == nil {
		t.Fatalf("first error: %v (user %v)", err, user)
	}

	user.Age = 99
	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}

	reloaded := reloadUser(t, user.ID)
	if reloaded.Age != 99 {
		t.Errorf("reloaded age = %d, want 99", reloaded.Age)
	}
}

func TestNoTrackingMutationIgnored(t *testing.T) {
	session, repo := newUserRepo(t)
	seedUsers(t, session, repo, 1)
	ctx := context.Background()

	user, err := repo.First(ctx, types.NewQuery().Where("name = ?", "user-001").NoTracking())
	if err != nil || user == nil {
		t.Fatalf("first error: %v (user %v)", err, user)
	}
	if session.Tracks(user) {
		t.Fatal("no-tracking read should not track the entity")
	}

	user.Age = 99
	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if affected != 0 {
		t.Errorf("affected = %d, want 0", affected)
	}

	reloaded := reloadUser(t, user.ID)
	if reloaded.Age == 99 {
		t.Error("mutation of untracked entity must not be persisted")
	}
}

func TestUpdateFieldsPartialUpdate(t *testing.T) {
	session, repo := newUserRepo(t)
	seedUsers(t, session, repo, 1)
	ctx := context.Background()

	user, err := repo.First(ctx, types.NewQuery().Where("name = ?", "user-001"))
	if err != nil || user == nil {
		t.Fatalf("first error: %v (user %v)", err, user)
	}
	originalAge := user.Age

	// both fields change in memory, only Name is staged
	user.Name = "renamed"
	user.Age = 99
	if err := repo.UpdateFields(user, "Name"); err != nil {
		t.Fatalf("update fields error: %v", err)
	}
	if _, err := session.Flush(ctx); err != nil {
		t.Fatalf("flush error: %v", err)
	}

	reloaded := reloadUser(t, user.ID)
	if reloaded.Name != "renamed" {
		t.Errorf("reloaded name = %q, want renamed", reloaded.Name)
	}
	if reloaded.Age != originalAge {
		t.Errorf("reloaded age = %d, want untouched %d", reloaded.Age, originalAge)
	}
}

func TestUpdateFieldsAcceptsColumnName(t *testing.T) {
	session, repo := newUserRepo(t)
	seedUsers(t, session, repo, 1)
	ctx := context.Background()

	user, err := repo.First(ctx, nil)
	if err != nil || user == nil {
		t.Fatalf("first error: %v (user %v)", err, user)
	}
	user.Age = 55
	if err := repo.UpdateFields(user, "age"); err != nil {
		t.Fatalf("update fields by column name error: %v", err)
	}
	if _, err := session.Flush(ctx); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if reloaded := reloadUser(t, user.ID); reloaded.Age != 55 {
		t.Errorf("reloaded age = %d, want 55", reloaded.Age)
	}
}

func TestUpdateFieldsRejectsInvalidNames(t *testing.T) {
	_, repo := newUserRepo(t)
	user := &testUser{ID: 1, Name: "jack"}

	cases := []struct {
		name   string
		fields []string
	}{
		{"unknown field", []string{"NotAField"}},
		{"empty name", []string{""}},
		{"nested path", []string{"Orders.Amount"}},
		{"expression", []string{"lower(name)"}},
		{"no fields", nil},
	}
	for _, c := range cases {
		if err := repo.UpdateFields(user, c.fields...); !errors.Is(err, ErrInvalidField) {
			t.Errorf("%s: error = %v, want ErrInvalidField", c.name, err)
		}
	}
}

func TestRemoveUnpersistedInsertIsForgotten(t *testing.T) {
	session, repo := newUserRepo(t)
	ctx := context.Background()

	user := repo.Insert(&testUser{Name: "ghost", Email: "ghost@example.com"})
	repo.Remove(user)
	if session.StagedCount() != 0 {
		t.Errorf("staged count = %d, want 0", session.StagedCount())
	}

	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if affected != 0 {
		t.Errorf("affected = %d, want 0", affected)
	}
}

func TestAttachThenMutate(t *testing.T) {
	session, repo := newUserRepo(t)
	users := seedUsers(t, session, repo, 1)
	ctx := context.Background()

	// simulate an entity obtained elsewhere
	detached := &testUser{ID: users[0].ID, Name: users[0].Name, Email: users[0].Email, Age: users[0].Age}
	repo.Attach(detached)

	affected, err := session.Flush(ctx)
	if err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if affected != 0 {
		t.Errorf("attach without mutation affected = %d, want 0", affected)
	}

	detached.Name = "updated"
	if _, err := session.Flush(ctx); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if reloaded := reloadUser(t, detached.ID); reloaded.Name != "updated" {
		t.Errorf("reloaded name = %q, want updated", reloaded.Name)
	}
}

func TestFlushErrorKeepsStagedState(t *testing.T) {
	session, repo := newUserRepo(t)
	seedUsers(t, session, repo, 1)
	ctx := context.Background()

	dup := repo.Insert(&testUser{Name: "dup", Email: "user-001@example.com"})
	if _, err := session.Flush(ctx); err == nil {
		t.Fatal("flush with duplicate email should fail")
	} else if !database.IsDuplicateKey(err) {
		t.Errorf("error not classified as duplicate key: %v", err)
	}

	// staged state survives the failed flush and succeeds after the fix
	if session.StagedCount() != 2 {
		t.Errorf("staged count after failed flush = %d, want 2", session.StagedCount())
	}
	dup.Email = "dup@example.com"
	if _, err := session.Flush(ctx); err != nil {
		t.Fatalf("flush after fix error: %v", err)
	}
	if total, err := repo.Count(ctx, nil); err != nil || total != 2 {
		t.Errorf("count = %d (err %v), want 2", total, err)
	}
}

func TestSessionCloseIdempotentAndDropsState(t *testing.T) {
	session, repo := newUserRepo(t)

	repo.Insert(&testUser{Name: "staged", Email: "staged@example.com"})
	if err := session.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if session.StagedCount() != 0 {
		t.Errorf("staged count after close = %d, want 0", session.StagedCount())
	}
	if err := session.Close(); err != nil {
		t.Errorf("second close error: %v", err)
	}
}

func TestSessionTxHandle(t *testing.T) {
	session, _ := newUserRepo(t)
	ctx := context.Background()

	if session.HasTx() {
		t.Fatal("fresh session should have no transaction")
	}
	if err := session.Commit(); err != nil {
		t.Errorf("commit without transaction = %v, want nil", err)
	}
	if err := session.Rollback(); err != nil {
		t.Errorf("rollback without transaction = %v, want nil", err)
	}

	if err := session.Begin(ctx); err != nil {
		t.Fatalf("begin error: %v", err)
	}
	if !session.HasTx() {
		t.Fatal("transaction should be active after begin")
	}
	if err := session.Commit(); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if session.HasTx() {
		t.Error("transaction handle should be cleared after commit")
	}
}

// reloadUser reads a user through a fresh session so in-memory state of the
// test session cannot mask what was actually persisted.
func reloadUser(t *testing.T, id int64) *testUser {
	t.Helper()
	db := openTestDB(t)
	fresh := NewSession(db)
	defer func() { _ = fresh.Close() }()
	repo, err := NewRepository[testUser](fresh)
	if err != nil {
		t.Fatalf("new repository error: %v", err)
	}
	user, err := repo.First(context.Background(), types.NewQuery().Where("tu.id = ?", id).NoTracking())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if user == nil {
		t.Fatalf("user %d not found on reload", id)
	}
	return user
}
