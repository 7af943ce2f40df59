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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
)

// ErrInvalidField reports a field name that does not resolve to a direct
// struct field of the entity model.
var ErrInvalidField = errors.New("invalid field name")

type entityState int

const (
	stateUnchanged entityState = iota
	stateAdded
	stateModified
	stateRemoved
)

// trackedEntry records one staged or tracked entity. The snapshot is a copy
// of the struct value taken when tracking started; it is compared against the
// live value at flush time to detect in-place mutations.
type trackedEntry struct {
	model    interface{}
	state    entityState
	columns  []string
	snapshot reflect.Value
}

// Session is one logical unit-of-work session: it holds the Bun handle, the
// optional active transaction, and the set of staged changes shared by every
// repository bound to it.
//
// A Session is not safe for concurrent use by multiple goroutines; callers
// that share one must synchronize externally.
type Session struct {
	db      *bun.DB
	tx      *bun.Tx
	entries map[interface{}]*trackedEntry
	order   []interface{}
	closed  bool
}

// NewSession creates a session bound to the given Bun handle. The handle is
// created and owned externally; closing the session never closes it.
func NewSession(db *bun.DB) *Session {
	return &Session{
		db:      db,
		entries: make(map[interface{}]*trackedEntry),
	}
}

// DB returns the underlying Bun handle.
func (s *Session) DB() *bun.DB { return s.db }

// IDB returns the handle queries should run on: the active transaction when
// one is open, the plain connection otherwise.
func (s *Session) IDB() bun.IDB {
	if s.tx != nil {
		return *s.tx
	}
	return s.db
}

// HasTx reports whether a transaction is currently active.
func (s *Session) HasTx() bool { return s.tx != nil }

// Begin opens a new store-level transaction. A previously active transaction
// handle is overwritten without being resolved; callers must commit or roll
// back before beginning again.
func (s *Session) Begin(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = &tx
	return nil
}

// Commit finalizes the active transaction and clears it. With no active
// transaction it does nothing and returns nil.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback undoes the active transaction and clears it. With no active
// transaction it does nothing and returns nil.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// Close releases the session: any open transaction is rolled back and all
// staged state is dropped. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	s.entries = make(map[interface{}]*trackedEntry)
	s.order = nil
	return err
}

// StagedCount returns the number of entities currently tracked or staged.
func (s *Session) StagedCount() int { return len(s.entries) }

// Tracks reports whether the given entity pointer is tracked by the session.
func (s *Session) Tracks(model interface{}) bool {
	_, ok := s.entries[model]
	return ok
}

func (s *Session) entry(model interface{}) *trackedEntry {
	if e, ok := s.entries[model]; ok {
		return e
	}
	e := &trackedEntry{model: model, state: stateUnchanged}
	s.entries[model] = e
	s.order = append(s.order, model)
	return e
}

func (s *Session) stageInsert(model interface{}) {
	e := s.entry(model)
	e.state = stateAdded
	e.columns = nil
}

func (s *Session) stageUpdate(model interface{}) {
	e := s.entry(model)
	if e.state == stateAdded {
		return
	}
	e.state = stateModified
	e.columns = nil
}

func (s *Session) stageUpdateColumns(model interface{}, columns []string) {
	e := s.entry(model)
	switch e.state {
	case stateAdded:
		// full insert already covers every column
	case stateModified:
		if e.columns != nil {
			e.columns = mergeColumns(e.columns, columns)
		}
	default:
		e.state = stateModified
		e.columns = columns
	}
}

func (s *Session) stageRemove(model interface{}) {
	e, ok := s.entries[model]
	if ok && e.state == stateAdded {
		// never persisted, forget it entirely
		s.drop(model)
		return
	}
	e = s.entry(model)
	e.state = stateRemoved
	e.columns = nil
}

// attach registers an existing entity without staging changes, taking a
// snapshot for later dirty checking. Already-tracked entities keep their
// current state and snapshot.
func (s *Session) attach(model interface{}) {
	if _, ok := s.entries[model]; ok {
		return
	}
	e := s.entry(model)
	e.snapshot = snapshotOf(model)
}

// track is attach for query results; split out so read paths stay explicit.
func (s *Session) track(model interface{}) {
	s.attach(model)
}

func (s *Session) drop(model interface{}) {
	delete(s.entries, model)
	for i, key := range s.order {
		if key == model {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Flush sends every staged change to the store in staging order and returns
// the summed affected-row count. When no ambient transaction is open the
// whole batch runs in its own transaction so the flush is atomic. Store
// errors propagate unmodified and leave the staged state untouched.
func (s *Session) Flush(ctx context.Context) (int64, error) {
	if s.tx != nil {
		return s.flush(ctx, *s.tx)
	}
	var affected int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := s.flush(ctx, tx)
		affected = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *Session) flush(ctx context.Context, idb bun.IDB) (int64, error) {
	var affected int64
	for _, key := range s.order {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		var res sql.Result
		var err error
		switch e.state {
		case stateAdded:
			res, err = idb.NewInsert().Model(e.model).Exec(ctx)
		case stateModified:
			q := idb.NewUpdate().Model(e.model).WherePK()
			if len(e.columns) > 0 {
				q = q.Column(e.columns...)
			}
			res, err = q.Exec(ctx)
		case stateRemoved:
			res, err = idb.NewDelete().Model(e.model).WherePK().Exec(ctx)
		default:
			cols := s.changedColumns(e)
			if len(cols) == 0 {
				continue
			}
			res, err = idb.NewUpdate().Model(e.model).Column(cols...).WherePK().Exec(ctx)
		}
		if err != nil {
			return 0, err
		}
		if res != nil {
			if n, rowsErr := res.RowsAffected(); rowsErr == nil {
				affected += n
			}
		}
	}
	s.settle()
	return affected, nil
}

// settle resets staged state after a fully successful flush: removed entries
// are dropped, everything else stays tracked as unchanged with a fresh
// snapshot.
func (s *Session) settle() {
	order := make([]interface{}, 0, len(s.order))
	for _, key := range s.order {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		if e.state == stateRemoved {
			delete(s.entries, key)
			continue
		}
		e.state = stateUnchanged
		e.columns = nil
		e.snapshot = snapshotOf(e.model)
		order = append(order, key)
	}
	s.order = order
}

// changedColumns compares a tracked entity against its snapshot and returns
// the columns whose values differ. Primary key columns are never included.
func (s *Session) changedColumns(e *trackedEntry) []string {
	if !e.snapshot.IsValid() {
		return nil
	}
	table := s.db.Table(reflect.TypeOf(e.model).Elem())
	strct := reflect.ValueOf(e.model).Elem()
	var cols []string
	for _, f := range table.DataFields {
		cur := f.Value(strct)
		old := f.Value(e.snapshot)
		if !reflect.DeepEqual(cur.Interface(), old.Interface()) {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// resolveColumns maps entity field names (Go field names or column names) to
// column names, validating each against the model schema.
func (s *Session) resolveColumns(model interface{}, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidField)
	}
	typ := reflect.TypeOf(model)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	table := s.db.Table(typ)
	cols := make([]string, 0, len(fields))
	for _, name := range fields {
		if name == "" || strings.ContainsAny(name, ".() ") {
			return nil, fmt.Errorf("%w: %q is not a direct field of %s", ErrInvalidField, name, table.TypeName)
		}
		var col string
		for _, f := range table.Fields {
			if f.GoName == name || f.Name == name {
				col = f.Name
				break
			}
		}
		if col == "" {
			return nil, fmt.Errorf("%w: %q does not name a column of %s", ErrInvalidField, name, table.TypeName)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func mergeColumns(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range append(append([]string{}, a...), b...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func snapshotOf(model interface{}) reflect.Value {
	v := reflect.ValueOf(model).Elem()
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}
