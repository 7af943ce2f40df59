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

// Package marmot provides a unit of work over generic Bun-backed
// repositories: one logical session, one repository per entity type, staged
// writes flushed atomically, and an optional ambient transaction.
package marmot

import (
	"context"
	"reflect"

	"github.com/tomoncle/marmot/database"
	"github.com/tomoncle/marmot/repository"

	"github.com/uptrace/bun"
)

// UnitOfWork coordinates data access as one logical transactional session.
// It owns the session shared by all of its repositories and caches exactly
// one repository instance per entity type.
//
// Transactions and flushes are independent primitives: Begin/Commit only
// delimit atomicity, SaveChanges sends the staged writes. A transaction with
// no flush inside it commits nothing. A UnitOfWork is not safe for
// concurrent use without external synchronization.
type UnitOfWork struct {
	session *repository.Session
	repos   map[reflect.Type]interface{}
}

// New creates a UnitOfWork bound to the given Bun handle. The handle is
// owned by the caller; Close never closes it.
func New(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{
		session: repository.NewSession(db),
		repos:   make(map[reflect.Type]interface{}),
	}
}

// NewDefault creates a UnitOfWork bound to the global database connection
// initialized via database.InitDB.
func NewDefault() *UnitOfWork {
	return New(database.GetDB())
}

// Repo returns the unit of work's repository for entity type T, constructing
// it on first access. Repeated calls with the same T yield the same instance
// for the life of the UnitOfWork.
func Repo[T any](u *UnitOfWork) (repository.Repository[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := u.repos[typ]; ok {
		return cached.(repository.Repository[T]), nil
	}
	repo, err := repository.NewRepository[T](u.session)
	if err != nil {
		return nil, err
	}
	u.repos[typ] = repo
	return repo, nil
}

// Session exposes the underlying session for advanced callers.
func (u *UnitOfWork) Session() *repository.Session { return u.session }

// SaveChanges flushes all staged writes across every repository sharing the
// session and returns the summed affected-row count. Store errors propagate
// unmodified.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int64, error) {
	return u.session.Flush(ctx)
}

// Begin opens a store-level transaction spanning subsequent repository
// operations. Beginning while a transaction is active overwrites the old
// handle; resolve it first.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	return u.session.Begin(ctx)
}

// Commit finalizes the active transaction; with none active it is a silent
// no-op.
func (u *UnitOfWork) Commit() error { return u.session.Commit() }

// Rollback undoes the active transaction; with none active it is a silent
// no-op.
func (u *UnitOfWork) Rollback() error { return u.session.Rollback() }

// Close tears the unit of work down: any open transaction is rolled back and
// staged state is dropped. Close is idempotent and must be called on every
// exit path, typically via defer.
func (u *UnitOfWork) Close() error { return u.session.Close() }

// Do runs fn inside a transaction-scoped UnitOfWork: the transaction is
// committed when fn returns nil and rolled back otherwise, and the unit of
// work is always closed. fn must still call SaveChanges for its staged
// writes to be part of the transaction.
func Do(ctx context.Context, db *bun.DB, fn func(uow *UnitOfWork) error) error {
	uow := New(db)
	defer func() { _ = uow.Close() }()

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}
