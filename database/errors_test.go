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
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsSqlErrorMySQLNumbers(t *testing.T) {
	cases := []struct {
		number uint16
		want   SQLError
	}{
		{1062, DuplicateKeyErr},
		{1054, NoColumnErr},
		{1048, NotNullViolationErr},
		{1452, ForeignKeyViolationErr},
		{1146, NoTableErr},
		{1050, ExistTableErr},
		{1265, DataTruncatedErr},
		{9999, UnknownErr},
	}
	for _, c := range cases {
		err := &mysql.MySQLError{Number: c.number, Message: "test"}
		is, kind := IsSqlError(err)
		if !is || kind != c.want {
			t.Errorf("IsSqlError(mysql %d) = (%v, %v), want (true, %v)", c.number, is, kind, c.want)
		}
	}
}

func TestIsSqlErrorWrappedMySQLError(t *testing.T) {
	err := fmt.Errorf("insert user: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	is, kind := IsSqlError(err)
	if !is || kind != DuplicateKeyErr {
		t.Errorf("wrapped mysql error = (%v, %v), want (true, DuplicateKeyErr)", is, kind)
	}
}

func TestIsSqlErrorMessages(t *testing.T) {
	cases := []struct {
		msg  string
		want SQLError
	}{
		{"constraint failed: UNIQUE constraint failed: users.email (2067)", DuplicateKeyErr},
		{"ERROR: duplicate key value violates unique constraint \"users_pkey\" (SQLSTATE 23505)", DuplicateKeyErr},
		{"no such table: users", NoTableErr},
		{"ERROR: relation \"users\" does not exist (SQLSTATE 42P01)", NoTableErr},
		{"no such column: nickname", NoColumnErr},
		{"NOT NULL constraint failed: users.name", NotNullViolationErr},
		{"FOREIGN KEY constraint failed", ForeignKeyViolationErr},
		{"CHECK constraint failed: positive_balance", CheckConstraintViolationErr},
		{"table users already exists", ExistTableErr},
	}
	for _, c := range cases {
		is, kind := IsSqlError(errors.New(c.msg))
		if !is || kind != c.want {
			t.Errorf("IsSqlError(%q) = (%v, %v), want (true, %v)", c.msg, is, kind, c.want)
		}
	}
}

func TestIsSqlErrorUnrecognized(t *testing.T) {
	if is, _ := IsSqlError(nil); is {
		t.Error("nil error should not classify")
	}
	if is, _ := IsSqlError(errors.New("connection refused")); is {
		t.Error("network error should not classify")
	}
}

func TestConstraintHelpers(t *testing.T) {
	dup := errors.New("UNIQUE constraint failed: users.email")
	if !IsDuplicateKey(dup) {
		t.Error("IsDuplicateKey should match a unique violation")
	}
	if !IsConstraintViolation(dup) {
		t.Error("IsConstraintViolation should match a unique violation")
	}

	notNull := errors.New("NOT NULL constraint failed: users.name")
	if IsDuplicateKey(notNull) {
		t.Error("IsDuplicateKey must not match a not-null violation")
	}
	if !IsConstraintViolation(notNull) {
		t.Error("IsConstraintViolation should match a not-null violation")
	}

	if IsConstraintViolation(errors.New("no such table: users")) {
		t.Error("IsConstraintViolation must not match a missing table")
	}
}
