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

package types

import (
	"testing"
)

func TestPageRequestClamp(t *testing.T) {
	cases := []struct {
		page, pageSize         int
		wantPage, wantPageSize int
	}{
		{2, 20, 2, 20},
		{0, 20, 1, 20},
		{-5, 20, 1, 20},
		{3, 0, 3, DefaultPageSize},
		{3, -1, 3, DefaultPageSize},
		{0, 0, 1, DefaultPageSize},
	}
	for _, c := range cases {
		p := NewPageRequest(c.page, c.pageSize)
		if got := p.GetPage(); got != c.wantPage {
			t.Errorf("GetPage(%d) = %d, want %d", c.page, got, c.wantPage)
		}
		if got := p.GetPageSize(); got != c.wantPageSize {
			t.Errorf("GetPageSize(%d) = %d, want %d", c.pageSize, got, c.wantPageSize)
		}
	}
}

func TestPageRequestOffset(t *testing.T) {
	if got := NewPageRequest(1, 10).GetOffset(); got != 0 {
		t.Errorf("offset for page 1 = %d, want 0", got)
	}
	if got := NewPageRequest(3, 10).GetOffset(); got != 20 {
		t.Errorf("offset for page 3 = %d, want 20", got)
	}
	if got := NewPageRequest(0, 0).GetOffset(); got != 0 {
		t.Errorf("offset for clamped request = %d, want 0", got)
	}
}

func TestNewDefaultPageRequest(t *testing.T) {
	p := NewDefaultPageRequest()
	if p.GetPage() != 1 || p.GetPageSize() != DefaultPageSize {
		t.Errorf("default page request = (%d, %d), want (1, %d)", p.GetPage(), p.GetPageSize(), DefaultPageSize)
	}
}

func TestPaginationTotalPages(t *testing.T) {
	cases := []struct {
		total, pageSize, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
	}
	for _, c := range cases {
		p := NewPagination[int](1, c.pageSize, c.total, nil)
		if p.TotalPages != c.want {
			t.Errorf("TotalPages(total=%d, pageSize=%d) = %d, want %d", c.total, c.pageSize, p.TotalPages, c.want)
		}
	}
}

func TestNewEmptyPagination(t *testing.T) {
	p := NewEmptyPagination[int](2, 10)
	if p.Total != 0 || p.TotalPages != 0 {
		t.Errorf("empty pagination totals = (%d, %d), want (0, 0)", p.Total, p.TotalPages)
	}
	if p.Items == nil || len(p.Items) != 0 {
		t.Errorf("empty pagination items = %v, want empty non-nil slice", p.Items)
	}
	if p.Page != 2 || p.PageSize != 10 {
		t.Errorf("empty pagination echoes = (%d, %d), want (2, 10)", p.Page, p.PageSize)
	}
}

func TestQueryBuilder(t *testing.T) {
	q := NewQuery().
		Where("name = ?", "jack").
		Relation("Orders").
		Order("id ASC", "name DESC").
		NoTracking().
		WithDeleted()

	f := q.Filter()
	if f == nil || f.Schema != "name = ?" || len(f.Args) != 1 {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if len(q.Relations()) != 1 || q.Relations()[0] != "Orders" {
		t.Errorf("unexpected relations: %v", q.Relations())
	}
	if len(q.Orders()) != 2 {
		t.Errorf("unexpected orders: %v", q.Orders())
	}
	if !q.IsNoTracking() || !q.IsWithDeleted() {
		t.Errorf("flags = (%v, %v), want (true, true)", q.IsNoTracking(), q.IsWithDeleted())
	}
}

func TestQueryWhereFilterReplaces(t *testing.T) {
	q := NewQuery().Where("a = ?", 1)
	q.WhereFilter(NewQueryFilter("b = ?", 2))
	if q.Filter().Schema != "b = ?" {
		t.Errorf("filter schema = %q, want %q", q.Filter().Schema, "b = ?")
	}
}

func TestJsonObjectScan(t *testing.T) {
	var obj JsonObject
	if err := obj.Scan([]byte(`{"k":"v","n":1}`)); err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if obj.Get("k") != "v" {
		t.Errorf("Get(k) = %v, want v", obj.Get("k"))
	}
	if obj.Get("missing") != nil {
		t.Errorf("Get(missing) = %v, want nil", obj.Get("missing"))
	}

	var fromNil JsonObject
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil error: %v", err)
	}
	if fromNil == nil {
		t.Error("scan nil should produce an empty object")
	}

	if err := obj.Scan(42); err == nil {
		t.Error("scan of unsupported type should fail")
	}
}
