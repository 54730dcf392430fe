// Package memstore is an in-process implementation of remote.Store. Rows are
// kept JSON-normalized so decoding into model structs matches the Postgres path.
package memstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"lms-dashboard-go/internal/remote"
)

type row map[string]any

type Store struct {
	mu      sync.RWMutex
	tables  map[string][]row
	uniques map[string][][]string
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tables:  map[string][]row{},
		uniques: map[string][][]string{},
	}
}

// Unique declares a unique constraint over columns of table, enforced on insert.
func (s *Store) Unique(table string, columns ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniques[table] = append(s.uniques[table], columns)
	return s
}

func (s *Store) Select(ctx context.Context, q remote.Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !remote.ValidIdent(q.Table) {
		return remote.ErrInvalidQuery
	}
	if err := remote.ValidateFilters(q.Filters); err != nil {
		return err
	}
	s.mu.RLock()
	matched := s.match(q.Table, q.Filters)
	s.mu.RUnlock()

	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				c := orderCompare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if len(q.Columns) > 0 {
		projected := make([]row, 0, len(matched))
		for _, r := range matched {
			p := row{}
			for _, c := range q.Columns {
				p[c] = r[c]
			}
			projected = append(projected, p)
		}
		matched = projected
	}
	if matched == nil {
		matched = []row{}
	}
	return decode(matched, dest)
}

func (s *Store) Count(ctx context.Context, table string, filters ...remote.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := remote.ValidateFilters(filters); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(table, filters)), nil
}

func (s *Store) Insert(ctx context.Context, table string, values remote.Values, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !remote.ValidIdent(table) || len(values) == 0 {
		return remote.ErrInvalidQuery
	}
	r := row{}
	for k, v := range values {
		if !remote.ValidIdent(k) {
			return remote.ErrInvalidQuery
		}
		r[k] = normalize(v)
	}
	s.mu.Lock()
	if s.violatesUnique(table, r) {
		s.mu.Unlock()
		return remote.ErrDuplicate
	}
	s.tables[table] = append(s.tables[table], r)
	stored := r.clone()
	s.mu.Unlock()
	if dest == nil {
		return nil
	}
	return decode(stored, dest)
}

func (s *Store) Update(ctx context.Context, table string, filters []remote.Filter, patch remote.Values, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(filters) == 0 || len(patch) == 0 {
		return remote.ErrInvalidQuery
	}
	if err := remote.ValidateFilters(filters); err != nil {
		return err
	}
	normalized := row{}
	for k, v := range patch {
		if !remote.ValidIdent(k) {
			return remote.ErrInvalidQuery
		}
		normalized[k] = normalize(v)
	}
	s.mu.Lock()
	var updated []row
	for _, r := range s.tables[table] {
		if !matchAll(r, filters) {
			continue
		}
		for k, v := range normalized {
			r[k] = v
		}
		updated = append(updated, r.clone())
	}
	s.mu.Unlock()

	switch {
	case dest == nil:
		return nil
	case isSlicePtr(dest):
		if updated == nil {
			updated = []row{}
		}
		return decode(updated, dest)
	default:
		if len(updated) == 0 {
			return remote.ErrNotFound
		}
		return decode(updated[0], dest)
	}
}

func (s *Store) Delete(ctx context.Context, table string, filters ...remote.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(filters) == 0 {
		return remote.ErrInvalidQuery
	}
	if err := remote.ValidateFilters(filters); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		if !matchAll(r, filters) {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return nil
}

// match returns clones of the matching rows; callers must hold the lock.
func (s *Store) match(table string, filters []remote.Filter) []row {
	var out []row
	for _, r := range s.tables[table] {
		if matchAll(r, filters) {
			out = append(out, r.clone())
		}
	}
	return out
}

func (s *Store) violatesUnique(table string, candidate row) bool {
	for _, columns := range s.uniques[table] {
		for _, existing := range s.tables[table] {
			same := true
			for _, c := range columns {
				if !equalValues(existing[c], candidate[c]) {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

func (r row) clone() row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func decode(v any, dest any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func isSlicePtr(v any) bool {
	t := reflect.TypeOf(v)
	return t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Slice
}
