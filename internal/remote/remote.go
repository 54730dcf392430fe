// Package remote defines the query/mutation contract with the data service.
// Implementations live in pgstore (Postgres) and memstore (in-process).
package remote

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrNotFound     = errors.New("remote: no rows")
	ErrInvalidQuery = errors.New("remote: invalid query")
	ErrDuplicate    = errors.New("remote: duplicate key")
)

type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpIn     Op = "in"
	OpILike  Op = "ilike"
	OpGte    Op = "gte"
	OpLte    Op = "lte"
	OpIsNull Op = "is_null"
	OpOr     Op = "or"
)

// Filter is a single predicate. For OpOr, Groups holds AND-groups joined by OR.
type Filter struct {
	Column string
	Op     Op
	Value  any
	Groups [][]Filter
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }
func IsNull(column string) Filter         { return Filter{Column: column, Op: OpIsNull} }

// In matches rows whose column is one of values. An empty set matches nothing.
func In[T any](column string, values []T) Filter {
	items := make([]any, 0, len(values))
	for _, v := range values {
		items = append(items, v)
	}
	return Filter{Column: column, Op: OpIn, Value: items}
}

// ILike is a case-insensitive SQL LIKE with % and _ wildcards.
func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

func Or(groups ...[]Filter) Filter {
	return Filter{Op: OpOr, Groups: groups}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   []Order
	Offset  int
	Limit   int
}

// Values maps column names to values for inserts and patches.
type Values map[string]any

// Store is the data service seen by the application. Select and Update decode
// rows into dest using the db/json column names of the destination struct.
type Store interface {
	Select(ctx context.Context, q Query, dest any) error
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	Insert(ctx context.Context, table string, values Values, dest any) error
	Update(ctx context.Context, table string, filters []Filter, patch Values, dest any) error
	Delete(ctx context.Context, table string, filters ...Filter) error
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdent reports whether name is safe to use as a table or column name.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// ValidateFilters checks every column referenced by filters, recursing into OR groups.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Op == OpOr {
			if len(f.Groups) == 0 {
				return ErrInvalidQuery
			}
			for _, group := range f.Groups {
				if err := ValidateFilters(group); err != nil {
					return err
				}
			}
			continue
		}
		if !ValidIdent(f.Column) {
			return ErrInvalidQuery
		}
		switch f.Op {
		case OpEq, OpNeq, OpIn, OpILike, OpGte, OpLte, OpIsNull:
		default:
			return ErrInvalidQuery
		}
	}
	return nil
}
