package memstore

import (
	"regexp"
	"strings"
	"time"

	"lms-dashboard-go/internal/remote"
)

func matchAll(r row, filters []remote.Filter) bool {
	for _, f := range filters {
		if !matchOne(r, f) {
			return false
		}
	}
	return true
}

func matchOne(r row, f remote.Filter) bool {
	if f.Op == remote.OpOr {
		for _, group := range f.Groups {
			if matchAll(r, group) {
				return true
			}
		}
		return false
	}
	value := r[f.Column]
	switch f.Op {
	case remote.OpEq:
		return equalValues(value, normalize(f.Value))
	case remote.OpNeq:
		want := normalize(f.Value)
		if want == nil {
			return value != nil
		}
		if value == nil {
			return false
		}
		return !equalValues(value, want)
	case remote.OpGte:
		c, ok := compare(value, normalize(f.Value))
		return ok && c >= 0
	case remote.OpLte:
		c, ok := compare(value, normalize(f.Value))
		return ok && c <= 0
	case remote.OpIsNull:
		return value == nil
	case remote.OpILike:
		s, ok := value.(string)
		pattern, pok := f.Value.(string)
		return ok && pok && likeRegexp(pattern).MatchString(s)
	case remote.OpIn:
		items, _ := f.Value.([]any)
		for _, item := range items {
			if equalValues(value, normalize(item)) {
				return true
			}
		}
		return false
	}
	return false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

// compare orders JSON-normalized values. RFC3339 strings compare as instants.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}

// orderCompare sorts NULLs after every value, as Postgres does for ASC.
func orderCompare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, _ := compare(a, b)
	return c
}

// likeRegexp translates a LIKE pattern; a backslash makes the next rune literal.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
