// Package loader resolves foreign keys to rows in batches and fans out
// independent lookups, keeping whatever succeeded when some of them fail.
package loader

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	BatchSize   = 100
	Parallelism = 4
)

// Load fetches the rows for keys and indexes them by keyOf. Zero and duplicate
// keys are dropped. Failed batches are reported in the returned error while the
// map keeps every row that did load; the map is never nil.
func Load[K comparable, V any](ctx context.Context, keys []K, keyOf func(V) K, fetch func(context.Context, []K) ([]V, error)) (map[K]V, error) {
	out := make(map[K]V)
	unique := Unique(keys)
	if len(unique) == 0 {
		return out, nil
	}

	var batches [][]K
	for start := 0; start < len(unique); start += BatchSize {
		end := min(start+BatchSize, len(unique))
		batches = append(batches, unique[start:end])
	}

	results := make([][]V, len(batches))
	errs := make([]error, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Parallelism)
	for i, batch := range batches {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("loader: batch %d panicked: %v", i, r)
				}
			}()
			rows, err := fetch(gctx, batch)
			if err != nil {
				errs[i] = fmt.Errorf("loader: batch %d: %w", i, err)
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	for _, rows := range results {
		for _, row := range rows {
			out[keyOf(row)] = row
		}
	}
	return out, errors.Join(errs...)
}

// Unique returns keys without zero values or repeats, in first-seen order.
func Unique[K comparable](keys []K) []K {
	var zero K
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if k == zero {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// All runs fns concurrently and waits for every one of them, even after a
// failure. The returned error joins all failures.
func All(ctx context.Context, fns ...func(context.Context) error) error {
	errs := make([]error, len(fns))
	var g errgroup.Group
	for i, fn := range fns {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("loader: call %d panicked: %v", i, r)
				}
			}()
			errs[i] = fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
