package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct {
	ID   string
	Name string
}

func TestLoadDedupsAndBatches(t *testing.T) {
	var keys []string
	for i := 0; i < 250; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i), fmt.Sprintf("k%d", i), "")
	}
	var mu sync.Mutex
	var sizes []int
	got, err := Load(context.Background(), keys, func(n named) string { return n.ID },
		func(_ context.Context, batch []string) ([]named, error) {
			mu.Lock()
			sizes = append(sizes, len(batch))
			mu.Unlock()
			out := make([]named, 0, len(batch))
			for _, k := range batch {
				out = append(out, named{ID: k, Name: "n-" + k})
			}
			return out, nil
		})
	require.NoError(t, err)
	assert.Len(t, got, 250)
	assert.ElementsMatch(t, []int{100, 100, 50}, sizes)
	assert.Equal(t, "n-k7", got["k7"].Name)
}

func TestLoadReturnsPartialMapOnFailure(t *testing.T) {
	var keys []int
	for i := 1; i <= 200; i++ {
		keys = append(keys, i)
	}
	boom := errors.New("boom")
	got, err := Load(context.Background(), keys, func(v int) int { return v },
		func(_ context.Context, batch []int) ([]int, error) {
			if batch[0] == 1 {
				return nil, boom
			}
			return batch, nil
		})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, got, 100)
	_, ok := got[150]
	assert.True(t, ok)
}

func TestLoadEmptyAndPanics(t *testing.T) {
	got, err := Load(context.Background(), []string{"", ""}, func(s string) string { return s },
		func(context.Context, []string) ([]string, error) {
			t.Fatal("fetch must not be called")
			return nil, nil
		})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Load(context.Background(), []string{"a"}, func(s string) string { return s },
		func(context.Context, []string) ([]string, error) { panic("bad row") })
	assert.Error(t, err)
	assert.NotNil(t, got)
}

func TestAllSettlesEveryCall(t *testing.T) {
	first := errors.New("first")
	var ran sync.Map
	err := All(context.Background(),
		func(context.Context) error { ran.Store("a", true); return first },
		func(context.Context) error { ran.Store("b", true); return nil },
		func(context.Context) error { ran.Store("c", true); return nil },
	)
	assert.ErrorIs(t, err, first)
	for _, k := range []string{"a", "b", "c"} {
		_, ok := ran.Load(k)
		assert.True(t, ok, k)
	}
	assert.NoError(t, All(context.Background()))
}
