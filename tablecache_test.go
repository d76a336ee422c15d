package edk_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ecodata/edk"
	"github.com/pkg/errors"
)

// countingSource counts how many underlying loads each ref triggers.
type countingSource struct {
	loads int64
	fail  bool
}

func (s *countingSource) Load(ctx context.Context, ref string) (edk.Rows, error) {
	atomic.AddInt64(&s.loads, 1)
	if s.fail {
		return nil, errors.Errorf("loading '%s': backend down", ref)
	}
	return edk.Rows{{"ref": ref}}, nil
}

func TestTableCacheLoadsOnce(t *testing.T) {
	src := &countingSource{}
	cache := edk.NewTableCache(src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := cache.Load(context.Background(), "occurrences.csv")
			if err != nil {
				t.Errorf("loading: %v", err)
				return
			}
			if len(rows) != 1 || rows[0]["ref"] != "occurrences.csv" {
				t.Errorf("unexpected rows: %v", rows)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt64(&src.loads); n != 1 {
		t.Fatalf("expected exactly one underlying load, got %d", n)
	}

	if _, err := cache.Load(context.Background(), "plots.csv"); err != nil {
		t.Fatalf("loading second table: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached tables, got %d", cache.Len())
	}
}

func TestTableCacheDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{fail: true}
	cache := edk.NewTableCache(src)
	if _, err := cache.Load(context.Background(), "t"); err == nil {
		t.Fatal("expected load failure")
	}
	src.fail = false
	rows, err := cache.Load(context.Background(), "t")
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
