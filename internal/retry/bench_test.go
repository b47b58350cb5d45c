package retry

import (
	"context"
	"errors"
	"testing"
)

func BenchmarkBackoff_FirstTry(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return nil }) //nolint:errcheck
	}
}

func BenchmarkBackoff_Permanent(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	fatal := errors.New("fatal")
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return Permanent(fatal) }) //nolint:errcheck
	}
}
