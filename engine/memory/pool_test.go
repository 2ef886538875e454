package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/portrait/engine/core"
)

func newTestPool(t *testing.T) *BufferPool {
	t.Helper()
	bp, err := NewBufferPool(BufferPoolConfig{
		MaxBufferSize:       1024,
		MaxBuffersPerBucket: 2,
		MaxRentSize:         4096,
	})
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	return bp
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		n, idx, size int
	}{
		{0, 0, 16},
		{1, 0, 16},
		{16, 0, 16},
		{17, 1, 32},
		{32, 1, 32},
		{33, 2, 64},
		{1024, 6, 1024},
		{1025, 7, 2048},
	}
	for _, tt := range tests {
		idx, size := bucketFor(tt.n)
		if idx != tt.idx || size != tt.size {
			t.Errorf("bucketFor(%d) = (%d, %d), want (%d, %d)", tt.n, idx, size, tt.idx, tt.size)
		}
	}
}

func TestRentReturnsRequestedLength(t *testing.T) {
	bp := newTestPool(t)
	buf, err := bp.Rent(100)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if len(buf) != 100 || cap(buf) != 128 {
		t.Fatalf("len=%d cap=%d, want 100/128", len(buf), cap(buf))
	}
	if bp.Outstanding() != 1 {
		t.Fatalf("outstanding = %d, want 1", bp.Outstanding())
	}
	bp.Return(buf)
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding = %d, want 0", bp.Outstanding())
	}
}

func TestReturnedBufferIsReused(t *testing.T) {
	bp := newTestPool(t)
	a, _ := bp.Rent(200)
	a[0] = 42
	bp.Return(a)
	b, _ := bp.Rent(150)
	if !sameBacking(a, b) {
		t.Fatalf("expected the returned buffer to be handed out again")
	}
	bp.Return(b)
}

func TestBucketRetentionIsBounded(t *testing.T) {
	bp := newTestPool(t)
	var bufs [][]byte
	for i := 0; i < 4; i++ {
		b, err := bp.Rent(64)
		if err != nil {
			t.Fatalf("Rent: %v", err)
		}
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		bp.Return(b)
	}
	if got := bp.Retained(); got != 2 {
		t.Fatalf("retained = %d, want 2", got)
	}
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding = %d, want 0", bp.Outstanding())
	}
}

func TestOversizeRentIsNotRetained(t *testing.T) {
	bp := newTestPool(t)
	buf, err := bp.Rent(3000)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if len(buf) != 3000 {
		t.Fatalf("len = %d", len(buf))
	}
	bp.Return(buf)
	if bp.Retained() != 0 {
		t.Fatalf("oversize buffer should not be retained")
	}
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding = %d, want 0", bp.Outstanding())
	}
}

func TestRentFailures(t *testing.T) {
	bp := newTestPool(t)
	for _, n := range []int{-1, 4097} {
		if _, err := bp.Rent(n); !errors.Is(err, core.ErrAllocationFailure) {
			t.Errorf("Rent(%d) error = %v, want ErrAllocationFailure", n, err)
		}
	}
	if bp.Outstanding() != 0 {
		t.Fatalf("failed rentals must not count as outstanding")
	}
}

func TestNewBufferPoolValidation(t *testing.T) {
	if _, err := NewBufferPool(BufferPoolConfig{MaxBufferSize: 8, MaxBuffersPerBucket: 1}); err == nil {
		t.Fatalf("expected error for tiny MaxBufferSize")
	}
	if _, err := NewBufferPool(BufferPoolConfig{MaxBufferSize: 1024}); err == nil {
		t.Fatalf("expected error for zero MaxBuffersPerBucket")
	}
}

func TestConcurrentRentReturn(t *testing.T) {
	bp := newTestPool(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b, err := bp.Rent(16 + (i*j)%900)
				if err != nil {
					t.Errorf("Rent: %v", err)
					return
				}
				bp.Return(b)
			}
		}(i)
	}
	wg.Wait()
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding = %d, want 0", bp.Outstanding())
	}
}

func TestArenaReleaseReturnsEverything(t *testing.T) {
	bp := newTestPool(t)
	func() {
		arena := bp.NewArena()
		defer arena.Release()
		for i := 0; i < 3; i++ {
			if _, err := arena.Rent(100 * (i + 1)); err != nil {
				t.Fatalf("Rent: %v", err)
			}
		}
		if bp.Outstanding() != 3 {
			t.Fatalf("outstanding = %d, want 3", bp.Outstanding())
		}
	}()
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding after release = %d, want 0", bp.Outstanding())
	}
}

func TestArenaDetach(t *testing.T) {
	bp := newTestPool(t)
	arena := bp.NewArena()
	kept, _ := arena.Rent(64)
	_, _ = arena.Rent(64)
	if !arena.Detach(kept) {
		t.Fatalf("Detach should find the rented buffer")
	}
	if arena.Detach(make([]byte, 4)) {
		t.Fatalf("Detach should ignore foreign buffers")
	}
	arena.Release()
	arena.Release()
	if bp.Outstanding() != 1 {
		t.Fatalf("outstanding = %d, want 1 (the detached buffer)", bp.Outstanding())
	}
	bp.Return(kept)
	if bp.Outstanding() != 0 {
		t.Fatalf("outstanding = %d, want 0", bp.Outstanding())
	}
}
