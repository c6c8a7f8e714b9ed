package slot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pair is valid only when both halves were written together
type pair struct {
	A, B int
	Sum  int
}

func (p *pair) valid() bool {
	return p.A+p.B == p.Sum && p.B == -2*p.A
}

func TestEmptySlot(t *testing.T) {
	var s Slot[int]

	if v := s.Load(); v != nil {
		t.Fatalf("Load() on empty slot = %v, want nil", *v)
	}
	if got := s.Version(); got != 0 {
		t.Fatalf("Version() = %d, want 0", got)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	s := New[string]()
	a, b := "a", "b"

	v1 := s.Store(&a)
	v2 := s.Store(&b)

	if v2 <= v1 {
		t.Fatalf("versions not increasing: %d then %d", v1, v2)
	}
	if got := s.Load(); got != &b {
		t.Fatalf("Load() returned %p, want %p", got, &b)
	}
}

func TestOverwriteAccounting(t *testing.T) {
	s := New[int]()
	x, y, z := 1, 2, 3

	s.Store(&x)
	s.Store(&y) // x never read
	s.Load()
	s.Store(&z) // y was read

	if got := s.Overwrites(); got != 1 {
		t.Fatalf("Overwrites() = %d, want 1", got)
	}
}

func TestClear(t *testing.T) {
	s := New[int]()
	x := 1
	s.Store(&x)

	version := s.Clear()

	v, got := s.LoadVersion()
	if v != nil {
		t.Fatalf("Load() after Clear = %v, want nil", *v)
	}
	if got != version || version != 2 {
		t.Fatalf("version = %d (Clear returned %d), want 2", got, version)
	}
}

func TestWaitWakesOnStore(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan *int, 1)
	go func() {
		v, _, err := s.Wait(ctx, 0)
		if err != nil {
			done <- nil
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	x := 42
	s.Store(&x)

	select {
	case v := <-done:
		if v == nil || *v != 42 {
			t.Fatalf("Wait() returned %v, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not wake up after Store")
	}
}

func TestWaitReturnsImmediatelyForNewerVersion(t *testing.T) {
	s := New[int]()
	x := 7
	s.Store(&x)

	v, version, err := s.Wait(context.Background(), 0)
	if err != nil || v == nil || *v != 7 || version != 1 {
		t.Fatalf("Wait() = (%v, %d, %v), want (7, 1, nil)", v, version, err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := s.Wait(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() err = %v, want deadline exceeded", err)
	}
}

// TestConcurrentPublishNeverTorn stresses one writer and several readers
// and checks every observed value against its construction invariant.
func TestConcurrentPublishNeverTorn(t *testing.T) {
	s := New[pair]()
	const writes = 20000

	var (
		wg      sync.WaitGroup
		stop    atomic.Bool
		invalid atomic.Int64
		seen    atomic.Int64
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for !stop.Load() {
				v, version := s.LoadVersion()
				if version < last {
					invalid.Add(1)
				}
				last = version
				if v == nil {
					continue
				}
				seen.Add(1)
				if !v.valid() {
					invalid.Add(1)
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		s.Store(&pair{A: i, B: -2 * i, Sum: -i})
	}
	stop.Store(true)
	wg.Wait()

	if n := invalid.Load(); n != 0 {
		t.Fatalf("observed %d torn or out-of-order values", n)
	}
	if got := s.Version(); got != writes {
		t.Fatalf("Version() = %d, want %d", got, writes)
	}
	t.Logf("readers observed %d values", seen.Load())
}
