package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalSerialisesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "creator-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("max holders = %d, want 1", peak)
	}
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b while a is held: %v", err)
	}
	unlockB()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestLocalUnlockTwice(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
	unlock()

	again, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestKeepAliveRenewsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		keepAlive(stop, time.Millisecond, func() (bool, error) {
			calls.Add(1)
			return true, nil
		}, discard)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("extend called %d times, want at least 3", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(stop)
	<-done

	after := calls.Load()
	time.Sleep(10 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Errorf("extend called %d times after stop", got-after)
	}
}

func TestKeepAliveRetriesErrorsAndStopsWhenLost(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		keepAlive(make(chan struct{}), time.Millisecond, func() (bool, error) {
			if calls.Add(1) == 1 {
				return false, errors.New("connection reset")
			}
			return false, nil
		}, discard)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive did not return after the lock was lost")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("extend calls = %d, want 2", got)
	}
}

// Runs only against a real server: REDIS_ADDR=localhost:6379 go test ./internal/lock
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Close() }()

	l := NewRedis(client, discard)
	l.Retry = 10 * time.Millisecond
	l.TTL = 150 * time.Millisecond

	key := "test-" + time.Now().Format("150405.000000")
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Held past several TTLs: renewal keeps other holders out.
	short, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second lock: err = %v, want DeadlineExceeded", err)
	}

	unlock()
	again, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}
