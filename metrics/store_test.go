// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pulselabs/pulse/lib/clock"
)

var storeEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T, defs []Definition) (*Store, *clock.FakeClock) {
	t.Helper()
	registry, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	fake := clock.Fake(storeEpoch)
	return NewStore(registry, fake), fake
}

func TestSetAndRead(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
		{Name: "s", Type: TypeSigned},
	})
	u := store.Registry().MustKey("u")
	s := store.Registry().MustKey("s")

	if err := store.SetUnsigned(u, 1000); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.SetSigned(s, -1000); err != nil {
		t.Fatalf("SetSigned: %v", err)
	}

	if got, err := store.ReadUnsigned(u); err != nil || got != 1000 {
		t.Errorf("ReadUnsigned: got %d, %v; want 1000, nil", got, err)
	}
	if got, err := store.ReadSigned(s); err != nil || got != -1000 {
		t.Errorf("ReadSigned: got %d, %v; want -1000, nil", got, err)
	}
}

func TestSetWrongTypeLeavesValueIntact(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
	})
	u := store.Registry().MustKey("u")

	if err := store.SetUnsigned(u, 42); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.SetSigned(u, -1); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("SetSigned on unsigned: got %v, want ErrTypeMismatch", err)
	}
	if got, _ := store.ReadUnsigned(u); got != 42 {
		t.Errorf("value altered by failed set: got %d, want 42", got)
	}
}

func TestUnknownKey(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
	})

	var zero Key
	if err := store.SetUnsigned(zero, 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("SetUnsigned(zero key): got %v, want ErrUnknownKey", err)
	}
	if err := store.Add(zero, 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Add(zero key): got %v, want ErrUnknownKey", err)
	}
	if _, err := store.Read(zero); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Read(zero key): got %v, want ErrUnknownKey", err)
	}
}

func TestAddWrapsFixedWidth(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
		{Name: "s", Type: TypeSigned},
	})
	u := store.Registry().MustKey("u")
	s := store.Registry().MustKey("s")

	if err := store.SetUnsigned(u, math.MaxUint32); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.Add(u, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, _ := store.ReadUnsigned(u); got != 1 {
		t.Errorf("unsigned wrap: got %d, want 1", got)
	}

	if err := store.SetSigned(s, math.MaxInt32); err != nil {
		t.Fatalf("SetSigned: %v", err)
	}
	if err := store.Add(s, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, _ := store.ReadSigned(s); got != math.MinInt32 {
		t.Errorf("signed wrap: got %d, want %d", got, math.MinInt32)
	}
}

func TestAddNegativeDelta(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
	})
	u := store.Registry().MustKey("u")

	if err := store.SetUnsigned(u, 10); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.Add(u, -3); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, _ := store.ReadUnsigned(u); got != 7 {
		t.Errorf("Add(-3): got %d, want 7", got)
	}
}

func TestAddOnTimerFails(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.Add(key, 1); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Add on timer: got %v, want ErrTypeMismatch", err)
	}
}

func TestTimerAccumulates(t *testing.T) {
	t.Parallel()
	store, fake := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.TimerStart(key); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	fake.Advance(1234 * time.Millisecond)
	if err := store.TimerStop(key); err != nil {
		t.Fatalf("TimerStop: %v", err)
	}
	if got, _ := store.ReadTimer(key); got != 1234 {
		t.Errorf("accumulated: got %d, want 1234", got)
	}

	// A second start/stop pair adds to the accumulation.
	if err := store.TimerStart(key); err != nil {
		t.Fatalf("second TimerStart: %v", err)
	}
	fake.Advance(766 * time.Millisecond)
	if err := store.TimerStop(key); err != nil {
		t.Fatalf("second TimerStop: %v", err)
	}
	if got, _ := store.ReadTimer(key); got != 2000 {
		t.Errorf("accumulated after second pair: got %d, want 2000", got)
	}
}

func TestTimerImmediateStopIsNonNegative(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.TimerStart(key); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	if err := store.TimerStop(key); err != nil {
		t.Fatalf("TimerStop: %v", err)
	}
	if got, _ := store.ReadTimer(key); got != 0 {
		t.Errorf("zero-duration timer: got %d, want 0", got)
	}
}

func TestTimerDoubleStartFails(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.TimerStart(key); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	if err := store.TimerStart(key); !errors.Is(err, ErrTimerRunning) {
		t.Errorf("second TimerStart: got %v, want ErrTimerRunning", err)
	}
}

func TestTimerStopWithoutStartFails(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.TimerStop(key); !errors.Is(err, ErrTimerNotRunning) {
		t.Errorf("TimerStop without start: got %v, want ErrTimerNotRunning", err)
	}
}

func TestTimerOpsOnGaugeFail(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
	})
	u := store.Registry().MustKey("u")

	if err := store.TimerStart(u); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("TimerStart on gauge: got %v, want ErrTypeMismatch", err)
	}
	if err := store.TimerStop(u); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("TimerStop on gauge: got %v, want ErrTypeMismatch", err)
	}
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "a", Type: TypeUnsigned},
		{Name: "b", Type: TypeSigned},
	})
	a := store.Registry().MustKey("a")
	b := store.Registry().MustKey("b")

	if err := store.SetUnsigned(a, 5); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.SetSigned(b, -5); err != nil {
		t.Fatalf("SetSigned: %v", err)
	}

	snapshot := store.Snapshot()

	// Mutations after the snapshot must not leak into it.
	if err := store.SetUnsigned(a, 99); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}

	if len(snapshot) != 2 {
		t.Fatalf("snapshot length: got %d, want 2", len(snapshot))
	}
	if got := snapshot[0].Value.Int64(); got != 5 {
		t.Errorf("snapshot[0]: got %d, want 5", got)
	}
	if got := snapshot[1].Value.Int64(); got != -5 {
		t.Errorf("snapshot[1]: got %d, want -5", got)
	}
}

func TestResetHonorsPreservePolicy(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "interval_counter", Type: TypeUnsigned},
		{Name: "battery_level", Type: TypeUnsigned, Preserve: true},
		{Name: "elapsed", Type: TypeTimer, Preserve: true}, // timers always reset
	})
	counter := store.Registry().MustKey("interval_counter")
	battery := store.Registry().MustKey("battery_level")
	elapsed := store.Registry().MustKey("elapsed")

	if err := store.SetUnsigned(counter, 100); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.SetUnsigned(battery, 87); err != nil {
		t.Fatalf("SetUnsigned: %v", err)
	}
	if err := store.TimerStart(elapsed); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	if err := store.TimerStop(elapsed); err != nil {
		t.Fatalf("TimerStop: %v", err)
	}

	store.Reset()

	if got, _ := store.ReadUnsigned(counter); got != 0 {
		t.Errorf("interval counter after reset: got %d, want 0", got)
	}
	if got, _ := store.ReadUnsigned(battery); got != 87 {
		t.Errorf("preserved gauge after reset: got %d, want 87", got)
	}
	if got, _ := store.ReadTimer(elapsed); got != 0 {
		t.Errorf("timer after reset: got %d, want 0", got)
	}
}

func TestResetRestampsRunningTimer(t *testing.T) {
	t.Parallel()
	store, fake := testStore(t, []Definition{
		{Name: "t", Type: TypeTimer},
	})
	key := store.Registry().MustKey("t")

	if err := store.TimerStart(key); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	fake.Advance(5 * time.Second)

	// Reset mid-flight: the running segment before the reset belongs
	// to the committed interval's record and is discarded.
	store.Reset()

	fake.Advance(2 * time.Second)
	if err := store.TimerStop(key); err != nil {
		t.Fatalf("TimerStop: %v", err)
	}
	if got, _ := store.ReadTimer(key); got != 2000 {
		t.Errorf("post-reset accumulation: got %d, want 2000", got)
	}
}

func TestValueAccessorsTypeChecked(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "u", Type: TypeUnsigned},
	})
	value, err := store.Read(store.Registry().MustKey("u"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := value.Signed(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Signed on unsigned value: got %v, want ErrTypeMismatch", err)
	}
	if _, err := value.TimerMillis(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("TimerMillis on unsigned value: got %v, want ErrTypeMismatch", err)
	}
	if _, err := value.Unsigned(); err != nil {
		t.Errorf("Unsigned: %v", err)
	}
}

func TestConcurrentAdds(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t, []Definition{
		{Name: "hits", Type: TypeUnsigned},
	})
	key := store.Registry().MustKey("hits")

	const workers = 8
	const perWorker = 1000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := store.Add(key, 1); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got, _ := store.ReadUnsigned(key); got != workers*perWorker {
		t.Errorf("concurrent adds: got %d, want %d", got, workers*perWorker)
	}
}

func TestSharedLockerDomain(t *testing.T) {
	t.Parallel()
	registry, err := NewRegistry([]Definition{
		{Name: "u", Type: TypeUnsigned},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	shared := new(sync.Mutex)
	store := NewStoreLocked(registry, clock.Fake(storeEpoch), shared)

	// The store must use the caller's lock: holding it blocks a
	// mutation until release.
	shared.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := store.SetUnsigned(store.Registry().MustKey("u"), 1); err != nil {
			t.Errorf("SetUnsigned: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("mutation proceeded while the shared lock was held")
	case <-time.After(20 * time.Millisecond): //nolint:realclock lock contention probe
	}
	shared.Unlock()
	<-done
}
