package spibus

import (
	"sync"
	"testing"
	"time"
)

// loopSPI echoes writes back on reads.
type loopSPI struct{}

func (loopSPI) Tx(w, r []byte) error {
	for i := range r {
		if i < len(w) {
			r[i] = w[i]
		}
	}
	return nil
}

func (loopSPI) Transfer(w byte) (byte, error) { return w, nil }

func TestTxnExclusivity(t *testing.T) {
	b := NewShared(loopSPI{})
	s := Settings{Frequency: 1_000_000}

	txn := Begin(b, s)

	acquired := make(chan struct{})
	go func() {
		inner := Begin(b, s)
		close(acquired)
		inner.End()
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired while first still held")
	case <-time.After(20 * time.Millisecond):
	}

	txn.End()

	select {
	case <-acquired:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("second transaction never acquired after release")
	}
}

func TestConfigureHookOnSettingsChange(t *testing.T) {
	b := NewShared(loopSPI{})
	var calls []Settings
	b.OnConfigure(func(s Settings) { calls = append(calls, s) })

	fast := Settings{Frequency: 14_000_000}
	slow := Settings{Frequency: 1_000_000, Mode: 3}

	Begin(b, fast).End()
	Begin(b, fast).End() // unchanged, no reconfigure
	Begin(b, slow).End()

	if len(calls) != 2 || calls[0] != fast || calls[1] != slow {
		t.Fatalf("unexpected configure calls: %v", calls)
	}
}

func TestZeroTxnEndIsNoop(t *testing.T) {
	var txn Txn
	txn.End() // must not panic
}

func TestSharedBusPassesThrough(t *testing.T) {
	b := NewShared(loopSPI{})
	txn := Begin(b, Settings{})
	defer txn.End()

	w := []byte{0xA5, 0x5A}
	r := make([]byte, 2)
	if err := b.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xA5 || r[1] != 0x5A {
		t.Fatalf("unexpected readback: %v", r)
	}
	v, err := b.Transfer(0x42)
	if err != nil || v != 0x42 {
		t.Fatalf("Transfer = %v, %v", v, err)
	}
}

func TestConcurrentTransactionsSerialise(t *testing.T) {
	b := NewShared(loopSPI{})
	var inTxn, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn := Begin(b, Settings{})
			mu.Lock()
			inTxn++
			if inTxn > max {
				max = inTxn
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inTxn--
			mu.Unlock()
			txn.End()
		}()
	}
	wg.Wait()
	if max != 1 {
		t.Fatalf("observed %d concurrent holders, want 1", max)
	}
}
