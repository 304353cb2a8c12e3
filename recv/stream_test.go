package recv

import (
	"testing"
	"time"

	"github.com/ajameson/spead2/internal/xtime"
	"github.com/ajameson/spead2/spead"
)

func heapPacket(cnt uint64, heapLength, offset, length int64, payload []byte) []byte {
	pointers := mandatoryPointers(cnt, heapLength, offset, length)
	hdr, _ := spead.EncodeHeader(testAddressBits, len(pointers))
	buf := append([]byte{}, hdr[:]...)
	for _, w := range pointers {
		var b [8]byte
		spead.PutItemPointer(b[:], w)
		buf = append(buf, b[:]...)
	}
	return append(buf, payload...)
}

// TestStreamEvictionDispatchesIncomplete checks that when a Stream's
// table is full and a new heap arrives, the oldest in-flight heap is
// dispatched as an incomplete DispatchResult through the consumer
// callback, not silently dropped.
func TestStreamEvictionDispatchesIncomplete(t *testing.T) {
	cfg, err := NewConfig(WithMaxHeaps(1))
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(8)
	defer exec.Close()

	results := make(chan DispatchResult, 4)
	st := NewStream(cfg, exec, xtime.Real, func(r DispatchResult) { results <- r })

	st.HandlePacket(heapPacket(1, 10, 0, 4, []byte("abcd")))
	st.HandlePacket(heapPacket(2, 10, 0, 4, []byte("efgh")))

	dr := <-results
	if !dr.Incomplete || dr.Terminal {
		t.Fatalf("expected an incomplete eviction dispatch, got %+v", dr)
	}
	if dr.Frozen.Cnt != 1 {
		t.Fatalf("evicted heap cnt = %d, want 1 (least recently updated)", dr.Frozen.Cnt)
	}
}

// TestStreamStopDrainsAndSendsTerminal checks that Stop flushes every
// in-flight partial heap as incomplete and then posts exactly one
// terminal marker, after which HandlePacket is a no-op.
func TestStreamStopDrainsAndSendsTerminal(t *testing.T) {
	cfg, err := NewConfig(WithMaxHeaps(4))
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(8)
	defer exec.Close()

	results := make(chan DispatchResult, 8)
	st := NewStream(cfg, exec, xtime.Real, func(r DispatchResult) { results <- r })

	st.HandlePacket(heapPacket(1, 10, 0, 4, []byte("abcd")))
	st.HandlePacket(heapPacket(2, 10, 0, 4, []byte("efgh")))

	st.Stop()

	var incompleteCount, terminalCount int
	for i := 0; i < 3; i++ {
		select {
		case dr := <-results:
			if dr.Terminal {
				terminalCount++
			} else if dr.Incomplete {
				incompleteCount++
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch after Stop")
		}
	}
	if incompleteCount != 2 {
		t.Fatalf("incompleteCount = %d, want 2", incompleteCount)
	}
	if terminalCount != 1 {
		t.Fatalf("terminalCount = %d, want 1", terminalCount)
	}

	// HandlePacket after Stop must be a no-op: no further dispatch.
	st.HandlePacket(heapPacket(3, 10, 0, 4, []byte("ijkl")))
	select {
	case dr := <-results:
		t.Fatalf("unexpected dispatch after Stop: %+v", dr)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestStreamManualClockEviction exercises eviction with the manual
// clock so the "least recently updated" ordering is deterministic
// rather than relying on wall-clock timing.
func TestStreamManualClockEviction(t *testing.T) {
	clock := xtime.NewManual(time.Unix(0, 0))
	cfg, err := NewConfig(WithMaxHeaps(2))
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(8)
	defer exec.Close()

	results := make(chan DispatchResult, 4)
	st := NewStream(cfg, exec, clock, func(r DispatchResult) { results <- r })

	st.HandlePacket(heapPacket(1, 10, 0, 4, []byte("abcd")))
	clock.Advance(time.Second)
	st.HandlePacket(heapPacket(2, 10, 0, 4, []byte("efgh")))
	clock.Advance(time.Second)
	st.HandlePacket(heapPacket(3, 10, 0, 4, []byte("ijkl")))

	dr := <-results
	if !dr.Incomplete {
		t.Fatalf("expected incomplete eviction dispatch, got %+v", dr)
	}
	if dr.Frozen.Cnt != 1 {
		t.Fatalf("evicted heap cnt = %d, want 1 (oldest)", dr.Frozen.Cnt)
	}
}
