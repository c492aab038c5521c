package clockutil

import (
	"errors"
	"testing"

	"github.com/ppriyankuu/messaging-cluster/internal/message"
)

func TestNextLogicalTimeStrictlyIncreasing(t *testing.T) {
	ts := New("node-1")
	prev := ts.NextLogicalTime()
	for i := 0; i < 100; i++ {
		next := ts.NextLogicalTime()
		if next <= prev {
			t.Fatalf("NextLogicalTime not strictly increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestOnReceiveAdvancesPastRemote(t *testing.T) {
	ts := New("node-1")
	ts.OnReceive(0, 41)
	if got := ts.NextLogicalTime(); got <= 41 {
		t.Fatalf("NextLogicalTime() after OnReceive(_, 41) = %d, want > 41", got)
	}
}

func TestOnReceiveDoesNotRegressBehindLocal(t *testing.T) {
	ts := New("node-1")
	for i := 0; i < 10; i++ {
		ts.NextLogicalTime()
	}
	ts.OnReceive(0, 1) // far behind local logical time
	if got := ts.NextLogicalTime(); got <= 10 {
		t.Fatalf("NextLogicalTime() = %d, want > 10 (local should dominate a stale remote)", got)
	}
}

func TestSynchronizeClocksSetsOffsetFromMean(t *testing.T) {
	ts := New("node-1")
	before := ts.CurrentTimestamp()

	fetch := func(peer string) (int64, error) {
		return before + 5000, nil
	}
	ts.SynchronizeClocks([]string{"node-2", "node-3"}, fetch)

	after := ts.CurrentTimestamp()
	if after-before < 4000 {
		t.Fatalf("expected offset to shift current timestamp forward by ~5s, got delta %d", after-before)
	}
}

func TestSynchronizeClocksIgnoresErroringPeers(t *testing.T) {
	ts := New("node-1")
	fetch := func(peer string) (int64, error) {
		return 0, errors.New("unreachable")
	}
	// Should not panic and should leave the offset untouched.
	ts.SynchronizeClocks([]string{"node-2"}, fetch)
}

func TestCorrectTimestampOverwritesPhysicalOnly(t *testing.T) {
	ts := New("node-1")
	m, err := message.New("node-1", "node-2", "hi")
	if err != nil {
		t.Fatal(err)
	}
	m.LogicalTs = 7
	ts.CorrectTimestamp(m, 12345)
	if m.PhysicalTs != 12345 {
		t.Fatalf("PhysicalTs = %d, want 12345", m.PhysicalTs)
	}
	if m.LogicalTs != 7 {
		t.Fatalf("LogicalTs mutated to %d, want unchanged 7", m.LogicalTs)
	}
}
