package node

import (
	"errors"
	"testing"

	"github.com/ppriyankuu/messaging-cluster/internal/replication"
)

func TestNewRejectsInvalidNodeID(t *testing.T) {
	cases := []string{"node", "node-0", "node-01", "foo-1", ""}
	for _, id := range cases {
		if _, err := New(Config{NodeID: id, Port: 7201}); err == nil {
			t.Errorf("New(NodeID: %q) = nil error, want error", id)
		}
	}
}

func TestNewRejectsPortOutOfRange(t *testing.T) {
	cases := []int{0, 1023, 65536, -1}
	for _, p := range cases {
		if _, err := New(Config{NodeID: "node-1", Port: p}); err == nil {
			t.Errorf("New(Port: %d) = nil error, want error", p)
		}
	}
}

func TestNewAcceptsValidConfig(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201, ReplicationN: 3})
	if err != nil {
		t.Fatalf("New() = %v, want nil", err)
	}
	if n == nil {
		t.Fatal("New() returned nil node with nil error")
	}
}

func TestStandaloneNodeIsAlwaysLeader(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201})
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsLeader() {
		t.Fatal("standalone node (no coordinator) should always be leader")
	}
	if got := n.CurrentLeader(); got != "node-1" {
		t.Fatalf("CurrentLeader() = %q, want node-1", got)
	}
}

func TestNodeAddrMapsConventionalPort(t *testing.T) {
	addr, err := nodeAddr("node-3")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "localhost:7203" {
		t.Fatalf("nodeAddr(node-3) = %q, want localhost:7203", addr)
	}
}

func TestNodeAddrRejectsMalformedID(t *testing.T) {
	if _, err := nodeAddr("not-a-node-id-x"); err == nil {
		t.Fatal("nodeAddr with a non-numeric suffix should error")
	}
}

func TestSubmitMessageOnStandaloneNodeStabilizesAndSequences(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201, ReplicationN: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Avoid random write failure injection flaking the test.
	n.repl.writeFailPct = 0

	if err := n.SubmitMessage("node-1", "node-2", "hello"); err != nil {
		t.Fatalf("SubmitMessage() = %v, want nil", err)
	}
	if n.StabilizedCount() != 1 {
		t.Fatalf("StabilizedCount() = %d, want 1", n.StabilizedCount())
	}
	delivered := n.Delivered()
	if len(delivered) != 1 || delivered[0].Content != "hello" {
		t.Fatalf("Delivered() = %v, want one message with content \"hello\"", delivered)
	}
}

func TestSubmitMessageReplicatesTrimmedContent(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201, ReplicationN: 1})
	if err != nil {
		t.Fatal(err)
	}
	n.repl.writeFailPct = 0

	if err := n.SubmitMessage("node-1", "node-2", "  hello  "); err != nil {
		t.Fatalf("SubmitMessage() = %v, want nil", err)
	}
	delivered := n.Delivered()
	if len(delivered) != 1 {
		t.Fatalf("Delivered() = %v, want one message", delivered)
	}
	id := delivered[0].ID
	got, ok := n.ReadMessage(id)
	if !ok {
		t.Fatal("ReadMessage() = not found, want the replicated content")
	}
	if got != "hello" || got != delivered[0].Content {
		t.Fatalf("ReadMessage() = %q, want trimmed content %q matching Delivered()[0].Content", got, delivered[0].Content)
	}
}

func TestSubmitMessageWrapsQuorumUnavailableOnFailure(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201, ReplicationN: 3})
	if err != nil {
		t.Fatal(err)
	}
	// Force every replica write to fail so the quorum is never met.
	n.repl.writeFailPct = 100

	err = n.SubmitMessage("node-1", "node-2", "hello")
	if err == nil {
		t.Fatal("SubmitMessage() = nil, want quorum failure error")
	}
	if !errors.Is(err, replication.ErrQuorumUnavailable) {
		t.Fatalf("SubmitMessage() error = %v, want it to wrap replication.ErrQuorumUnavailable", err)
	}
}

func TestHandleLineDropsMalformedEnvelope(t *testing.T) {
	n, err := New(Config{NodeID: "node-1", Port: 7201, ReplicationN: 1})
	if err != nil {
		t.Fatal(err)
	}
	before := len(n.Delivered())
	n.handleLine("not-a-valid-envelope")
	if len(n.Delivered()) != before {
		t.Fatal("malformed envelope should not produce a delivered message")
	}
}
