package msgclient

import (
	"testing"
	"time"

	"github.com/ppriyankuu/messaging-cluster/internal/transport"
)

func TestSendAndPingAgainstRealServer(t *testing.T) {
	var received []string
	srv, err := transport.Listen("node-1", "127.0.0.1:0", func(line string) {
		received = append(received, line)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	c := New(srv.Addr().String(), time.Second)
	if err := c.Send("node-1|node-2|hi"); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() = %v", err)
	}
	if len(received) != 1 || received[0] != "node-1|node-2|hi" {
		t.Fatalf("received = %v", received)
	}
}

func TestSendToUnreachableAddrReturnsError(t *testing.T) {
	c := New("127.0.0.1:1", 200*time.Millisecond)
	if err := c.Send("hi"); err == nil {
		t.Fatal("Send() to an unreachable address returned nil, want error")
	}
}
