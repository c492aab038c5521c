package transport

import (
	"sync"
	"testing"
)

func TestSendLineDeliversToHandlerAndReturnsACK(t *testing.T) {
	var mu sync.Mutex
	var received []string

	srv, err := Listen("node-1", "127.0.0.1:0", func(line string) {
		mu.Lock()
		received = append(received, line)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if err := SendLine(srv.Addr().String(), "node-1|node-2|hello"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "node-1|node-2|hello" {
		t.Fatalf("received = %v, want [\"node-1|node-2|hello\"]", received)
	}
}

func TestPingReceivesPong(t *testing.T) {
	srv, err := Listen("node-1", "127.0.0.1:0", func(line string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if err := Ping(srv.Addr().String()); err != nil {
		t.Fatalf("Ping() = %v, want nil", err)
	}
}

func TestHandlerNotInvokedForPing(t *testing.T) {
	called := false
	srv, err := Listen("node-1", "127.0.0.1:0", func(line string) {
		called = true
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if err := Ping(srv.Addr().String()); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("handler invoked for a PING, want it skipped")
	}
}

func TestMultipleSequentialSendsAllDeliver(t *testing.T) {
	var mu sync.Mutex
	var count int
	srv, err := Listen("node-1", "127.0.0.1:0", func(line string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	for i := 0; i < 3; i++ {
		if err := SendLine(srv.Addr().String(), "hello"); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
