package message

import "testing"

func TestNewRejectsBlankFields(t *testing.T) {
	cases := []struct {
		sender, receiver, content string
	}{
		{"", "b", "hi"},
		{"a", "", "hi"},
		{"a", "b", "  "},
	}
	for _, c := range cases {
		if _, err := New(c.sender, c.receiver, c.content); err == nil {
			t.Errorf("New(%q, %q, %q) = nil error, want error", c.sender, c.receiver, c.content)
		}
	}
}

func TestConversationIDIsOrderIndependent(t *testing.T) {
	a := ConversationID("node-2", "node-1")
	b := ConversationID("node-1", "node-2")
	if a != b {
		t.Fatalf("ConversationID not symmetric: %q != %q", a, b)
	}
	if a != "node-1-node-2" {
		t.Fatalf("got %q, want node-1-node-2", a)
	}
}

func TestMessageConversationMatchesConversationID(t *testing.T) {
	m, err := New("node-3", "node-1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Conversation(), ConversationID("node-3", "node-1"); got != want {
		t.Fatalf("Conversation() = %q, want %q", got, want)
	}
}
