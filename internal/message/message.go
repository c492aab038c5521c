// Package message holds the types shared across every other component of a
// node: the wire-level Message itself, the causal VectorClock it may carry,
// and the conversation-id derivation the sequencer relies on.
package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is the unit the cluster replicates, timestamps, and sequences.
//
// id, sender, receiver, and content are set once at construction and never
// change; physicalTs and logicalTs are expected to be overwritten by the
// time service during ingestion and ordering correction.
type Message struct {
	ID          string
	Sender      string
	Receiver    string
	Content     string
	PhysicalTs  int64
	LogicalTs   uint64
	VectorClock VectorClock
}

// New constructs a Message with a fresh id and zeroed timestamps. Callers
// should route it through a TimeService before replication.
func New(sender, receiver, content string) (*Message, error) {
	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	content = strings.TrimSpace(content)
	if sender == "" || receiver == "" || content == "" {
		return nil, fmt.Errorf("message: sender, receiver, and content must be non-empty")
	}
	return &Message{
		ID:       uuid.NewString(),
		Sender:   sender,
		Receiver: receiver,
		Content:  content,
	}, nil
}

// ConversationID returns the lexicographically-sorted participant pair
// joined by "-", so the same two participants share one conversation
// regardless of which one sent the message.
func ConversationID(sender, receiver string) string {
	if sender <= receiver {
		return sender + "-" + receiver
	}
	return receiver + "-" + sender
}

// Conversation returns the conversation id this message belongs to.
func (m *Message) Conversation() string {
	return ConversationID(m.Sender, m.Receiver)
}
