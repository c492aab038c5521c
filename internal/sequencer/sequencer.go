// Package sequencer buffers messages per conversation and delivers them in
// strict, gap-free logicalTs order.
package sequencer

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/ppriyankuu/messaging-cluster/internal/message"
	"github.com/sirupsen/logrus"
)

// DeliverFunc is invoked, in order, for each message the sequencer releases.
type DeliverFunc func(m *message.Message)

// pendingHeap is a min-heap of buffered messages ordered by logicalTs.
type pendingHeap []*message.Message

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].LogicalTs < h[j].LogicalTs }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)         { *h = append(*h, x.(*message.Message)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// conversationState tracks the buffer and delivery cursor for one
// conversation.
type conversationState struct {
	pending       pendingHeap
	lastDelivered uint64
}

// Sequencer delivers messages per conversation in strictly increasing
// logicalTs order with no gaps. A conversation with a missing sequence
// number blocks only that conversation; the sequencer makes no cross-
// conversation ordering promise.
type Sequencer struct {
	mu            sync.Mutex
	conversations map[string]*conversationState
	deliver       DeliverFunc
	log           *logrus.Entry
}

// New constructs a Sequencer that invokes deliver for each message released
// in order.
func New(deliver DeliverFunc) *Sequencer {
	return &Sequencer{
		conversations: make(map[string]*conversationState),
		deliver:       deliver,
		log:           logrus.WithField("component", "sequencer"),
	}
}

// QueueMessage inserts m into its conversation's buffer and drains any
// messages that are now deliverable in order.
func (s *Sequencer) QueueMessage(m *message.Message) {
	convID := m.Conversation()

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.conversations[convID]
	if !ok {
		cs = &conversationState{}
		s.conversations[convID] = cs
	}
	heap.Push(&cs.pending, m)

	for len(cs.pending) > 0 && cs.pending[0].LogicalTs == cs.lastDelivered+1 {
		next := heap.Pop(&cs.pending).(*message.Message)
		cs.lastDelivered = next.LogicalTs
		s.log.WithFields(logrus.Fields{
			"conversation": convID,
			"logicalTs":    next.LogicalTs,
		}).Debug("delivering message")
		s.deliver(next)
	}
}

// PendingCount returns how many messages of convID are buffered, awaiting a
// gap to be filled. Used by tests.
func (s *Sequencer) PendingCount(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conversations[convID]
	if !ok {
		return 0
	}
	return len(cs.pending)
}

// LastDelivered reports the last logicalTs delivered for convID, or 0 if
// nothing has been delivered yet.
func (s *Sequencer) LastDelivered(convID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conversations[convID]
	if !ok {
		return 0
	}
	return cs.lastDelivered
}

// Drain forcibly flushes every buffered message for convID in logicalTs
// order, regardless of gaps, and resets lastDelivered to the highest
// logicalTs drained. Intended for offline reconciliation, not the normal
// delivery path.
func (s *Sequencer) Drain(convID string) []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.conversations[convID]
	if !ok || len(cs.pending) == 0 {
		return nil
	}
	out := make([]*message.Message, len(cs.pending))
	copy(out, cs.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalTs < out[j].LogicalTs })
	cs.pending = cs.pending[:0]
	cs.lastDelivered = out[len(out)-1].LogicalTs
	return out
}

// ReorderMessages sorts list by LogicalTs in place. Used for offline
// reconciliation when a batch of messages needs a deterministic order
// without going through the live sequencer.
func ReorderMessages(list []*message.Message) {
	sort.Slice(list, func(i, j int) bool { return list[i].LogicalTs < list[j].LogicalTs })
}
