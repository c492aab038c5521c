// Package node wires together the coordinator, failure detector,
// replication engine, time service, sequencer, and transport server into a
// single running cluster participant, and implements the write-path
// routing decision described in spec.md §2: a leader stamps and replicates
// a message itself; a follower forwards the raw content to the leader's
// transport port.
package node

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ppriyankuu/messaging-cluster/internal/clockutil"
	"github.com/ppriyankuu/messaging-cluster/internal/coordinator"
	"github.com/ppriyankuu/messaging-cluster/internal/detector"
	"github.com/ppriyankuu/messaging-cluster/internal/message"
	"github.com/ppriyankuu/messaging-cluster/internal/msgclient"
	"github.com/ppriyankuu/messaging-cluster/internal/replication"
	"github.com/ppriyankuu/messaging-cluster/internal/sequencer"
	"github.com/ppriyankuu/messaging-cluster/internal/transport"
	"github.com/sirupsen/logrus"
)

var nodeIDPattern = regexp.MustCompile(`^node-[1-9][0-9]*$`)

// basePort is the port offset for node-<k>: port = basePort + k.
const basePort = 7200

// Config bundles everything needed to start a Node.
type Config struct {
	NodeID        string
	Port          int
	CoordAddrs    []string // ZooKeeper ensemble; empty means standalone
	StaticPeers   []string // "host:port" list used when CoordAddrs is empty
	ReplicationN  int
}

// Node is a single cluster participant owning one instance of every
// component. Components are per-node, not process-global, per spec.md §9.
type Node struct {
	cfg Config
	log *logrus.Entry

	clock   *clockutil.TimeService
	seq     *sequencer.Sequencer
	repl    *replication.Engine
	det     *detector.Detector
	coord   *coordinator.Coordinator
	srv     *transport.Server

	mu        sync.RWMutex
	delivered []*message.Message
}

// New validates cfg and constructs a Node without starting any network
// activity.
func New(cfg Config) (*Node, error) {
	if !nodeIDPattern.MatchString(cfg.NodeID) {
		return nil, fmt.Errorf("node: invalid node id %q, want node-[1-9][0-9]*", cfg.NodeID)
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("node: port %d out of range [1024, 65535]", cfg.Port)
	}
	if cfg.ReplicationN < 1 {
		cfg.ReplicationN = 1
	}

	n := &Node{
		cfg: cfg,
		log: logrus.WithField("component", "node").WithField("node", cfg.NodeID),
	}
	n.clock = clockutil.New(cfg.NodeID)
	n.repl = replication.New(cfg.NodeID, cfg.ReplicationN, 0, 0)
	n.seq = sequencer.New(n.onDeliver)
	return n, nil
}

// Start brings up the coordinator (if configured), the failure detector
// over the resolved peer set, and the transport server, in that order.
func (n *Node) Start() error {
	if len(n.cfg.CoordAddrs) > 0 {
		n.coord = coordinator.New(n.cfg.NodeID, n.cfg.CoordAddrs)
		if err := n.coord.Connect(); err != nil {
			return fmt.Errorf("node: coordinator connect: %w", err)
		}
	}

	peers, err := n.resolvePeers()
	if err != nil {
		return err
	}

	n.det = detector.New(n.cfg.NodeID, peers, detectorListener{n})
	n.det.Start()

	addr := fmt.Sprintf(":%d", n.cfg.Port)
	srv, err := transport.Listen(n.cfg.NodeID, addr, n.handleLine)
	if err != nil {
		return fmt.Errorf("node: transport listen: %w", err)
	}
	n.srv = srv
	n.log.WithField("addr", addr).Info("node listening")
	return nil
}

// WaitForLeadership blocks until the initial election outcome is known. It
// is a no-op (returns immediately) when no coordinator is configured,
// since a standalone node is trivially its own leader.
func (n *Node) WaitForLeadership() {
	if n.coord != nil {
		n.coord.WaitForLeadership()
	}
}

// IsLeader reports whether this node should accept writes directly. A
// standalone node (no coordinator configured) is always its own leader.
func (n *Node) IsLeader() bool {
	if n.coord == nil {
		return true
	}
	return n.coord.IsLeader()
}

// resolvePeers returns the set of peer transport addresses to probe: from
// the coordination service's live-nodes list (snapshotted once at startup)
// if configured, otherwise the operator-supplied static peer list.
func (n *Node) resolvePeers() ([]string, error) {
	if n.coord == nil {
		return n.cfg.StaticPeers, nil
	}
	var peers []string
	for _, id := range n.coord.LiveNodes() {
		if id == n.cfg.NodeID {
			continue
		}
		addr, err := nodeAddr(id)
		if err != nil {
			n.log.WithError(err).WithField("peer", id).Warn("skipping peer with unmappable id")
			continue
		}
		peers = append(peers, addr)
	}
	return peers, nil
}

// nodeAddr maps a node-<k> id to its conventional transport address,
// localhost:(7200+k), per spec.md §6.
func nodeAddr(nodeID string) (string, error) {
	idx := strings.LastIndex(nodeID, "-")
	if idx < 0 {
		return "", fmt.Errorf("node: malformed node id %q", nodeID)
	}
	k, err := strconv.Atoi(nodeID[idx+1:])
	if err != nil {
		return "", fmt.Errorf("node: malformed node id %q: %w", nodeID, err)
	}
	return fmt.Sprintf("localhost:%d", basePort+k), nil
}

// SubmitMessage is the ingress point for a user-originated message. If this
// node is the leader (or standalone), it stamps, replicates, records
// metadata, and sequences the message itself. Otherwise it forwards the
// raw content to the current leader's transport port.
func (n *Node) SubmitMessage(sender, receiver, content string) error {
	if n.IsLeader() {
		return n.acceptAsLeader(sender, receiver, content)
	}
	return n.forwardToLeader(sender, receiver, content)
}

func (n *Node) acceptAsLeader(sender, receiver, content string) error {
	m, err := message.New(sender, receiver, content)
	if err != nil {
		return err
	}
	m.PhysicalTs = n.clock.CurrentTimestamp()
	m.LogicalTs = n.clock.NextLogicalTime()

	if ok := n.repl.WriteMessage(m.ID, m.Content); !ok {
		return fmt.Errorf("node: quorum write failed for message %s: %w", m.ID, replication.ErrQuorumUnavailable)
	}

	if n.coord != nil {
		payload := fmt.Sprintf("%s->%s:%d", m.Sender, m.Receiver, m.PhysicalTs)
		n.coord.StoreMessageMetadata(m.ID, payload)
	}

	n.seq.QueueMessage(m)
	return nil
}

// forwardToLeader sends "sender|receiver|content" to the leader's
// transport address; see DESIGN.md for why this envelope was chosen.
func (n *Node) forwardToLeader(sender, receiver, content string) error {
	if n.coord == nil {
		return fmt.Errorf("node: not leader and no coordinator to forward through")
	}
	leaderID := n.coord.CurrentLeader()
	if leaderID == "" {
		return fmt.Errorf("node: no leader known yet")
	}
	addr, err := nodeAddr(leaderID)
	if err != nil {
		return err
	}
	client := msgclient.New(addr, 0)
	return client.Send(fmt.Sprintf("%s|%s|%s", sender, receiver, content))
}

// handleLine is the transport handler: it parses the "sender|receiver|content"
// envelope a follower forwards (or a peer submits directly) and routes it
// through the same leader-acceptance path.
func (n *Node) handleLine(line string) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		n.log.WithField("line", line).Warn("malformed forwarded message, dropping")
		return
	}
	if err := n.acceptAsLeader(parts[0], parts[1], parts[2]); err != nil {
		n.log.WithError(err).Warn("failed to accept forwarded message")
	}
}

func (n *Node) onDeliver(m *message.Message) {
	n.mu.Lock()
	n.delivered = append(n.delivered, m)
	n.mu.Unlock()
	n.log.WithFields(logrus.Fields{
		"conversation": m.Conversation(),
		"logicalTs":    m.LogicalTs,
	}).Info("message delivered")
}

// Delivered returns a snapshot of all messages delivered by the sequencer
// so far. Used by tests.
func (n *Node) Delivered() []*message.Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*message.Message, len(n.delivered))
	copy(out, n.delivered)
	return out
}

// ReadMessage exposes the replication engine's read path.
func (n *Node) ReadMessage(id string) (string, bool) {
	return n.repl.ReadMessage(id)
}

// StabilizedCount exposes the replication engine's stabilized-write count.
func (n *Node) StabilizedCount() int {
	return n.repl.StabilizedCount()
}

// LiveNodes exposes the coordinator's membership view, or nil when running
// standalone.
func (n *Node) LiveNodes() []string {
	if n.coord == nil {
		return nil
	}
	return n.coord.LiveNodes()
}

// CurrentLeader exposes the coordinator's view of the current leader, or
// this node's own id when running standalone.
func (n *Node) CurrentLeader() string {
	if n.coord == nil {
		return n.cfg.NodeID
	}
	return n.coord.CurrentLeader()
}

// detectorListener adapts Node to detector.Listener without exporting
// OnNodeDown/OnNodeUp directly on Node's own method set.
type detectorListener struct{ n *Node }

func (d detectorListener) OnNodeDown(peer string) {
	d.n.log.WithField("peer", peer).Warn("peer down")
}

func (d detectorListener) OnNodeUp(peer string) {
	d.n.log.WithField("peer", peer).Info("peer up")
}

// Close shuts the node down in the order spec.md's graceful-shutdown
// supplement describes: coordinator first (releasing ephemerals), then the
// failure detector, then the transport listener.
func (n *Node) Close() {
	if n.coord != nil {
		n.coord.Close()
	}
	if n.det != nil {
		n.det.Stop()
	}
	if n.srv != nil {
		n.srv.Close()
	}
}
