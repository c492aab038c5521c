// Package coordinator implements cluster-wide leader election and
// live-membership tracking on top of an external hierarchical coordination
// service (ZooKeeper), following the EPHEMERAL_SEQUENTIAL watch-predecessor
// pattern: each candidate watches only the sibling immediately below it, so
// a departure triggers exactly one re-evaluation instead of a herd of them.
package coordinator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/sirupsen/logrus"
)

const (
	rootPath    = "/messaging-system"
	nodesPath   = rootPath + "/nodes"
	leaderPath  = rootPath + "/leader"
	messages    = rootPath + "/messages"
	configPath  = rootPath + "/config"
	sessionTime = 10 * time.Second
)

var basePaths = []string{rootPath, nodesPath, leaderPath, messages, configPath}

// Coordinator is the per-node election and membership client.
type Coordinator struct {
	nodeID  string
	servers []string
	log     *logrus.Entry

	mu          sync.RWMutex
	conn        *zk.Conn
	events      <-chan zk.Event
	ownCandID   string // e.g. "/messaging-system/leader/node-0000000001"
	isLeader    bool
	leader      string
	closed      bool

	// generation increments on every (re)connect; watchSession and
	// evaluateElection goroutines capture the generation they were started
	// under and abandon themselves once a newer one supersedes it, so a
	// session-expiry cycle leaves no stale goroutine or connection behind.
	generation atomic.Int64

	leaderSignaled atomic.Bool
	ready          chan struct{}
}

// New constructs a Coordinator for nodeID against the given ZooKeeper
// ensemble addresses. Connect must be called before use.
func New(nodeID string, servers []string) *Coordinator {
	return &Coordinator{
		nodeID:  nodeID,
		servers: servers,
		log:     logrus.WithField("component", "coordinator").WithField("node", nodeID),
		ready:   make(chan struct{}),
	}
}

// Connect establishes a session, creates the base paths if missing,
// registers this node's ephemeral znode, and enters the election. It
// returns once the registration and initial candidate creation succeed;
// callers that need to block until a leader is known should call
// WaitForLeadership afterward.
func (c *Coordinator) Connect() error {
	conn, events, err := zk.Connect(c.servers, sessionTime)
	if err != nil {
		return fmt.Errorf("coordinator: connect: %w", err)
	}
	gen := c.generation.Add(1)

	c.mu.Lock()
	c.conn = conn
	c.events = events
	c.mu.Unlock()

	if err := c.ensureBasePaths(conn); err != nil {
		return err
	}
	if err := c.registerSelf(conn); err != nil {
		return err
	}

	go c.watchSession(conn, events, gen)

	candPath, err := c.createCandidate(conn)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ownCandID = candPath
	c.mu.Unlock()

	go c.evaluateElection(conn, gen)
	return nil
}

// ensureBasePaths creates the persistent scaffolding paths, tolerating
// ErrNodeExists as a benign race with another node doing the same thing.
func (c *Coordinator) ensureBasePaths(conn *zk.Conn) error {
	for _, p := range basePaths {
		_, err := conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("coordinator: create base path %s: %w", p, err)
		}
	}
	return nil
}

// registerSelf creates this node's ephemeral znode under /nodes. A
// duplicate (ErrNodeExists, e.g. after a fast reconnect) is a benign
// no-op.
func (c *Coordinator) registerSelf(conn *zk.Conn) error {
	path := nodesPath + "/" + c.nodeID
	_, err := conn.Create(path, []byte(c.nodeID), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("coordinator: register self: %w", err)
	}
	return nil
}

// createCandidate creates this node's EPHEMERAL_SEQUENTIAL leader
// candidate.
func (c *Coordinator) createCandidate(conn *zk.Conn) (string, error) {
	path, err := conn.Create(leaderPath+"/node-", []byte(c.nodeID), zk.FlagEphemeral|zk.FlagSequence, zk.WorldACL(zk.PermAll))
	if err != nil {
		return "", fmt.Errorf("coordinator: create candidate: %w", err)
	}
	return path, nil
}

// evaluateElection lists the current candidates, determines whether this
// node is leader, and if not, arranges to watch its immediate predecessor.
// It is re-invoked whenever a watched predecessor disappears. conn and gen
// pin this goroutine to the session it was started under: once a newer
// session supersedes gen, it abandons itself instead of racing a fresher
// evaluateElection over the same candidate set.
func (c *Coordinator) evaluateElection(conn *zk.Conn, gen int64) {
	for {
		if c.generation.Load() != gen {
			return
		}

		children, _, err := conn.Children(leaderPath)
		if err != nil {
			c.log.WithError(err).Error("list leader candidates failed")
			return
		}
		sort.Strings(children)

		c.mu.RLock()
		own := c.ownCandID
		c.mu.RUnlock()
		ownName := own[strings.LastIndex(own, "/")+1:]

		idx := indexOf(children, ownName)
		if idx < 0 {
			// InternalInvariantViolation: our own candidate vanished (session
			// blip). Rejoin the election from scratch.
			c.log.Warn("own candidate missing from /leader children, rejoining")
			newPath, err := c.createCandidate(conn)
			if err != nil {
				c.log.WithError(err).Error("rejoin election failed")
				return
			}
			c.mu.Lock()
			c.ownCandID = newPath
			c.mu.Unlock()
			continue
		}

		if idx == 0 {
			c.becomeLeader(conn, children[0])
			return
		}

		c.becomeFollower(conn, children[0])
		predecessor := leaderPath + "/" + children[idx-1]
		exists, _, watch, err := conn.ExistsW(predecessor)
		if err != nil {
			c.log.WithError(err).Error("watch predecessor failed")
			return
		}
		if !exists {
			// Predecessor already gone; re-evaluate immediately.
			continue
		}

		ev := <-watch
		if c.generation.Load() != gen {
			return
		}
		if ev.Type == zk.EventNodeDeleted {
			continue
		}
		return
	}
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func (c *Coordinator) becomeLeader(conn *zk.Conn, leaderName string) {
	c.mu.Lock()
	c.isLeader = true
	c.leader = candidateNodeID(leaderName, conn)
	c.mu.Unlock()
	c.log.Info("became leader")
	c.signalReady()
}

func (c *Coordinator) becomeFollower(conn *zk.Conn, leaderName string) {
	c.mu.Lock()
	c.isLeader = false
	c.leader = candidateNodeID(leaderName, conn)
	c.mu.Unlock()
	c.signalReady()
}

// candidateNodeID reads the data stored on a leader candidate znode, which
// is the owning node's id.
func candidateNodeID(name string, conn *zk.Conn) string {
	data, _, err := conn.Get(leaderPath + "/" + name)
	if err != nil {
		return ""
	}
	return string(data)
}

// signalReady closes the ready channel exactly once, per process lifetime,
// the first time an election outcome (self or other) becomes known.
func (c *Coordinator) signalReady() {
	if c.leaderSignaled.CompareAndSwap(false, true) {
		close(c.ready)
	}
}

// WaitForLeadership blocks until the initial election has produced an
// authoritative leader. Per spec.md's design notes, the latch is armed at
// most once per process lifetime: a session re-entry after expiry does not
// re-arm it, so a second call after that point returns immediately.
func (c *Coordinator) WaitForLeadership() {
	<-c.ready
}

// IsLeader reports whether this node currently holds leadership.
func (c *Coordinator) IsLeader() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLeader
}

// CurrentLeader returns the node id of the current leader, or "" if none
// is known yet.
func (c *Coordinator) CurrentLeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader
}

// LiveNodes returns a snapshot of the currently registered node ids.
func (c *Coordinator) LiveNodes() []string {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}
	children, _, err := conn.Children(nodesPath)
	if err != nil {
		c.log.WithError(err).Warn("list live nodes failed")
		return nil
	}
	sort.Strings(children)
	return children
}

// StoreMessageMetadata creates a persistent znode recording that this
// leader accepted messageId. Callable only while this node is leader;
// otherwise it is silently skipped (LeaderMutationFromNonLeader). A
// duplicate write is a benign no-op.
func (c *Coordinator) StoreMessageMetadata(messageID, payload string) {
	if !c.IsLeader() {
		return
	}
	path := messages + "/" + messageID
	_, err := c.conn.Create(path, []byte(payload), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		c.log.WithError(err).WithField("messageId", messageID).Warn("store message metadata failed")
	}
}

// watchSession listens for session-expired events on the session it was
// started under (conn, events, gen) and triggers a full reconnect and
// re-election. The leader latch is deliberately not re-armed here; callers
// that already passed WaitForLeadership once continue without blocking
// again. It returns (abandoning the old session's event loop) as soon as
// that session either expires or is superseded by a newer generation, so
// no more than one watchSession goroutine is ever live per session.
func (c *Coordinator) watchSession(conn *zk.Conn, events <-chan zk.Event, gen int64) {
	for ev := range events {
		if ev.State != zk.StateExpired {
			continue
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed || c.generation.Load() != gen {
			return
		}
		c.log.Warn("coordination session expired, reconnecting")
		if err := c.reconnect(conn); err != nil {
			c.log.WithError(err).Error("reconnect after session expiry failed")
		}
		return
	}
}

// reconnect replaces an expired session with a fresh one. oldConn (the
// expired session this call was triggered from) is closed first, best
// effort, so the expired client doesn't linger; the watchSession and
// evaluateElection goroutines it owned exit on their own once oldConn's
// event channel closes or the generation check trips.
func (c *Coordinator) reconnect(oldConn *zk.Conn) error {
	if oldConn != nil {
		oldConn.Close()
	}

	conn, events, err := zk.Connect(c.servers, sessionTime)
	if err != nil {
		return err
	}
	gen := c.generation.Add(1)

	c.mu.Lock()
	c.conn = conn
	c.events = events
	c.mu.Unlock()

	if err := c.ensureBasePaths(conn); err != nil {
		return err
	}
	if err := c.registerSelf(conn); err != nil {
		return err
	}
	candPath, err := c.createCandidate(conn)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ownCandID = candPath
	c.mu.Unlock()

	go c.watchSession(conn, events, gen)
	go c.evaluateElection(conn, gen)
	return nil
}

// Close deletes this node's owned ephemeral znodes and closes the session.
// Best-effort: failures are logged, not returned, matching spec.md's
// propagation policy for the coordinator.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	own := c.ownCandID
	nodeID := c.nodeID
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if own != "" {
		if err := conn.Delete(own, -1); err != nil && err != zk.ErrNoNode {
			c.log.WithError(err).Warn("delete leader candidate on close failed")
		}
	}
	if err := conn.Delete(nodesPath+"/"+nodeID, -1); err != nil && err != zk.ErrNoNode {
		c.log.WithError(err).Warn("delete node registration on close failed")
	}
	conn.Close()
}

// sequenceSuffix extracts the numeric sequence suffix from a candidate
// znode name (e.g. "node-0000000001" -> 1). Only tests call it;
// evaluateElection orders candidates by sorting their zero-padded names.
func sequenceSuffix(name string) (int64, error) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 0, fmt.Errorf("malformed candidate name %q", name)
	}
	return strconv.ParseInt(name[idx+1:], 10, 64)
}
