// Package detector implements a debounced failure detector: a single
// scheduled worker probes each configured peer over a TCP PING/PONG
// handshake and emits debounced UP/DOWN events: DOWN after three
// consecutive misses, UP on the first success after that.
package detector

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	checkInterval  = 3 * time.Second
	connectTimeout = 500 * time.Millisecond
	readTimeout    = 800 * time.Millisecond
	downThreshold  = 3
	upThreshold    = 1
)

// Listener receives debounced peer state transitions. Both methods are
// invoked on the detector's single scheduler goroutine; implementations
// must not block.
type Listener interface {
	OnNodeDown(peer string)
	OnNodeUp(peer string)
}

// peerState is the per-peer debounce bookkeeping.
type peerState struct {
	isUp       bool
	failStreak int
	okStreak   int
}

// Detector probes a fixed peer set on a single serialized worker and emits
// debounced transitions to a Listener.
type Detector struct {
	mu       sync.Mutex
	peers    map[string]*peerState
	listener Listener
	log      *logrus.Entry

	stop chan struct{}
	done chan struct{}

	dialFunc func(addr string, timeout time.Duration) (net.Conn, error)
}

// New constructs a Detector over the given peer addresses ("host:port").
// Every peer starts in the up state, matching spec.md's initial condition.
func New(nodeID string, peers []string, listener Listener) *Detector {
	ps := make(map[string]*peerState, len(peers))
	for _, p := range peers {
		ps[p] = &peerState{isUp: true}
	}
	return &Detector{
		peers:    ps,
		listener: listener,
		log:      logrus.WithField("component", "detector").WithField("node", nodeID),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		dialFunc: net.DialTimeout,
	}
}

// Start launches the single scheduler worker. Calling Start more than once
// is a programming error; Detector is not reentrant-safe on Start/Stop.
func (d *Detector) Start() {
	go d.run()
}

// Stop terminates the scheduler and waits for it to exit.
func (d *Detector) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Detector) run() {
	defer close(d.done)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.probeAll()
		}
	}
}

func (d *Detector) probeAll() {
	d.mu.Lock()
	peers := make([]string, 0, len(d.peers))
	for p := range d.peers {
		peers = append(peers, p)
	}
	d.mu.Unlock()

	for _, peer := range peers {
		ok := d.probeOne(peer)
		d.recordResult(peer, ok)
	}
}

// probeOne performs a single PING/PONG round trip against peer. Any I/O
// error or unexpected reply is treated as a miss.
func (d *Detector) probeOne(peer string) bool {
	conn, err := d.dialFunc(peer, connectTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(readTimeout))
	reader := bufio.NewReader(conn)

	// Consume the server's greeting line; its content is irrelevant to the
	// health path.
	if _, err := reader.ReadString('\n'); err != nil {
		return false
	}

	if _, err := fmt.Fprint(conn, "PING\n"); err != nil {
		return false
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "PONG")
}

// recordResult applies the debounce state machine for one probe outcome
// and fires a listener callback on a state transition.
func (d *Detector) recordResult(peer string, ok bool) {
	d.mu.Lock()
	st, known := d.peers[peer]
	if !known {
		d.mu.Unlock()
		return
	}

	var fireUp, fireDown bool
	if ok {
		st.okStreak++
		st.failStreak = 0
		if !st.isUp && st.okStreak >= upThreshold {
			st.isUp = true
			st.okStreak = 0
			fireUp = true
		}
	} else {
		st.failStreak++
		st.okStreak = 0
		if st.isUp && st.failStreak >= downThreshold {
			st.isUp = false
			st.failStreak = 0
			fireDown = true
		}
	}
	d.mu.Unlock()

	d.notify(peer, fireUp, fireDown)
}

// notify invokes the listener, recovering from and logging any panic so a
// faulty listener cannot abort the scheduler.
func (d *Detector) notify(peer string, up, down bool) {
	if d.listener == nil || (!up && !down) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("peer", peer).Errorf("listener panic recovered: %v", r)
		}
	}()
	if down {
		d.log.WithField("peer", peer).Warn("peer marked down")
		d.listener.OnNodeDown(peer)
	}
	if up {
		d.log.WithField("peer", peer).Info("peer marked up")
		d.listener.OnNodeUp(peer)
	}
}

// IsUp reports the current debounced state for peer, true if unknown (a
// peer the detector was never configured to watch is assumed healthy).
func (d *Detector) IsUp(peer string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.peers[peer]
	if !ok {
		return true
	}
	return st.isUp
}
