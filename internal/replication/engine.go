// Package replication implements the quorum write/read engine: N simulated
// in-process replicas, a stabilized store that becomes authoritative once a
// write quorum succeeds, deduplication of repeated writes, and plurality
// reconciliation on read with first-seen tie-breaking.
package replication

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const quorumDeadline = 2 * time.Second

// DispatchObserver is invoked once per simulated replica dispatch, purely
// for test observability (e.g. asserting a deduped write skips replica
// dispatch entirely). Nil is a safe default.
type DispatchObserver func(op string, replicaIdx int, id string)

// replica is one simulated in-process store. A real deployment would put
// actual peer nodes behind this interface; spec.md's replicas are purely
// simulated local maps with injected latency and failure.
type replica struct {
	mu   sync.RWMutex
	data map[string]string
}

func newReplica() *replica {
	return &replica{data: make(map[string]string)}
}

func (r *replica) put(id, content string) {
	r.mu.Lock()
	r.data[id] = content
	r.mu.Unlock()
}

func (r *replica) get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[id]
	return v, ok
}

// Engine is the per-node quorum replication engine.
type Engine struct {
	n            int
	writeQuorum  int
	readQuorum   int
	replicas     []*replica
	stabilized   sync.Map // messageId -> string
	deduped      sync.Map // messageId -> struct{}
	stableCount  atomic.Int64
	log          *logrus.Entry
	OnDispatch   DispatchObserver
	writeFailPct int
	readMissPct  int
}

// New constructs an Engine with n simulated replicas. writeQuorum and
// readQuorum default to the strict majority floor(n/2)+1 when 0 is passed.
func New(nodeID string, n, writeQuorum, readQuorum int) *Engine {
	if n < 1 {
		n = 1
	}
	majority := n/2 + 1
	if writeQuorum <= 0 {
		writeQuorum = majority
	}
	if readQuorum <= 0 {
		readQuorum = majority
	}
	replicas := make([]*replica, n)
	for i := range replicas {
		replicas[i] = newReplica()
	}
	return &Engine{
		n:            n,
		writeQuorum:  writeQuorum,
		readQuorum:   readQuorum,
		replicas:     replicas,
		log:          logrus.WithField("component", "replication").WithField("node", nodeID),
		writeFailPct: 8,
		readMissPct:  5,
	}
}

// StabilizedCount returns how many messages have reached the stabilized
// store, for test and debug-surface introspection.
func (e *Engine) StabilizedCount() int {
	return int(e.stableCount.Load())
}

// WriteMessage dispatches a write to all N simulated replicas and installs
// the value in the stabilized store once writeQuorum replicas acknowledge.
// A repeated id is an idempotent no-op that never touches the replicas,
// per spec.md's dedup contract.
func (e *Engine) WriteMessage(id, content string) bool {
	if id == "" || content == "" {
		return false
	}
	if _, already := e.deduped.Load(id); already {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), quorumDeadline)
	defer cancel()

	type ack struct{ ok bool }
	results := make(chan ack, e.n)

	for i, r := range e.replicas {
		go func(idx int, rep *replica) {
			if e.OnDispatch != nil {
				e.OnDispatch("write", idx, id)
			}
			jitter := time.Duration(40+rand.Intn(121)) * time.Millisecond
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return
			}
			if rand.Intn(100) < e.writeFailPct {
				results <- ack{ok: false}
				return
			}
			rep.put(id, content)
			results <- ack{ok: true}
		}(i, r)
	}

	successes := 0
	for i := 0; i < e.n; i++ {
		select {
		case r := <-results:
			if r.ok {
				successes++
				if successes >= e.writeQuorum {
					e.stabilize(id, content)
					return true
				}
			}
		case <-ctx.Done():
			e.log.WithField("id", id).Warn("write quorum deadline exceeded")
			return false
		}
	}
	return false
}

func (e *Engine) stabilize(id, content string) {
	e.stabilized.Store(id, content)
	e.deduped.Store(id, struct{}{})
	e.stableCount.Add(1)
}

// ReadMessage collects readQuorum non-null responses across all N simulated
// replicas (falling back to the stabilized store on a replica miss) and
// returns the plurality value, ties broken by first-seen order. It returns
// ("", false) if fewer than readQuorum responses are collected within the
// deadline, or if every response is empty.
func (e *Engine) ReadMessage(id string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), quorumDeadline)
	defer cancel()

	type resp struct {
		value string
		ok    bool
	}
	results := make(chan resp, e.n)

	for i, r := range e.replicas {
		go func(idx int, rep *replica) {
			if e.OnDispatch != nil {
				e.OnDispatch("read", idx, id)
			}
			jitter := time.Duration(25+rand.Intn(96)) * time.Millisecond
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return
			}
			if rand.Intn(100) < e.readMissPct {
				if v, ok := e.stabilized.Load(id); ok {
					results <- resp{value: v.(string), ok: true}
				} else {
					results <- resp{ok: false}
				}
				return
			}
			if v, ok := rep.get(id); ok {
				results <- resp{value: v, ok: true}
				return
			}
			if v, ok := e.stabilized.Load(id); ok {
				results <- resp{value: v.(string), ok: true}
				return
			}
			results <- resp{ok: false}
		}(i, r)
	}

	var order []string
	counts := make(map[string]int)
	collected := 0

	for collected < e.n {
		select {
		case r := <-results:
			collected++
			if !r.ok {
				continue
			}
			if _, seen := counts[r.value]; !seen {
				order = append(order, r.value)
			}
			counts[r.value]++
			if total := totalResponses(counts); total >= e.readQuorum {
				return plurality(order, counts), true
			}
		case <-ctx.Done():
			if total := totalResponses(counts); total >= e.readQuorum {
				return plurality(order, counts), true
			}
			return "", false
		}
	}

	if total := totalResponses(counts); total >= e.readQuorum {
		return plurality(order, counts), true
	}
	return "", false
}

func totalResponses(counts map[string]int) int {
	t := 0
	for _, c := range counts {
		t += c
	}
	return t
}

// plurality returns the value with the highest count, breaking ties by
// first-seen order (order reflects the sequence values were first observed
// in).
func plurality(order []string, counts map[string]int) string {
	best := order[0]
	bestCount := counts[best]
	for _, v := range order[1:] {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// ReconcileAndRepair reads every replica's raw value for id (bypassing
// quorum short-circuiting), and if any replica disagrees with the plurality
// value, asynchronously re-seeds it. This is a local, best-effort analogue
// of cross-node read repair, scoped to the in-process simulated replicas
// this engine already owns; it makes no network calls and is not a
// substitute for anti-entropy.
func (e *Engine) ReconcileAndRepair(id string) {
	values := make([]string, 0, e.n)
	present := make([]bool, e.n)
	for i, r := range e.replicas {
		if v, ok := r.get(id); ok {
			values = append(values, v)
			present[i] = true
		}
	}
	if len(values) == 0 {
		return
	}
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	winner := plurality(order, counts)

	for i, r := range e.replicas {
		if !present[i] {
			continue
		}
		if v, _ := r.get(id); v != winner {
			go r.put(id, winner)
		}
	}
}

// Reset clears the dedup set and stabilized store, per spec.md §3's
// "Reset only on explicit test reset" lifecycle note for the dedup set.
// Exposed only for tests.
func (e *Engine) Reset() {
	e.stabilized = sync.Map{}
	e.deduped = sync.Map{}
	e.stableCount.Store(0)
}

// ErrQuorumUnavailable is the sentinel internal/node wraps into the error it
// returns when WriteMessage fails to reach quorum within the deadline.
var ErrQuorumUnavailable = fmt.Errorf("quorum unavailable within deadline")
