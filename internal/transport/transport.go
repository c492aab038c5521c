// Package transport implements the line-oriented TCP protocol the rest of
// the cluster treats as a reliable unicast of a single UTF-8 line with an
// ACK/PONG reply envelope: the server greets with READY, answers PING with
// PONG, and otherwise hands the line to an application handler and replies
// ACK.
package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler processes one application-level line and is invoked once per
// message (not per PING). Handlers run on the connection's own goroutine.
type Handler func(line string)

// Server accepts connections on a single listener, one goroutine per
// connection, speaking the READY/PING-PONG/ACK contract.
type Server struct {
	nodeID   string
	listener net.Listener
	handler  Handler
	log      *logrus.Entry

	wg sync.WaitGroup
}

// Listen starts a Server bound to addr (e.g. ":7201"). Each accepted
// connection is served on its own goroutine until EXIT or EOF.
func Listen(nodeID, addr string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	s := &Server{
		nodeID:   nodeID,
		listener: ln,
		handler:  handler,
		log:      logrus.WithField("component", "transport").WithField("node", nodeID),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed during shutdown; nothing else can cause Accept
			// to return an error that should abort this loop.
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn implements the per-connection half of the wire protocol:
// READY, then one line per round trip, PING answered with PONG, anything
// else routed to the handler and ACKed, until EXIT or EOF.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if _, err := fmt.Fprint(conn, "READY\n"); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "EXIT":
			return
		case strings.EqualFold(line, "PING"):
			if _, err := fmt.Fprint(conn, "PONG\n"); err != nil {
				return
			}
		default:
			s.handler(line)
			if _, err := fmt.Fprint(conn, "ACK\n"); err != nil {
				return
			}
		}
	}
	// Connection reset and aborted-connection errors are common from
	// health probes that dial and disconnect without sending EXIT; they
	// are not logged as failures.
	if err := scanner.Err(); err != nil && !isBenignDisconnect(err) {
		s.log.WithError(err).Debug("connection closed with error")
	}
}

func isBenignDisconnect(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "abort") || strings.Contains(msg, "use of closed network connection")
}

// Close stops accepting new connections. In-flight connections are left to
// finish on their own.
func (s *Server) Close() error {
	return s.listener.Close()
}

// SendLine dials addr, consumes the READY greeting, sends content as a
// single line, and returns once ACK is received.
func SendLine(addr, content string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("transport: read greeting: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", content); err != nil {
		return fmt.Errorf("transport: write message: %w", err)
	}
	reply, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("transport: read ack: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(reply), "ACK") {
		return fmt.Errorf("transport: unexpected reply %q, want ACK", strings.TrimSpace(reply))
	}
	return nil
}

// Ping dials addr and performs a health check: consume READY, send PING,
// expect PONG.
func Ping(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("transport: read greeting: %w", err)
	}
	if _, err := fmt.Fprint(conn, "PING\n"); err != nil {
		return fmt.Errorf("transport: write ping: %w", err)
	}
	reply, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("transport: read pong: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(reply), "PONG") {
		return fmt.Errorf("transport: unexpected reply %q, want PONG", strings.TrimSpace(reply))
	}
	return nil
}
