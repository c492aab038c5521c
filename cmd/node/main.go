// cmd/node is the entrypoint for a single messaging cluster participant.
//
// Usage mirrors spec.md's CLI contract: a positional <nodeId> <port>
// [<coordAddress>], with flags available for everything else so the same
// binary can serve any role in the cluster.
//
// Example — standalone (no coordination service, static peers):
//
//	./node node-1 7201 --peers localhost:7202,localhost:7203
//
// Example — coordinated 3-node cluster:
//
//	./node node-1 7201 localhost:2181
//	./node node-2 7202 localhost:2181
//	./node node-3 7203 localhost:2181
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ppriyankuu/messaging-cluster/internal/httpapi"
	"github.com/ppriyankuu/messaging-cluster/internal/node"
	"github.com/sirupsen/logrus"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "debug/health HTTP listen address")
	peersFlag := flag.String("peers", "", "comma-separated static peer list (host:port), used when no coordAddress is given")
	replicationN := flag.Int("n", 3, "replication factor (N)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: node <nodeId> <port> [<coordAddress>] [flags]")
		os.Exit(1)
	}
	nodeID := args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		logrus.Fatalf("invalid port %q: %v", args[1], err)
	}

	rest := args[2:]
	var coordAddrs []string
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		coordAddrs = []string{rest[0]}
		rest = rest[1:]
	}
	// flag.Parse stops at the first positional argument; flags given after
	// the positional arguments are parsed here.
	flag.CommandLine.Parse(rest)

	var staticPeers []string
	if *peersFlag != "" {
		staticPeers = strings.Split(*peersFlag, ",")
	}

	log := logrus.WithField("component", "main").WithField("node", nodeID)

	n, err := node.New(node.Config{
		NodeID:       nodeID,
		Port:         port,
		CoordAddrs:   coordAddrs,
		StaticPeers:  staticPeers,
		ReplicationN: *replicationN,
	})
	if err != nil {
		log.Fatalf("construct node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("start node: %v", err)
	}

	router := httpapi.NewRouter(nodeID, n)
	srv := &http.Server{
		Addr:         *httpAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", *httpAddr).Info("debug HTTP surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("debug http server error: %v", err)
		}
	}()

	if len(coordAddrs) > 0 {
		log.Info("waiting for initial leadership determination")
		n.WaitForLeadership()
		log.WithField("leader", n.CurrentLeader()).Info("initial election resolved")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	n.Close()
}
