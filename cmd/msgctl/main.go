// cmd/msgctl is a demo/operator CLI built with Cobra that exercises a
// node's line transport directly.
//
// Usage:
//
//	msgctl send node-1 node-2 "hello there" --addr localhost:7201
//	msgctl ping                              --addr localhost:7201
//	msgctl status                            --http-addr localhost:8080
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ppriyankuu/messaging-cluster/internal/msgclient"
	"github.com/spf13/cobra"
)

var (
	addr     string
	httpAddr string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "msgctl",
		Short: "Operator CLI for a messaging cluster node's transport",
	}

	root.PersistentFlags().StringVar(&addr, "addr", "localhost:7201", "node transport address (host:port)")
	root.PersistentFlags().StringVar(&httpAddr, "http-addr", "localhost:8080", "node debug HTTP address (host:port)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "call timeout")

	root.AddCommand(sendCmd(), pingCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <sender> <receiver> <content>",
		Short: "Submit a message over the line transport",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := msgclient.New(addr, timeout)
			envelope := fmt.Sprintf("%s|%s|%s", args[0], args[1], args[2])
			if err := c.Send(envelope); err != nil {
				return err
			}
			fmt.Println("ACK")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Health-check a node over the line transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := msgclient.New(addr, timeout)
			if err := c.Ping(); err != nil {
				return err
			}
			fmt.Println("PONG")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch a node's debug status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			resp, err := client.Get(fmt.Sprintf("http://%s/status", httpAddr))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			prettyPrint(body)
			return nil
		},
	}
}

func prettyPrint(raw []byte) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(data))
}
